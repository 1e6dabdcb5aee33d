package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/internal/bot"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

const redisChannelName = "santa:notifications"

var (
	ErrNoBridge   = errors.New("no bridge connected")
	ErrBridgeBusy = errors.New("bridge send buffer is full")
)

// EventHandler processes events that bridges send over their connection.
type EventHandler interface {
	Handle(ctx context.Context, ev bot.Event) ([]notify.Message, error)
}

type HandlerFunc func(ctx context.Context, ev bot.Event) ([]notify.Message, error)

func (f HandlerFunc) Handle(ctx context.Context, ev bot.Event) ([]notify.Message, error) {
	return f(ctx, ev)
}

// Hub keeps the websocket connections of transport bridges and hands each
// outbound notification to one of them. With Redis, notifications are
// published on a channel and every instance forwards them to a local bridge;
// bridges drop duplicates by message id.
type Hub struct {
	clients map[*Client]bool
	order   []*Client
	next    int
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	// closed when Run returns
	done chan struct{}

	handler EventHandler
	redis   redis.UniversalClient
	logger  *logger.Logger
}

func NewHub(handler EventHandler, redisClient redis.UniversalClient, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		handler:    handler,
		redis:      redisClient,
		logger:     log.Named("ws"),
	}
}

// Run serves registrations until ctx is done. With Redis it also subscribes
// to the notification channel; the subscription is live before ready is
// closed.
func (h *Hub) Run(ctx context.Context, ready chan<- struct{}) {
	defer close(h.done)
	if h.redis != nil {
		pubsub := h.redis.Subscribe(ctx, redisChannelName)
		if _, err := pubsub.Receive(ctx); err != nil {
			h.logger.Error("failed to subscribe to notifications", zap.Error(err))
		} else {
			go h.subscribeToRedis(pubsub)
		}
		defer pubsub.Close()
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.order = append(h.order, client)
			h.mu.Unlock()
			h.logger.Info("bridge connected", zap.String("client", client.name), zap.Int("bridges", h.Connected()))

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			h.order = nil
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for i, c := range h.order {
		if c == client {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.logger.Info("bridge disconnected", zap.String("client", client.name), zap.Int("bridges", len(h.clients)))
}

// Connected returns the number of local bridges.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify implements notify.Notifier.
func (h *Hub) Notify(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.redis == nil {
		return h.deliverLocal(msg)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	receivers, err := h.redis.Publish(ctx, redisChannelName, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	if receivers == 0 {
		return ErrNoBridge
	}
	return nil
}

// deliverLocal hands msg to the next local bridge in round-robin order.
func (h *Hub) deliverLocal(msg notify.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return ErrNoBridge
	}
	client := h.order[h.next%len(h.order)]
	h.next++
	select {
	case client.send <- msg:
		return nil
	default:
		return ErrBridgeBusy
	}
}

func (h *Hub) subscribeToRedis(pubsub *redis.PubSub) {
	for m := range pubsub.Channel() {
		var msg notify.Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			h.logger.Warn("dropping malformed notification", zap.Error(err))
			continue
		}
		if err := h.deliverLocal(msg); err != nil && !errors.Is(err, ErrNoBridge) {
			h.logger.Warn("failed to forward notification", zap.String("id", msg.ID), zap.Error(err))
		}
	}
}
