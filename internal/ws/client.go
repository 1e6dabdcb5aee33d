package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/internal/bot"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/services"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum event size allowed from a bridge.
	maxMessageSize = 16 << 10

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected bridge.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan notify.Message
	name string
	log  *logger.Logger
}

// ServeWS upgrades the request and attaches the bridge to the hub. name is
// the authenticated client name.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, name string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", zap.String("client", name), zap.Error(err))
		return
	}
	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan notify.Message, sendBufferSize),
		name: name,
		log:  h.logger.WithFields(zap.String("client", name)),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads events from the bridge and queues the replies on the same
// connection.
func (c *Client) readPump() {
	defer func() {
		// After Run returns nobody reads unregister.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("bridge connection closed", zap.Error(err))
			}
			return
		}
		if c.hub.handler == nil {
			continue
		}

		var ev bot.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Warn("malformed event from bridge", zap.Error(err))
			continue
		}
		ctx := logger.WithTraceID(context.Background(), "")
		replies, err := c.hub.handler.Handle(ctx, ev)
		if err != nil {
			replies = []notify.Message{notify.NewMessage(ev.UserID, notify.KindReply, services.UserMessage(err))}
		}
		for _, m := range replies {
			if err := c.hub.sendTo(c, m); err != nil {
				c.log.WarnContext(ctx, "failed to queue reply", zap.Error(err))
			}
		}
	}
}

// writePump writes queued messages as JSON text frames and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendTo queues msg for one specific bridge.
func (h *Hub) sendTo(c *Client, msg notify.Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return ErrNoBridge
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrBridgeBusy
	}
}
