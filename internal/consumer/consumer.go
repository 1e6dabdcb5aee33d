// Package consumer reads inbound bot events from Kafka and publishes the
// replies through the notification sink.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/config"
	"github.com/Gopher0727/SecretSanta/internal/bot"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/services"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

// TraceHeader is the record header a bridge may set to correlate logs.
const TraceHeader = "trace_id"

type EventHandler interface {
	Handle(ctx context.Context, ev bot.Event) ([]notify.Message, error)
}

// EventConsumer is a sarama.ConsumerGroupHandler. Bridges key records by user
// id, so one user's events stay on one partition and arrive in order.
type EventConsumer struct {
	handler     EventHandler
	broadcaster *notify.Broadcaster
	logger      *logger.Logger
}

func NewEventConsumer(handler EventHandler, broadcaster *notify.Broadcaster, log *logger.Logger) *EventConsumer {
	return &EventConsumer{
		handler:     handler,
		broadcaster: broadcaster,
		logger:      log.Named("consumer"),
	}
}

func (c *EventConsumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *EventConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *EventConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.process(session.Context(), message)
			// Failed events are answered with an error reply, never retried.
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *EventConsumer) process(ctx context.Context, message *sarama.ConsumerMessage) {
	ctx = logger.WithTraceID(ctx, traceID(message))

	var ev bot.Event
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		c.logger.WarnContext(ctx, "dropping malformed event",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return
	}

	replies, err := c.handler.Handle(ctx, ev)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if ev.UserID == "" {
			c.logger.WarnContext(ctx, "dropping event without user", zap.Error(err))
			return
		}
		replies = []notify.Message{notify.NewMessage(ev.UserID, notify.KindReply, services.UserMessage(err))}
	}
	if len(replies) == 0 {
		return
	}

	// Replies go out one by one to keep their order.
	for i, m := range replies {
		if err := c.broadcaster.Send(ctx, m); err != nil {
			c.logger.WarnContext(ctx, "reply not delivered",
				logger.UserID(ev.UserID),
				zap.Int("index", i),
				zap.Int("replies", len(replies)),
				zap.Error(err),
			)
		}
	}
}

func traceID(message *sarama.ConsumerMessage) string {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == TraceHeader {
			return string(h.Value)
		}
	}
	return ""
}

// Run consumes the inbound topic until ctx is cancelled. The returned channel
// is closed once the group client has shut down.
func Run(ctx context.Context, cfg *config.KafkaConfig, handler sarama.ConsumerGroupHandler, log *logger.Logger) (<-chan struct{}, error) {
	sc := notify.NewSaramaConfig(cfg)
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer group.Close()
		for {
			if err := group.Consume(ctx, []string{cfg.Topics.Inbound}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				log.Error("consumer group error", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return done, nil
}
