package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

// Options bound each delivery. Zero values fall back to the defaults below.
type Options struct {
	Timeout time.Duration
	// Retries counts extra attempts after a failure. An attempt that timed
	// out is abandoned, not stopped: a sink that ignores its context may
	// still finish it while the retry runs, so a message can arrive twice.
	// Receivers drop duplicates by Message.ID.
	Retries     int
	Backoff     time.Duration
	Concurrency int
}

const (
	defaultTimeout     = 5 * time.Second
	defaultBackoff     = 200 * time.Millisecond
	defaultConcurrency = 8
)

// Broadcaster fans messages out to a sink with per-recipient isolation: a
// timeout, a bounded number of retries and panic recovery for each message.
type Broadcaster struct {
	sink   Notifier
	opts   Options
	logger *logger.Logger
}

func NewBroadcaster(sink Notifier, opts Options, log *logger.Logger) *Broadcaster {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Broadcaster{sink: sink, opts: opts, logger: log.Named("notify")}
}

// Send delivers a single message with the same guarantees as Broadcast.
func (b *Broadcaster) Send(ctx context.Context, msg Message) error {
	return b.deliver(ctx, msg)
}

// Broadcast delivers every message and reports the outcome. It never returns
// an error; failures are in the result.
func (b *Broadcaster) Broadcast(ctx context.Context, msgs []Message) Result {
	res := Result{Attempted: len(msgs)}
	if len(msgs) == 0 {
		return res
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, b.opts.Concurrency)
	)
	for _, msg := range msgs {
		wg.Add(1)
		sem <- struct{}{}
		go func(msg Message) {
			defer func() {
				<-sem
				wg.Done()
			}()
			err := b.deliver(ctx, msg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Failures = append(res.Failures, Failure{UserID: msg.UserID, Error: err.Error()})
				return
			}
			res.Delivered++
		}(msg)
	}
	wg.Wait()

	b.logger.InfoContext(ctx, "broadcast finished",
		zap.Int("attempted", res.Attempted),
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
	)
	return res
}

func (b *Broadcaster) deliver(ctx context.Context, msg Message) error {
	backoff := b.opts.Backoff
	var lastErr error
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrDeliveryFailure, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = b.attempt(ctx, msg)
		if lastErr == nil {
			return nil
		}
		b.logger.WarnContext(ctx, "delivery attempt failed",
			logger.UserID(msg.UserID),
			zap.String("kind", string(msg.Kind)),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	if errors.Is(lastErr, ErrDeliveryFailure) {
		return lastErr
	}
	return fmt.Errorf("%w: %w", ErrDeliveryFailure, lastErr)
}

func (b *Broadcaster) attempt(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("notifier panic: %v", r)
			}
		}()
		done <- b.sink.Notify(ctx, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
