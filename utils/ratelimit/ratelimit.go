package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/config"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

// Rule allows Limit hits per Window for one key.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Scopes the service limits.
const (
	ScopeEvents = "events"
	ScopeToken  = "token"
)

// RuleFor returns the rule of a scope. Unknown scopes get 100 per minute.
func RuleFor(scope string, cfg *config.RateLimitConfig) Rule {
	switch scope {
	case ScopeEvents:
		return Rule{Limit: cfg.EventsPerMinute, Window: time.Minute}
	case ScopeToken:
		return Rule{Limit: 10, Window: time.Minute}
	}
	return Rule{Limit: 100, Window: time.Minute}
}

// Limiter counts hits per key in fixed windows stored in Redis, so all
// instances share one budget.
type Limiter struct {
	redisClient redis.UniversalClient
	logger      *logger.Logger
	fallback    bool // allow when Redis is unavailable
	now         func() time.Time
}

func NewLimiter(redisClient redis.UniversalClient, log *logger.Logger, fallback bool) *Limiter {
	return &Limiter{
		redisClient: redisClient,
		logger:      log.Named("ratelimit"),
		fallback:    fallback,
		now:         time.Now,
	}
}

func (l *Limiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	return l.AllowN(ctx, key, 1, rule)
}

// AllowN records n hits and reports whether the window total stays within the
// rule.
func (l *Limiter) AllowN(ctx context.Context, key string, n int, rule Rule) (bool, error) {
	if rule.Limit <= 0 {
		return true, nil
	}
	bucketKey := l.bucketKey(key, l.now(), rule.Window)

	pipe := l.redisClient.Pipeline()
	incr := pipe.IncrBy(ctx, bucketKey, int64(n))
	pipe.Expire(ctx, bucketKey, rule.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.fallback {
			l.logger.WarnContext(ctx, "rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incr.Val()
	allowed := count <= int64(rule.Limit)
	if !allowed {
		l.logger.WarnContext(ctx, "rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
		)
	}
	return allowed, nil
}

// Remaining returns the hits left in the current window.
func (l *Limiter) Remaining(ctx context.Context, key string, rule Rule) (int, error) {
	count, err := l.redisClient.Get(ctx, l.bucketKey(key, l.now(), rule.Window)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return rule.Limit, nil
		}
		return 0, fmt.Errorf("failed to read rate limit: %w", err)
	}
	return max(rule.Limit-count, 0), nil
}

func (l *Limiter) bucketKey(key string, now time.Time, window time.Duration) string {
	if window <= 0 {
		window = time.Minute
	}
	return fmt.Sprintf("santa:ratelimit:%s:%d", key, now.UnixNano()/int64(window))
}
