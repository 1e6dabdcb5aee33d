package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store keeps at most one state per user. Get returns (nil, nil) when the
// user has no state or it expired.
type Store interface {
	Get(ctx context.Context, userID string) (State, error)
	Put(ctx context.Context, userID string, st State) error
	Delete(ctx context.Context, userID string) error
}

type memoryEntry struct {
	state   State
	expires time.Time
}

// MemoryStore is a process-local Store. Expired entries are dropped lazily on
// read and by Purge.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, userID)
		return nil, nil
	}
	return e.state, nil
}

func (s *MemoryStore) Put(_ context.Context, userID string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = memoryEntry{state: st, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

// Purge removes every expired entry and returns how many were removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Janitor purges expired entries every interval until ctx is done.
func (s *MemoryStore) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Purge()
		case <-ctx.Done():
			return
		}
	}
}

const redisKeyPrefix = "santa:session:"

// RedisStore shares sessions between instances. Redis expires the keys, so
// every Put restarts the TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return redisKeyPrefix + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (State, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return Decode(b)
}

func (s *RedisStore) Put(ctx context.Context, userID string, st State) error {
	b, err := Encode(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
