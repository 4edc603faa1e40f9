// Package dedup remembers which inbound messages were already handed to the
// pipeline so that overlapping mailbox polls do not book a meeting twice.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen message id is remembered.
	DefaultTTL = 7 * 24 * time.Hour

	keyPrefix = "mailcal:seen:"
)

// Filter tracks processed message ids in Redis.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A non-positive ttl uses
// DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{rdb: rdb, ttl: ttl}
}

// Open parses a redis:// URL and returns a Filter over a new client.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Filter, func() error, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewFilter(rdb, ttl), rdb.Close, nil
}

// IsNew reports whether messageID has not been seen, marking it seen in the
// same SETNX.
func (f *Filter) IsNew(ctx context.Context, messageID string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, keyPrefix+messageID, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Forget clears the mark so the message is picked up again.
func (f *Filter) Forget(ctx context.Context, messageID string) error {
	if err := f.rdb.Del(ctx, keyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}

// Memory is a process-local filter for runs without Redis. Marks do not
// survive a restart.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemory creates an in-process filter.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

// IsNew reports whether messageID has not been seen within the ttl.
func (m *Memory) IsNew(_ context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if at, ok := m.seen[messageID]; ok && now.Sub(at) < m.ttl {
		return false, nil
	}
	m.seen[messageID] = now
	return true, nil
}

// Forget clears the mark for messageID.
func (m *Memory) Forget(_ context.Context, messageID string) error {
	m.mu.Lock()
	delete(m.seen, messageID)
	m.mu.Unlock()
	return nil
}
