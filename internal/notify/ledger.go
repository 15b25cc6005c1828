package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLedger marks keys with SET NX so that exactly one scheduler
// instance sends each reminder.
type RedisLedger struct {
	client setNXer
	prefix string
}

// NewRedisLedger returns a ledger storing keys under prefix.
func NewRedisLedger(client setNXer, prefix string) *RedisLedger {
	return &RedisLedger{client: client, prefix: prefix}
}

// MarkOnce reports true when key was not yet marked.
func (l *RedisLedger) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// MemoryLedger is the single-process fallback used when Redis is not
// available.
type MemoryLedger struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{until: map[string]time.Time{}, now: time.Now}
}

// MarkOnce reports true when key was not marked or its mark has expired.
func (l *MemoryLedger) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.until[key]; ok && now.Before(exp) {
		return false, nil
	}
	for k, exp := range l.until {
		if !now.Before(exp) {
			delete(l.until, k)
		}
	}
	l.until[key] = now.Add(ttl)
	return true, nil
}
