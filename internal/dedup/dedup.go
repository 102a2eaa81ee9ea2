// Package dedup suppresses repeated sends of the same text to the same
// conversation within a short window.
package dedup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultWindow is how long a sent text blocks an identical one
const DefaultWindow = 2 * time.Second

const keyTextRunes = 50

// Registry records recent sends. Acquire returns false when key was
// acquired within the window; Release forgets key at once.
type Registry interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}

// Key builds the registry key from the conversation and the first 50
// characters of the trimmed text
func Key(conversationID, text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > keyTextRunes {
		runes = runes[:keyTextRunes]
	}
	return conversationID + ":" + string(runes)
}

// MemoryRegistry is a process-wide registry. Entries older than the window
// are swept on every insert, so it never grows past one window of sends.
type MemoryRegistry struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

func NewMemoryRegistry(window time.Duration, now func() time.Time) *MemoryRegistry {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryRegistry{
		window:  window,
		now:     now,
		entries: make(map[string]time.Time),
	}
}

func (r *MemoryRegistry) Acquire(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if at, ok := r.entries[key]; ok && now.Sub(at) < r.window {
		return false, nil
	}

	for k, at := range r.entries {
		if now.Sub(at) >= r.window {
			delete(r.entries, k)
		}
	}
	r.entries[key] = now
	return true, nil
}

func (r *MemoryRegistry) Release(_ context.Context, key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Len returns the number of tracked keys
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// RedisRegistry shares the window across server instances. Expiry is the
// eviction policy.
type RedisRegistry struct {
	rdb    *redis.Client
	window time.Duration
	prefix string
}

func NewRedisRegistry(rdb *redis.Client, window time.Duration) *RedisRegistry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisRegistry{rdb: rdb, window: window, prefix: "dedup:send:"}
}

func (r *RedisRegistry) Acquire(ctx context.Context, key string) (bool, error) {
	return r.rdb.SetNX(ctx, r.prefix+key, 1, r.window).Result()
}

func (r *RedisRegistry) Release(ctx context.Context, key string) {
	r.rdb.Del(ctx, r.prefix+key)
}
