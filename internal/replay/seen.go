package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"
	"github.com/go-redis/redis/v8"
)

// SeenStore records relayed payloads. MarkSeen returns true the first time a
// key is recorded within ttl. Forget releases a key so the same payload may be
// relayed again.
type SeenStore interface {
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// DefaultSeenCapacity bounds the in-memory store.
const DefaultSeenCapacity = 100_000

// MemorySeen is a process-local SeenStore.
type MemorySeen struct {
	mu    sync.Mutex
	items *cache.Cache[string, struct{}]
}

// NewMemorySeen returns an LRU-bounded store holding at most capacity keys.
func NewMemorySeen(capacity int) *MemorySeen {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &MemorySeen{
		items: cache.New(cache.AsLRU[string, struct{}](lru.WithCapacity(capacity))),
	}
}

func (m *MemorySeen) MarkSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items.Get(key); ok {
		return false, nil
	}
	m.items.Set(key, struct{}{}, cache.WithExpiration(ttl))
	return true, nil
}

func (m *MemorySeen) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	m.items.Delete(key)
	m.mu.Unlock()
	return nil
}

// RedisSeen shares seen signatures across relay replicas.
type RedisSeen struct {
	client *redis.Client
	prefix string
}

// NewRedisSeen stores keys under prefix.
func NewRedisSeen(client *redis.Client, prefix string) *RedisSeen {
	if prefix == "" {
		prefix = "relay:seen:"
	}
	return &RedisSeen{client: client, prefix: prefix}
}

func (r *RedisSeen) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	first, err := r.client.SetNX(ctx, r.prefix+key, time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return first, nil
}

func (r *RedisSeen) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
