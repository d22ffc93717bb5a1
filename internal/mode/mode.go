// Package mode holds the relay's ledger connectivity mode.
//
// The mode is monotonic: automatic detection only ever moves it from live to
// degraded. Going back to live is an operator action.
package mode

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
)

// Mode is the ledger connectivity mode.
type Mode int32

const (
	Live Mode = iota
	Degraded
)

func (m Mode) String() string {
	switch m {
	case Live:
		return "live"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// Parse converts "live" or "degraded".
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live":
		return Live, nil
	case "degraded":
		return Degraded, nil
	default:
		return Live, fmt.Errorf("unknown mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Store holds the current mode.
type Store interface {
	Get(ctx context.Context) (Mode, error)
	Set(ctx context.Context, m Mode) error
}

// Memory is a process-local Store.
type Memory struct {
	v atomic.Int32
}

// NewMemory returns a Store starting in initial.
func NewMemory(initial Mode) *Memory {
	m := &Memory{}
	m.v.Store(int32(initial))
	return m
}

func (m *Memory) Get(context.Context) (Mode, error) { return Mode(m.v.Load()), nil }

func (m *Memory) Set(_ context.Context, mode Mode) error {
	m.v.Store(int32(mode))
	return nil
}

// DefaultRedisKey is where Redis stores the mode.
const DefaultRedisKey = "relay:ledger-mode"

// Redis shares the mode between relay replicas. A missing key reads as Live.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis returns a Redis store using key (DefaultRedisKey when empty).
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Get(ctx context.Context) (Mode, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return Live, nil
	}
	if err != nil {
		return Live, fmt.Errorf("redis get mode: %w", err)
	}
	return Parse(v)
}

func (r *Redis) Set(ctx context.Context, m Mode) error {
	if err := r.client.Set(ctx, r.key, m.String(), 0).Err(); err != nil {
		return fmt.Errorf("redis set mode: %w", err)
	}
	return nil
}
