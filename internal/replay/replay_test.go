package replay

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Boundaries(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	maxAge := 5 * time.Minute

	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"now", now, true},
		{"exactly max age", now.Add(-maxAge), true},
		{"max age plus 1ms", now.Add(-maxAge - time.Millisecond), false},
		{"max age minus 1ms", now.Add(-maxAge + time.Millisecond), true},
		{"within skew", now.Add(DefaultFutureSkew), true},
		{"beyond skew", now.Add(DefaultFutureSkew + time.Millisecond), false},
		{"far future", now.Add(time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Check(tt.ts, now, maxAge); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindow_Allows(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	w := Window{MaxAge: time.Second, FutureSkew: 0}

	assert.True(t, w.Allows(now.UnixMilli()-1000, now))
	assert.False(t, w.Allows(now.UnixMilli()-1001, now))
	assert.False(t, w.Allows(now.UnixMilli()+1, now))
	assert.False(t, w.Allows(0, now))
	assert.False(t, w.Allows(-5, now))

	assert.Equal(t, DefaultMaxAge+DefaultFutureSkew, DefaultWindow().TTL())
}

func TestMemorySeen(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeen(0)

	first, err := s.MarkSeen(ctx, "sig-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.MarkSeen(ctx, "sig-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, first)

	first, err = s.MarkSeen(ctx, "sig-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMemorySeen_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeen(10)

	first, err := s.MarkSeen(ctx, "sig", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, first)

	time.Sleep(30 * time.Millisecond)
	first, err = s.MarkSeen(ctx, "sig", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMemorySeen_Forget(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeen(10)

	first, err := s.MarkSeen(ctx, "sig", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	require.NoError(t, s.Forget(ctx, "sig"))
	require.NoError(t, s.Forget(ctx, "never-marked"))

	first, err = s.MarkSeen(ctx, "sig", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestRedisSeen_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	s := NewRedisSeen(client, "test:seen:")
	key := uuid.NewString()

	first, err := s.MarkSeen(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.MarkSeen(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, s.Forget(ctx, key))
	first, err = s.MarkSeen(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	client.Del(ctx, "test:seen:"+key)
}
