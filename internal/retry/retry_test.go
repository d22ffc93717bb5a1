package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/relay_layer/internal/errors"
)

type kindErr struct {
	kind errors.Kind
	msg  string
}

func (e *kindErr) Error() string          { return e.msg }
func (e *kindErr) ErrorKind() errors.Kind { return e.kind }

func transient(msg string) error { return &kindErr{kind: errors.KindTransient, msg: msg} }
func fatal(msg string) error     { return &kindErr{kind: errors.KindFatal, msg: msg} }

// instant records requested sleeps without waiting.
func instant(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		policy   Policy
		base     time.Duration
		max      time.Duration
		attempts int
	}{
		{QueryPolicy(), 2 * time.Second, 15 * time.Second, 8},
		{ExecutePolicy(), 3 * time.Second, 15 * time.Second, 5},
		{ReceiptPolicy(), 500 * time.Millisecond, 5 * time.Second, 10},
	}
	for _, tt := range tests {
		t.Run(tt.policy.Name, func(t *testing.T) {
			assert.Equal(t, tt.base, tt.policy.BaseDelay)
			assert.Equal(t, tt.max, tt.policy.MaxDelay)
			assert.Equal(t, tt.attempts, tt.policy.MaxAttempts)
			assert.Equal(t, 1.5, tt.policy.Growth)
			assert.Equal(t, DefaultJitter, tt.policy.Jitter)
		})
	}
}

func TestDelay_GrowsAndCaps(t *testing.T) {
	p := QueryPolicy()
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 3*time.Second, p.Delay(2))
	assert.Equal(t, 4500*time.Millisecond, p.Delay(3))
	assert.Equal(t, 15*time.Second, p.Delay(10))
}

func TestDo_ExhaustsAfterMaxAttempts(t *testing.T) {
	var slept []time.Duration
	var hook *ExhaustedError
	p := QueryPolicy()
	p.Sleep = instant(&slept)
	p.Rand = func() float64 { return 0.5 }
	p.OnExhausted = func(e *ExhaustedError) { hook = e }

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return transient("busy " + string(rune('0'+attempt)))
	})

	assert.Equal(t, 8, calls)
	assert.Len(t, slept, 7, "no sleep after the final attempt")

	var exhausted *ExhaustedError
	require.True(t, stderrors.As(err, &exhausted))
	assert.Equal(t, 8, exhausted.Attempts)
	assert.Equal(t, "busy 8", exhausted.Last.Error())
	assert.Same(t, exhausted, hook)
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))
	assert.Equal(t, errors.BusyMessage, errors.UserMessage(err))
}

func TestDo_FatalShortCircuits(t *testing.T) {
	var slept []time.Duration
	p := ExecutePolicy()
	p.Sleep = instant(&slept)
	hookCalled := false
	p.OnExhausted = func(*ExhaustedError) { hookCalled = true }

	want := fatal("CONTRACT_REVERT_EXECUTED")
	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return want
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, want, err)
	assert.Empty(t, slept)
	assert.False(t, hookCalled)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var slept []time.Duration
	p := ReceiptPolicy()
	p.Sleep = instant(&slept)
	p.Jitter = 0

	var retried []int
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	got, err := Value(context.Background(), p, func(_ context.Context, attempt int) (string, error) {
		if attempt < 3 {
			return "", transient("RECEIPT_NOT_FOUND")
		}
		return "SUCCESS", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", got)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 750 * time.Millisecond}, slept)
}

func TestDo_JitterBounds(t *testing.T) {
	p := Policy{BaseDelay: time.Second, Growth: 1, Jitter: 0.15}

	p.Rand = func() float64 { return 0 }
	assert.Equal(t, 850*time.Millisecond, p.jittered(time.Second))
	p.Rand = func() float64 { return 1 }
	assert.Equal(t, 1150*time.Millisecond, p.jittered(time.Second))

	p.Rand = nil
	for i := 0; i < 100; i++ {
		d := p.jittered(time.Second)
		assert.GreaterOrEqual(t, d, 850*time.Millisecond)
		assert.LessOrEqual(t, d, 1150*time.Millisecond)
	}
}

func TestDo_ContextCanceledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := ExecutePolicy()
	p.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	err := p.Do(ctx, func(context.Context, int) error {
		calls++
		return transient("BUSY")
	})
	assert.Equal(t, 1, calls)
	assert.True(t, stderrors.Is(err, context.Canceled))

	var canceled *CanceledError
	require.True(t, stderrors.As(err, &canceled))
	assert.Equal(t, "BUSY", canceled.Last.Error())
}

func TestDo_CustomClassifier(t *testing.T) {
	var slept []time.Duration
	sentinel := stderrors.New("retry me")
	p := Policy{MaxAttempts: 3, Classifier: func(err error) bool { return stderrors.Is(err, sentinel) }, Sleep: instant(&slept)}

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return sentinel
	})
	assert.Equal(t, 3, calls)
	assert.True(t, stderrors.Is(err, sentinel))
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
