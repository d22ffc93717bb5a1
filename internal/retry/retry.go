// Package retry runs operations under a bounded exponential backoff policy.
//
// Only errors the policy's Classifier accepts are retried. Anything else is
// returned unchanged after the attempt that produced it.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/R3E-Network/relay_layer/internal/errors"
)

// DefaultJitter is the ± ratio applied to every delay.
const DefaultJitter = 0.15

// Policy describes one retry loop.
type Policy struct {
	Name        string
	Classifier  func(error) bool
	BaseDelay   time.Duration
	Growth      float64
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      float64

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
	// OnExhausted runs once when the last allowed attempt failed retryably.
	OnExhausted func(*ExhaustedError)

	// Sleep and Rand are replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// QueryPolicy is used for read-only contract calls.
func QueryPolicy() Policy {
	return Policy{Name: "query", BaseDelay: 2 * time.Second, Growth: 1.5, MaxDelay: 15 * time.Second, MaxAttempts: 8, Jitter: DefaultJitter}
}

// ExecutePolicy is used for state-changing submissions.
func ExecutePolicy() Policy {
	return Policy{Name: "execute", BaseDelay: 3 * time.Second, Growth: 1.5, MaxDelay: 15 * time.Second, MaxAttempts: 5, Jitter: DefaultJitter}
}

// ReceiptPolicy is used while polling for a receipt.
func ReceiptPolicy() Policy {
	return Policy{Name: "receipt", BaseDelay: 500 * time.Millisecond, Growth: 1.5, MaxDelay: 5 * time.Second, MaxAttempts: 10, Jitter: DefaultJitter}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Policy   string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Policy, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// ErrorKind implements errors.Kinded.
func (e *ExhaustedError) ErrorKind() errors.Kind { return errors.KindTransient }

// CanceledError is returned when the context ends between attempts.
type CanceledError struct {
	Policy   string
	Attempts int
	Last     error
	Err      error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("%s: canceled after %d attempts: %v (last error: %v)", e.Policy, e.Attempts, e.Err, e.Last)
}

func (e *CanceledError) Unwrap() []error {
	if e.Last == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Last}
}

// ErrorKind implements errors.Kinded.
func (e *CanceledError) ErrorKind() errors.Kind { return errors.KindTransient }

// Delay returns the un-jittered wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	growth := p.Growth
	if growth < 1 {
		growth = 1
	}
	d := float64(p.BaseDelay) * math.Pow(growth, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	j := time.Duration(float64(d) * p.Jitter * (r()*2 - 1))
	return d + j
}

func (p Policy) classify(err error) bool {
	if p.Classifier != nil {
		return p.Classifier(err)
	}
	return errors.IsRetryable(err)
}

// Do calls fn until it succeeds, fails fatally, the attempts run out or ctx
// ends. attempt starts at 1.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &CanceledError{Policy: p.Name, Attempts: attempt - 1, Last: last, Err: err}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !p.classify(err) {
			return err
		}
		last = err
		if attempt == maxAttempts {
			break
		}

		delay := p.jittered(p.Delay(attempt))
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return &CanceledError{Policy: p.Name, Attempts: attempt, Last: last, Err: serr}
		}
	}

	exhausted := &ExhaustedError{Policy: p.Name, Attempts: maxAttempts, Last: last}
	if p.OnExhausted != nil {
		p.OnExhausted(exhausted)
	}
	return exhausted
}

// Value is Do for functions that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		v, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
