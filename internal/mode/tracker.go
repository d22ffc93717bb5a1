package mode

import (
	"context"
	"sync/atomic"

	"github.com/R3E-Network/relay_layer/internal/logging"
)

// DefaultDegradeAfter is how many consecutive exhausted calls flip the mode.
const DefaultDegradeAfter = 2

// Tracker counts consecutive exhausted ledger calls and degrades the store
// once the threshold is reached.
type Tracker struct {
	store     Store
	threshold int32
	failures  atomic.Int32
	logger    *logging.Logger

	// OnChange observes every transition the tracker makes.
	OnChange func(Mode)
}

// NewTracker builds a tracker; threshold < 1 uses DefaultDegradeAfter.
func NewTracker(store Store, threshold int, logger *logging.Logger) *Tracker {
	if threshold < 1 {
		threshold = DefaultDegradeAfter
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{store: store, threshold: int32(threshold), logger: logger}
}

// Store returns the backing store.
func (t *Tracker) Store() Store { return t.store }

// Current reads the mode, treating store errors as Live.
func (t *Tracker) Current(ctx context.Context) Mode {
	m, err := t.store.Get(ctx)
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Warn("read ledger mode")
		return Live
	}
	return m
}

// Failures returns the current consecutive failure count.
func (t *Tracker) Failures() int { return int(t.failures.Load()) }

// RecordSuccess resets the failure count.
func (t *Tracker) RecordSuccess() { t.failures.Store(0) }

// RecordExhausted counts one exhausted call and degrades when the threshold is
// reached. It reports whether this call caused the transition.
func (t *Tracker) RecordExhausted(ctx context.Context, cause error) bool {
	n := t.failures.Add(1)
	if n < t.threshold {
		return false
	}
	if t.Current(ctx) == Degraded {
		return false
	}
	if err := t.store.Set(ctx, Degraded); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("set degraded mode")
		return false
	}
	entry := t.logger.WithContext(ctx).WithField("consecutive_failures", n)
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Warn("ledger unreachable, switching to degraded mode")
	if t.OnChange != nil {
		t.OnChange(Degraded)
	}
	return true
}

// Restore returns the store to Live and clears the failure count.
func (t *Tracker) Restore(ctx context.Context) error {
	if err := t.store.Set(ctx, Live); err != nil {
		return err
	}
	t.failures.Store(0)
	t.logger.WithContext(ctx).Info("ledger mode restored to live")
	if t.OnChange != nil {
		t.OnChange(Live)
	}
	return nil
}

// Degrade forces the store to Degraded, as an operator override.
func (t *Tracker) Degrade(ctx context.Context) error {
	if err := t.store.Set(ctx, Degraded); err != nil {
		return err
	}
	t.logger.WithContext(ctx).Warn("ledger mode forced to degraded")
	if t.OnChange != nil {
		t.OnChange(Degraded)
	}
	return nil
}
