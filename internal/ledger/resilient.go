package ledger

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/internal/logging"
	"github.com/R3E-Network/relay_layer/internal/mode"
	"github.com/R3E-Network/relay_layer/internal/retry"
)

// Backend is the single-attempt surface Resilient drives.
type Backend interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)
	Prepare(req ExecuteRequest) (*Prepared, error)
	Submit(ctx context.Context, p *Prepared) (*Receipt, error)
}

// Observer receives call outcomes. Outcome is one of "success", "failed",
// "exhausted" or "simulated".
type Observer interface {
	ObserveLedgerCall(op, outcome string, elapsed time.Duration)
	ObserveLedgerRetry(op string)
	ObserveMode(m mode.Mode)
}

// Resilient retries transient failures and falls back to the Simulator once
// the tracker has switched to degraded mode.
type Resilient struct {
	backend   Backend
	tracker   *mode.Tracker
	simulator Simulator
	observer  Observer
	logger    *logging.Logger

	QueryPolicy   retry.Policy
	ExecutePolicy retry.Policy
}

// ResilientOption customizes a Resilient.
type ResilientOption func(*Resilient)

// WithObserver reports outcomes to o.
func WithObserver(o Observer) ResilientOption {
	return func(r *Resilient) { r.observer = o }
}

// WithPolicies overrides the query and execute retry policies.
func WithPolicies(query, execute retry.Policy) ResilientOption {
	return func(r *Resilient) {
		r.QueryPolicy = query
		r.ExecutePolicy = execute
	}
}

// NewResilient wraps backend. A nil tracker disables the degraded fallback.
func NewResilient(backend Backend, tracker *mode.Tracker, logger *logging.Logger, opts ...ResilientOption) *Resilient {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Resilient{
		backend:       backend,
		tracker:       tracker,
		logger:        logger,
		QueryPolicy:   retry.QueryPolicy(),
		ExecutePolicy: retry.ExecutePolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.observer != nil && tracker != nil {
		prev := tracker.OnChange
		tracker.OnChange = func(m mode.Mode) {
			if prev != nil {
				prev(m)
			}
			r.observer.ObserveMode(m)
		}
	}
	return r
}

// Mode returns the current ledger mode.
func (r *Resilient) Mode(ctx context.Context) mode.Mode {
	if r.tracker == nil {
		return mode.Live
	}
	return r.tracker.Current(ctx)
}

func (r *Resilient) degraded(ctx context.Context) bool {
	return r.Mode(ctx) == mode.Degraded
}

// Query runs req under QueryPolicy.
func (r *Resilient) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()
	if r.degraded(ctx) {
		res, err := r.simulator.Query(ctx, req)
		r.observe("query", "simulated", start, err)
		return res, err
	}

	policy := r.withHooks(ctx, "query", r.QueryPolicy)
	res, err := retry.Value(ctx, policy, func(ctx context.Context, _ int) (*QueryResult, error) {
		return r.backend.Query(ctx, req)
	})
	r.settle(ctx, "query", start, err)
	return res, err
}

// Execute prepares req once and submits it under ExecutePolicy, so retries
// resubmit the same transaction.
func (r *Resilient) Execute(ctx context.Context, req ExecuteRequest) (*Receipt, error) {
	start := time.Now()
	if r.degraded(ctx) {
		rec, err := r.simulator.Execute(ctx, req)
		r.observe("execute", "simulated", start, err)
		return rec, err
	}

	prepared, err := r.backend.Prepare(req)
	if err != nil {
		r.observe("execute", "failed", start, err)
		return nil, err
	}

	policy := r.withHooks(ctx, "execute", r.ExecutePolicy)
	rec, err := retry.Value(ctx, policy, func(ctx context.Context, attempt int) (*Receipt, error) {
		if attempt > 1 {
			r.logger.WithContext(ctx).WithField("transaction_id", prepared.ID()).WithField("attempt", attempt).Info("resubmitting transaction")
		}
		return r.backend.Submit(ctx, prepared)
	})
	r.settle(ctx, "execute", start, err)
	return rec, err
}

func (r *Resilient) withHooks(ctx context.Context, op string, p retry.Policy) retry.Policy {
	prevRetry := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.logger.WithContext(ctx).WithError(err).WithField("op", op).WithField("attempt", attempt).WithField("delay", delay.String()).Warn("ledger call failed, retrying")
		if r.observer != nil {
			r.observer.ObserveLedgerRetry(op)
		}
		if prevRetry != nil {
			prevRetry(attempt, delay, err)
		}
	}
	return p
}

// trackerTimeout bounds mode store writes made after the caller's deadline.
const trackerTimeout = 5 * time.Second

func (r *Resilient) settle(ctx context.Context, op string, start time.Time, err error) {
	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		if r.tracker != nil {
			r.tracker.RecordSuccess()
		}
		r.observe(op, "success", start, nil)
	case stderrors.As(err, &exhausted), outranDeadline(err):
		r.logger.WithContext(ctx).WithError(err).WithField("op", op).Error("ledger call exhausted retries")
		if r.tracker != nil {
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackerTimeout)
			r.tracker.RecordExhausted(tctx, err)
			cancel()
		}
		r.observe(op, "exhausted", start, err)
	default:
		r.observe(op, "failed", start, err)
	}
}

// outranDeadline reports whether the caller's deadline ended a retry loop
// whose attempts were all failing transiently. A hanging gateway ends calls
// this way long before the policy runs out of attempts.
func outranDeadline(err error) bool {
	var canceled *retry.CanceledError
	if !stderrors.As(err, &canceled) || canceled.Last == nil {
		return false
	}
	return stderrors.Is(canceled.Err, context.DeadlineExceeded) && errors.IsRetryable(canceled.Last)
}

func (r *Resilient) observe(op, outcome string, start time.Time, err error) {
	if r.observer == nil {
		return
	}
	if err != nil && outcome == "simulated" {
		outcome = "failed"
	}
	r.observer.ObserveLedgerCall(op, outcome, time.Since(start))
}
