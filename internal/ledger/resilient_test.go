package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/internal/mode"
	"github.com/R3E-Network/relay_layer/internal/retry"
)

type fakeBackend struct {
	mu        sync.Mutex
	queryErrs []error
	submitErr []error
	queries   int
	prepares  int
	submitted []string
}

func (f *fakeBackend) next(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	if len(*errs) > 1 {
		*errs = (*errs)[1:]
	}
	return err
}

func (f *fakeBackend) Query(_ context.Context, req QueryRequest) (*QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if err := f.next(&f.queryErrs); err != nil {
		return nil, err
	}
	return &QueryResult{ContractID: req.Contract, Result: []byte{1}}, nil
}

func (f *fakeBackend) Prepare(req ExecuteRequest) (*Prepared, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepares++
	return &Prepared{Body: TransactionBody{TransactionID: "0.0.2@1.0", ContractID: req.Contract}}, nil
}

func (f *fakeBackend) Submit(_ context.Context, p *Prepared) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, p.ID())
	if err := f.next(&f.submitErr); err != nil {
		return nil, err
	}
	return &Receipt{TransactionID: p.ID(), Status: StatusSuccess}, nil
}

type recordingObserver struct {
	calls   []string
	retries int
	modes   []mode.Mode
}

func (o *recordingObserver) ObserveLedgerCall(op, outcome string, _ time.Duration) {
	o.calls = append(o.calls, op+":"+outcome)
}
func (o *recordingObserver) ObserveLedgerRetry(string) { o.retries++ }
func (o *recordingObserver) ObserveMode(m mode.Mode)   { o.modes = append(o.modes, m) }

func fastPolicies() (retry.Policy, retry.Policy) {
	q, e := retry.QueryPolicy(), retry.ExecutePolicy()
	q.Sleep, e.Sleep = noSleep, noSleep
	return q, e
}

func busy() error { return &StatusError{Op: MethodContractCall, Status: StatusBusy} }

func newResilient(b Backend, threshold int) (*Resilient, *mode.Tracker, *recordingObserver) {
	tracker := mode.NewTracker(mode.NewMemory(mode.Live), threshold, nil)
	obs := &recordingObserver{}
	q, e := fastPolicies()
	return NewResilient(b, tracker, nil, WithPolicies(q, e), WithObserver(obs)), tracker, obs
}

func TestResilient_QueryRetriesThenSucceeds(t *testing.T) {
	b := &fakeBackend{queryErrs: []error{busy(), busy(), nil}}
	r, tracker, obs := newResilient(b, 2)

	res, err := r.Query(context.Background(), QueryRequest{Contract: "0.0.5", Function: "f"})
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, res.Result)
	assert.Equal(t, 3, b.queries)
	assert.Equal(t, 2, obs.retries)
	assert.Equal(t, []string{"query:success"}, obs.calls)
	assert.Zero(t, tracker.Failures())
}

func TestResilient_QueryFatalNoRetry(t *testing.T) {
	revert := &StatusError{Op: MethodContractCall, Status: StatusContractRevert}
	b := &fakeBackend{queryErrs: []error{revert}}
	r, tracker, _ := newResilient(b, 2)

	_, err := r.Query(context.Background(), QueryRequest{Contract: "0.0.5", Function: "f"})
	assert.Same(t, revert, err)
	assert.Equal(t, 1, b.queries)
	assert.Zero(t, tracker.Failures())
}

func TestResilient_DegradesAfterExhaustion(t *testing.T) {
	b := &fakeBackend{queryErrs: []error{busy()}}
	r, _, obs := newResilient(b, 2)
	ctx := context.Background()
	req := QueryRequest{Contract: "0.0.5", Function: "getGuardians"}

	for i := 0; i < 2; i++ {
		_, err := r.Query(ctx, req)
		var exhausted *retry.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, errors.BusyMessage, errors.UserMessage(err))
	}
	assert.Equal(t, 16, b.queries)
	assert.Equal(t, mode.Degraded, r.Mode(ctx))
	assert.Equal(t, []mode.Mode{mode.Degraded}, obs.modes)

	res, err := r.Query(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Simulated)
	assert.Equal(t, make([]byte, 32), res.Result)
	assert.Equal(t, 16, b.queries, "degraded query never reaches the backend")
}

// hangingBackend never answers before the caller gives up, the way a
// blackholed gateway behaves.
type hangingBackend struct {
	mu       sync.Mutex
	attempts int
}

func (h *hangingBackend) hang(ctx context.Context, op string) error {
	h.mu.Lock()
	h.attempts++
	h.mu.Unlock()
	<-ctx.Done()
	return &TransportError{Op: op, Err: ctx.Err()}
}

func (h *hangingBackend) Query(ctx context.Context, _ QueryRequest) (*QueryResult, error) {
	return nil, h.hang(ctx, MethodContractCall)
}

func (h *hangingBackend) Prepare(req ExecuteRequest) (*Prepared, error) {
	return &Prepared{Body: TransactionBody{TransactionID: "0.0.2@1.0", ContractID: req.Contract}}, nil
}

func (h *hangingBackend) Submit(ctx context.Context, _ *Prepared) (*Receipt, error) {
	return nil, h.hang(ctx, MethodSubmit)
}

func TestResilient_HangingLedgerDegrades(t *testing.T) {
	b := &hangingBackend{}
	r, tracker, obs := newResilient(b, 2)
	req := ExecuteRequest{Contract: "0.0.5", Function: "transfer"}

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := r.Execute(ctx, req)
		cancel()

		var canceled *retry.CanceledError
		require.ErrorAs(t, err, &canceled)
		assert.Less(t, canceled.Attempts, r.ExecutePolicy.MaxAttempts, "deadline ends the loop before the policy does")
		assert.Equal(t, errors.BusyMessage, errors.UserMessage(err))
	}
	assert.Equal(t, mode.Degraded, tracker.Current(context.Background()))
	assert.Equal(t, []mode.Mode{mode.Degraded}, obs.modes)
	assert.Equal(t, []string{"execute:exhausted", "execute:exhausted"}, obs.calls)

	attempts := b.attempts
	rec, err := r.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, rec.Simulated)
	assert.Equal(t, attempts, b.attempts)
}

func TestResilient_CallerCancelDoesNotCount(t *testing.T) {
	b := &fakeBackend{queryErrs: []error{busy()}}
	q, e := fastPolicies()
	q.Sleep = func(context.Context, time.Duration) error { return context.Canceled }
	tracker := mode.NewTracker(mode.NewMemory(mode.Live), 1, nil)
	r := NewResilient(b, tracker, nil, WithPolicies(q, e))

	_, err := r.Query(context.Background(), QueryRequest{Contract: "0.0.5", Function: "f"})
	var canceled *retry.CanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Zero(t, tracker.Failures())
	assert.Equal(t, mode.Live, tracker.Current(context.Background()))
}

func TestResilient_ExecuteResubmitsSameTransaction(t *testing.T) {
	b := &fakeBackend{submitErr: []error{busy(), busy(), nil}}
	r, _, _ := newResilient(b, 2)

	rec, err := r.Execute(context.Background(), ExecuteRequest{Contract: "0.0.5", Function: "f"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, 1, b.prepares)
	assert.Equal(t, []string{"0.0.2@1.0", "0.0.2@1.0", "0.0.2@1.0"}, b.submitted)
}

func TestResilient_ExecuteDegraded(t *testing.T) {
	b := &fakeBackend{}
	r, tracker, obs := newResilient(b, 2)
	require.NoError(t, tracker.Store().Set(context.Background(), mode.Degraded))

	req := ExecuteRequest{Contract: "0.0.5", Function: "transfer"}
	rec, err := r.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, rec.Simulated)
	assert.Equal(t, StatusSimulated, rec.Status)
	assert.True(t, strings.HasPrefix(rec.TransactionID, SimulatedPrefix))
	assert.Len(t, rec.TransactionID, len(SimulatedPrefix)+16)
	assert.Zero(t, b.prepares)
	assert.Equal(t, []string{"execute:simulated"}, obs.calls)

	again, err := r.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, rec.TransactionID, again.TransactionID)
}

func TestResilient_DegradedStillValidates(t *testing.T) {
	r, tracker, _ := newResilient(&fakeBackend{}, 2)
	require.NoError(t, tracker.Store().Set(context.Background(), mode.Degraded))

	_, err := r.Query(context.Background(), QueryRequest{Contract: "bogus", Function: "f"})
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestResilient_NilTracker(t *testing.T) {
	b := &fakeBackend{queryErrs: []error{busy()}}
	q, e := fastPolicies()
	r := NewResilient(b, nil, nil, WithPolicies(q, e))

	for i := 0; i < 3; i++ {
		_, err := r.Query(context.Background(), QueryRequest{Contract: "0.0.5", Function: "f"})
		assert.Error(t, err)
	}
	assert.Equal(t, mode.Live, r.Mode(context.Background()))
}

func TestSimulator_InvalidCall(t *testing.T) {
	_, err := Simulator{}.Execute(context.Background(), ExecuteRequest{Contract: "0.0.5"})
	assert.Error(t, err)
}
