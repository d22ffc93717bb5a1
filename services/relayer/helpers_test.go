package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/relay_layer/internal/keydir"
	"github.com/R3E-Network/relay_layer/internal/ledger"
	"github.com/R3E-Network/relay_layer/internal/mode"
	"github.com/R3E-Network/relay_layer/internal/retry"
	"github.com/R3E-Network/relay_layer/internal/smartwallet"
	"github.com/R3E-Network/relay_layer/internal/storage"
	"github.com/R3E-Network/relay_layer/pkg/calldata"
	"github.com/R3E-Network/relay_layer/pkg/intent"
	"github.com/R3E-Network/relay_layer/pkg/signature"
)

const (
	testAccount = "0.0.1001"
	testWallet  = "0.0.2002"
	testTarget  = "0.0.3003"
	testTxID    = "0.0.2@1717243200.000000000"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu        sync.Mutex
	submitErr error
	prepared  []ledger.ExecuteRequest
	submits   int
}

func (f *fakeBackend) Query(_ context.Context, req ledger.QueryRequest) (*ledger.QueryResult, error) {
	return &ledger.QueryResult{ContractID: req.Contract, Result: make([]byte, 32)}, nil
}

func (f *fakeBackend) Prepare(req ledger.ExecuteRequest) (*ledger.Prepared, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, req)
	return &ledger.Prepared{Body: ledger.TransactionBody{TransactionID: testTxID, ContractID: req.Contract}}, nil
}

func (f *fakeBackend) Submit(_ context.Context, p *ledger.Prepared) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &ledger.Receipt{TransactionID: p.ID(), Status: ledger.StatusSuccess, ContractID: p.Body.ContractID}, nil
}

func (f *fakeBackend) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type harness struct {
	svc     *Service
	signer  *signature.Signer
	backend *fakeBackend
	tracker *mode.Tracker
	store   *storage.Memory
	lookups atomic.Int32
	keyHex  string
}

func noSleep(context.Context, time.Duration) error { return nil }

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	key, err := keys.NewPrivateKey()
	require.NoError(t, err)

	h := &harness{
		signer:  &signature.Signer{Key: key, Now: func() time.Time { return testNow }},
		backend: &fakeBackend{},
		tracker: mode.NewTracker(mode.NewMemory(mode.Live), 2, nil),
		store:   storage.NewMemory(),
	}
	h.keyHex = h.signer.PublicKeyHex()

	q, e := retry.QueryPolicy(), retry.ExecutePolicy()
	q.Sleep, e.Sleep = noSleep, noSleep
	resilient := ledger.NewResilient(h.backend, h.tracker, nil, ledger.WithPolicies(q, e))

	cfg := Config{
		Keys: keydir.Func(func(_ context.Context, account string) (string, error) {
			h.lookups.Add(1)
			if account == testAccount {
				return h.keyHex, nil
			}
			return "", &keydir.LookupError{Account: account, Err: keydir.ErrUnknownAccount}
		}),
		Forwarder: smartwallet.New(resilient, 400_000),
		Mode:      h.tracker,
		Store:     h.store,
		Now:       func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h.svc, err = New(cfg)
	require.NoError(t, err)
	return h
}

func baseIntent() *intent.TransactionIntent {
	return &intent.TransactionIntent{
		AccountID:      testAccount,
		SmartWalletID:  testWallet,
		TargetContract: testTarget,
		FunctionName:   "transfer",
		Params:         []calldata.Param{calldata.Address("0.0.4004"), calldata.Uint64(250)},
	}
}

// signedBody signs in and returns the wire JSON as a generic map so tests can
// tamper with it.
func (h *harness) signedBody(t *testing.T, in *intent.TransactionIntent) map[string]any {
	t.Helper()
	signed, err := h.signer.SignIntent(in)
	require.NoError(t, err)
	raw, err := json.Marshal(signed)
	require.NoError(t, err)

	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&body))
	return body
}

func (h *harness) post(t *testing.T, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodPost, "/relayer", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.svc.Router().ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}
