// Package ledger invokes smart contracts through the ledger's JSON-RPC gateway.
//
// Client performs single attempts. Resilient wraps an Invoker with retry
// policies and the degraded-mode fallback. In degraded mode an unreachable
// ledger is reported as a simulated success, so callers must treat
// Receipt.Simulated as "not actually executed".
package ledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/R3E-Network/relay_layer/internal/entityid"
	"github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/internal/logging"
	"github.com/R3E-Network/relay_layer/internal/retry"
	"github.com/R3E-Network/relay_layer/pkg/calldata"
	"github.com/R3E-Network/relay_layer/pkg/canonical"
	"github.com/R3E-Network/relay_layer/pkg/signature"
)

// RPC methods exposed by the gateway.
const (
	MethodContractCall = "contract_call"
	MethodSubmit       = "transaction_submit"
	MethodGetReceipt   = "transaction_getReceipt"
)

// ErrNotOpen is returned by calls made before Open or after Close.
var ErrNotOpen = stderrors.New("ledger client is not open")

// Client talks to one ledger gateway as the configured operator.
type Client struct {
	cfg    *resolved
	logger *logging.Logger
	nextID atomic.Uint64

	mu         sync.RWMutex
	httpClient *http.Client

	// ReceiptPolicy governs receipt polling after submission.
	ReceiptPolicy retry.Policy
	// Now is the clock used for transaction valid-start times.
	Now func() time.Time
}

// New validates cfg. The client must be opened before use.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	r, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{
		cfg:           r,
		logger:        logger,
		ReceiptPolicy: retry.ReceiptPolicy(),
		Now:           time.Now,
	}
	c.ReceiptPolicy.Classifier = isPendingReceipt
	return c, nil
}

// Open prepares the HTTP transport. It is idempotent.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		return nil
	}
	c.httpClient = &http.Client{Timeout: c.cfg.Timeout}
	c.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"network":  c.cfg.Network,
		"rpc_url":  c.cfg.RPCURL,
		"operator": c.cfg.operator.String(),
	}).Info("ledger client opened")
	return nil
}

// Close releases idle connections. Later calls fail with ErrNotOpen.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
	return nil
}

func (c *Client) transport() (*http.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.httpClient == nil {
		return nil, ErrNotOpen
	}
	return c.httpClient, nil
}

// Operator returns the paying account.
func (c *Client) Operator() entityid.ID { return c.cfg.operator }

// Network returns the configured network.
func (c *Client) Network() Network { return c.cfg.Network }

// MirrorURL returns the mirror node base URL for the network.
func (c *Client) MirrorURL() string { return c.cfg.MirrorURL }

func functionParameters(function string, params []calldata.Param, raw []byte) ([]byte, error) {
	if raw != nil {
		return raw, nil
	}
	if strings.TrimSpace(function) == "" {
		return nil, &calldata.ParamError{Path: "function", Reason: "function name or call data required"}
	}
	return calldata.EncodeCall(function, params)
}

func (c *Client) gas(g uint64) (int64, error) {
	if g == 0 {
		g = c.cfg.DefaultGas
	}
	if g > canonical.MaxSafeInteger {
		return 0, &calldata.ParamError{Path: "gas", Reason: "gas limit too large"}
	}
	return int64(g), nil
}

type contractCallParams struct {
	ContractID         string `json:"contractId"`
	Sender             string `json:"sender"`
	Gas                int64  `json:"gas"`
	FunctionParameters string `json:"functionParameters"`
	MaxQueryPayment    int64  `json:"maxQueryPayment"`
}

type contractCallResult struct {
	ContractID string `json:"contractId"`
	Result     string `json:"result"`
	GasUsed    uint64 `json:"gasUsed"`
}

// Query runs a read-only contract call.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	contract, err := entityid.Parse(req.Contract)
	if err != nil {
		return nil, err
	}
	data, err := functionParameters(req.Function, req.Params, req.CallData)
	if err != nil {
		return nil, err
	}
	gas, err := c.gas(req.Gas)
	if err != nil {
		return nil, err
	}

	raw, err := c.call(ctx, MethodContractCall, contractCallParams{
		ContractID:         contract.String(),
		Sender:             c.cfg.operator.String(),
		Gas:                gas,
		FunctionParameters: hexutil.Encode(data),
		MaxQueryPayment:    c.cfg.MaxQueryPayment,
	})
	if err != nil {
		return nil, err
	}

	var out contractCallResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &TransportError{Op: MethodContractCall, Err: fmt.Errorf("decode result: %w", err)}
	}
	if out.ContractID == "" {
		out.ContractID = contract.String()
	}
	return &QueryResult{
		ContractID: out.ContractID,
		Result:     common.FromHex(out.Result),
		GasUsed:    out.GasUsed,
	}, nil
}

// Prepare builds and signs a transaction for req. The transaction id is fixed
// here, so every Submit of the result refers to the same logical execution.
func (c *Client) Prepare(req ExecuteRequest) (*Prepared, error) {
	contract, err := entityid.Parse(req.Contract)
	if err != nil {
		return nil, err
	}
	data, err := functionParameters(req.Function, req.Params, req.CallData)
	if err != nil {
		return nil, err
	}
	gas, err := c.gas(req.Gas)
	if err != nil {
		return nil, err
	}
	if req.Amount < 0 {
		return nil, &calldata.ParamError{Path: "amount", Reason: "must not be negative"}
	}

	start := c.Now().UTC()
	body := TransactionBody{
		TransactionID:      TransactionID(c.cfg.operator, start),
		Payer:              c.cfg.operator.String(),
		MaxTransactionFee:  c.cfg.MaxTransactionFee,
		ValidStart:         start.Format(time.RFC3339Nano),
		ValidDuration:      int64(c.cfg.ValidDuration / time.Second),
		ContractID:         contract.String(),
		Gas:                gas,
		Amount:             req.Amount,
		FunctionParameters: hexutil.Encode(data),
		Memo:               req.Memo,
	}

	encoded, err := canonical.Encode(body)
	if err != nil {
		return nil, fmt.Errorf("encode transaction body: %w", err)
	}
	digest, err := canonical.Hash(body)
	if err != nil {
		return nil, fmt.Errorf("hash transaction body: %w", err)
	}
	return &Prepared{
		Body:      body,
		BodyJSON:  string(encoded),
		Signature: signature.SignDigest(c.cfg.operatorKey, digest),
		PublicKey: signature.PublicKeyHex(c.cfg.operatorKey),
	}, nil
}

// TransactionID formats the id of a transaction paid by payer and valid from start.
func TransactionID(payer entityid.ID, start time.Time) string {
	return fmt.Sprintf("%s@%d.%09d", payer.String(), start.Unix(), start.Nanosecond())
}

type submitParams struct {
	TransactionID string `json:"transactionId"`
	Body          string `json:"body"`
	Signature     string `json:"signature"`
	PublicKey     string `json:"publicKey"`
}

// Submit sends a prepared transaction and waits for its receipt. A
// DUPLICATE_TRANSACTION answer means an earlier submission was accepted, so
// Submit proceeds to the receipt.
func (c *Client) Submit(ctx context.Context, p *Prepared) (*Receipt, error) {
	_, err := c.call(ctx, MethodSubmit, submitParams{
		TransactionID: p.ID(),
		Body:          p.BodyJSON,
		Signature:     p.Signature,
		PublicKey:     p.PublicKey,
	})
	switch {
	case err == nil:
	case IsStatus(err, StatusDuplicateTransaction):
		c.logger.WithContext(ctx).WithField("transaction_id", p.ID()).Debug("transaction already submitted, fetching receipt")
	default:
		return nil, err
	}
	return c.WaitForReceipt(ctx, p.ID())
}

// Execute prepares and submits req once.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*Receipt, error) {
	p, err := c.Prepare(req)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, p)
}

type receiptResult struct {
	Status     string `json:"status"`
	ContractID string `json:"contractId"`
}

// GetReceipt fetches the receipt once. Pending receipts are reported as a
// transient *StatusError.
func (c *Client) GetReceipt(ctx context.Context, transactionID string) (*Receipt, error) {
	raw, err := c.call(ctx, MethodGetReceipt, []string{transactionID})
	if err != nil {
		return nil, err
	}
	var out receiptResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &TransportError{Op: MethodGetReceipt, Err: fmt.Errorf("decode receipt: %w", err)}
	}
	status := strings.ToUpper(out.Status)
	if status != StatusSuccess {
		return nil, &StatusError{Op: MethodGetReceipt, Status: status}
	}
	return &Receipt{TransactionID: transactionID, Status: status, ContractID: out.ContractID}, nil
}

// WaitForReceipt polls until the receipt is final or ReceiptPolicy gives up.
func (c *Client) WaitForReceipt(ctx context.Context, transactionID string) (*Receipt, error) {
	return retry.Value(ctx, c.ReceiptPolicy, func(ctx context.Context, _ int) (*Receipt, error) {
		return c.GetReceipt(ctx, transactionID)
	})
}

// isPendingReceipt retries only while the receipt does not exist yet or the
// transport hiccups. Other transient statuses are left to the caller, which
// resubmits.
func isPendingReceipt(err error) bool {
	if IsStatus(err, StatusUnknown) || IsStatus(err, StatusReceiptNotFound) {
		return true
	}
	var te *TransportError
	return stderrors.As(err, &te) && errors.IsRetryable(te)
}
