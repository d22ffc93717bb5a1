// Package relayclient signs transaction intents and submits them to a relay.
package relayclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/R3E-Network/relay_layer/pkg/intent"
	"github.com/R3E-Network/relay_layer/pkg/signature"
)

// Result is a relay's answer to an accepted intent.
type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Simulated     bool   `json:"simulated,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
}

// Request is an audit record as served by GET /relayer/requests/{id}.
type Request struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"accountId"`
	SmartWalletID  string     `json:"smartWalletId"`
	TargetContract string     `json:"targetContract"`
	FunctionName   string     `json:"functionName"`
	Timestamp      int64      `json:"timestamp"`
	Status         string     `json:"status"`
	TransactionID  string     `json:"transactionId,omitempty"`
	LedgerStatus   string     `json:"ledgerStatus,omitempty"`
	Simulated      bool       `json:"simulated"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	TraceID        string     `json:"traceId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Error is a non-2xx relay response.
type Error struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("relay: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("relay: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to one relay endpoint on behalf of one signing key.
type Client struct {
	http   *resty.Client
	signer *signature.Signer
}

// Option customizes a Client.
type Option func(*resty.Client)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetries retries transport failures, 429 and 502/503/504 answers up to
// n times. Execution failures (500) are not retried. A signed intent is
// idempotent on the relay only when de-duplication is on, so the default is
// zero.
func WithRetries(n int) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(n).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(retryable)
	}
}

func retryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	switch r.StatusCode() {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// New returns a client for the relay at baseURL.
func New(baseURL string, signer *signature.Signer, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(95*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc, signer: signer}
}

// Sign stamps and signs in without sending it.
func (c *Client) Sign(in *intent.TransactionIntent) (*intent.SignedIntent, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("relayclient: no signer configured")
	}
	return c.signer.SignIntent(in)
}

// Relay signs in and submits it.
func (c *Client) Relay(ctx context.Context, in *intent.TransactionIntent) (*Result, error) {
	signed, err := c.Sign(in)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, signed)
}

// Submit posts an already signed intent.
func (c *Client) Submit(ctx context.Context, signed *intent.SignedIntent) (*Result, error) {
	var out Result
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(signed).
		SetResult(&out).
		SetError(&Error{}).
		Post("/relayer")
	if err != nil {
		return nil, fmt.Errorf("relayclient: submit: %w", err)
	}
	if res.IsError() {
		return nil, asError(res)
	}
	return &out, nil
}

// GetRequest fetches the audit record of an earlier relay.
func (c *Client) GetRequest(ctx context.Context, id string) (*Request, error) {
	var out Request
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&Error{}).
		Get("/relayer/requests/{id}")
	if err != nil {
		return nil, fmt.Errorf("relayclient: get request: %w", err)
	}
	if res.IsError() {
		return nil, asError(res)
	}
	return &out, nil
}

func asError(res *resty.Response) error {
	e, ok := res.Error().(*Error)
	if !ok || e == nil {
		e = &Error{}
	}
	e.StatusCode = res.StatusCode()
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(res.Body()))
	}
	if e.Message == "" {
		e.Message = res.Status()
	}
	return e
}
