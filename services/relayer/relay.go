package relayer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/R3E-Network/relay_layer/internal/entityid"
	"github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/internal/ledger"
	"github.com/R3E-Network/relay_layer/internal/logging"
	"github.com/R3E-Network/relay_layer/internal/smartwallet"
	"github.com/R3E-Network/relay_layer/internal/storage"
	"github.com/R3E-Network/relay_layer/pkg/calldata"
	"github.com/R3E-Network/relay_layer/pkg/canonical"
	"github.com/R3E-Network/relay_layer/pkg/intent"
	"github.com/R3E-Network/relay_layer/pkg/signature"
)

// User-facing rejection messages.
const (
	MsgInvalidBody       = "Invalid request body"
	MsgMissingParameters = "Missing required parameters"
	MsgUnsigned          = "Request must be signed"
	MsgExpired           = "Request has expired"
	MsgUnknownAccount    = "Could not retrieve public key for account"
	MsgInvalidSignature  = "Invalid signature"
	MsgAlreadyProcessed  = "Request has already been processed"
)

// Response is the body of a successful relay.
type Response struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Simulated     bool   `json:"simulated,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
}

// Rejection is a relay request that ended before or during forwarding.
type Rejection struct {
	HTTPStatus int
	Code       errors.ErrorCode
	Message    string
	Outcome    string
	Err        error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Message, r.Err)
	}
	return r.Message
}

func (r *Rejection) Unwrap() error { return r.Err }

// Body is the JSON body written for a rejection.
func (r *Rejection) Body() map[string]any {
	return map[string]any{
		"success": false,
		"error":   r.Message,
		"code":    r.Code,
	}
}

func reject(status int, code errors.ErrorCode, outcome, message string, err error) *Rejection {
	return &Rejection{HTTPStatus: status, Code: code, Message: message, Outcome: outcome, Err: err}
}

// Relay runs one request through validation, replay protection, signature
// verification and forwarding. Exactly one of the results is non-nil.
func (s *Service) Relay(ctx context.Context, body []byte) (*Response, *Rejection) {
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	resp, rej := s.relay(ctx, body)
	if rej != nil {
		s.recordOutcome(rej.Outcome)
		entry := s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
			"status":  rej.HTTPStatus,
			"outcome": rej.Outcome,
		})
		if rej.Err != nil {
			entry = entry.WithError(rej.Err)
		}
		if rej.HTTPStatus >= http.StatusInternalServerError {
			entry.Error("Relay request failed")
		} else {
			entry.Info("Relay request rejected")
		}
		return nil, rej
	}
	if resp.Simulated {
		s.recordOutcome("simulated")
	} else {
		s.recordOutcome("submitted")
	}
	return resp, nil
}

func (s *Service) relay(ctx context.Context, body []byte) (*Response, *Rejection) {
	payload, err := canonical.DecodeObject(body)
	if err != nil {
		return nil, reject(http.StatusBadRequest, errors.CodeBadRequest, "invalid_body", MsgInvalidBody, err)
	}

	for _, field := range intent.RequiredFields {
		if v, ok := payload[field].(string); !ok || strings.TrimSpace(v) == "" {
			return nil, reject(http.StatusBadRequest, errors.CodeMissingParameters, "missing_parameters", MsgMissingParameters, nil)
		}
	}
	if sig, ok := payload[signature.Field].(string); !ok || strings.TrimSpace(sig) == "" {
		return nil, reject(http.StatusUnauthorized, errors.CodeUnsigned, "unsigned", MsgUnsigned, nil)
	}

	signed, err := decodeIntent(body)
	if err != nil {
		return nil, reject(http.StatusBadRequest, errors.CodeInvalidParameters, "invalid_parameters", "Invalid parameters: "+err.Error(), err)
	}
	ctx = logging.WithUserID(ctx, signed.AccountID)

	if !s.window.Allows(signed.Timestamp, s.now()) {
		return nil, reject(http.StatusUnauthorized, errors.CodeExpired, "expired", MsgExpired, nil)
	}

	pubKey, err := s.keys.PublicKey(ctx, signed.AccountID)
	if err != nil {
		return nil, reject(http.StatusUnauthorized, errors.CodeUnknownAccount, "unknown_account", MsgUnknownAccount, err)
	}

	ok, err := signature.Verify(payload, signed.Signature, pubKey)
	if err != nil {
		return nil, reject(http.StatusInternalServerError, errors.CodeInternal, "server_error", "Server error: "+err.Error(), err)
	}
	if !ok {
		s.Logger().LogSecurityEvent(ctx, "invalid_signature", map[string]interface{}{"account_id": signed.AccountID})
		return nil, reject(http.StatusUnauthorized, errors.CodeInvalidSignature, "invalid_signature", MsgInvalidSignature, nil)
	}

	if s.seen == nil {
		return s.forward(ctx, signed)
	}

	digest, err := signature.Digest(payload)
	if err != nil {
		return nil, reject(http.StatusInternalServerError, errors.CodeInternal, "server_error", "Server error: "+err.Error(), err)
	}
	key := seenKey(signed.AccountID, digest)
	first, err := s.seen.MarkSeen(ctx, key, s.window.TTL())
	if err != nil {
		return nil, reject(http.StatusInternalServerError, errors.CodeInternal, "server_error", "Server error: replay store unavailable", err)
	}
	if !first {
		s.Logger().LogSecurityEvent(ctx, "replayed_signature", map[string]interface{}{"account_id": signed.AccountID})
		return nil, reject(http.StatusConflict, errors.CodeConflict, "duplicate", MsgAlreadyProcessed, nil)
	}

	resp, rej := s.forward(ctx, signed)
	if rej != nil && rej.Code == errors.CodeExecutionFailed && errors.IsRetryable(rej.Err) {
		// Transient failures leave the payload free to be relayed again.
		s.forget(ctx, key)
	}
	return resp, rej
}

// forgetTimeout bounds the release of a seen key after the request context
// has ended.
const forgetTimeout = 2 * time.Second

func (s *Service) forget(ctx context.Context, key string) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forgetTimeout)
	defer cancel()
	if err := s.seen.Forget(fctx, key); err != nil {
		s.Logger().WithContext(ctx).WithError(err).Warn("Failed to release replay key")
	}
}

func (s *Service) forward(ctx context.Context, signed *intent.SignedIntent) (*Response, *Rejection) {
	record := s.audit(ctx, signed)

	receipt, err := s.forwarder.ForwardSingle(ctx, signed.SmartWalletID, signed.TargetContract,
		signed.FunctionName, signed.Params, signed.Value)
	if err != nil {
		msg := errors.UserMessage(err)
		s.complete(ctx, record, storage.Outcome{Status: storage.StatusFailed, ErrorMessage: msg})
		return nil, reject(http.StatusInternalServerError, errors.CodeExecutionFailed, "execution_failed",
			"Transaction execution failed: "+msg, err)
	}

	s.complete(ctx, record, storage.Outcome{
		Status:        storage.StatusSubmitted,
		TransactionID: receipt.TransactionID,
		LedgerStatus:  receipt.Status,
		Simulated:     receipt.Simulated,
	})

	resp := &Response{
		Success:       true,
		TransactionID: receipt.TransactionID,
		Status:        receipt.Status,
		Simulated:     receipt.Simulated,
	}
	if record != nil {
		resp.RequestID = record.ID
	}
	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"transaction_id": receipt.TransactionID,
		"ledger_status":  receipt.Status,
		"simulated":      receipt.Simulated,
	}).Info("Relayed transaction")
	return resp, nil
}

// decodeIntent parses the typed intent and checks everything that can be
// checked without the network.
func decodeIntent(body []byte) (*intent.SignedIntent, error) {
	var signed intent.SignedIntent
	if err := json.Unmarshal(body, &signed); err != nil {
		return nil, unwrapParamError(err)
	}
	signed.Normalize()

	if signed.Value < 0 {
		return nil, fmt.Errorf("value must not be negative")
	}
	if signed.Value > canonical.MaxSafeInteger {
		return nil, fmt.Errorf("value exceeds 2^53-1")
	}
	ids := []struct{ name, value string }{
		{"accountId", signed.AccountID},
		{"smartWalletId", signed.SmartWalletID},
		{"targetContract", signed.TargetContract},
	}
	for _, id := range ids {
		if _, err := entityid.Parse(id.value); err != nil {
			return nil, fmt.Errorf("%s: %w", id.name, err)
		}
	}
	if _, err := smartwallet.EncodeSingle(signed.TargetContract, signed.FunctionName, signed.Params); err != nil {
		return nil, err
	}
	return &signed, nil
}

func unwrapParamError(err error) error {
	var pe *calldata.ParamError
	if errors.As(err, &pe) {
		return pe
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return fmt.Errorf("%s must be a %s", te.Field, te.Type)
	}
	return err
}

// seenKey identifies what was signed rather than how the signature was
// spelled.
func seenKey(account string, digest [32]byte) string {
	return account + ":" + hex.EncodeToString(digest[:])
}

func (s *Service) audit(ctx context.Context, signed *intent.SignedIntent) *storage.RelayRecord {
	rec, err := s.store.CreateRelay(ctx, storage.RelayRecord{
		AccountID:       signed.AccountID,
		SmartWalletID:   signed.SmartWalletID,
		TargetContract:  signed.TargetContract,
		FunctionName:    signed.FunctionName,
		Signature:       signed.Signature,
		IntentTimestamp: signed.Timestamp,
		Status:          storage.StatusPending,
		TraceID:         logging.GetTraceID(ctx),
	})
	if err != nil {
		s.Logger().WithContext(ctx).WithError(err).Warn("Failed to record relay request")
		return nil
	}
	return &rec
}

func (s *Service) complete(ctx context.Context, rec *storage.RelayRecord, out storage.Outcome) {
	if rec == nil {
		return
	}
	// The request context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.CompleteRelay(ctx, rec.ID, out); err != nil {
		s.Logger().WithContext(ctx).WithError(err).WithField("request_id", rec.ID).Warn("Failed to complete relay record")
	}
}

var _ WalletForwarder = (*smartwallet.Forwarder)(nil)

// WalletForwarder submits smart-wallet calls.
type WalletForwarder interface {
	ForwardSingle(ctx context.Context, walletID, target, functionName string, params []calldata.Param, value int64) (*ledger.Receipt, error)
}
