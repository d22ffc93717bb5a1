package ledger

import (
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/R3E-Network/relay_layer/internal/errors"
)

// Ledger status codes the client reacts to.
const (
	StatusSuccess              = "SUCCESS"
	StatusSimulated            = "SIMULATED"
	StatusUnknown              = "UNKNOWN"
	StatusBusy                 = "BUSY"
	StatusCostNotLoaded        = "COST_NOT_LOADED"
	StatusPlatformNotCreated   = "PLATFORM_TRANSACTION_NOT_CREATED"
	StatusPlatformNotActive    = "PLATFORM_NOT_ACTIVE"
	StatusReceiptNotFound      = "RECEIPT_NOT_FOUND"
	StatusDuplicateTransaction = "DUPLICATE_TRANSACTION"
	StatusContractRevert       = "CONTRACT_REVERT_EXECUTED"
	StatusInsufficientBalance  = "INSUFFICIENT_PAYER_BALANCE"
	StatusInsufficientGas      = "INSUFFICIENT_GAS"
	StatusInsufficientTxFee    = "INSUFFICIENT_TX_FEE"
	StatusInvalidContractID    = "INVALID_CONTRACT_ID"
	StatusInvalidSignature     = "INVALID_SIGNATURE"
	StatusMaxGasExceeded       = "MAX_GAS_LIMIT_EXCEEDED"
	StatusTransactionExpired   = "TRANSACTION_EXPIRED"
)

var retryableStatuses = map[string]bool{
	StatusBusy:               true,
	StatusCostNotLoaded:      true,
	StatusPlatformNotCreated: true,
	StatusPlatformNotActive:  true,
	StatusReceiptNotFound:    true,
	StatusUnknown:            true,
}

// IsRetryableStatus reports whether a ledger status is transient.
func IsRetryableStatus(status string) bool {
	return retryableStatuses[strings.ToUpper(status)]
}

// StatusError is a ledger-reported failure.
type StatusError struct {
	Op      string
	Status  string
	Message string
	Code    int
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// ErrorKind implements errors.Kinded.
func (e *StatusError) ErrorKind() errors.Kind {
	if IsRetryableStatus(e.Status) {
		return errors.KindTransient
	}
	return errors.KindFatal
}

// UserMessage omits the RPC operation name.
func (e *StatusError) UserMessage() string {
	if e.Message != "" {
		return e.Status + ": " + e.Message
	}
	return e.Status
}

// IsStatus reports whether err carries the given ledger status.
func IsStatus(err error, status string) bool {
	var se *StatusError
	return stderrors.As(err, &se) && se.Status == status
}

// RPCError is a JSON-RPC error without a ledger status.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorKind implements errors.Kinded.
func (e *RPCError) ErrorKind() errors.Kind { return errors.KindFatal }

// TransportError is a failure to reach the ledger gateway or read its reply.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: gateway returned HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorKind implements errors.Kinded. Gateway overload, timeouts, refused
// connections and truncated replies are transient.
func (e *TransportError) ErrorKind() errors.Kind {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return errors.KindTransient
	case 0:
	default:
		return errors.KindFatal
	}

	if e.Err == nil {
		return errors.KindFatal
	}
	var netErr net.Error
	if stderrors.As(e.Err, &netErr) && netErr.Timeout() {
		return errors.KindTransient
	}
	if stderrors.Is(e.Err, syscall.ECONNREFUSED) || stderrors.Is(e.Err, syscall.ECONNRESET) {
		return errors.KindTransient
	}
	if stderrors.Is(e.Err, io.EOF) || stderrors.Is(e.Err, io.ErrUnexpectedEOF) {
		return errors.KindTransient
	}
	return errors.KindFatal
}
