// Package errors provides the typed error taxonomy shared by the relay and the
// ledger invocation layer.
//
// Internal packages return their own typed errors (or wrap them with %w). Only
// HTTP-facing code converts them into user-safe messages via UserMessage and
// ServiceError.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry and presentation decisions.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindTransient      Kind = "transient"
	KindFatal          Kind = "fatal"
	KindConfiguration  Kind = "configuration"
	KindInternal       Kind = "internal"
)

// Kinded is implemented by errors that know their own classification.
type Kinded interface {
	ErrorKind() Kind
}

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeBadRequest        ErrorCode = "BAD_REQUEST"
	CodeMissingParameters ErrorCode = "MISSING_PARAMETERS"
	CodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeUnsigned          ErrorCode = "UNSIGNED"
	CodeExpired           ErrorCode = "EXPIRED"
	CodeUnknownAccount    ErrorCode = "UNKNOWN_ACCOUNT"
	CodeInvalidSignature  ErrorCode = "INVALID_SIGNATURE"
	CodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeRateLimited       ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeExecutionFailed   ErrorCode = "EXECUTION_FAILED"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is an error that carries everything an HTTP boundary needs.
type ServiceError struct {
	Code       ErrorCode      `json:"code"`
	Kind       Kind           `json:"-"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ErrorKind implements Kinded.
func (e *ServiceError) ErrorKind() Kind { return e.Kind }

// WithDetails attaches a detail entry and returns the same error.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds a ServiceError.
func New(code ErrorCode, kind Kind, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Kind: kind, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest is a generic 400.
func BadRequest(code ErrorCode, message string) *ServiceError {
	return New(code, KindValidation, http.StatusBadRequest, message, nil)
}

// Unauthorized is a generic 401.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return New(CodeUnauthorized, KindAuthentication, http.StatusUnauthorized, message, nil)
}

// AuthFailed is a 401 with a specific code.
func AuthFailed(code ErrorCode, message string) *ServiceError {
	return New(code, KindAuthentication, http.StatusUnauthorized, message, nil)
}

// InvalidToken wraps a token parsing failure.
func InvalidToken(err error) *ServiceError {
	return New(CodeInvalidToken, KindAuthentication, http.StatusUnauthorized, "Invalid or expired token", err)
}

// Forbidden is a 403.
func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, KindAuthentication, http.StatusForbidden, message, nil)
}

// NotFound is a 404.
func NotFound(message string) *ServiceError {
	return New(CodeNotFound, KindValidation, http.StatusNotFound, message, nil)
}

// Conflict is a 409.
func Conflict(message string) *ServiceError {
	return New(CodeConflict, KindValidation, http.StatusConflict, message, nil)
}

// RateLimitExceeded is a 429.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimited, KindTransient, http.StatusTooManyRequests, "Rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal is a 500.
func Internal(message string, err error) *ServiceError {
	return New(CodeInternal, KindInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if stderrors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindInternal
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// BusyMessage is what callers see once transient failures exhausted their retries.
const BusyMessage = "ledger network is busy, please try again"

// UserMessage renders err for an end user. Transient failures collapse into
// BusyMessage; everything else keeps its own message, which for the internal
// packages never includes stack traces.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindTransient {
		return BusyMessage
	}
	var um interface{ UserMessage() string }
	if stderrors.As(err, &um) {
		return um.UserMessage()
	}
	return err.Error()
}

// Is, As and Unwrap re-export the standard helpers so callers need one import.
var (
	Is     = stderrors.Is
	As     = stderrors.As
	Unwrap = stderrors.Unwrap
)
