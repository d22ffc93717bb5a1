// Package storage defines the relay audit trail and its in-memory backend.
package storage

import (
	"context"
	"errors"
	"time"
)

// RelayStatus is the lifecycle state of an audited relay request.
type RelayStatus string

const (
	StatusPending   RelayStatus = "pending"
	StatusSubmitted RelayStatus = "submitted"
	StatusFailed    RelayStatus = "failed"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("relay record not found")

// RelayRecord is one verified relay request.
type RelayRecord struct {
	ID              string      `json:"id"`
	AccountID       string      `json:"accountId"`
	SmartWalletID   string      `json:"smartWalletId"`
	TargetContract  string      `json:"targetContract"`
	FunctionName    string      `json:"functionName"`
	Signature       string      `json:"-"`
	IntentTimestamp int64       `json:"timestamp"`
	Status          RelayStatus `json:"status"`
	TransactionID   string      `json:"transactionId,omitempty"`
	LedgerStatus    string      `json:"ledgerStatus,omitempty"`
	Simulated       bool        `json:"simulated"`
	ErrorMessage    string      `json:"errorMessage,omitempty"`
	TraceID         string      `json:"traceId,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
}

// Outcome finalizes a pending record.
type Outcome struct {
	Status        RelayStatus
	TransactionID string
	LedgerStatus  string
	Simulated     bool
	ErrorMessage  string
	CompletedAt   time.Time
}

// RelayStore persists relay audit records.
type RelayStore interface {
	CreateRelay(ctx context.Context, rec RelayRecord) (RelayRecord, error)
	CompleteRelay(ctx context.Context, id string, out Outcome) error
	GetRelay(ctx context.Context, id string) (RelayRecord, error)
	ListRelays(ctx context.Context, accountID string, limit int) ([]RelayRecord, error)
	PruneRelays(ctx context.Context, before time.Time) (int64, error)
}

// Apply copies out onto rec.
func (rec *RelayRecord) Apply(out Outcome) {
	rec.Status = out.Status
	rec.TransactionID = out.TransactionID
	rec.LedgerStatus = out.LedgerStatus
	rec.Simulated = out.Simulated
	rec.ErrorMessage = out.ErrorMessage
	at := out.CompletedAt
	rec.CompletedAt = &at
}
