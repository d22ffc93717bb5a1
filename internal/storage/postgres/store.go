// Package postgres implements storage.RelayStore on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/relay_layer/internal/storage"
)

// Store persists relay audit records in the relay_requests table.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ storage.RelayStore = (*Store)(nil)

// Open connects to dsn with the pool settings the relay uses.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type relayRow struct {
	ID              string         `db:"id"`
	AccountID       string         `db:"account_id"`
	SmartWalletID   string         `db:"smart_wallet_id"`
	TargetContract  string         `db:"target_contract"`
	FunctionName    string         `db:"function_name"`
	Signature       string         `db:"signature"`
	IntentTimestamp int64          `db:"intent_timestamp"`
	Status          string         `db:"status"`
	TransactionID   sql.NullString `db:"transaction_id"`
	LedgerStatus    sql.NullString `db:"ledger_status"`
	Simulated       bool           `db:"simulated"`
	ErrorMessage    sql.NullString `db:"error_message"`
	TraceID         sql.NullString `db:"trace_id"`
	CreatedAt       time.Time      `db:"created_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
}

const relayColumns = `id, account_id, smart_wallet_id, target_contract, function_name, signature,
	intent_timestamp, status, transaction_id, ledger_status, simulated, error_message, trace_id,
	created_at, completed_at`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toRow(rec storage.RelayRecord) relayRow {
	row := relayRow{
		ID:              rec.ID,
		AccountID:       rec.AccountID,
		SmartWalletID:   rec.SmartWalletID,
		TargetContract:  rec.TargetContract,
		FunctionName:    rec.FunctionName,
		Signature:       rec.Signature,
		IntentTimestamp: rec.IntentTimestamp,
		Status:          string(rec.Status),
		TransactionID:   nullString(rec.TransactionID),
		LedgerStatus:    nullString(rec.LedgerStatus),
		Simulated:       rec.Simulated,
		ErrorMessage:    nullString(rec.ErrorMessage),
		TraceID:         nullString(rec.TraceID),
		CreatedAt:       rec.CreatedAt,
	}
	if rec.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *rec.CompletedAt, Valid: true}
	}
	return row
}

func (r relayRow) record() storage.RelayRecord {
	rec := storage.RelayRecord{
		ID:              r.ID,
		AccountID:       r.AccountID,
		SmartWalletID:   r.SmartWalletID,
		TargetContract:  r.TargetContract,
		FunctionName:    r.FunctionName,
		Signature:       r.Signature,
		IntentTimestamp: r.IntentTimestamp,
		Status:          storage.RelayStatus(r.Status),
		TransactionID:   r.TransactionID.String,
		LedgerStatus:    r.LedgerStatus.String,
		Simulated:       r.Simulated,
		ErrorMessage:    r.ErrorMessage.String,
		TraceID:         r.TraceID.String,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.CompletedAt.Valid {
		at := r.CompletedAt.Time.UTC()
		rec.CompletedAt = &at
	}
	return rec
}

func (s *Store) CreateRelay(ctx context.Context, rec storage.RelayRecord) (storage.RelayRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = storage.StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO relay_requests (id, account_id, smart_wallet_id, target_contract, function_name,
			signature, intent_timestamp, status, simulated, trace_id, created_at)
		VALUES (:id, :account_id, :smart_wallet_id, :target_contract, :function_name,
			:signature, :intent_timestamp, :status, :simulated, :trace_id, :created_at)
	`, toRow(rec))
	if err != nil {
		return storage.RelayRecord{}, fmt.Errorf("insert relay record: %w", err)
	}
	return rec, nil
}

func (s *Store) CompleteRelay(ctx context.Context, id string, out storage.Outcome) error {
	if out.CompletedAt.IsZero() {
		out.CompletedAt = s.now()
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE relay_requests
		SET status = $2, transaction_id = $3, ledger_status = $4, simulated = $5,
			error_message = $6, completed_at = $7
		WHERE id = $1
	`, id, string(out.Status), nullString(out.TransactionID), nullString(out.LedgerStatus),
		out.Simulated, nullString(out.ErrorMessage), out.CompletedAt)
	if err != nil {
		return fmt.Errorf("update relay record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetRelay(ctx context.Context, id string) (storage.RelayRecord, error) {
	var row relayRow
	err := s.db.GetContext(ctx, &row, `SELECT `+relayColumns+` FROM relay_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RelayRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RelayRecord{}, fmt.Errorf("get relay record: %w", err)
	}
	return row.record(), nil
}

func (s *Store) ListRelays(ctx context.Context, accountID string, limit int) ([]storage.RelayRecord, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	var rows []relayRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+relayColumns+`
		FROM relay_requests
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list relay records: %w", err)
	}
	out := make([]storage.RelayRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (s *Store) PruneRelays(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM relay_requests WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune relay records: %w", err)
	}
	return result.RowsAffected()
}
