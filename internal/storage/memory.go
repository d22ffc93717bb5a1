package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps ListRelays when the caller passes no limit.
const DefaultListLimit = 100

// Memory is a thread-safe in-memory RelayStore for tests and single-node runs.
type Memory struct {
	mu     sync.RWMutex
	relays map[string]RelayRecord
	now    func() time.Time
}

var _ RelayStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		relays: make(map[string]RelayRecord),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateRelay(_ context.Context, rec RelayRecord) (RelayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	} else if _, exists := m.relays[rec.ID]; exists {
		return RelayRecord{}, fmt.Errorf("relay record %s already exists", rec.ID)
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	m.relays[rec.ID] = rec
	return rec, nil
}

func (m *Memory) CompleteRelay(_ context.Context, id string, out Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.relays[id]
	if !ok {
		return ErrNotFound
	}
	if out.CompletedAt.IsZero() {
		out.CompletedAt = m.now()
	}
	rec.Apply(out)
	m.relays[id] = rec
	return nil
}

func (m *Memory) GetRelay(_ context.Context, id string) (RelayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.relays[id]
	if !ok {
		return RelayRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListRelays returns the newest records for accountID first.
func (m *Memory) ListRelays(_ context.Context, accountID string, limit int) ([]RelayRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	out := make([]RelayRecord, 0)
	for _, rec := range m.relays {
		if rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneRelays deletes records created before the cutoff.
func (m *Memory) PruneRelays(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.relays {
		if rec.CreatedAt.Before(before) {
			delete(m.relays, id)
			n++
		}
	}
	return n, nil
}
