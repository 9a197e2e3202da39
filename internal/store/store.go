// Package store persists audit records and learning checkpoints.
package store

import (
	"sync"

	"qde/internal/audit"
)

// EventStore is a durable destination for audit records. Implementations
// must be safe for concurrent writes.
type EventStore interface {
	audit.Sink
	Close() error
}

// MemoryStore keeps records in memory. Used by ad-hoc runs and tests.
type MemoryStore struct {
	records []*audit.Record
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Write appends the record.
func (s *MemoryStore) Write(record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of everything written so far.
func (s *MemoryStore) Records() []*audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*audit.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// NopStore discards everything.
type NopStore struct{}

// NewNopStore creates a store that drops all writes.
func NewNopStore() *NopStore { return &NopStore{} }

// Write discards the record.
func (s *NopStore) Write(*audit.Record) error { return nil }

// Close is a no-op.
func (s *NopStore) Close() error { return nil }
