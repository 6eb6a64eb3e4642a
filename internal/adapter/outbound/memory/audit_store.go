package memory

import (
	"context"
	"sync"

	"github.com/routewarden/routewarden/internal/domain/audit"
)

// defaultAuditCapacity bounds the ring buffer when no capacity is given.
const defaultAuditCapacity = 1000

// AuditStore implements audit.Store with a bounded in-memory ring buffer.
// The oldest record is dropped when the buffer is full. For development
// and tests; production deployments use the file or SQLite stores.
type AuditStore struct {
	mu      sync.RWMutex
	records []audit.DecisionRecord
	next    int
	full    bool
}

// NewAuditStore creates a ring-buffer audit store with the given capacity.
func NewAuditStore(capacity int) *AuditStore {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &AuditStore{records: make([]audit.DecisionRecord, capacity)}
}

// Record appends one decision record, evicting the oldest when full.
func (s *AuditStore) Record(ctx context.Context, rec audit.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.next] = rec
	s.next++
	if s.next == len(s.records) {
		s.next = 0
		s.full = true
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]audit.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.records)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]audit.DecisionRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.next - 1 - i + len(s.records)) % len(s.records)
		out = append(out, s.records[idx])
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (s *AuditStore) Close() error { return nil }

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
