// Package audit provides persistent decision-audit stores: a JSON Lines
// writer (stdout), a daily-rotated JSONL file store with retention, and a
// SQLite store.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/routewarden/routewarden/internal/domain/audit"
)

// WriterStore implements audit.Store by appending JSON Lines to a writer.
// Used for "stdout" audit output. Recent is unsupported: the stream is
// write-only once emitted.
type WriterStore struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterStore creates a store appending JSONL records to w.
func NewWriterStore(w io.Writer) *WriterStore {
	return &WriterStore{enc: json.NewEncoder(w)}
}

// Record writes one JSONL record.
func (s *WriterStore) Record(ctx context.Context, rec audit.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	return nil
}

// Recent always returns an empty slice; the stream keeps no history.
func (s *WriterStore) Recent(ctx context.Context, limit int) ([]audit.DecisionRecord, error) {
	return []audit.DecisionRecord{}, nil
}

// Close is a no-op; the writer's lifetime belongs to the caller.
func (s *WriterStore) Close() error { return nil }

// Compile-time interface verification.
var _ audit.Store = (*WriterStore)(nil)
