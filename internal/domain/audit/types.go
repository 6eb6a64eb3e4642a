// Package audit contains domain types for the decision audit log.
package audit

import (
	"context"
	"time"
)

// DecisionRecord is one auditable guard decision.
type DecisionRecord struct {
	// Timestamp is when the decision was computed (UTC).
	Timestamp time.Time `json:"timestamp"`
	// RequestID correlates the record with transport logs.
	RequestID string `json:"request_id,omitempty"`
	// SubjectID identifies the caller the decision was computed for.
	SubjectID string `json:"subject_id,omitempty"`
	// Roles held by the identity at decision time.
	Roles []string `json:"roles,omitempty"`
	// Authenticated is the identity's auth flag.
	Authenticated bool `json:"authenticated"`
	// Path is the requested path, including any query string.
	Path string `json:"path"`
	// Allowed is the verdict.
	Allowed bool `json:"allowed"`
	// Reason is the machine-readable decision reason.
	Reason string `json:"reason"`
	// RedirectTo is the redirect target on denials.
	RedirectTo string `json:"redirect_to,omitempty"`
	// Pattern is the policy pattern that matched, if any.
	Pattern string `json:"pattern,omitempty"`
	// LatencyMicros is the decision latency in microseconds.
	LatencyMicros int64 `json:"latency_micros"`
}

// Store persists decision records.
type Store interface {
	// Record appends one decision record.
	Record(ctx context.Context, rec DecisionRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]DecisionRecord, error)
	// Close releases store resources.
	Close() error
}
