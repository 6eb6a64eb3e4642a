package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/routewarden/routewarden/internal/domain/audit"
)

// schema creates the decisions table. Roles are stored as a JSON array to
// keep the table single-row-per-decision.
const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ts             TEXT    NOT NULL,
	request_id     TEXT    NOT NULL DEFAULT '',
	subject_id     TEXT    NOT NULL DEFAULT '',
	roles          TEXT    NOT NULL DEFAULT '[]',
	authenticated  INTEGER NOT NULL,
	path           TEXT    NOT NULL,
	allowed        INTEGER NOT NULL,
	reason         TEXT    NOT NULL,
	redirect_to    TEXT    NOT NULL DEFAULT '',
	pattern        TEXT    NOT NULL DEFAULT '',
	latency_micros INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions (ts);
`

// SQLiteStore implements audit.Store on a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists. A single connection avoids SQLITE_BUSY on
// concurrent writers.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record inserts one decision row.
func (s *SQLiteStore) Record(ctx context.Context, rec audit.DecisionRecord) error {
	roles, err := json.Marshal(rec.Roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions
		 (ts, request_id, subject_id, roles, authenticated, path, allowed, reason, redirect_to, pattern, latency_micros)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.RequestID, rec.SubjectID, string(roles), rec.Authenticated,
		rec.Path, rec.Allowed, rec.Reason, rec.RedirectTo,
		rec.Pattern, rec.LatencyMicros,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]audit.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, request_id, subject_id, roles, authenticated, path, allowed, reason, redirect_to, pattern, latency_micros
		 FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.DecisionRecord
	for rows.Next() {
		var rec audit.DecisionRecord
		var ts, roles string
		if err := rows.Scan(&ts, &rec.RequestID, &rec.SubjectID, &roles,
			&rec.Authenticated, &rec.Path, &rec.Allowed, &rec.Reason,
			&rec.RedirectTo, &rec.Pattern, &rec.LatencyMicros); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = t
		}
		if err := json.Unmarshal([]byte(roles), &rec.Roles); err != nil {
			rec.Roles = nil
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Compile-time interface verification.
var _ audit.Store = (*SQLiteStore)(nil)
