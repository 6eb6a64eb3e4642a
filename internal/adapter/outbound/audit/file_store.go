package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/routewarden/routewarden/internal/domain/audit"
)

// decisionFilePattern matches audit log filenames: decisions-YYYY-MM-DD.log
var decisionFilePattern = regexp.MustCompile(`^decisions-(\d{4}-\d{2}-\d{2})\.log$`)

// FileConfig holds configuration for the file-based audit store.
type FileConfig struct {
	// Dir is the directory where audit files are stored.
	Dir string
	// RetentionDays is the number of days to keep audit files (default 7).
	RetentionDays int
}

// FileStore implements audit.Store with one JSON Lines file per UTC day.
// Files older than the retention window are removed when the day rolls over.
type FileStore struct {
	dir           string
	retentionDays int
	mu            sync.Mutex
	current       *os.File
	currentDate   string
	logger        *slog.Logger
	closed        bool
}

// NewFileStore creates a file-based audit store, creating the directory
// with restricted permissions and opening today's file.
func NewFileStore(cfg FileConfig, logger *slog.Logger) (*FileStore, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	s := &FileStore{
		dir:           cfg.Dir,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
	}
	if err := s.openForDate(time.Now().UTC().Format(time.DateOnly)); err != nil {
		return nil, err
	}
	s.cleanup()
	return s, nil
}

// openForDate opens (appending) the file for the given UTC date.
// Caller must hold mu or be the constructor.
func (s *FileStore) openForDate(date string) error {
	path := filepath.Join(s.dir, "decisions-"+date+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if s.current != nil {
		_ = s.current.Close()
	}
	s.current = f
	s.currentDate = date
	return nil
}

// Record appends one JSONL record, rolling to a new file at UTC midnight.
func (s *FileStore) Record(ctx context.Context, rec audit.DecisionRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("audit store closed")
	}

	today := time.Now().UTC().Format(time.DateOnly)
	if today != s.currentDate {
		if err := s.openForDate(today); err != nil {
			return err
		}
		s.cleanup()
	}

	if _, err := s.current.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Recent reads back up to limit records, newest first, scanning files in
// reverse chronological order.
func (s *FileStore) Recent(ctx context.Context, limit int) ([]audit.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	dates, err := s.auditDates()
	if err != nil {
		return nil, err
	}

	var out []audit.DecisionRecord
	for i := len(dates) - 1; i >= 0 && len(out) < limit; i-- {
		recs, err := s.readFile(dates[i])
		if err != nil {
			return nil, err
		}
		for j := len(recs) - 1; j >= 0 && len(out) < limit; j-- {
			out = append(out, recs[j])
		}
	}
	return out, nil
}

// auditDates lists the dates of stored audit files in ascending order.
func (s *FileStore) auditDates() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read audit directory: %w", err)
	}
	var dates []string
	for _, e := range entries {
		if m := decisionFilePattern.FindStringSubmatch(e.Name()); m != nil {
			dates = append(dates, m[1])
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// readFile parses all records from one day's file, skipping corrupt lines.
func (s *FileStore) readFile(date string) ([]audit.DecisionRecord, error) {
	f, err := os.Open(filepath.Join(s.dir, "decisions-"+date+".log"))
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	var recs []audit.DecisionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec audit.DecisionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.logger.Warn("skipping corrupt audit line", "date", date, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit file: %w", err)
	}
	return recs, nil
}

// cleanup removes files older than the retention window. Best effort.
func (s *FileStore) cleanup() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays).Format(time.DateOnly)
	dates, err := s.auditDates()
	if err != nil {
		s.logger.Warn("audit retention cleanup failed", "error", err)
		return
	}
	for _, date := range dates {
		if date < cutoff {
			path := filepath.Join(s.dir, "decisions-"+date+".log")
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to remove expired audit file", "file", path, "error", err)
			}
		}
	}
}

// Close flushes and closes the current file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.current != nil {
		return s.current.Close()
	}
	return nil
}

// Compile-time interface verification.
var _ audit.Store = (*FileStore)(nil)
