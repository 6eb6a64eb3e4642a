package memory

import (
	"fmt"
	"testing"

	"github.com/routewarden/routewarden/internal/domain/audit"
)

func TestAuditStoreRecentNewestFirst(t *testing.T) {
	store := NewAuditStore(10)

	for i := 0; i < 3; i++ {
		rec := audit.DecisionRecord{Path: fmt.Sprintf("/p%d", i)}
		if err := store.Record(t.Context(), rec); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}

	got, err := store.Recent(t.Context(), 2)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 2 || got[0].Path != "/p2" || got[1].Path != "/p1" {
		t.Fatalf("Recent(2) = %+v, want newest first", got)
	}
}

func TestAuditStoreEvictsOldest(t *testing.T) {
	store := NewAuditStore(3)

	for i := 0; i < 5; i++ {
		_ = store.Record(t.Context(), audit.DecisionRecord{Path: fmt.Sprintf("/p%d", i)})
	}

	got, err := store.Recent(t.Context(), 0)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d records, want 3", len(got))
	}
	if got[0].Path != "/p4" || got[2].Path != "/p2" {
		t.Fatalf("Recent after wrap = %+v", got)
	}
}

func TestAuditStoreEmptyRecent(t *testing.T) {
	store := NewAuditStore(4)

	got, err := store.Recent(t.Context(), 10)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Recent on empty store = %+v", got)
	}
}
