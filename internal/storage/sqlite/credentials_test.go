package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/types"
)

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cred := &types.Credential{
		ID:           "abc123",
		DisplayName:  "Partner A",
		KeyHash:      "f00d",
		EncryptedKey: "11:22:33",
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("CreateCredential failed: %v", err)
	}

	// Duplicate id is a conflict.
	if err := store.CreateCredential(ctx, cred); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate create = %v, want ErrConflict", err)
	}

	got, err := store.GetCredential(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got.DisplayName != "Partner A" || got.KeyHash != "f00d" {
		t.Errorf("got %+v", got)
	}

	if err := store.RenameCredential(ctx, "abc123", "Partner B"); err != nil {
		t.Fatalf("RenameCredential failed: %v", err)
	}
	got, _ = store.GetCredential(ctx, "abc123")
	if got.DisplayName != "Partner B" {
		t.Errorf("DisplayName = %q after rename", got.DisplayName)
	}

	if err := store.RenameCredential(ctx, "missing", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rename missing = %v, want ErrNotFound", err)
	}

	if err := store.DeleteCredential(ctx, "abc123"); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}
	if _, err := store.GetCredential(ctx, "abc123"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}

// TestDeleteCredentialCascades verifies a credential delete removes its sync
// state, audit rows, tasks, and sales records in one statement.
func TestDeleteCredentialCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addTestCredential(t, store, "key1")
	addTestCredential(t, store, "key2")

	for _, id := range []string{"key1", "key2"} {
		if err := store.CommitHighwatermark(ctx, id, 100, time.Now().UTC()); err != nil {
			t.Fatalf("CommitHighwatermark failed: %v", err)
		}
		if err := store.RecordChangedDatesQuery(ctx, &types.ChangedDatesQuery{APIKeyID: id}); err != nil {
			t.Fatalf("RecordChangedDatesQuery failed: %v", err)
		}
		if err := store.EnqueueTasks(ctx, id, []string{"2026-03-01"}); err != nil {
			t.Fatalf("EnqueueTasks failed: %v", err)
		}
		if err := store.InsertRecords(ctx, []*types.SalesRecord{sampleRecord(id, "2026-03-01")}); err != nil {
			t.Fatalf("InsertRecords failed: %v", err)
		}
	}

	if err := store.DeleteCredential(ctx, "key1"); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}

	for _, check := range []struct {
		table string
		want  int
	}{
		{"sync_state", 1},
		{"changed_dates_queries", 1},
		{"sync_tasks", 1},
		{"sales_records", 1},
	} {
		var n int
		if err := store.db.QueryRow("SELECT COUNT(*) FROM " + check.table).Scan(&n); err != nil {
			t.Fatalf("count %s failed: %v", check.table, err)
		}
		if n != check.want {
			t.Errorf("%s has %d rows after cascade, want %d", check.table, n, check.want)
		}
	}

	// The surviving credential's data is untouched.
	stats, err := store.CredentialStats(ctx, "key2")
	if err != nil {
		t.Fatalf("CredentialStats failed: %v", err)
	}
	if stats.RecordCount != 1 {
		t.Errorf("key2 record count = %d, want 1", stats.RecordCount)
	}
}

func TestCredentialStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addTestCredential(t, store, "key1")

	if err := store.InsertRecords(ctx, []*types.SalesRecord{
		sampleRecord("key1", "2026-03-01"),
		sampleRecord("key1", "2026-03-05"),
		sampleRecord("key1", "2026-03-03"),
	}); err != nil {
		t.Fatalf("InsertRecords failed: %v", err)
	}
	if err := store.CommitHighwatermark(ctx, "key1", 42, time.Now().UTC()); err != nil {
		t.Fatalf("CommitHighwatermark failed: %v", err)
	}
	if err := store.EnqueueTasks(ctx, "key1", []string{"2026-03-06"}); err != nil {
		t.Fatalf("EnqueueTasks failed: %v", err)
	}

	stats, err := store.CredentialStats(ctx, "key1")
	if err != nil {
		t.Fatalf("CredentialStats failed: %v", err)
	}
	if stats.RecordCount != 3 {
		t.Errorf("RecordCount = %d, want 3", stats.RecordCount)
	}
	if stats.FirstDate != "2026-03-01" || stats.LastDate != "2026-03-05" {
		t.Errorf("date span = %s..%s", stats.FirstDate, stats.LastDate)
	}
	if stats.Highwatermark != 42 {
		t.Errorf("Highwatermark = %d, want 42", stats.Highwatermark)
	}
	if stats.Tasks.Pending != 1 {
		t.Errorf("pending tasks = %d, want 1", stats.Tasks.Pending)
	}

	if _, err := store.CredentialStats(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("stats for missing credential = %v, want ErrNotFound", err)
	}
}
