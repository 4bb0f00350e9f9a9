package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/salewatch/salewatch/internal/config"
	"github.com/salewatch/salewatch/internal/partnerapi"
	"github.com/salewatch/salewatch/internal/secret"
	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/storage/sqlite"
	"github.com/salewatch/salewatch/internal/types"
)

// fakeClient scripts the remote: a changed-dates answer plus per-date pages.
type fakeClient struct {
	mu      sync.Mutex
	changed func(hw uint64) (*partnerapi.ChangedDatesResult, error)
	sales   func(date string, cursor uint64) (*partnerapi.SalesPage, error)
}

func (f *fakeClient) ChangedDates(ctx context.Context, hw uint64) (*partnerapi.ChangedDatesResult, error) {
	f.mu.Lock()
	fn := f.changed
	f.mu.Unlock()
	return fn(hw)
}

func (f *fakeClient) SalesPage(ctx context.Context, date string, cursor uint64) (*partnerapi.SalesPage, error) {
	f.mu.Lock()
	fn := f.sales
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(date, cursor)
}

func (f *fakeClient) set(changed func(hw uint64) (*partnerapi.ChangedDatesResult, error),
	sales func(date string, cursor uint64) (*partnerapi.SalesPage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if changed != nil {
		f.changed = changed
	}
	if sales != nil {
		f.sales = sales
	}
}

// onePage returns a single terminal page with n items for the date.
func onePage(n int) func(date string, cursor uint64) (*partnerapi.SalesPage, error) {
	return func(date string, cursor uint64) (*partnerapi.SalesPage, error) {
		if cursor > 0 {
			return &partnerapi.SalesPage{MaxID: partnerapi.Uint64Flex(cursor)}, nil
		}
		page := &partnerapi.SalesPage{MaxID: 100}
		for i := 0; i < n; i++ {
			app := partnerapi.Int64Flex(440)
			page.Results = append(page.Results, partnerapi.SaleItem{
				Date:          date,
				LineItemType:  "sale",
				AppID:         &app,
				CountryCode:   "US",
				Currency:      "USD",
				GrossSalesUSD: "19.98",
				NetSalesUSD:   "19.98",
				NetUnitsSold:  2,
			})
		}
		page.Apps = []partnerapi.AppRef{{ID: 440, Name: "Team Fortress 2"}}
		return page, nil
	}
}

func changedDates(hw uint64, dates ...string) func(uint64) (*partnerapi.ChangedDatesResult, error) {
	return func(uint64) (*partnerapi.ChangedDatesResult, error) {
		return &partnerapi.ChangedDatesResult{Dates: dates, Highwatermark: hw}, nil
	}
}

func newTestEngine(t *testing.T) (*Engine, storage.Store, *fakeClient, string) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "sw.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	secrets, err := secret.New([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to build secret provider: %v", err)
	}
	blob, err := secrets.Encrypt("partner-key")
	if err != nil {
		t.Fatalf("failed to encrypt key: %v", err)
	}

	const credID = "cred00000000000000000000000000001"
	err = store.CreateCredential(context.Background(), &types.Credential{
		ID:           credID,
		DisplayName:  "Test Partner",
		KeyHash:      "-key",
		EncryptedKey: blob,
	})
	if err != nil {
		t.Fatalf("failed to create credential: %v", err)
	}

	cfg := &config.Settings{
		TaskBatchSize:   4,
		ConcurrentTasks: 4,
		RecordBatchSize: 100,
		AttemptTimeout:  5 * time.Second,
		StatusTTL:       time.Minute,
	}

	fake := &fakeClient{
		changed: changedDates(0),
		sales:   onePage(0),
	}
	eng := New(store, secrets, cfg)
	eng.newClient = func(key string) salesClient {
		if key != "partner-key" {
			t.Errorf("engine decrypted key = %q, want partner-key", key)
		}
		return fake
	}
	return eng, store, fake, credID
}

func countRecords(t *testing.T, store storage.Store, credID string) int64 {
	t.Helper()
	stats, err := store.CredentialStats(context.Background(), credID)
	if err != nil {
		t.Fatalf("CredentialStats failed: %v", err)
	}
	return stats.RecordCount
}

func TestRunSyncFirstSync(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	fake.set(changedDates(1000, "2026-03-01", "2026-03-02"), onePage(2))

	prog, err := eng.RunSync(ctx, credID)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if prog.Phase != PhaseComplete {
		t.Errorf("phase = %s, want complete", prog.Phase)
	}
	if prog.DatesFound != 2 || prog.TasksCompleted != 2 || prog.TasksFailed != 0 {
		t.Errorf("progress = %+v", prog)
	}
	if prog.RecordsWritten != 4 {
		t.Errorf("RecordsWritten = %d, want 4", prog.RecordsWritten)
	}

	if n := countRecords(t, store, credID); n != 4 {
		t.Errorf("stored %d records, want 4", n)
	}
	state, err := store.GetSyncState(ctx, credID)
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state.Highwatermark != 1000 {
		t.Errorf("highwatermark = %d, want 1000", state.Highwatermark)
	}
	if state.LastSyncAt == nil {
		t.Error("last_sync_at not set")
	}

	counts, _ := store.TaskCounts(ctx, credID)
	if counts.Completed != 2 || counts.Pending != 0 {
		t.Errorf("task counts = %+v", counts)
	}
}

func TestRunSyncIncrementalReplacesDate(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	fake.set(changedDates(1000, "2026-03-01"), onePage(3))
	if _, err := eng.RunSync(ctx, credID); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if n := countRecords(t, store, credID); n != 3 {
		t.Fatalf("after first sync: %d records, want 3", n)
	}

	// The same date changes again with fewer rows; re-sync replaces, never
	// accumulates.
	fake.set(changedDates(2000, "2026-03-01"), onePage(1))
	if _, err := eng.RunSync(ctx, credID); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if n := countRecords(t, store, credID); n != 1 {
		t.Errorf("after second sync: %d records, want 1", n)
	}

	state, _ := store.GetSyncState(ctx, credID)
	if state.Highwatermark != 2000 {
		t.Errorf("highwatermark = %d, want 2000", state.Highwatermark)
	}
}

func TestRunSyncIdempotent(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	fake.set(changedDates(1000, "2026-03-01"), onePage(2))
	if _, err := eng.RunSync(ctx, credID); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// No remote changes: the second run must be a no-op.
	fake.set(changedDates(1000), nil)
	prog, err := eng.RunSync(ctx, credID)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if prog.DatesFound != 0 || prog.TasksTotal != 0 || prog.RecordsWritten != 0 {
		t.Errorf("second run progress = %+v, want a no-op", prog)
	}
	if n := countRecords(t, store, credID); n != 2 {
		t.Errorf("records = %d, want 2 (unchanged)", n)
	}
	counts, _ := store.TaskCounts(ctx, credID)
	if counts.Total() != 1 {
		t.Errorf("task rows = %d, want 1 (no new tasks)", counts.Total())
	}
	state, _ := store.GetSyncState(ctx, credID)
	if state.Highwatermark != 1000 {
		t.Errorf("highwatermark = %d, want 1000", state.Highwatermark)
	}
}

func TestRunSyncNoChanges(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	// Remote advances the cursor with zero dates (e.g. non-sales activity).
	fake.set(changedDates(500), nil)

	prog, err := eng.RunSync(ctx, credID)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if prog.DatesFound != 0 || prog.TasksTotal != 0 {
		t.Errorf("progress = %+v", prog)
	}
	state, _ := store.GetSyncState(ctx, credID)
	if state.Highwatermark != 500 {
		t.Errorf("highwatermark = %d, want 500 (clean empty run commits)", state.Highwatermark)
	}
}

func TestRunSyncFailedTaskHoldsWatermark(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	fake.set(changedDates(1000, "2026-03-01", "2026-03-02"),
		func(date string, cursor uint64) (*partnerapi.SalesPage, error) {
			if date == "2026-03-02" {
				return nil, &partnerapi.StatusError{StatusCode: 400}
			}
			return onePage(2)(date, cursor)
		})

	prog, err := eng.RunSync(ctx, credID)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if prog.TasksCompleted != 1 || prog.TasksFailed != 1 {
		t.Errorf("progress = %+v", prog)
	}

	// One failure means the watermark must not move.
	state, _ := store.GetSyncState(ctx, credID)
	if state.Highwatermark != 0 {
		t.Errorf("highwatermark = %d, want 0", state.Highwatermark)
	}

	failedTasks, err := store.ListFailedTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ListFailedTasks failed: %v", err)
	}
	if len(failedTasks) != 1 || failedTasks[0].Date != "2026-03-02" {
		t.Fatalf("failed tasks = %+v", failedTasks)
	}
	if !strings.Contains(failedTasks[0].Error, "400") {
		t.Errorf("task error = %q", failedTasks[0].Error)
	}

	// After the remote recovers, retry drains the failed task and the next
	// clean run commits.
	n, err := eng.RetryFailed(ctx, credID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d tasks, want 1", n)
	}
	fake.set(changedDates(1000), onePage(2))
	if _, err := eng.RunSync(ctx, credID); err != nil {
		t.Fatalf("recovery sync failed: %v", err)
	}
	state, _ = store.GetSyncState(ctx, credID)
	if state.Highwatermark != 1000 {
		t.Errorf("highwatermark after recovery = %d, want 1000", state.Highwatermark)
	}
	if n := countRecords(t, store, credID); n != 4 {
		t.Errorf("records after recovery = %d, want 4", n)
	}
}

func TestRunSyncRetriedTaskDoesNotDuplicate(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	// First attempt dies after one full page flushes.
	calls := 0
	fake.set(changedDates(1000, "2026-03-01"),
		func(date string, cursor uint64) (*partnerapi.SalesPage, error) {
			calls++
			if calls == 1 {
				return nil, fmt.Errorf("connection reset")
			}
			return onePage(2)(date, cursor)
		})

	if _, err := eng.RunSync(ctx, credID); err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if _, err := eng.RetryFailed(ctx, credID); err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if _, err := eng.RunSync(ctx, credID); err != nil {
		t.Fatalf("second RunSync failed: %v", err)
	}
	if n := countRecords(t, store, credID); n != 2 {
		t.Errorf("records = %d, want 2 (retry must replace, not append)", n)
	}
}

func TestRunSyncCancellation(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	fake.set(changedDates(1000, "2026-03-01", "2026-03-02", "2026-03-03"),
		func(date string, cursor uint64) (*partnerapi.SalesPage, error) {
			cancel()
			return nil, context.Canceled
		})

	_, err := eng.RunSync(ctx, credID)
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("RunSync = %v, want cancellation error", err)
	}

	// The watermark stays put, interrupted tasks keep their claim, and
	// nothing is marked failed: the stale sweep or an operator reset
	// picks the claimed rows back up.
	state, _ := store.GetSyncState(context.Background(), credID)
	if state.Highwatermark != 0 {
		t.Errorf("highwatermark = %d, want 0", state.Highwatermark)
	}
	counts, _ := store.TaskCounts(context.Background(), credID)
	if counts.Failed != 0 {
		t.Errorf("failed tasks = %d after cancellation, want 0", counts.Failed)
	}
	if counts.InProgress == 0 {
		t.Errorf("in-progress tasks = 0 after cancellation, want interrupted claims kept")
	}
	if counts.Completed+counts.Pending+counts.InProgress != 3 {
		t.Errorf("task counts = %+v, want 3 tasks split across pending/in-progress/completed", counts)
	}

	// ResetStaleTasks reclaims the interrupted rows for the next run.
	if _, err := store.ResetStaleTasks(context.Background(), credID, time.Nanosecond); err != nil {
		t.Fatalf("ResetStaleTasks failed: %v", err)
	}
}

func TestRunSyncDiscoveryErrorAborts(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	fake.set(func(uint64) (*partnerapi.ChangedDatesResult, error) {
		return nil, partnerapi.ErrUnauthorized
	}, nil)

	prog, err := eng.RunSync(ctx, credID)
	if !errors.Is(err, partnerapi.ErrUnauthorized) {
		t.Fatalf("RunSync = %v, want ErrUnauthorized", err)
	}
	if prog.Phase != PhaseError {
		t.Errorf("phase = %s, want error", prog.Phase)
	}
	state, _ := store.GetSyncState(ctx, credID)
	if state.Highwatermark != 0 {
		t.Errorf("highwatermark = %d, want 0", state.Highwatermark)
	}
}

func TestStartSyncAndStatus(t *testing.T) {
	eng, _, fake, credID := newTestEngine(t)
	ctx := context.Background()

	release := make(chan struct{})
	fake.set(changedDates(1000, "2026-03-01"),
		func(date string, cursor uint64) (*partnerapi.SalesPage, error) {
			<-release
			return onePage(1)(date, cursor)
		})

	syncID, err := eng.StartSync(ctx, credID)
	if err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}

	// A second start for the same credential is rejected while running.
	if _, err := eng.StartSync(ctx, credID); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent StartSync = %v, want ErrSyncInProgress", err)
	}

	close(release)
	deadline := time.After(10 * time.Second)
	for {
		prog, ok := eng.Status(syncID)
		if !ok {
			t.Fatal("status lost for active sync")
		}
		if prog.Phase == PhaseComplete {
			if prog.TasksCompleted != 1 {
				t.Errorf("progress = %+v", prog)
			}
			break
		}
		if prog.Phase == PhaseError {
			t.Fatalf("sync errored: %s", prog.Error)
		}
		select {
		case <-deadline:
			t.Fatal("sync did not complete")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := eng.StartSync(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("StartSync unknown credential = %v, want ErrNotFound", err)
	}
}

func TestStartSyncAllAggregates(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	// Second credential sharing the same partner key blob.
	first, err := store.GetCredential(ctx, credID)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	const cred2 = "cred00000000000000000000000000002"
	err = store.CreateCredential(ctx, &types.Credential{
		ID:           cred2,
		DisplayName:  "Second Partner",
		KeyHash:      "-key",
		EncryptedKey: first.EncryptedKey,
	})
	if err != nil {
		t.Fatalf("failed to create second credential: %v", err)
	}

	fake.set(changedDates(500, "2026-04-01"), onePage(1))

	// Empty id list: every credential runs under the one sync id.
	syncID, err := eng.StartSyncAll(ctx, nil)
	if err != nil {
		t.Fatalf("StartSyncAll failed: %v", err)
	}

	deadline := time.After(10 * time.Second)
	var prog Progress
	for {
		var ok bool
		prog, ok = eng.Status(syncID)
		if !ok {
			t.Fatal("aggregate sync id missing from the registry")
		}
		if prog.Phase == PhaseComplete || prog.Phase == PhaseError {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sync did not finish, progress = %+v", prog)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if prog.Phase != PhaseComplete || prog.Error != "" {
		t.Fatalf("aggregate = %+v, want clean completion", prog)
	}
	if prog.DatesFound != 2 || prog.TasksCompleted != 2 || prog.RecordsWritten != 2 {
		t.Errorf("aggregate totals = %+v, want 2 dates/tasks/records", prog)
	}
	for _, id := range []string{credID, cred2} {
		state, _ := store.GetSyncState(ctx, id)
		if state.Highwatermark != 500 {
			t.Errorf("highwatermark for %s = %d, want 500", id, state.Highwatermark)
		}
	}
}

func TestStartSyncAllUnknownCredential(t *testing.T) {
	eng, _, _, credID := newTestEngine(t)

	_, err := eng.StartSyncAll(context.Background(), []string{credID, "missing"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("StartSyncAll = %v, want ErrNotFound", err)
	}
}

func TestStatusUnknownSyncID(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	if _, ok := eng.Status("missing"); ok {
		t.Error("Status returned a snapshot for an unknown id")
	}
}

func TestRunSyncPaginatesAllPages(t *testing.T) {
	eng, store, fake, credID := newTestEngine(t)
	ctx := context.Background()

	// Three pages of one record each, cursor 0 -> 10 -> 20 -> terminal.
	fake.set(changedDates(1000, "2026-03-01"),
		func(date string, cursor uint64) (*partnerapi.SalesPage, error) {
			if cursor >= 30 {
				t.Fatalf("cursor ran past the terminal page: %d", cursor)
			}
			page, _ := onePage(1)(date, 0)
			page.MaxID = partnerapi.Uint64Flex(cursor + 10)
			if cursor == 20 {
				page.Results = nil // terminal: empty results
			}
			return page, nil
		})

	prog, err := eng.RunSync(ctx, credID)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if prog.RecordsWritten != 2 {
		t.Errorf("RecordsWritten = %d, want 2", prog.RecordsWritten)
	}
	if n := countRecords(t, store, credID); n != 2 {
		t.Errorf("stored %d records, want 2", n)
	}
}
