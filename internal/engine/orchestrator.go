package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/salewatch/salewatch/internal/idgen"
	"github.com/salewatch/salewatch/internal/types"
)

// RunSync synchronously runs one full sync for a credential and returns the
// final progress snapshot. Returns ErrSyncInProgress if another run for the
// same credential is active in this process.
func (e *Engine) RunSync(ctx context.Context, apiKeyID string) (*Progress, error) {
	syncID, err := idgen.NewSyncID()
	if err != nil {
		return nil, err
	}
	return e.runSync(ctx, apiKeyID, syncID)
}

// StartSync launches a sync in the background and returns its sync id for
// status polling. The run inherits ctx; cancelling it aborts the run.
func (e *Engine) StartSync(ctx context.Context, apiKeyID string) (string, error) {
	// Validate the credential up front so the caller gets a synchronous 404.
	if _, err := e.store.GetCredential(ctx, apiKeyID); err != nil {
		return "", err
	}
	if !e.acquire(apiKeyID) {
		return "", ErrSyncInProgress
	}
	syncID, err := idgen.NewSyncID()
	if err != nil {
		e.release(apiKeyID)
		return "", err
	}

	e.registry.Update(Progress{
		SyncID:    syncID,
		APIKeyID:  apiKeyID,
		Phase:     PhaseDiscovery,
		StartedAt: time.Now().UTC(),
	})
	go func() {
		defer e.release(apiKeyID)
		_, _ = e.runSyncLocked(ctx, apiKeyID, syncID)
	}()
	return syncID, nil
}

// StartSyncAll launches a background sync over several credentials under a
// single sync id. An empty apiKeyIDs syncs every credential. The credentials
// run sequentially; the returned sync id resolves to an aggregate snapshot
// that folds in each credential's outcome as it finishes.
func (e *Engine) StartSyncAll(ctx context.Context, apiKeyIDs []string) (string, error) {
	if len(apiKeyIDs) == 0 {
		creds, err := e.store.ListCredentials(ctx)
		if err != nil {
			return "", err
		}
		for _, cred := range creds {
			apiKeyIDs = append(apiKeyIDs, cred.ID)
		}
	} else {
		// Validate every credential up front so the caller gets a
		// synchronous 404 instead of a buried aggregate error.
		for _, id := range apiKeyIDs {
			if _, err := e.store.GetCredential(ctx, id); err != nil {
				return "", fmt.Errorf("credential %s: %w", id, err)
			}
		}
	}
	syncID, err := idgen.NewSyncID()
	if err != nil {
		return "", err
	}

	agg := Progress{
		SyncID:    syncID,
		Phase:     PhaseDiscovery,
		StartedAt: time.Now().UTC(),
	}
	e.registry.Update(agg)
	go e.runMany(ctx, agg, apiKeyIDs)
	return syncID, nil
}

// runMany drives the sequential per-credential runs behind StartSyncAll.
// Each credential still gets its own registry entry; the shared entry
// accumulates totals across them.
func (e *Engine) runMany(ctx context.Context, agg Progress, apiKeyIDs []string) {
	var failures []string
	agg.Phase = PhasePopulate
	for _, id := range apiKeyIDs {
		agg.APIKeyID = id
		e.registry.Update(agg)

		prog, err := e.RunSync(ctx, id)
		if prog != nil {
			agg.DatesFound += prog.DatesFound
			agg.TasksTotal += prog.TasksTotal
			agg.TasksCompleted += prog.TasksCompleted
			agg.TasksFailed += prog.TasksFailed
			agg.RecordsWritten += prog.RecordsWritten
		}
		if err != nil {
			if ctx.Err() != nil {
				agg.Phase = PhaseError
				agg.Error = fmt.Sprintf("sync cancelled: %v", ctx.Err())
				e.registry.Update(agg)
				return
			}
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
		}
		e.registry.Update(agg)
	}

	agg.APIKeyID = ""
	agg.Phase = PhaseComplete
	if len(failures) > 0 {
		agg.Error = strings.Join(failures, "; ")
	}
	e.registry.Update(agg)
}

// RunSyncAll syncs every credential sequentially. Failures are recorded per
// credential; the method keeps going and returns every final snapshot.
func (e *Engine) RunSyncAll(ctx context.Context) ([]*Progress, error) {
	creds, err := e.store.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Progress
	for _, cred := range creds {
		prog, err := e.RunSync(ctx, cred.ID)
		if err != nil {
			if ctx.Err() != nil {
				return out, err
			}
			prog = &Progress{APIKeyID: cred.ID, Phase: PhaseError, Error: err.Error()}
		}
		out = append(out, prog)
	}
	return out, nil
}

func (e *Engine) runSync(ctx context.Context, apiKeyID, syncID string) (*Progress, error) {
	if !e.acquire(apiKeyID) {
		return nil, ErrSyncInProgress
	}
	defer e.release(apiKeyID)
	return e.runSyncLocked(ctx, apiKeyID, syncID)
}

func (e *Engine) runSyncLocked(ctx context.Context, apiKeyID, syncID string) (*Progress, error) {
	prog := Progress{
		SyncID:    syncID,
		APIKeyID:  apiKeyID,
		Phase:     PhaseDiscovery,
		StartedAt: time.Now().UTC(),
	}
	e.registry.Update(prog)

	fail := func(cause error) (*Progress, error) {
		if ctx.Err() != nil {
			cause = fmt.Errorf("sync cancelled: %w", ctx.Err())
		}
		prog.Phase = PhaseError
		prog.Error = cause.Error()
		e.registry.Update(prog)
		e.metrics.RecordRun(context.WithoutCancel(ctx), apiKeyID, "error")
		return &prog, cause
	}

	client, _, err := e.clientFor(ctx, apiKeyID)
	if err != nil {
		return fail(err)
	}

	disc, err := e.discover(ctx, apiKeyID, client)
	if err != nil {
		return fail(err)
	}
	prog.DatesFound = len(disc.dates)
	prog.Highwatermark = disc.highwatermark

	// The queue may hold more than this run enqueued: leftovers from an
	// earlier partial run drain here too.
	counts, err := e.store.TaskCounts(ctx, apiKeyID)
	if err != nil {
		return fail(err)
	}
	prog.TasksTotal = counts.Pending
	prog.Phase = PhasePopulate
	e.registry.Update(prog)

	err = e.drainTasks(ctx, apiKeyID, client, func(completed, failed int, records int64) {
		prog.TasksCompleted = completed
		prog.TasksFailed = failed
		prog.RecordsWritten = records
		e.registry.Update(prog)
	})
	if err != nil {
		return fail(err)
	}

	// Strict watermark rule: only a fully clean drain advances the cursor.
	// Any failed task leaves it put, so the next discovery sees the same
	// dates again.
	outcome := "complete"
	if prog.TasksFailed == 0 {
		if err := e.store.CommitHighwatermark(ctx, apiKeyID, disc.highwatermark, time.Now().UTC()); err != nil {
			return fail(err)
		}
	} else {
		outcome = "partial"
	}

	prog.Phase = PhaseComplete
	e.registry.Update(prog)
	e.metrics.RecordRun(ctx, apiKeyID, outcome)
	return &prog, nil
}

// Status returns the progress snapshot for a sync id.
func (e *Engine) Status(syncID string) (Progress, bool) {
	return e.registry.Get(syncID)
}

// ActiveRuns returns snapshots of all unfinished runs.
func (e *Engine) ActiveRuns() []Progress {
	return e.registry.Active()
}

// RetryFailed flips a credential's failed tasks back to pending. The next
// sync run (or an explicit drain) picks them up.
func (e *Engine) RetryFailed(ctx context.Context, apiKeyID string) (int, error) {
	if _, err := e.store.GetCredential(ctx, apiKeyID); err != nil {
		return 0, err
	}
	return e.store.ResetFailedTasks(ctx, apiKeyID)
}

// QueueStatus returns task counts per credential.
func (e *Engine) QueueStatus(ctx context.Context) (map[string]types.TaskCounts, error) {
	return e.store.TaskCountsAll(ctx)
}
