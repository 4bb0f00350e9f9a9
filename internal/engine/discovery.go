package engine

import (
	"context"
	"fmt"

	"github.com/salewatch/salewatch/internal/types"
)

type discoveryResult struct {
	dates         []string
	highwatermark uint64
}

// discover runs the changed-dates query for one credential: asks the remote
// what changed since the stored highwatermark, records the audit row, clears
// local rows for the changed dates, and enqueues one task per date.
//
// The new highwatermark is NOT committed here; it is only committed after
// every enqueued task completes, so a crash mid-populate re-discovers the
// same dates on the next run.
func (e *Engine) discover(ctx context.Context, apiKeyID string, client salesClient) (*discoveryResult, error) {
	state, err := e.store.GetSyncState(ctx, apiKeyID)
	if err != nil {
		return nil, err
	}

	var note string
	if e.cfg.StaleReclaimAfter > 0 {
		// Orphans from a crashed worker go back to pending and drain with
		// the rest of the queue.
		n, err := e.store.ResetStaleTasks(ctx, apiKeyID, e.cfg.StaleReclaimAfter)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			note = fmt.Sprintf("reclaimed %d stale task(s)", n)
		}
	}

	result, err := client.ChangedDates(ctx, state.Highwatermark)
	if err != nil {
		return nil, fmt.Errorf("changed-dates query failed: %w", err)
	}
	for _, d := range result.Dates {
		if err := types.ValidateDate(d); err != nil {
			return nil, fmt.Errorf("remote returned bad date: %w", err)
		}
	}

	audit := &types.ChangedDatesQuery{
		APIKeyID:         apiKeyID,
		HighwatermarkIn:  state.Highwatermark,
		HighwatermarkOut: result.Highwatermark,
		DatesFound:       len(result.Dates),
		Note:             note,
	}
	if err := e.store.RecordChangedDatesQuery(ctx, audit); err != nil {
		return nil, err
	}

	if len(result.Dates) > 0 {
		if err := e.store.DeleteRecordsForDates(ctx, apiKeyID, result.Dates); err != nil {
			return nil, err
		}
		if err := e.store.EnqueueTasks(ctx, apiKeyID, result.Dates); err != nil {
			return nil, err
		}
	}

	return &discoveryResult{dates: result.Dates, highwatermark: result.Highwatermark}, nil
}
