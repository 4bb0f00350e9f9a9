package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/salewatch/salewatch/internal/types"
)

// maxTaskErrorLen caps the error text stored on a failed task.
const maxTaskErrorLen = 1024

// drainTasks claims and processes pending tasks for one credential until the
// queue is empty or ctx is cancelled. Tasks within a batch run concurrently,
// bounded by ConcurrentTasks. A task failure is recorded on the task and
// counted; only store or cancellation errors abort the drain. Tasks
// interrupted by cancellation stay in_progress so the stale sweep or an
// operator reset can reclaim them.
func (e *Engine) drainTasks(ctx context.Context, apiKeyID string, client salesClient, onTask func(completed, failed int, records int64)) error {
	var completed, failed atomic.Int64
	var records atomic.Int64

	notify := func() {
		if onTask != nil {
			onTask(int(completed.Load()), int(failed.Load()), records.Load())
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tasks, err := e.store.ClaimTasks(ctx, apiKeyID, e.cfg.TaskBatchSize)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.ConcurrentTasks)
		for _, task := range tasks {
			task := task
			g.Go(func() error {
				start := time.Now()
				n, err := e.runTask(gctx, apiKeyID, client, task)
				if err != nil {
					// Cancellation leaves the row in_progress for the stale
					// sweep or an operator reset; only real failures are
					// recorded on the task.
					if gctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return gctx.Err()
					}
					e.failTask(task, err)
					failed.Add(1)
					e.metrics.RecordTask(gctx, string(types.TaskFailed), time.Since(start))
					notify()
					return nil
				}
				if cerr := e.store.CompleteTask(gctx, task.ID); cerr != nil {
					return cerr
				}
				completed.Add(1)
				records.Add(n)
				e.metrics.RecordTask(gctx, string(types.TaskCompleted), time.Since(start))
				e.metrics.AddRecords(gctx, int(n))
				notify()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// runTask fetches every sales page for one date and writes the records.
// Clears the date's rows first: the discovery pass already did this for
// freshly changed dates, but a retried task may have partial rows from an
// earlier failed attempt.
func (e *Engine) runTask(ctx context.Context, apiKeyID string, client salesClient, task *types.SyncTask) (int64, error) {
	if err := e.store.DeleteRecordsForDates(ctx, apiKeyID, []string{task.Date}); err != nil {
		return 0, err
	}

	writer := newRecordWriter(e.store, e.cfg.RecordBatchSize)
	lookups := types.NewLookupSet()

	var cursor uint64
	for {
		page, err := client.SalesPage(ctx, task.Date, cursor)
		if err != nil {
			return 0, err
		}
		e.metrics.AddPages(ctx, 1)

		for i := range page.Results {
			if err := writer.Add(ctx, recordFromItem(apiKeyID, task.Date, &page.Results[i])); err != nil {
				return 0, err
			}
		}
		lookups.Merge(lookupsFromPage(page))

		if !page.HasMore(cursor) {
			break
		}
		cursor = uint64(page.MaxID)
	}

	if err := writer.Flush(ctx); err != nil {
		return 0, err
	}
	if err := e.store.UpsertLookups(ctx, lookups); err != nil {
		return 0, err
	}
	return writer.Written(), nil
}

// failTask records the failure on the task row. Runs on its own bounded
// context so the write survives a batch being torn down concurrently.
func (e *Engine) failTask(task *types.SyncTask, cause error) {
	msg := cause.Error()
	if len(msg) > maxTaskErrorLen {
		msg = msg[:maxTaskErrorLen]
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.store.FailTask(ctx, task.ID, msg)
}
