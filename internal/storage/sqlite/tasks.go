package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/types"
)

const taskColumns = "id, api_key_id, date, status, error, created_at, started_at, completed_at"

func scanTask(row interface{ Scan(...any) error }) (*types.SyncTask, error) {
	var (
		task      types.SyncTask
		status    string
		started   sql.NullTime
		completed sql.NullTime
	)
	if err := row.Scan(&task.ID, &task.APIKeyID, &task.Date, &status, &task.Error,
		&task.CreatedAt, &started, &completed); err != nil {
		return nil, err
	}
	task.Status = types.TaskStatus(status)
	if started.Valid {
		t := started.Time
		task.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		task.CompletedAt = &t
	}
	return &task, nil
}

// EnqueueTasks upserts one pending task per date for a credential. Dates that
// already have a task row (any status) are reset to pending with cleared
// timestamps and error, so a re-discovered date is re-fetched even if it
// previously completed or failed.
func (s *Store) EnqueueTasks(ctx context.Context, apiKeyID string, dates []string) error {
	if len(dates) == 0 {
		return nil
	}
	for _, d := range dates {
		if err := types.ValidateDate(d); err != nil {
			return fmt.Errorf("enqueue tasks: %w", err)
		}
	}

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		now := time.Now().UTC()
		for _, d := range dates {
			_, err := conn.ExecContext(ctx, `
				INSERT INTO sync_tasks (api_key_id, date, status, error, created_at)
				VALUES (?, ?, 'pending', '', ?)
				ON CONFLICT(api_key_id, date) DO UPDATE SET
					status = 'pending',
					error = '',
					created_at = excluded.created_at,
					started_at = NULL,
					completed_at = NULL`,
				apiKeyID, d, now)
			if err != nil {
				return wrapDBError("enqueue task", err)
			}
		}
		return nil
	})
}

// ClaimTasks atomically flips up to batchSize pending tasks to in_progress and
// returns them. The UPDATE runs inside BEGIN IMMEDIATE, so concurrent claimers
// serialize on the write lock and every task is returned to at most one
// caller. Returns an empty slice when nothing is pending.
func (s *Store) ClaimTasks(ctx context.Context, apiKeyID string, batchSize int) ([]*types.SyncTask, error) {
	if batchSize <= 0 {
		return nil, nil
	}

	var claimed []*types.SyncTask
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			UPDATE sync_tasks
			SET status = 'in_progress', started_at = ?
			WHERE id IN (
				SELECT id FROM sync_tasks
				WHERE api_key_id = ? AND status = 'pending'
				ORDER BY date
				LIMIT ?
			)
			RETURNING `+taskColumns,
			time.Now().UTC(), apiKeyID, batchSize)
		if err != nil {
			return wrapDBError("claim tasks", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return wrapDBError("scan claimed task", err)
			}
			claimed = append(claimed, task)
		}
		return wrapDBError("claim tasks", rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteTask marks an in-progress task completed.
func (s *Store) CompleteTask(ctx context.Context, taskID int64) error {
	return s.finishTask(ctx, taskID, types.TaskCompleted, "")
}

// FailTask marks an in-progress task failed and records the error message.
func (s *Store) FailTask(ctx context.Context, taskID int64, errMsg string) error {
	return s.finishTask(ctx, taskID, types.TaskFailed, errMsg)
}

func (s *Store) finishTask(ctx context.Context, taskID int64, status types.TaskStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = 'in_progress'`,
		string(status), errMsg, time.Now().UTC(), taskID)
	if err != nil {
		return wrapDBError("finish task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("finish task", err)
	}
	if n == 0 {
		return fmt.Errorf("finish task %d: not in progress: %w", taskID, storage.ErrConflict)
	}
	return nil
}

// ResetFailedTasks flips every failed task for a credential back to pending
// and returns how many were reset.
func (s *Store) ResetFailedTasks(ctx context.Context, apiKeyID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = 'pending', error = '', started_at = NULL, completed_at = NULL
		WHERE api_key_id = ? AND status = 'failed'`, apiKeyID)
	if err != nil {
		return 0, wrapDBError("reset failed tasks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("reset failed tasks", err)
	}
	return int(n), nil
}

// ResetStaleTasks reclaims in_progress tasks whose started_at is older than
// olderThan, returning them to pending. Used on startup recovery for tasks
// orphaned by a crashed worker.
func (s *Store) ResetStaleTasks(ctx context.Context, apiKeyID string, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = 'pending', started_at = NULL
		WHERE api_key_id = ? AND status = 'in_progress' AND started_at < ?`,
		apiKeyID, cutoff)
	if err != nil {
		return 0, wrapDBError("reset stale tasks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("reset stale tasks", err)
	}
	return int(n), nil
}

// TaskCounts returns the per-status task counts for one credential.
func (s *Store) TaskCounts(ctx context.Context, apiKeyID string) (types.TaskCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM sync_tasks
		WHERE api_key_id = ? GROUP BY status`, apiKeyID)
	if err != nil {
		return types.TaskCounts{}, wrapDBError("task counts", err)
	}
	defer func() { _ = rows.Close() }()

	var counts types.TaskCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return types.TaskCounts{}, wrapDBError("scan task counts", err)
		}
		applyCount(&counts, status, n)
	}
	if err := rows.Err(); err != nil {
		return types.TaskCounts{}, wrapDBError("task counts", err)
	}
	return counts, nil
}

// TaskCountsAll returns task counts grouped by credential.
func (s *Store) TaskCountsAll(ctx context.Context) (map[string]types.TaskCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT api_key_id, status, COUNT(*) FROM sync_tasks
		GROUP BY api_key_id, status`)
	if err != nil {
		return nil, wrapDBError("task counts all", err)
	}
	defer func() { _ = rows.Close() }()

	all := make(map[string]types.TaskCounts)
	for rows.Next() {
		var id, status string
		var n int
		if err := rows.Scan(&id, &status, &n); err != nil {
			return nil, wrapDBError("scan task counts", err)
		}
		counts := all[id]
		applyCount(&counts, status, n)
		all[id] = counts
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("task counts all", err)
	}
	return all, nil
}

func applyCount(counts *types.TaskCounts, status string, n int) {
	switch types.TaskStatus(status) {
	case types.TaskPending:
		counts.Pending = n
	case types.TaskInProgress:
		counts.InProgress = n
	case types.TaskCompleted:
		counts.Completed = n
	case types.TaskFailed:
		counts.Failed = n
	}
}

// ListFailedTasks returns up to limit failed tasks across all credentials,
// most recently finished first.
func (s *Store) ListFailedTasks(ctx context.Context, limit int) ([]*types.SyncTask, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM sync_tasks
		WHERE status = 'failed'
		ORDER BY completed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrapDBError("list failed tasks", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*types.SyncTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError("scan failed task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list failed tasks", err)
	}
	return tasks, nil
}

// placeholders returns "?, ?, ..." with n entries, for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
