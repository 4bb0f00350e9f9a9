package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/types"
)

const credentialColumns = "id, display_name, key_hash, encrypted_key, created_at"
const taskColumns = "id, api_key_id, date, status, COALESCE(error, ''), created_at, started_at, completed_at"

func scanCredential(row interface{ Scan(...any) error }) (*types.Credential, error) {
	var cred types.Credential
	if err := row.Scan(&cred.ID, &cred.DisplayName, &cred.KeyHash, &cred.EncryptedKey, &cred.CreatedAt); err != nil {
		return nil, err
	}
	return &cred, nil
}

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

// CreateCredential stores a new credential.
func (s *Store) CreateCredential(ctx context.Context, cred *types.Credential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO credentials (id, display_name, key_hash, encrypted_key, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			cred.ID, cred.DisplayName, cred.KeyHash, cred.EncryptedKey, cred.CreatedAt)
		return wrapDBError("create credential", err)
	})
}

// GetCredential returns the credential with the given id.
func (s *Store) GetCredential(ctx context.Context, id string) (*types.Credential, error) {
	var cred *types.Credential
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			"SELECT "+credentialColumns+" FROM credentials WHERE id = ?", id)
		c, err := scanCredential(row)
		if err != nil {
			return wrapDBError("get credential", err)
		}
		cred = c
		return nil
	})
	return cred, err
}

// ListCredentials returns all credentials ordered by creation time.
func (s *Store) ListCredentials(ctx context.Context) ([]*types.Credential, error) {
	var creds []*types.Credential
	err := s.withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+credentialColumns+" FROM credentials ORDER BY created_at, id")
		if err != nil {
			return wrapDBError("list credentials", err)
		}
		defer func() { _ = rows.Close() }()

		creds = creds[:0]
		for rows.Next() {
			cred, err := scanCredential(rows)
			if err != nil {
				return wrapDBError("scan credential", err)
			}
			creds = append(creds, cred)
		}
		return wrapDBError("list credentials", rows.Err())
	})
	return creds, err
}

// RenameCredential updates a credential's display name.
func (s *Store) RenameCredential(ctx context.Context, id, displayName string) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE credentials SET display_name = ? WHERE id = ?", displayName, id)
		if err != nil {
			return wrapDBError("rename credential", err)
		}
		return requireRowsAffected("rename credential", res)
	})
}

// DeleteCredential removes a credential; child rows cascade.
func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
		if err != nil {
			return wrapDBError("delete credential", err)
		}
		return requireRowsAffected("delete credential", res)
	})
}

// CredentialStats assembles the per-credential summary.
func (s *Store) CredentialStats(ctx context.Context, id string) (*types.CredentialStats, error) {
	if _, err := s.GetCredential(ctx, id); err != nil {
		return nil, err
	}

	stats := &types.CredentialStats{APIKeyID: id}
	err := s.withRetry(ctx, func() error {
		var firstDate, lastDate sql.NullString
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*), MIN(date), MAX(date)
			FROM sales_records WHERE api_key_id = ?`, id).
			Scan(&stats.RecordCount, &firstDate, &lastDate)
		if err != nil {
			return wrapDBError("credential record stats", err)
		}
		stats.FirstDate = firstDate.String
		stats.LastDate = lastDate.String
		return nil
	})
	if err != nil {
		return nil, err
	}

	state, err := s.GetSyncState(ctx, id)
	if err != nil {
		return nil, err
	}
	stats.Highwatermark = state.Highwatermark
	stats.LastSyncAt = state.LastSyncAt

	counts, err := s.TaskCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	stats.Tasks = counts
	return stats, nil
}

// GetSyncState returns the sync state, zero-valued for never-synced
// credentials.
func (s *Store) GetSyncState(ctx context.Context, apiKeyID string) (*types.SyncState, error) {
	state := &types.SyncState{APIKeyID: apiKeyID}
	err := s.withRetry(ctx, func() error {
		var lastSync sql.NullTime
		err := s.db.QueryRowContext(ctx, `
			SELECT highwatermark, last_sync_at FROM sync_state WHERE api_key_id = ?`,
			apiKeyID).Scan(&state.Highwatermark, &lastSync)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return wrapDBError("get sync state", err)
		}
		if lastSync.Valid {
			t := lastSync.Time
			state.LastSyncAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// CommitHighwatermark upserts the watermark; the stored value never
// decreases.
func (s *Store) CommitHighwatermark(ctx context.Context, apiKeyID string, highwatermark uint64, at time.Time) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sync_state (api_key_id, highwatermark, last_sync_at)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE
				highwatermark = GREATEST(highwatermark, VALUES(highwatermark)),
				last_sync_at = VALUES(last_sync_at)`,
			apiKeyID, highwatermark, at.UTC())
		return wrapDBError("commit highwatermark", err)
	})
}

// RecordChangedDatesQuery appends one discovery audit row.
func (s *Store) RecordChangedDatesQuery(ctx context.Context, q *types.ChangedDatesQuery) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO changed_dates_queries
				(api_key_id, highwatermark_in, highwatermark_out, dates_found, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			q.APIKeyID, q.HighwatermarkIn, q.HighwatermarkOut, q.DatesFound, q.Note, q.CreatedAt)
		if err != nil {
			return wrapDBError("record changed-dates query", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			q.ID = id
		}
		return nil
	})
}

// EnqueueTasks upserts one pending task per date, resetting existing rows.
func (s *Store) EnqueueTasks(ctx context.Context, apiKeyID string, dates []string) error {
	if len(dates) == 0 {
		return nil
	}
	for _, d := range dates {
		if err := types.ValidateDate(d); err != nil {
			return fmt.Errorf("enqueue tasks: %w", err)
		}
	}
	return s.withRetry(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			now := time.Now().UTC()
			for _, d := range dates {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO sync_tasks (api_key_id, date, status, error, created_at)
					VALUES (?, ?, 'pending', '', ?)
					ON DUPLICATE KEY UPDATE
						status = 'pending',
						error = '',
						created_at = VALUES(created_at),
						started_at = NULL,
						completed_at = NULL`,
					apiKeyID, d, now)
				if err != nil {
					return wrapDBError("enqueue task", err)
				}
			}
			return nil
		})
	})
}

// ClaimTasks atomically flips up to batchSize pending tasks to in_progress
// using SELECT ... FOR UPDATE SKIP LOCKED, so concurrent claimers skip each
// other's rows instead of blocking on them.
func (s *Store) ClaimTasks(ctx context.Context, apiKeyID string, batchSize int) ([]*types.SyncTask, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	var claimed []*types.SyncTask
	err := s.withRetry(ctx, func() error {
		claimed = claimed[:0]
		return s.withTx(ctx, func(tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, `
				SELECT `+taskColumns+` FROM sync_tasks
				WHERE api_key_id = ? AND status = 'pending'
				ORDER BY date
				LIMIT ?
				FOR UPDATE SKIP LOCKED`,
				apiKeyID, batchSize)
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
			if err := rows.Err(); err != nil {
				return wrapDBError("claim tasks", err)
			}
			if len(claimed) == 0 {
				return nil
			}

			now := time.Now().UTC()
			ids := make([]any, 0, len(claimed)+1)
			ids = append(ids, now)
			for _, task := range claimed {
				ids = append(ids, task.ID)
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE sync_tasks SET status = 'in_progress', started_at = ?
				WHERE id IN (`+placeholders(len(claimed))+`)`, ids...)
			if err != nil {
				return wrapDBError("mark tasks in progress", err)
			}
			for _, task := range claimed {
				task.Status = types.TaskInProgress
				t := now
				task.StartedAt = &t
			}
			return nil
		})
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
	return s.withRetry(ctx, func() error {
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
	})
}

// ResetFailedTasks flips failed tasks back to pending.
func (s *Store) ResetFailedTasks(ctx context.Context, apiKeyID string) (int, error) {
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE sync_tasks
			SET status = 'pending', error = '', started_at = NULL, completed_at = NULL
			WHERE api_key_id = ? AND status = 'failed'`, apiKeyID)
		if err != nil {
			return wrapDBError("reset failed tasks", err)
		}
		n, err = res.RowsAffected()
		return wrapDBError("reset failed tasks", err)
	})
	return int(n), err
}

// ResetStaleTasks reclaims in_progress tasks older than olderThan.
func (s *Store) ResetStaleTasks(ctx context.Context, apiKeyID string, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE sync_tasks
			SET status = 'pending', started_at = NULL
			WHERE api_key_id = ? AND status = 'in_progress' AND started_at < ?`,
			apiKeyID, cutoff)
		if err != nil {
			return wrapDBError("reset stale tasks", err)
		}
		n, err = res.RowsAffected()
		return wrapDBError("reset stale tasks", err)
	})
	return int(n), err
}

// TaskCounts returns per-status counts for one credential.
func (s *Store) TaskCounts(ctx context.Context, apiKeyID string) (types.TaskCounts, error) {
	var counts types.TaskCounts
	err := s.withRetry(ctx, func() error {
		counts = types.TaskCounts{}
		rows, err := s.db.QueryContext(ctx, `
			SELECT status, COUNT(*) FROM sync_tasks
			WHERE api_key_id = ? GROUP BY status`, apiKeyID)
		if err != nil {
			return wrapDBError("task counts", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return wrapDBError("scan task counts", err)
			}
			applyCount(&counts, status, n)
		}
		return wrapDBError("task counts", rows.Err())
	})
	return counts, err
}

// TaskCountsAll returns task counts grouped by credential.
func (s *Store) TaskCountsAll(ctx context.Context) (map[string]types.TaskCounts, error) {
	var all map[string]types.TaskCounts
	err := s.withRetry(ctx, func() error {
		all = make(map[string]types.TaskCounts)
		rows, err := s.db.QueryContext(ctx, `
			SELECT api_key_id, status, COUNT(*) FROM sync_tasks
			GROUP BY api_key_id, status`)
		if err != nil {
			return wrapDBError("task counts all", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var id, status string
			var n int
			if err := rows.Scan(&id, &status, &n); err != nil {
				return wrapDBError("scan task counts", err)
			}
			counts := all[id]
			applyCount(&counts, status, n)
			all[id] = counts
		}
		return wrapDBError("task counts all", rows.Err())
	})
	return all, err
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

// ListFailedTasks returns up to limit failed tasks, most recent first.
func (s *Store) ListFailedTasks(ctx context.Context, limit int) ([]*types.SyncTask, error) {
	if limit <= 0 {
		limit = 100
	}
	var tasks []*types.SyncTask
	err := s.withRetry(ctx, func() error {
		tasks = tasks[:0]
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+taskColumns+` FROM sync_tasks
			WHERE status = 'failed'
			ORDER BY completed_at DESC, id DESC
			LIMIT ?`, limit)
		if err != nil {
			return wrapDBError("list failed tasks", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return wrapDBError("scan failed task", err)
			}
			tasks = append(tasks, task)
		}
		return wrapDBError("list failed tasks", rows.Err())
	})
	return tasks, err
}

// DeleteRecordsForDates removes a credential's records for the given dates in
// one statement.
func (s *Store) DeleteRecordsForDates(ctx context.Context, apiKeyID string, dates []string) error {
	if len(dates) == 0 {
		return nil
	}
	args := make([]any, 0, len(dates)+1)
	args = append(args, apiKeyID)
	for _, d := range dates {
		args = append(args, d)
	}
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM sales_records WHERE api_key_id = ? AND date IN ("+placeholders(len(dates))+")",
			args...)
		return wrapDBError("delete records for dates", err)
	})
}

// recordInsertBatch caps rows per multi-row INSERT.
const recordInsertBatch = 500

// InsertRecords appends sales records in chunked multi-row inserts.
func (s *Store) InsertRecords(ctx context.Context, records []*types.SalesRecord) error {
	for len(records) > 0 {
		n := len(records)
		if n > recordInsertBatch {
			n = recordInsertBatch
		}
		if err := s.insertRecordChunk(ctx, records[:n]); err != nil {
			return err
		}
		records = records[n:]
	}
	return nil
}

func (s *Store) insertRecordChunk(ctx context.Context, records []*types.SalesRecord) error {
	const cols = `api_key_id, date, line_item_type,
		app_id, package_id, bundle_id, partner_id, game_item_id,
		country_code, platform, currency,
		base_price, sale_price, avg_sale_price_usd,
		gross_sales_usd, gross_returns_usd, net_sales_usd, net_tax_usd,
		gross_units_sold, gross_units_returned, gross_units_activated, net_units_sold,
		discount_id, discount_percentage, created_at`
	const nCols = 25

	now := time.Now().UTC()
	query := "INSERT INTO sales_records (" + cols + ") VALUES "
	args := make([]any, 0, len(records)*nCols)
	for i, r := range records {
		if i > 0 {
			query += ", "
		}
		query += "(" + placeholders(nCols) + ")"
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		args = append(args,
			r.APIKeyID, r.Date, r.LineItemType,
			r.AppID, r.PackageID, r.BundleID, r.PartnerID, r.GameItemID,
			r.CountryCode, r.Platform, r.Currency,
			r.BasePriceCents, r.SalePriceCents, r.AvgSalePriceUSD,
			r.GrossSalesUSD, r.GrossReturnsUSD, r.NetSalesUSD, r.NetTaxUSD,
			r.GrossUnitsSold, r.GrossUnitsReturned, r.GrossUnitsActivated, r.NetUnitsSold,
			r.DiscountID, r.DiscountPercentage, createdAt)
	}

	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return wrapDBError("insert records", err)
	})
}

// PurgeRecords deletes records in the inclusive date range; empty bounds are
// open-ended.
func (s *Store) PurgeRecords(ctx context.Context, apiKeyID, fromDate, toDate string) (int64, error) {
	for _, d := range []string{fromDate, toDate} {
		if d == "" {
			continue
		}
		if err := types.ValidateDate(d); err != nil {
			return 0, fmt.Errorf("purge records: %w", err)
		}
	}

	query := "DELETE FROM sales_records WHERE api_key_id = ?"
	args := []any{apiKeyID}
	if fromDate != "" {
		query += " AND date >= ?"
		args = append(args, fromDate)
	}
	if toDate != "" {
		query += " AND date <= ?"
		args = append(args, toDate)
	}

	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return wrapDBError("purge records", err)
		}
		n, err = res.RowsAffected()
		return wrapDBError("purge records", err)
	})
	return n, err
}

// UpsertLookups writes reference entities with INSERT IGNORE; the first-seen
// name for a key wins.
func (s *Store) UpsertLookups(ctx context.Context, set *types.LookupSet) error {
	if set == nil || set.Empty() {
		return nil
	}
	return s.withRetry(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			for table, m := range map[string]map[int64]string{
				"apps":       set.Apps,
				"packages":   set.Packages,
				"bundles":    set.Bundles,
				"partners":   set.Partners,
				"game_items": set.GameItems,
			} {
				for id, name := range m {
					_, err := tx.ExecContext(ctx,
						"INSERT IGNORE INTO "+table+" (id, name) VALUES (?, ?)", id, name)
					if err != nil {
						return wrapDBError("upsert "+table, err)
					}
				}
			}
			for code, c := range set.Countries {
				_, err := tx.ExecContext(ctx,
					"INSERT IGNORE INTO countries (code, name, region) VALUES (?, ?, ?)",
					code, c.Name, c.Region)
				if err != nil {
					return wrapDBError("upsert countries", err)
				}
			}
			for id, d := range set.Discounts {
				_, err := tx.ExecContext(ctx,
					"INSERT IGNORE INTO discounts (id, name, percentage) VALUES (?, ?, ?)",
					id, d.Name, d.Percentage)
				if err != nil {
					return wrapDBError("upsert discounts", err)
				}
			}
			return nil
		})
	})
}

func requireRowsAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(op, err)
	}
	if n == 0 {
		return wrapDBError(op, sql.ErrNoRows)
	}
	return nil
}
