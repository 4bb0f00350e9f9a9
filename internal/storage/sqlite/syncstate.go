package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/salewatch/salewatch/internal/types"
)

// GetSyncState returns the sync state for a credential. Credentials that have
// never synced get a zero-valued state (highwatermark 0), not an error.
func (s *Store) GetSyncState(ctx context.Context, apiKeyID string) (*types.SyncState, error) {
	state := &types.SyncState{APIKeyID: apiKeyID}
	var lastSync sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT highwatermark, last_sync_at FROM sync_state WHERE api_key_id = ?`,
		apiKeyID).Scan(&state.Highwatermark, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return nil, wrapDBError("get sync state", err)
	}
	if lastSync.Valid {
		t := lastSync.Time
		state.LastSyncAt = &t
	}
	return state, nil
}

// CommitHighwatermark advances the stored highwatermark for a credential.
// The stored value never decreases: a commit below the current watermark
// only refreshes last_sync_at. Upsert keyed on api_key_id.
func (s *Store) CommitHighwatermark(ctx context.Context, apiKeyID string, highwatermark uint64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (api_key_id, highwatermark, last_sync_at)
		VALUES (?, ?, ?)
		ON CONFLICT(api_key_id) DO UPDATE SET
			highwatermark = MAX(highwatermark, excluded.highwatermark),
			last_sync_at = excluded.last_sync_at`,
		apiKeyID, highwatermark, at.UTC())
	if err != nil {
		return wrapDBError("commit highwatermark", err)
	}
	return nil
}

// RecordChangedDatesQuery appends one discovery audit row.
func (s *Store) RecordChangedDatesQuery(ctx context.Context, q *types.ChangedDatesQuery) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
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
}
