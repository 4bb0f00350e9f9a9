package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/salewatch/salewatch/internal/types"
)

const credentialColumns = "id, display_name, key_hash, encrypted_key, created_at"

func scanCredential(row interface{ Scan(...any) error }) (*types.Credential, error) {
	var cred types.Credential
	if err := row.Scan(&cred.ID, &cred.DisplayName, &cred.KeyHash, &cred.EncryptedKey, &cred.CreatedAt); err != nil {
		return nil, err
	}
	return &cred, nil
}

// CreateCredential stores a new credential. The caller is responsible for
// encrypting the key; an existing id yields storage.ErrConflict.
func (s *Store) CreateCredential(ctx context.Context, cred *types.Credential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, display_name, key_hash, encrypted_key, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		cred.ID, cred.DisplayName, cred.KeyHash, cred.EncryptedKey, cred.CreatedAt)
	if err != nil {
		return wrapDBError("create credential", err)
	}
	return nil
}

// GetCredential returns the credential with the given id.
func (s *Store) GetCredential(ctx context.Context, id string) (*types.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM credentials WHERE id = ?", id)
	cred, err := scanCredential(row)
	if err != nil {
		return nil, wrapDBError("get credential", err)
	}
	return cred, nil
}

// ListCredentials returns all credentials ordered by creation time.
func (s *Store) ListCredentials(ctx context.Context) ([]*types.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+credentialColumns+" FROM credentials ORDER BY created_at, id")
	if err != nil {
		return nil, wrapDBError("list credentials", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []*types.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, wrapDBError("scan credential", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list credentials", err)
	}
	return creds, nil
}

// RenameCredential updates a credential's display name.
func (s *Store) RenameCredential(ctx context.Context, id, displayName string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE credentials SET display_name = ? WHERE id = ?", displayName, id)
	if err != nil {
		return wrapDBError("rename credential", err)
	}
	return requireRowsAffected("rename credential", res)
}

// DeleteCredential removes a credential. Sync state, audit rows, tasks, and
// sales records cascade via foreign keys.
func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return wrapDBError("delete credential", err)
	}
	return requireRowsAffected("delete credential", res)
}

// CredentialStats assembles the per-credential summary: record count, date
// span, sync state and task counts.
func (s *Store) CredentialStats(ctx context.Context, id string) (*types.CredentialStats, error) {
	if _, err := s.GetCredential(ctx, id); err != nil {
		return nil, err
	}

	stats := &types.CredentialStats{APIKeyID: id}

	var firstDate, lastDate sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(date), MAX(date)
		FROM sales_records WHERE api_key_id = ?`, id).
		Scan(&stats.RecordCount, &firstDate, &lastDate)
	if err != nil {
		return nil, wrapDBError("credential record stats", err)
	}
	stats.FirstDate = firstDate.String
	stats.LastDate = lastDate.String

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
