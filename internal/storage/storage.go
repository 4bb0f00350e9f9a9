// Package storage provides shared types for the salewatch relational store.
//
// The concrete backends live in the sqlite and mysql sub-packages. This
// package holds the interface and sentinel errors referenced by both the
// backends and their consumers (engine, server, cmd/sw).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/salewatch/salewatch/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on unique-constraint violations. Seen here, it
// means internal inconsistency: callers log it and fail the task.
var ErrConflict = errors.New("conflict")

// ErrUnavailable is returned when the store is temporarily unavailable
// (pool exhaustion, transient connection failure).
var ErrUnavailable = errors.New("store unavailable")

// Store is the interface satisfied by *sqlite.Store and *mysql.Store.
// Consumers depend on this interface rather than on a concrete type so that
// backends and instrumentation wrappers can be substituted.
type Store interface {
	// Credentials
	CreateCredential(ctx context.Context, cred *types.Credential) error
	GetCredential(ctx context.Context, id string) (*types.Credential, error)
	ListCredentials(ctx context.Context) ([]*types.Credential, error)
	RenameCredential(ctx context.Context, id, displayName string) error
	DeleteCredential(ctx context.Context, id string) error
	CredentialStats(ctx context.Context, id string) (*types.CredentialStats, error)

	// Sync state. GetSyncState returns a zero-valued state (highwatermark 0)
	// for credentials that have never synced. CommitHighwatermark enforces
	// monotonicity: it never lowers the stored value.
	GetSyncState(ctx context.Context, apiKeyID string) (*types.SyncState, error)
	CommitHighwatermark(ctx context.Context, apiKeyID string, highwatermark uint64, at time.Time) error

	// Audit
	RecordChangedDatesQuery(ctx context.Context, q *types.ChangedDatesQuery) error

	// Task queue
	EnqueueTasks(ctx context.Context, apiKeyID string, dates []string) error
	ClaimTasks(ctx context.Context, apiKeyID string, batchSize int) ([]*types.SyncTask, error)
	CompleteTask(ctx context.Context, taskID int64) error
	FailTask(ctx context.Context, taskID int64, errMsg string) error
	ResetFailedTasks(ctx context.Context, apiKeyID string) (int, error)
	ResetStaleTasks(ctx context.Context, apiKeyID string, olderThan time.Duration) (int, error)
	TaskCounts(ctx context.Context, apiKeyID string) (types.TaskCounts, error)
	TaskCountsAll(ctx context.Context) (map[string]types.TaskCounts, error)
	ListFailedTasks(ctx context.Context, limit int) ([]*types.SyncTask, error)

	// Sales records
	DeleteRecordsForDates(ctx context.Context, apiKeyID string, dates []string) error
	InsertRecords(ctx context.Context, records []*types.SalesRecord) error
	PurgeRecords(ctx context.Context, apiKeyID, fromDate, toDate string) (int64, error)

	// Lookups (global, insert-or-ignore; existing keys keep their names)
	UpsertLookups(ctx context.Context, set *types.LookupSet) error

	// Lifecycle
	HealthCheck(ctx context.Context) error
	Close() error
}
