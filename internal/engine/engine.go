// Package engine runs the sync pipeline: discovery of changed dates, the
// task queue drain with bounded concurrency, and the final highwatermark
// commit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/salewatch/salewatch/internal/config"
	"github.com/salewatch/salewatch/internal/partnerapi"
	"github.com/salewatch/salewatch/internal/secret"
	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/telemetry"
	"github.com/salewatch/salewatch/internal/types"
)

// ErrSyncInProgress is returned when a sync for the same credential is
// already running in this process.
var ErrSyncInProgress = errors.New("sync already in progress for this credential")

// salesClient is the slice of the partner API the engine needs. Satisfied by
// *partnerapi.Client; tests substitute stubs.
type salesClient interface {
	ChangedDates(ctx context.Context, highwatermark uint64) (*partnerapi.ChangedDatesResult, error)
	SalesPage(ctx context.Context, date string, cursor uint64) (*partnerapi.SalesPage, error)
}

// Engine coordinates sync runs over one store.
type Engine struct {
	store    storage.Store
	secrets  *secret.Provider
	cfg      *config.Settings
	metrics  *telemetry.SyncMetrics
	registry *Registry

	// newClient is the client factory; tests replace it.
	newClient func(key string) salesClient

	mu      sync.Mutex
	running map[string]bool
}

// New creates an engine over the given store and secret provider.
func New(store storage.Store, secrets *secret.Provider, cfg *config.Settings) *Engine {
	e := &Engine{
		store:    store,
		secrets:  secrets,
		cfg:      cfg,
		metrics:  telemetry.NewSyncMetrics(),
		registry: NewRegistry(cfg.StatusTTL),
		running:  make(map[string]bool),
	}
	e.newClient = func(key string) salesClient {
		c := partnerapi.NewClient(cfg.PartnerBaseURL, key)
		c.AttemptTimeout = cfg.AttemptTimeout
		if cfg.MaxRetries > 0 {
			c.MaxRetries = cfg.MaxRetries
		}
		return c
	}
	return e
}

// clientFor decrypts a credential's key and builds a client for it.
func (e *Engine) clientFor(ctx context.Context, apiKeyID string) (salesClient, *types.Credential, error) {
	cred, err := e.store.GetCredential(ctx, apiKeyID)
	if err != nil {
		return nil, nil, err
	}
	key, err := e.secrets.Decrypt(cred.EncryptedKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt credential %s: %w", apiKeyID, err)
	}
	return e.newClient(key), cred, nil
}

// acquire marks a credential as syncing; returns false if already running.
func (e *Engine) acquire(apiKeyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[apiKeyID] {
		return false
	}
	e.running[apiKeyID] = true
	return true
}

func (e *Engine) release(apiKeyID string) {
	e.mu.Lock()
	delete(e.running, apiKeyID)
	e.mu.Unlock()
}
