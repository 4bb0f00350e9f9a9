package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/salewatch/salewatch/internal/types"
)

// newTestStore creates a file-backed store in a temp dir. File-backed rather
// than :memory: so the connection pool behaves like production and
// concurrency tests exercise the real write lock.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addTestCredential(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.CreateCredential(context.Background(), &types.Credential{
		ID:           id,
		DisplayName:  "test " + id,
		KeyHash:      "beef",
		EncryptedKey: "aa:bb:cc",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to create credential %s: %v", id, err)
	}
}

func sampleRecord(apiKeyID, date string) *types.SalesRecord {
	appID := int64(440)
	return &types.SalesRecord{
		APIKeyID:        apiKeyID,
		Date:            date,
		LineItemType:    "sale",
		AppID:           &appID,
		CountryCode:     "US",
		Platform:        "windows",
		Currency:        "USD",
		AvgSalePriceUSD: 999,
		GrossSalesUSD:   1998,
		NetSalesUSD:     1998,
		GrossUnitsSold:  2,
		NetUnitsSold:    2,
	}
}
