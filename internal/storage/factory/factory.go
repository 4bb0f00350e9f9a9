// Package factory opens the storage backend selected by DATABASE_URL.
package factory

import (
	"context"
	"fmt"

	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/storage/mysql"
	"github.com/salewatch/salewatch/internal/storage/sqlite"
)

// Open parses databaseURL and opens the matching backend. Plain paths and
// sqlite:/file: URLs open the embedded SQLite store; mysql:// URLs open the
// server-mode store.
func Open(ctx context.Context, databaseURL string) (storage.Store, error) {
	backend, dsn, err := storage.ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	switch backend {
	case storage.BackendSQLite:
		return sqlite.New(ctx, dsn)
	case storage.BackendMySQL:
		return mysql.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}
