package factory

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSQLite(t *testing.T) {
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "sw.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestOpenBadURL(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Error("Open accepted empty DATABASE_URL")
	}
	if _, err := Open(context.Background(), "mysql://root@localhost"); err == nil {
		t.Error("Open accepted mysql URL without database name")
	}
}
