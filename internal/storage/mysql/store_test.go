package mysql

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/salewatch/salewatch/internal/storage"
)

// Live-server behavior is covered by the shared engine tests against the
// SQLite backend; these exercise the pieces that do not need a server.

func TestIsRetryableError(t *testing.T) {
	retryable := []error{
		errors.New("driver: bad connection"),
		errors.New("invalid connection"),
		errors.New("write: broken pipe"),
		errors.New("read: connection reset by peer"),
		errors.New("dial tcp: connection refused"),
		errors.New("Error 2013: Lost connection to MySQL server during query"),
		errors.New("Error 2006: MySQL server has gone away"),
		errors.New("read tcp: i/o timeout"),
	}
	for _, err := range retryable {
		if !isRetryableError(err) {
			t.Errorf("isRetryableError(%q) = false, want true", err)
		}
	}

	permanent := []error{
		nil,
		errors.New("Error 1062: Duplicate entry 'key1' for key 'PRIMARY'"),
		errors.New("Error 1146: Table 'salewatch.nope' doesn't exist"),
		sql.ErrNoRows,
	}
	for _, err := range permanent {
		if isRetryableError(err) {
			t.Errorf("isRetryableError(%v) = true, want false", err)
		}
	}
}

func TestWrapDBError(t *testing.T) {
	if err := wrapDBError("op", nil); err != nil {
		t.Errorf("wrapDBError(nil) = %v", err)
	}
	if err := wrapDBError("op", sql.ErrNoRows); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("no-rows mapping = %v, want ErrNotFound", err)
	}
	dup := fmt.Errorf("Error 1062: Duplicate entry 'a' for key 'uq_sync_tasks_key_date'")
	if err := wrapDBError("op", dup); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate mapping = %v, want ErrConflict", err)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3); got != "?, ?, ?" {
		t.Errorf("placeholders(3) = %q", got)
	}
	if got := placeholders(0); got != "" {
		t.Errorf("placeholders(0) = %q", got)
	}
}
