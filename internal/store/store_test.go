package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func TestMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := Open(dbPath, newTestLogger())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	t.Run("LedgerRecordsAllVersions", func(t *testing.T) {
		var count int
		err := st.Read(context.Background(), func(tx *sql.Tx) error {
			return tx.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		})
		if err != nil {
			t.Fatalf("Failed to read migration ledger: %v", err)
		}
		if count != len(migrations) {
			t.Errorf("Expected %d applied migrations, got %d", len(migrations), count)
		}
	})

	t.Run("ReopenIsIdempotent", func(t *testing.T) {
		if err := st.Close(); err != nil {
			t.Fatalf("Failed to close store: %v", err)
		}

		reopened, err := Open(dbPath, newTestLogger())
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		defer reopened.Close()

		var count int
		err = reopened.Read(context.Background(), func(tx *sql.Tx) error {
			return tx.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		})
		if err != nil {
			t.Fatalf("Failed to read migration ledger after reopen: %v", err)
		}
		if count != len(migrations) {
			t.Errorf("Expected %d applied migrations after reopen, got %d", len(migrations), count)
		}
	})
}

func TestWriteRollsBackOnError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := Open(dbPath, newTestLogger())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	wantErr := sql.ErrNoRows
	err = st.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO folders (path) VALUES ('/music')"); err != nil {
			return err
		}
		return wantErr
	})
	if err == nil {
		t.Fatal("Expected write scope to propagate the error")
	}

	var count int
	err = st.Read(ctx, func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM folders").Scan(&count)
	})
	if err != nil {
		t.Fatalf("Failed to count folders: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected rollback to discard the insert, found %d rows", count)
	}
}
