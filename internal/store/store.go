package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Store serializes all access to the single SQLite library file. Reads may
// run concurrently; all mutation goes through Write, which holds an
// exclusive lock so multi-statement changes are atomic.
type Store struct {
	conn    *sql.DB
	logger  *logrus.Logger
	writeMu sync.Mutex
}

// Open opens (or creates) the library database at the provided path, applies
// performance pragmas and runs all pending migrations. A migration failure
// is fatal for the caller: the engine must not run against a partially
// migrated schema.
func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas ride on the DSN so every pooled connection gets them;
	// foreign_keys in particular is per-connection and the cascade rules
	// depend on it.
	dsn := dbPath + "?cache=shared&mode=rwc&_busy_timeout=5000" +
		"&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	s := &Store{conn: conn, logger: logger}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Library database initialized")
	return s, nil
}

// Read runs fn inside a read-only transaction. Multiple readers may run
// concurrently.
func (s *Store) Read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(tx)
}

// Write runs fn inside an exclusive write transaction. Writers queue behind
// one another; the transaction is committed only if fn returns nil,
// otherwise it is rolled back in full.
func (s *Store) Write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin write transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.WithError(rbErr).Error("Failed to roll back write transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit write transaction: %w", err)
	}
	return nil
}

// Logger exposes the store's logger for components that share it.
func (s *Store) Logger() *logrus.Logger {
	return s.logger
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
