package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// SQLiteRepository stores the journal in a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

var _ journal.Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (creating if needed) the database at dbPath.
// busyTimeout bounds how long a writer waits for another process's write
// transaction. Use ":memory:" for an in-memory database.
func NewSQLiteRepository(dbPath string, busyTimeout time.Duration) (*SQLiteRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: every statement, including the explicit BEGIN
	// IMMEDIATE in Update, runs on the connection the pragmas were set on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout <= 0 {
		busyTimeout = DefaultLockTimeout
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) View(ctx context.Context, fn func(tx journal.Transaction) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	set, _, err := loadEntries(ctx, tx)
	if err != nil {
		return err
	}
	return fn(set)
}

// Update runs fn inside a BEGIN IMMEDIATE transaction, which takes the
// database's write lock up front so that concurrent writers in other
// processes queue behind busy_timeout instead of failing at COMMIT.
func (r *SQLiteRepository) Update(ctx context.Context, fn func(tx journal.Transaction) (bool, error)) (err error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin write transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil && err == nil {
				err = fmt.Errorf("failed to roll back: %w", rbErr)
			}
		}
	}()

	set, usageCounts, err := loadEntries(ctx, conn)
	if err != nil {
		return err
	}

	changed, err := fn(set)
	if err != nil || !changed {
		return err
	}

	for _, e := range set.Touched() {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("failed to save %s: %w", e.Package, err)
		}
		if err := saveEntry(ctx, conn, e, usageCounts[e.Package]); err != nil {
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit journal: %w", err)
	}
	committed = true
	return nil
}
