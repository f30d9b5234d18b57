// Package db provides database persistence for the goal graph.
//
// One database holds the entity rows the engine reads (cycles, objectives,
// key results, tasks), the derived fields it writes back, and the
// append-only snapshot history.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/okr/internal/db/driver"
)

//go:embed schema
var schemaFS embed.FS

// migrations exposes the embedded schema directory as a driver.SchemaFS.
type migrations struct{}

func (migrations) ReadDir(name string) ([]driver.DirEntry, error) {
	entries, err := schemaFS.ReadDir(name)
	if err != nil {
		return nil, err
	}
	out := make([]driver.DirEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry
	}
	return out, nil
}

func (migrations) ReadFile(name string) ([]byte, error) {
	return schemaFS.ReadFile(name)
}

// DB is an open goal store connection with queries rebound for its dialect.
type DB struct {
	driver driver.Driver
	dsn    string
}

// Open opens a SQLite database at path, creating its directory.
func Open(path string) (*DB, error) {
	return OpenWithDialect(path, driver.DialectSQLite)
}

// OpenInMemory opens a private in-memory SQLite database.
func OpenInMemory() (*DB, error) {
	return OpenWithDialect(driver.MemoryDSN, driver.DialectSQLite)
}

// OpenWithDialect opens dsn with the given dialect.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*DB, error) {
	if dialect == driver.DialectSQLite && dsn != driver.MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}
	return &DB{driver: drv, dsn: dsn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.driver.Close()
}

// DSN returns the path or connection string the database was opened with.
func (d *DB) DSN() string {
	return d.dsn
}

// Migrate applies the embedded {set}_NNN.sql files not yet recorded.
func (d *DB) Migrate(ctx context.Context, set string) error {
	return d.driver.Migrate(ctx, migrations{}, set)
}

// ExecContext executes a query without returning rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(ctx, d.driver.Rebind(query), args...)
}

// QueryContext executes a query that returns rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.driver.Query(ctx, d.driver.Rebind(query), args...)
}

// QueryRowContext executes a query that returns at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.driver.QueryRow(ctx, d.driver.Rebind(query), args...)
}

// BeginTx starts a transaction.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (driver.Tx, error) {
	return d.driver.BeginTx(ctx, opts)
}
