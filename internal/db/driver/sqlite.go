package driver

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

var sqliteLedger = ledger{
	dir: "schema",
	create: `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT DEFAULT (datetime('now'))
	)`,
	record: "INSERT INTO _migrations (version) VALUES (?)",
}

// SQLiteDriver is the default goal store: a single file, or memory for tests.
type SQLiteDriver struct {
	conn
}

// NewSQLite creates an unopened SQLite driver.
func NewSQLite() *SQLiteDriver {
	return &SQLiteDriver{}
}

// Open opens the database file at dsn, or a private in-memory database
// for MemoryDSN.
func (d *SQLiteDriver) Open(dsn string) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	// Every pooled connection to :memory: is a separate database.
	if dsn == MemoryDSN {
		db.SetMaxOpenConns(1)
	}

	// Background cascades write from several workers; WAL plus a busy
	// timeout keeps them from failing on SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return fmt.Errorf("set pragmas: %w", err)
	}

	d.db = db
	return nil
}

// Migrate applies schema/{set}_NNN.sql files.
func (d *SQLiteDriver) Migrate(ctx context.Context, schemaFS SchemaFS, set string) error {
	return migrate(ctx, d.db, schemaFS, set, sqliteLedger)
}

// Dialect returns DialectSQLite.
func (d *SQLiteDriver) Dialect() Dialect {
	return DialectSQLite
}

// Rebind is a no-op: SQLite understands ? natively.
func (d *SQLiteDriver) Rebind(query string) string {
	return query
}
