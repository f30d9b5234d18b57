package driver

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver, registered as "pgx"
)

var postgresLedger = ledger{
	dir: "schema/postgres",
	create: `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	record: "INSERT INTO _migrations (version) VALUES ($1)",
}

// PostgresDriver serves a goal store shared by several engine processes.
type PostgresDriver struct {
	conn
}

// NewPostgres creates an unopened PostgreSQL driver.
func NewPostgres() *PostgresDriver {
	return &PostgresDriver{}
}

// Open connects to dsn and checks the server is reachable.
func (d *PostgresDriver) Open(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	d.db = db
	return nil
}

// Migrate applies schema/postgres/{set}_NNN.sql files.
func (d *PostgresDriver) Migrate(ctx context.Context, schemaFS SchemaFS, set string) error {
	return migrate(ctx, d.db, schemaFS, set, postgresLedger)
}

// Dialect returns DialectPostgres.
func (d *PostgresDriver) Dialect() Dialect {
	return DialectPostgres
}

// Rebind rewrites ? placeholders into $N form.
func (d *PostgresDriver) Rebind(query string) string {
	return rebindDollar(query)
}
