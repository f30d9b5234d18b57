package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/randalmurphal/okr/internal/db/driver"
)

// SchemaGoals is the migration set for the goal graph.
const SchemaGoals = "goals"

// queryer is satisfied by both driver.Driver and driver.Tx.
type queryer interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
}

// GoalDB provides operations on the goal graph database.
// A GoalDB handed to an InTx callback is bound to that transaction.
type GoalDB struct {
	db   *DB
	q    queryer
	inTx bool
}

var _ Store = (*GoalDB)(nil)

// OpenGoals opens (and migrates) a SQLite goal database at path.
func OpenGoals(ctx context.Context, path string) (*GoalDB, error) {
	return OpenGoalsWithDialect(ctx, path, driver.DialectSQLite)
}

// OpenGoalsWithDialect opens (and migrates) a goal database with a specific dialect.
func OpenGoalsWithDialect(ctx context.Context, dsn string, dialect driver.Dialect) (*GoalDB, error) {
	d, err := OpenWithDialect(dsn, dialect)
	if err != nil {
		return nil, err
	}
	return newGoalDB(ctx, d)
}

// OpenGoalsInMemory opens a migrated in-memory goal database.
func OpenGoalsInMemory(ctx context.Context) (*GoalDB, error) {
	d, err := OpenInMemory()
	if err != nil {
		return nil, err
	}
	return newGoalDB(ctx, d)
}

func newGoalDB(ctx context.Context, d *DB) (*GoalDB, error) {
	if err := d.Migrate(ctx, SchemaGoals); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate goals db: %w", err)
	}
	return &GoalDB{db: d, q: d.driver}, nil
}

// Close closes the underlying database.
func (g *GoalDB) Close() error {
	return g.db.Close()
}

// DB returns the wrapped database.
func (g *GoalDB) DB() *DB {
	return g.db
}

// InTx runs fn inside a single transaction. Nested calls reuse the outer one.
func (g *GoalDB) InTx(ctx context.Context, fn func(Store) error) (err error) {
	if g.inTx {
		return fn(g)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&GoalDB{db: g.db, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (g *GoalDB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return g.q.Exec(ctx, g.db.driver.Rebind(query), args...)
}

func (g *GoalDB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return g.q.Query(ctx, g.db.driver.Rebind(query), args...)
}

func (g *GoalDB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return g.q.QueryRow(ctx, g.db.driver.Rebind(query), args...)
}

// queryIDs runs a query whose single column is an id.
func (g *GoalDB) queryIDs(ctx context.Context, what, query string, args ...any) ([]string, error) {
	rows, err := g.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return ids, nil
}

// placeholders returns "?,?,..." and the matching args for an IN clause.
func placeholders(ids []string) (string, []any) {
	marks := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			marks = append(marks, ',')
		}
		marks = append(marks, '?')
		args[i] = id
	}
	return string(marks), args
}
