package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.DSN() != dbPath {
		t.Errorf("DSN() = %q, want %q", db.DSN(), dbPath)
	}

	var journalMode string
	if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = db.Close()
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, SchemaGoals); err != nil {
		t.Fatalf("Migrate goals failed: %v", err)
	}

	for _, table := range []string{"cycles", "org_members", "objectives", "key_results", "tasks", "snapshots"} {
		var count int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}

	// Running again is a no-op.
	if err := db.Migrate(ctx, SchemaGoals); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestOpenGoals_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "goals.db")

	gdb, err := OpenGoals(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenGoals failed: %v", err)
	}
	if err := gdb.CreateObjective(ctx, &Objective{ID: "obj-1", UserID: "u1", Title: "Ship"}); err != nil {
		t.Fatalf("CreateObjective failed: %v", err)
	}
	_ = gdb.Close()

	gdb, err = OpenGoals(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer gdb.Close()

	o, err := gdb.GetObjective(ctx, "obj-1")
	if err != nil {
		t.Fatalf("GetObjective failed: %v", err)
	}
	if o == nil || o.Title != "Ship" {
		t.Errorf("GetObjective = %+v, want title Ship", o)
	}
}
