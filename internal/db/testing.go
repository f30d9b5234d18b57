// Package db provides test utilities for database operations.
//
// Tests that need a store should use NewTestGoalDB so every test gets an
// isolated, migrated in-memory database that is closed on cleanup.
package db

import (
	"context"
	"testing"
)

// NewTestGoalDB creates an in-memory goal database for testing.
// The database is automatically closed when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    gdb := db.NewTestGoalDB(t)
//	    // use gdb...
//	}
func NewTestGoalDB(t testing.TB) *GoalDB {
	t.Helper()

	gdb, err := OpenGoalsInMemory(context.Background())
	if err != nil {
		t.Fatalf("create test goal db: %v", err)
	}

	t.Cleanup(func() {
		_ = gdb.Close()
	})

	return gdb
}
