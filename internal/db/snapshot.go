package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a persisted, append-only projection of a user's goal state.
// An empty CycleID is the global (cycle-less) scope.
type Snapshot struct {
	ID        string
	UserID    string
	CycleID   string
	Payload   []byte
	CreatedAt time.Time
}

// InsertSnapshot appends a snapshot row. Prior rows are never touched.
func (g *GoalDB) InsertSnapshot(ctx context.Context, s *Snapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	_, err := g.exec(ctx, `
		INSERT INTO snapshots (id, user_id, cycle_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, s.UserID, nullable(s.CycleID), string(s.Payload), FormatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for exactly the given scope.
// Returns nil, nil if none exists.
func (g *GoalDB) LatestSnapshot(ctx context.Context, userID, cycleID string) (*Snapshot, error) {
	query := `SELECT id, user_id, cycle_id, payload, created_at FROM snapshots WHERE user_id = ?`
	args := []any{userID}
	if cycleID != "" {
		query += ` AND cycle_id = ?`
		args = append(args, cycleID)
	} else {
		query += ` AND cycle_id IS NULL`
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT 1`

	var s Snapshot
	var cycle sql.NullString
	var payload, created string
	if err := g.queryRow(ctx, query, args...).Scan(&s.ID, &s.UserID, &cycle, &payload, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest snapshot %s: %w", userID, err)
	}
	s.CycleID = cycle.String
	s.Payload = []byte(payload)
	if ts, ok := parseTime(created); ok {
		s.CreatedAt = ts
	}
	return &s, nil
}

// CountSnapshots returns how many snapshots exist for a scope.
func (g *GoalDB) CountSnapshots(ctx context.Context, userID, cycleID string) (int, error) {
	query := `SELECT COUNT(*) FROM snapshots WHERE user_id = ?`
	args := []any{userID}
	if cycleID != "" {
		query += ` AND cycle_id = ?`
		args = append(args, cycleID)
	} else {
		query += ` AND cycle_id IS NULL`
	}

	var n int
	if err := g.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots %s: %w", userID, err)
	}
	return n, nil
}
