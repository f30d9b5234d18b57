package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cycle status values.
const (
	CycleStatusActive = "active"
	CycleStatusClosed = "closed"
)

// Cycle is a bounded time window used for elapsed-time ratios.
type Cycle struct {
	ID        string
	UserID    string
	Name      string
	Type      string
	Status    string
	StartDate time.Time
	EndDate   time.Time
	CreatedAt time.Time
}

// CreateCycle inserts a cycle. An empty ID is assigned a new UUID.
func (g *GoalDB) CreateCycle(ctx context.Context, c *Cycle) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CycleStatusActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := g.exec(ctx, `
		INSERT INTO cycles (id, user_id, name, type, status, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Name, c.Type, c.Status,
		FormatTime(c.StartDate), FormatTime(c.EndDate), FormatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}
	return nil
}

// GetCycle retrieves a cycle by ID. Returns nil, nil if not found.
func (g *GoalDB) GetCycle(ctx context.Context, id string) (*Cycle, error) {
	row := g.queryRow(ctx, `
		SELECT id, user_id, name, type, status, start_date, end_date, created_at
		FROM cycles WHERE id = ?
	`, id)

	c, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cycle %s: %w", id, err)
	}
	return c, nil
}

// GetUserCycle retrieves a cycle only if it belongs to the user.
func (g *GoalDB) GetUserCycle(ctx context.Context, userID, id string) (*Cycle, error) {
	row := g.queryRow(ctx, `
		SELECT id, user_id, name, type, status, start_date, end_date, created_at
		FROM cycles WHERE id = ? AND user_id = ?
	`, id, userID)

	c, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cycle %s: %w", id, err)
	}
	return c, nil
}

// ListActiveCycleIDs returns the IDs of the user's active cycles.
func (g *GoalDB) ListActiveCycleIDs(ctx context.Context, userID string) ([]string, error) {
	return g.queryIDs(ctx, "active cycles", `
		SELECT id FROM cycles WHERE user_id = ? AND status = ? ORDER BY start_date, id
	`, userID, CycleStatusActive)
}

// SetCycleStatus changes a cycle's status.
func (g *GoalDB) SetCycleStatus(ctx context.Context, id, status string) error {
	if _, err := g.exec(ctx, `UPDATE cycles SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set cycle status %s: %w", id, err)
	}
	return nil
}

func scanCycle(row rowScanner) (*Cycle, error) {
	var c Cycle
	var start, end, created sql.NullString
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Status, &start, &end, &created); err != nil {
		return nil, err
	}
	c.StartDate = timeOrZero(start)
	c.EndDate = timeOrZero(end)
	c.CreatedAt = timeOrZero(created)
	return &c, nil
}
