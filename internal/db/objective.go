package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Objective status values.
const (
	ObjectiveStatusActive   = "active"
	ObjectiveStatusArchived = "archived"
)

// Objective is a top-level goal. Progress and Risk are derived.
type Objective struct {
	ID        string
	UserID    string
	OrgID     string
	CycleID   string
	Title     string
	Type      string
	Horizon   string
	Status    string
	Progress  float64
	Risk      float64
	CreatedAt time.Time
}

const objectiveColumns = `id, user_id, org_id, cycle_id, title, type, horizon, status, progress, risk_score, created_at`

// CreateObjective inserts an objective. An empty ID is assigned a new UUID.
func (g *GoalDB) CreateObjective(ctx context.Context, o *Objective) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = ObjectiveStatusActive
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	_, err := g.exec(ctx, `
		INSERT INTO objectives (id, user_id, org_id, cycle_id, title, type, horizon, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.UserID, nullable(o.OrgID), nullable(o.CycleID), o.Title, o.Type, o.Horizon, o.Status,
		FormatTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("create objective: %w", err)
	}
	return nil
}

// GetObjective retrieves an objective by ID. Returns nil, nil if not found.
func (g *GoalDB) GetObjective(ctx context.Context, id string) (*Objective, error) {
	row := g.queryRow(ctx, `SELECT `+objectiveColumns+` FROM objectives WHERE id = ?`, id)

	o, err := scanObjective(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get objective %s: %w", id, err)
	}
	return o, nil
}

// ListActiveObjectives returns the user's active objectives, riskiest first.
// A non-empty cycleID restricts the list to that cycle.
func (g *GoalDB) ListActiveObjectives(ctx context.Context, userID, cycleID string) ([]*Objective, error) {
	query := `SELECT ` + objectiveColumns + ` FROM objectives WHERE user_id = ? AND status = ?`
	args := []any{userID, ObjectiveStatusActive}
	if cycleID != "" {
		query += ` AND cycle_id = ?`
		args = append(args, cycleID)
	}
	query += ` ORDER BY risk_score DESC, id`

	rows, err := g.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var objectives []*Objective
	for rows.Next() {
		o, err := scanObjective(rows)
		if err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		objectives = append(objectives, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objectives: %w", err)
	}
	return objectives, nil
}

// ListActiveObjectiveIDs returns active objectives the user owns or shares
// through an organization.
func (g *GoalDB) ListActiveObjectiveIDs(ctx context.Context, userID string) ([]string, error) {
	return g.queryIDs(ctx, "active objectives", `
		SELECT id FROM objectives
		WHERE status = ? AND (user_id = ? OR id IN (`+orgObjectiveIDs+`))
		ORDER BY id
	`, ObjectiveStatusActive, userID, userID)
}

// SetObjectiveStatus changes an objective's status.
func (g *GoalDB) SetObjectiveStatus(ctx context.Context, id, status string) error {
	if _, err := g.exec(ctx, `UPDATE objectives SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set objective status %s: %w", id, err)
	}
	return nil
}

// UpdateObjectiveProgress writes the derived progress.
func (g *GoalDB) UpdateObjectiveProgress(ctx context.Context, id string, progress float64) error {
	if _, err := g.exec(ctx, `UPDATE objectives SET progress = ? WHERE id = ?`, Round4(Clamp01(progress)), id); err != nil {
		return fmt.Errorf("update objective progress %s: %w", id, err)
	}
	return nil
}

// UpdateObjectiveRisk writes the derived risk.
func (g *GoalDB) UpdateObjectiveRisk(ctx context.Context, id string, risk float64) error {
	if _, err := g.exec(ctx, `UPDATE objectives SET risk_score = ? WHERE id = ?`, Round4(Clamp01(risk)), id); err != nil {
		return fmt.Errorf("update objective risk %s: %w", id, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanObjective(row rowScanner) (*Objective, error) {
	var o Objective
	var orgID, cycleID, created sql.NullString
	var progress, risk sql.NullFloat64
	if err := row.Scan(&o.ID, &o.UserID, &orgID, &cycleID, &o.Title, &o.Type, &o.Horizon, &o.Status,
		&progress, &risk, &created); err != nil {
		return nil, err
	}
	o.OrgID = orgID.String
	o.CycleID = cycleID.String
	o.Progress = unit(progress)
	o.Risk = unit(risk)
	o.CreatedAt = timeOrZero(created)
	return &o, nil
}
