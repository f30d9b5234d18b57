package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task status values.
const (
	TaskStatusTodo  = "todo"
	TaskStatusDoing = "doing"
	TaskStatusDone  = "done"
)

// Task priority tiers.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Task is a unit of work, optionally linked to an objective or key result.
// PriorityScore, AlignmentDepth and ProgressScore are derived.
type Task struct {
	ID             string
	UserID         string
	AssigneeID     string
	ObjectiveID    string
	KRID           string
	InitiativeID   string
	Title          string
	Priority       string
	DueDate        *time.Time
	Blocking       bool
	Status         string
	OutcomeScore   *float64
	PriorityScore  float64
	AlignmentDepth int

	// Self-reported progress, read by the enrichment scorer.
	ProgressPercent *float64
	ProgressNote    string
	NextAction      string
	BlockedReason   string
	DoD             string
	Outcome         string
	ProgressScore   *float64

	CreatedAt time.Time
}

const taskColumns = `id, user_id, assignee_id, objective_id, kr_id, initiative_id, title, priority, due_date,
	blocking, status, outcome_score, priority_score, alignment_depth, progress_percent, progress_note,
	next_action, blocked_reason, dod, outcome, progress_score, created_at`

// CreateTask inserts a task. An empty ID is assigned a new UUID.
func (g *GoalDB) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = TaskStatusTodo
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := g.exec(ctx, `
		INSERT INTO tasks (id, user_id, assignee_id, objective_id, kr_id, initiative_id, title, priority,
			due_date, blocking, status, outcome_score, progress_percent, progress_note, next_action,
			blocked_reason, dod, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, nullable(t.AssigneeID), nullable(t.ObjectiveID), nullable(t.KRID), nullable(t.InitiativeID),
		t.Title, t.Priority, nullableTime(t.DueDate), t.Blocking, t.Status, nullableFloat(t.OutcomeScore),
		nullableFloat(t.ProgressPercent), nullable(t.ProgressNote), nullable(t.NextAction),
		nullable(t.BlockedReason), nullable(t.DoD), nullable(t.Outcome), FormatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil, nil if not found.
func (g *GoalDB) GetTask(ctx context.Context, id string) (*Task, error) {
	row := g.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListRecomputeTaskIDs returns tasks the user owns, is assigned, or that sit
// under an objective shared with the user through an organization.
func (g *GoalDB) ListRecomputeTaskIDs(ctx context.Context, userID string) ([]string, error) {
	return g.queryIDs(ctx, "recompute tasks", `
		SELECT id FROM tasks
		WHERE user_id = ? OR assignee_id = ? OR objective_id IN (`+orgObjectiveIDs+`)
		ORDER BY id
	`, userID, userID, userID)
}

// SetTaskStatus changes a task's status and, when non-nil, its outcome score.
func (g *GoalDB) SetTaskStatus(ctx context.Context, id, status string, outcomeScore *float64) error {
	_, err := g.exec(ctx, `UPDATE tasks SET status = ?, outcome_score = ? WHERE id = ?`,
		status, nullableFloat(outcomeScore), id)
	if err != nil {
		return fmt.Errorf("set task status %s: %w", id, err)
	}
	return nil
}

// SetTaskDueDate changes a task's due date; nil clears it.
func (g *GoalDB) SetTaskDueDate(ctx context.Context, id string, due *time.Time) error {
	if _, err := g.exec(ctx, `UPDATE tasks SET due_date = ? WHERE id = ?`, nullableTime(due), id); err != nil {
		return fmt.Errorf("set task due date %s: %w", id, err)
	}
	return nil
}

// UpdateTaskPriorityScore writes the derived priority score.
func (g *GoalDB) UpdateTaskPriorityScore(ctx context.Context, id string, score float64) error {
	if _, err := g.exec(ctx, `UPDATE tasks SET priority_score = ? WHERE id = ?`, Round4(Clamp01(score)), id); err != nil {
		return fmt.Errorf("update task priority score %s: %w", id, err)
	}
	return nil
}

// UpdateTaskAlignmentDepth writes the derived alignment depth.
func (g *GoalDB) UpdateTaskAlignmentDepth(ctx context.Context, id string, depth int) error {
	if depth < 0 {
		depth = 0
	}
	if _, err := g.exec(ctx, `UPDATE tasks SET alignment_depth = ? WHERE id = ?`, depth, id); err != nil {
		return fmt.Errorf("update task alignment depth %s: %w", id, err)
	}
	return nil
}

// UpdateTaskProgressScore writes the heuristic progress score.
func (g *GoalDB) UpdateTaskProgressScore(ctx context.Context, id string, score float64) error {
	if _, err := g.exec(ctx, `UPDATE tasks SET progress_score = ? WHERE id = ?`, Clamp01(score), id); err != nil {
		return fmt.Errorf("update task progress score %s: %w", id, err)
	}
	return nil
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var assignee, objectiveID, krID, initiativeID, due, outcomeScore, percent sql.NullString
	var note, next, blocked, dod, outcome, created sql.NullString
	var priorityScore, progressScore sql.NullFloat64
	if err := row.Scan(&t.ID, &t.UserID, &assignee, &objectiveID, &krID, &initiativeID, &t.Title, &t.Priority,
		&due, &t.Blocking, &t.Status, &outcomeScore, &priorityScore, &t.AlignmentDepth, &percent, &note,
		&next, &blocked, &dod, &outcome, &progressScore, &created); err != nil {
		return nil, err
	}
	t.AssigneeID = assignee.String
	t.ObjectiveID = objectiveID.String
	t.KRID = krID.String
	t.InitiativeID = initiativeID.String
	t.DueDate = timePtr(due)
	if n := ParseNumeric(stringPtr(outcomeScore)); n.Valid {
		v := Clamp01(n.Value)
		t.OutcomeScore = &v
	}
	t.PriorityScore = unit(priorityScore)
	if n := ParseNumeric(stringPtr(percent)); n.Valid {
		v := n.Value
		t.ProgressPercent = &v
	}
	t.ProgressNote = note.String
	t.NextAction = next.String
	t.BlockedReason = blocked.String
	t.DoD = dod.String
	t.Outcome = outcome.String
	if progressScore.Valid {
		v := Clamp01(progressScore.Float64)
		t.ProgressScore = &v
	}
	t.CreatedAt = timeOrZero(created)
	return &t, nil
}
