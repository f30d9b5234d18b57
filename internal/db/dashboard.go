package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TaskStats holds aggregated task counts for a user.
type TaskStats struct {
	Total    int
	Todo     int
	Doing    int
	Done     int
	Overdue  int
	Unlinked int
}

// TaskCount holds linked task totals for one key result.
type TaskCount struct {
	Total int
	Done  int
}

// TaskRef is a task ID and title.
type TaskRef struct {
	ID    string
	Title string
}

// PriorityTask is a not-done task with its linked key result's risk.
type PriorityTask struct {
	ID            string
	Title         string
	Priority      string
	PriorityScore float64
	KRID          string
	KRTitle       string
	KRRisk        float64
	Status        string
	DueDate       *time.Time
	Blocking      bool
}

// RiskFilter selects key results for ListRiskyKeyResults.
type RiskFilter struct {
	UserID      string
	Threshold   float64
	ObjectiveID string
	CycleID     string
	// IncludeClosed lifts the default scope of active objectives in active
	// cycles (or no cycle).
	IncludeClosed bool
}

// RiskyKeyResult is a key result row joined with its objective and cycle.
type RiskyKeyResult struct {
	KeyResult      *KeyResult
	ObjectiveTitle string
	CycleID        string
	CycleStatus    string
}

// GetTaskStats returns the user's task counts using SQL aggregation.
// Overdue counts not-done tasks due before now.
func (g *GoalDB) GetTaskStats(ctx context.Context, userID string, now time.Time) (*TaskStats, error) {
	row := g.queryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'todo' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'doing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN due_date IS NOT NULL AND due_date < ? AND status != 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kr_id IS NULL AND objective_id IS NULL THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE user_id = ?
	`, FormatTime(now), userID)

	var s TaskStats
	if err := row.Scan(&s.Total, &s.Todo, &s.Doing, &s.Done, &s.Overdue, &s.Unlinked); err != nil {
		return nil, fmt.Errorf("get task stats %s: %w", userID, err)
	}
	return &s, nil
}

// GetKRTaskCountsBatch returns linked task totals keyed by key result ID.
// Key results with no tasks are absent from the map.
func (g *GoalDB) GetKRTaskCountsBatch(ctx context.Context, krIDs []string) (map[string]TaskCount, error) {
	counts := make(map[string]TaskCount, len(krIDs))
	if len(krIDs) == 0 {
		return counts, nil
	}

	marks, args := placeholders(krIDs)
	rows, err := g.query(ctx, `
		SELECT kr_id, COUNT(*), COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE kr_id IN (`+marks+`)
		GROUP BY kr_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get key result task counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var c TaskCount
		if err := rows.Scan(&id, &c.Total, &c.Done); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		counts[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task counts: %w", err)
	}
	return counts, nil
}

// ListBlockingTasks returns the user's not-done tasks flagged as blocking.
func (g *GoalDB) ListBlockingTasks(ctx context.Context, userID string) ([]TaskRef, error) {
	rows, err := g.query(ctx, `
		SELECT id, title FROM tasks
		WHERE user_id = ? AND blocking = ? AND status != ?
		ORDER BY created_at, id
	`, userID, true, TaskStatusDone)
	if err != nil {
		return nil, fmt.Errorf("list blocking tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []TaskRef
	for rows.Next() {
		var r TaskRef
		if err := rows.Scan(&r.ID, &r.Title); err != nil {
			return nil, fmt.Errorf("scan blocking task: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocking tasks: %w", err)
	}
	return refs, nil
}

// ListPriorityTasks returns the user's top not-done tasks by priority score.
func (g *GoalDB) ListPriorityTasks(ctx context.Context, userID string, limit int) ([]PriorityTask, error) {
	rows, err := g.query(ctx, `
		SELECT t.id, t.title, t.priority, t.priority_score, t.kr_id, COALESCE(k.title, ''),
			COALESCE(k.risk_score, 0), t.status, t.due_date, t.blocking
		FROM tasks t
		LEFT JOIN key_results k ON t.kr_id = k.id
		WHERE t.user_id = ? AND t.status != ?
		ORDER BY t.priority_score DESC, t.id
		LIMIT ?
	`, userID, TaskStatusDone, limit)
	if err != nil {
		return nil, fmt.Errorf("list priority tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []PriorityTask
	for rows.Next() {
		var p PriorityTask
		var krID, due sql.NullString
		var score, krRisk sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Title, &p.Priority, &score, &krID, &p.KRTitle, &krRisk,
			&p.Status, &due, &p.Blocking); err != nil {
			return nil, fmt.Errorf("scan priority task: %w", err)
		}
		p.PriorityScore = unit(score)
		p.KRID = krID.String
		p.KRRisk = unit(krRisk)
		p.DueDate = timePtr(due)
		tasks = append(tasks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate priority tasks: %w", err)
	}
	return tasks, nil
}

// ListRiskyKeyResults returns the user's key results with risk at or above
// the threshold, riskiest first.
func (g *GoalDB) ListRiskyKeyResults(ctx context.Context, f RiskFilter) ([]RiskyKeyResult, error) {
	query := `
		SELECT k.id, k.user_id, k.objective_id, k.parent_kr_id, k.root_kr_id, k.level, k.importance_weight,
			k.type, k.title, k.target, k.current, k.progress, k.risk_score, k.velocity, k.created_at,
			o.title, o.cycle_id, c.status
		FROM key_results k
		JOIN objectives o ON k.objective_id = o.id
		LEFT JOIN cycles c ON o.cycle_id = c.id
		WHERE k.user_id = ? AND k.risk_score >= ?`
	args := []any{f.UserID, f.Threshold}

	if !f.IncludeClosed {
		query += ` AND o.status = ? AND (o.cycle_id IS NULL OR c.status = ?)`
		args = append(args, ObjectiveStatusActive, CycleStatusActive)
	}
	if f.ObjectiveID != "" {
		query += ` AND o.id = ?`
		args = append(args, f.ObjectiveID)
	}
	if f.CycleID != "" {
		query += ` AND o.cycle_id = ?`
		args = append(args, f.CycleID)
	}
	query += ` ORDER BY k.risk_score DESC, k.id`

	rows, err := g.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list risky key results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RiskyKeyResult
	for rows.Next() {
		var r RiskyKeyResult
		var cycleID, cycleStatus sql.NullString
		kr, err := scanKeyResult(extraColumns{rows, []any{&r.ObjectiveTitle, &cycleID, &cycleStatus}})
		if err != nil {
			return nil, fmt.Errorf("scan risky key result: %w", err)
		}
		r.KeyResult = kr
		r.CycleID = cycleID.String
		r.CycleStatus = cycleStatus.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risky key results: %w", err)
	}
	return out, nil
}

// extraColumns appends destinations for columns selected after an entity's own.
type extraColumns struct {
	row   rowScanner
	extra []any
}

func (e extraColumns) Scan(dest ...any) error {
	return e.row.Scan(append(dest, e.extra...)...)
}
