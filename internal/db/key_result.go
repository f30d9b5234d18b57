package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	okrerrors "github.com/randalmurphal/okr/internal/errors"
)

// Key result types.
const (
	KRTypeMetric    = "metric"
	KRTypeMilestone = "milestone"
	KRTypeBoolean   = "boolean"
)

// maxAncestorWalk bounds the parent walk done when a key result is created.
const maxAncestorWalk = 1024

var (
	// ErrParentNotFound is returned when a key result names a missing parent.
	ErrParentNotFound = errors.New("parent key result not found")
	// ErrHierarchyCycle is returned when a parent link would close a loop.
	ErrHierarchyCycle = errors.New("key result hierarchy would contain a cycle")
)

// KeyResult is a measurable sub-goal. Target and Current are stored raw and
// interpreted by type. Progress, Risk and Velocity are derived.
type KeyResult struct {
	ID          string
	UserID      string
	ObjectiveID string
	ParentKRID  string
	RootKRID    string
	Level       int
	// ImportanceWeight is nil when unset or not a finite number.
	ImportanceWeight *float64
	Type             string
	Title            string
	Target           *string
	Current          *string
	Progress         float64
	Risk             float64
	Velocity         *float64
	CreatedAt        time.Time
}

// Weight is the aggregation weight: 1 when unset, otherwise clamped to [0,1].
func (k *KeyResult) Weight() float64 {
	if k.ImportanceWeight == nil {
		return 1
	}
	return Clamp01(*k.ImportanceWeight)
}

// TaskOutcome is the slice of a linked task milestone progress needs.
type TaskOutcome struct {
	Status       string
	OutcomeScore *float64
}

const keyResultColumns = `id, user_id, objective_id, parent_kr_id, root_kr_id, level, importance_weight,
	type, title, target, current, progress, risk_score, velocity, created_at`

// CreateKeyResult inserts a key result, deriving Level and RootKRID from the
// parent. It rejects a missing parent and a parent chain that loops.
func (g *GoalDB) CreateKeyResult(ctx context.Context, kr *KeyResult) error {
	if kr.ID == "" {
		kr.ID = uuid.NewString()
	}
	if kr.Type == "" {
		kr.Type = KRTypeMetric
	}
	if kr.CreatedAt.IsZero() {
		kr.CreatedAt = time.Now()
	}

	kr.Level = 0
	kr.RootKRID = ""
	if kr.ParentKRID != "" {
		parent, err := g.GetKeyResult(ctx, kr.ParentKRID)
		if err != nil {
			return fmt.Errorf("create key result: %w", err)
		}
		if parent == nil {
			return fmt.Errorf("create key result %s: %w", kr.ParentKRID, ErrParentNotFound)
		}
		if err := g.checkAncestors(ctx, kr.ID, parent); err != nil {
			if errors.Is(err, ErrHierarchyCycle) {
				return okrerrors.ErrHierarchyCycle(kr.ID, err)
			}
			return fmt.Errorf("create key result %s: %w", kr.ID, err)
		}
		kr.Level = parent.Level + 1
		kr.RootKRID = parent.RootKRID
		if kr.RootKRID == "" {
			kr.RootKRID = parent.ID
		}
		if kr.ObjectiveID == "" {
			kr.ObjectiveID = parent.ObjectiveID
		}
	}

	_, err := g.exec(ctx, `
		INSERT INTO key_results (id, user_id, objective_id, parent_kr_id, root_kr_id, level,
			importance_weight, type, title, target, current, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, kr.ID, kr.UserID, nullable(kr.ObjectiveID), nullable(kr.ParentKRID), nullable(kr.RootKRID), kr.Level,
		nullableFloat(kr.ImportanceWeight), kr.Type, kr.Title, kr.Target, kr.Current, FormatTime(kr.CreatedAt))
	if err != nil {
		return fmt.Errorf("create key result: %w", err)
	}
	return nil
}

// checkAncestors walks up from parent and fails if id is already on the chain.
func (g *GoalDB) checkAncestors(ctx context.Context, id string, parent *KeyResult) error {
	seen := map[string]bool{}
	for cur := parent; cur != nil; {
		if cur.ID == id || seen[cur.ID] {
			return ErrHierarchyCycle
		}
		seen[cur.ID] = true
		if cur.ParentKRID == "" {
			return nil
		}
		if len(seen) > maxAncestorWalk {
			return ErrHierarchyCycle
		}
		next, err := g.GetKeyResult(ctx, cur.ParentKRID)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// GetKeyResult retrieves a key result by ID. Returns nil, nil if not found.
func (g *GoalDB) GetKeyResult(ctx context.Context, id string) (*KeyResult, error) {
	row := g.queryRow(ctx, `SELECT `+keyResultColumns+` FROM key_results WHERE id = ?`, id)

	kr, err := scanKeyResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get key result %s: %w", id, err)
	}
	return kr, nil
}

// ListChildKeyResults returns the direct children of a key result.
func (g *GoalDB) ListChildKeyResults(ctx context.Context, parentID string) ([]*KeyResult, error) {
	return g.listKeyResults(ctx, "child key results",
		`SELECT `+keyResultColumns+` FROM key_results WHERE parent_kr_id = ? ORDER BY id`, parentID)
}

// ListRootKeyResults returns an objective's key results that have no parent.
func (g *GoalDB) ListRootKeyResults(ctx context.Context, objectiveID string) ([]*KeyResult, error) {
	return g.listKeyResults(ctx, "root key results",
		`SELECT `+keyResultColumns+` FROM key_results WHERE objective_id = ? AND parent_kr_id IS NULL ORDER BY id`,
		objectiveID)
}

// ListKeyResultsForObjectives batch-loads the user's key results under the
// given objectives, riskiest first.
func (g *GoalDB) ListKeyResultsForObjectives(ctx context.Context, userID string, objectiveIDs []string) ([]*KeyResult, error) {
	if len(objectiveIDs) == 0 {
		return nil, nil
	}
	marks, args := placeholders(objectiveIDs)
	return g.listKeyResults(ctx, "objective key results",
		`SELECT `+keyResultColumns+` FROM key_results
		WHERE user_id = ? AND objective_id IN (`+marks+`)
		ORDER BY risk_score DESC, id`,
		append([]any{userID}, args...)...)
}

// ListLeafKeyResultIDs returns key results in the user's scope that have no
// children, deepest first.
func (g *GoalDB) ListLeafKeyResultIDs(ctx context.Context, userID string) ([]string, error) {
	return g.queryIDs(ctx, "leaf key results", `
		SELECT k.id FROM key_results k
		WHERE (k.user_id = ? OR k.objective_id IN (`+orgObjectiveIDs+`))
		AND NOT EXISTS (SELECT 1 FROM key_results c WHERE c.parent_kr_id = k.id)
		ORDER BY k.level DESC, k.id
	`, userID, userID)
}

// ListLinkedTaskOutcomes returns status and outcome score of every task linked to a key result.
func (g *GoalDB) ListLinkedTaskOutcomes(ctx context.Context, krID string) ([]TaskOutcome, error) {
	rows, err := g.query(ctx, `SELECT status, outcome_score FROM tasks WHERE kr_id = ?`, krID)
	if err != nil {
		return nil, fmt.Errorf("list linked tasks %s: %w", krID, err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []TaskOutcome
	for rows.Next() {
		var out TaskOutcome
		var score sql.NullString
		if err := rows.Scan(&out.Status, &score); err != nil {
			return nil, fmt.Errorf("scan linked task: %w", err)
		}
		if n := ParseNumeric(stringPtr(score)); n.Valid {
			v := Clamp01(n.Value)
			out.OutcomeScore = &v
		}
		outcomes = append(outcomes, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked tasks: %w", err)
	}
	return outcomes, nil
}

// SetKeyResultCurrent changes a key result's current value.
func (g *GoalDB) SetKeyResultCurrent(ctx context.Context, id string, current *string) error {
	if _, err := g.exec(ctx, `UPDATE key_results SET current = ? WHERE id = ?`, current, id); err != nil {
		return fmt.Errorf("set key result current %s: %w", id, err)
	}
	return nil
}

// UpdateKeyResultProgress writes the derived progress.
func (g *GoalDB) UpdateKeyResultProgress(ctx context.Context, id string, progress float64) error {
	if _, err := g.exec(ctx, `UPDATE key_results SET progress = ? WHERE id = ?`, Round4(Clamp01(progress)), id); err != nil {
		return fmt.Errorf("update key result progress %s: %w", id, err)
	}
	return nil
}

// UpdateKeyResultRisk writes the derived risk.
func (g *GoalDB) UpdateKeyResultRisk(ctx context.Context, id string, risk float64) error {
	if _, err := g.exec(ctx, `UPDATE key_results SET risk_score = ? WHERE id = ?`, Round4(Clamp01(risk)), id); err != nil {
		return fmt.Errorf("update key result risk %s: %w", id, err)
	}
	return nil
}

// UpdateKeyResultVelocity writes the derived velocity. It is not clamped.
func (g *GoalDB) UpdateKeyResultVelocity(ctx context.Context, id string, velocity float64) error {
	if velocity < 0 {
		velocity = 0
	}
	if _, err := g.exec(ctx, `UPDATE key_results SET velocity = ? WHERE id = ?`, Round4(velocity), id); err != nil {
		return fmt.Errorf("update key result velocity %s: %w", id, err)
	}
	return nil
}

func (g *GoalDB) listKeyResults(ctx context.Context, what, query string, args ...any) ([]*KeyResult, error) {
	rows, err := g.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer func() { _ = rows.Close() }()

	var krs []*KeyResult
	for rows.Next() {
		kr, err := scanKeyResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key result: %w", err)
		}
		krs = append(krs, kr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return krs, nil
}

func scanKeyResult(row rowScanner) (*KeyResult, error) {
	var kr KeyResult
	var objectiveID, parentID, rootID, weight, target, current, created sql.NullString
	var progress, risk, velocity sql.NullFloat64
	if err := row.Scan(&kr.ID, &kr.UserID, &objectiveID, &parentID, &rootID, &kr.Level, &weight,
		&kr.Type, &kr.Title, &target, &current, &progress, &risk, &velocity, &created); err != nil {
		return nil, err
	}
	kr.ObjectiveID = objectiveID.String
	kr.ParentKRID = parentID.String
	kr.RootKRID = rootID.String
	if n := ParseNumeric(stringPtr(weight)); n.Valid {
		w := n.Value
		kr.ImportanceWeight = &w
	}
	kr.Target = stringPtr(target)
	kr.Current = stringPtr(current)
	kr.Progress = unit(progress)
	kr.Risk = unit(risk)
	kr.Velocity = floatPtr(velocity)
	kr.CreatedAt = timeOrZero(created)
	return &kr, nil
}
