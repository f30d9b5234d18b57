// Package enrich scores how well a task's progress fields describe its
// state. The score is advisory: failures are logged and never block a
// cascade.
package enrich

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/randalmurphal/okr/internal/db"
)

// Field weights of the heuristic.
const (
	percentWeight   = 0.6
	noteBonus       = 0.15
	nextActionBonus = 0.2
	blockedPenalty  = 0.15
	dodBonus        = 0.05

	minNoteLen       = 10
	minNextActionLen = 5
	minBlockedLen    = 5
)

// Store is what the scorer reads and writes.
type Store interface {
	GetTask(ctx context.Context, id string) (*db.Task, error)
	UpdateTaskProgressScore(ctx context.Context, id string, score float64) error
}

// Result is the outcome of one evaluation. Available is false when no
// score was produced.
type Result struct {
	Score     float64
	Available bool
}

// Scorer evaluates and persists task progress scores.
type Scorer struct {
	store  Store
	logger *slog.Logger
}

// NewScorer creates a scorer over store.
func NewScorer(store Store, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{store: store, logger: logger}
}

// Evaluate scores the task and stores the result in its progress_score.
// A missing task, a read failure or a write failure yields an unavailable
// result; errors are logged, not returned.
func (s *Scorer) Evaluate(ctx context.Context, taskID string) Result {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		s.logger.Warn("progress score read failed", "task_id", taskID, "error", err)
		return Result{}
	}
	if task == nil {
		return Result{}
	}

	score := Score(task)
	if err := s.store.UpdateTaskProgressScore(ctx, taskID, score); err != nil {
		s.logger.Warn("progress score write failed", "task_id", taskID, "error", err)
		return Result{}
	}
	return Result{Score: score, Available: true}
}

// Score is the heuristic progress score of a task, in [0,1] with two
// decimals. Done tasks score 1.
func Score(t *db.Task) float64 {
	if t.Status == db.TaskStatusDone {
		return 1
	}

	var score float64
	if t.ProgressPercent != nil && !math.IsNaN(*t.ProgressPercent) && !math.IsInf(*t.ProgressPercent, 0) {
		score += db.Clamp01(*t.ProgressPercent/100) * percentWeight
	}
	if textLen(t.ProgressNote) >= minNoteLen {
		score += noteBonus
	}
	if textLen(t.NextAction) >= minNextActionLen {
		score += nextActionBonus
	}
	if textLen(t.BlockedReason) >= minBlockedLen {
		score -= blockedPenalty
	}
	if textLen(t.DoD) > 0 && (textLen(t.Outcome) > 0 || textLen(t.ProgressNote) > 0) {
		score += dodBonus
	}

	return math.Round(db.Clamp01(score)*100) / 100
}

func textLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
