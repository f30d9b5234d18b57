package scoring

import (
	"context"
	"time"

	"github.com/randalmurphal/okr/internal/db"
)

const day = 24 * time.Hour

var tierWeights = map[string]float64{
	db.PriorityCritical: 1.0,
	db.PriorityHigh:     0.75,
	db.PriorityMedium:   0.5,
	db.PriorityLow:      0.25,
}

// Priority computes task priority scores.
type Priority struct {
	store db.Store
	now   Clock
}

// ComputeTask recomputes and persists a task's priority score from its
// tier, its key result's risk and its deadline. A missing task is a no-op
// returning 0.
func (p *Priority) ComputeTask(ctx context.Context, taskID string) (float64, error) {
	var score float64
	err := inStep(ctx, p.store, "task", taskID, "priority_score", func(tx db.Store) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil || task == nil {
			return err
		}

		var krRisk float64
		if task.KRID != "" {
			kr, err := tx.GetKeyResult(ctx, task.KRID)
			if err != nil {
				return err
			}
			if kr != nil {
				krRisk = kr.Risk
			}
		}

		score = db.Round4(PriorityScore(task.Priority, krRisk, task.DueDate, p.now()))
		return tx.UpdateTaskPriorityScore(ctx, taskID, score)
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}

// PriorityScore adds the risk and deadline bonuses to the tier weight and
// clamps the sum to [0,1].
func PriorityScore(priority string, krRisk float64, due *time.Time, now time.Time) float64 {
	return db.Clamp01(TierWeight(priority) + RiskBonus(krRisk) + DeadlineBonus(due, now))
}

// TierWeight is the base score of a priority tier; unknown tiers weigh 0.5.
func TierWeight(priority string) float64 {
	if w, ok := tierWeights[priority]; ok {
		return w
	}
	return 0.5
}

// RiskBonus is 0.2 above 0.7 risk and 0.1 above 0.4.
func RiskBonus(risk float64) float64 {
	switch {
	case risk > 0.7:
		return 0.2
	case risk > 0.4:
		return 0.1
	default:
		return 0
	}
}

// DeadlineBonus rewards proximity of the due date. No due date adds nothing.
func DeadlineBonus(due *time.Time, now time.Time) float64 {
	if due == nil {
		return 0
	}
	until := due.Sub(now)
	switch {
	case until < 0:
		return 0.3
	case until < day:
		return 0.25
	case until < 3*day:
		return 0.15
	case until < 7*day:
		return 0.05
	default:
		return 0
	}
}
