package scoring

import (
	"context"

	"github.com/randalmurphal/okr/internal/db"
)

// Progress computes key result and objective progress.
type Progress struct {
	store db.Store
}

// ComputeKR recomputes and persists a key result's progress. A key result
// with children aggregates their stored progress; a leaf reads its own
// type-specific data. A missing key result is a no-op returning 0.
func (p *Progress) ComputeKR(ctx context.Context, krID string) (float64, error) {
	var progress float64
	err := inStep(ctx, p.store, "key result", krID, "progress", func(tx db.Store) error {
		kr, err := tx.GetKeyResult(ctx, krID)
		if err != nil || kr == nil {
			return err
		}

		children, err := tx.ListChildKeyResults(ctx, krID)
		if err != nil {
			return err
		}

		if len(children) > 0 {
			progress = WeightedProgress(children)
		} else {
			switch kr.Type {
			case db.KRTypeMetric:
				progress = MetricProgress(kr.Target, kr.Current)
			case db.KRTypeBoolean:
				progress = BooleanProgress(kr.Current)
			case db.KRTypeMilestone:
				outcomes, err := tx.ListLinkedTaskOutcomes(ctx, krID)
				if err != nil {
					return err
				}
				progress = MilestoneProgress(outcomes)
			default:
				progress = 0
			}
		}

		progress = db.Round4(db.Clamp01(progress))
		return tx.UpdateKeyResultProgress(ctx, krID, progress)
	})
	if err != nil {
		return 0, err
	}
	return progress, nil
}

// ComputeObjective recomputes and persists an objective's progress as the
// weighted average of its root key results. No key results means 0.
func (p *Progress) ComputeObjective(ctx context.Context, objectiveID string) (float64, error) {
	var progress float64
	err := inStep(ctx, p.store, "objective", objectiveID, "progress", func(tx db.Store) error {
		o, err := tx.GetObjective(ctx, objectiveID)
		if err != nil || o == nil {
			return err
		}

		roots, err := tx.ListRootKeyResults(ctx, objectiveID)
		if err != nil {
			return err
		}
		progress = db.Round4(db.Clamp01(WeightedProgress(roots)))
		return tx.UpdateObjectiveProgress(ctx, objectiveID, progress)
	})
	if err != nil {
		return 0, err
	}
	return progress, nil
}

// WeightedProgress is Σ(progress·weight)/Σ(weight), or 0 when the weights sum to 0.
func WeightedProgress(krs []*db.KeyResult) float64 {
	var sum, total float64
	for _, kr := range krs {
		w := kr.Weight()
		sum += kr.Progress * w
		total += w
	}
	if total <= 0 {
		return 0
	}
	return db.Clamp01(sum / total)
}

// MetricProgress is current/target clamped to [0,1]. A missing, zero or
// non-numeric target, or a non-numeric current, yields 0.
func MetricProgress(target, current *string) float64 {
	t := db.ParseNumeric(target)
	c := db.ParseNumeric(current)
	if !t.Valid || !c.Valid || t.Value == 0 {
		return 0
	}
	return db.Clamp01(c.Value / t.Value)
}

// BooleanProgress is 1 when current reads as true, else 0.
func BooleanProgress(current *string) float64 {
	if db.ParseBool(current) {
		return 1
	}
	return 0
}

// MilestoneProgress sums outcome scores of done tasks (1 when unscored)
// over the number of linked tasks.
func MilestoneProgress(outcomes []db.TaskOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var done float64
	for _, o := range outcomes {
		if o.Status != db.TaskStatusDone {
			continue
		}
		if o.OutcomeScore != nil {
			done += db.Clamp01(*o.OutcomeScore)
		} else {
			done++
		}
	}
	return db.Clamp01(done / float64(len(outcomes)))
}
