package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/okr/internal/db"
)

// NeutralElapsedRatio is the elapsed ratio assumed when a key result has no
// usable cycle.
const NeutralElapsedRatio = 0.5

// Risk computes key result and objective risk.
type Risk struct {
	store  db.Store
	now    Clock
	logger *slog.Logger
}

// ComputeKR recomputes and persists (1 − progress) × elapsed_ratio for a key result.
// A missing key result is a no-op returning 0.
func (r *Risk) ComputeKR(ctx context.Context, krID string) (float64, error) {
	var risk float64
	err := inStep(ctx, r.store, "key result", krID, "risk", func(tx db.Store) error {
		kr, err := tx.GetKeyResult(ctx, krID)
		if err != nil || kr == nil {
			return err
		}

		risk = db.Round4(KRRisk(kr.Progress, r.elapsedRatio(ctx, tx, kr)))
		return tx.UpdateKeyResultRisk(ctx, krID, risk)
	})
	if err != nil {
		return 0, err
	}
	return risk, nil
}

// ComputeObjective recomputes and persists an objective's risk as the
// maximum risk of its root key results, 0 when it has none.
func (r *Risk) ComputeObjective(ctx context.Context, objectiveID string) (float64, error) {
	var risk float64
	err := inStep(ctx, r.store, "objective", objectiveID, "risk", func(tx db.Store) error {
		o, err := tx.GetObjective(ctx, objectiveID)
		if err != nil || o == nil {
			return err
		}

		roots, err := tx.ListRootKeyResults(ctx, objectiveID)
		if err != nil {
			return err
		}
		risk = 0
		for _, kr := range roots {
			if kr.Risk > risk {
				risk = kr.Risk
			}
		}
		return tx.UpdateObjectiveRisk(ctx, objectiveID, risk)
	})
	if err != nil {
		return 0, err
	}
	return risk, nil
}

// elapsedRatio resolves the governing cycle of kr. Anything short of a
// cycle with a positive length gives NeutralElapsedRatio.
func (r *Risk) elapsedRatio(ctx context.Context, tx db.Store, kr *db.KeyResult) float64 {
	cycle := governingCycle(ctx, tx, kr, r.logger)
	if cycle == nil {
		return NeutralElapsedRatio
	}
	ratio, ok := ElapsedRatio(cycle.StartDate, cycle.EndDate, r.now())
	if !ok {
		return NeutralElapsedRatio
	}
	return ratio
}

// KRRisk is (1 − progress) × elapsed, clamped to [0,1].
func KRRisk(progress, elapsed float64) float64 {
	return db.Clamp01((1 - db.Clamp01(progress)) * db.Clamp01(elapsed))
}

// ElapsedRatio is the fraction of [start,end] elapsed at now, clamped to
// [0,1]. ok is false when the interval is empty or inverted.
func ElapsedRatio(start, end, now time.Time) (ratio float64, ok bool) {
	total := end.Sub(start)
	if total <= 0 {
		return 0, false
	}
	return db.Clamp01(float64(now.Sub(start)) / float64(total)), true
}

// governingCycle returns the cycle of kr's objective. Lookup failures are
// logged and treated as no cycle.
func governingCycle(ctx context.Context, tx db.Store, kr *db.KeyResult, logger *slog.Logger) *db.Cycle {
	if kr.ObjectiveID == "" {
		return nil
	}
	o, err := tx.GetObjective(ctx, kr.ObjectiveID)
	if err != nil {
		logger.Warn("objective lookup failed", "kr_id", kr.ID, "objective_id", kr.ObjectiveID, "error", err)
		return nil
	}
	if o == nil || o.CycleID == "" {
		return nil
	}
	c, err := tx.GetCycle(ctx, o.CycleID)
	if err != nil {
		logger.Warn("cycle lookup failed", "kr_id", kr.ID, "cycle_id", o.CycleID, "error", err)
		return nil
	}
	return c
}
