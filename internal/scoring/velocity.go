package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/okr/internal/db"
)

const (
	week = 7 * 24 * time.Hour

	// minWeeksElapsed keeps fresh key results from dividing by ~0.
	minWeeksElapsed = 0.1
)

// Velocity bands. Banding is a read-side view and is never stored.
const (
	BandSlow    = "slow"
	BandOnTrack = "on-track"
	BandFast    = "fast"
)

// Velocity computes key result progress per elapsed week.
type Velocity struct {
	store  db.Store
	now    Clock
	logger *slog.Logger
}

// ComputeKR recomputes and persists a key result's velocity. The window
// starts at the governing cycle's start, or the key result's creation when
// there is no cycle. A missing key result is a no-op returning 0.
func (v *Velocity) ComputeKR(ctx context.Context, krID string) (float64, error) {
	var velocity float64
	err := inStep(ctx, v.store, "key result", krID, "velocity", func(tx db.Store) error {
		kr, err := tx.GetKeyResult(ctx, krID)
		if err != nil || kr == nil {
			return err
		}

		start := kr.CreatedAt
		if cycle := governingCycle(ctx, tx, kr, v.logger); cycle != nil {
			start = cycle.StartDate
		}
		velocity = db.Round4(KRVelocity(kr.Progress, start, v.now()))
		return tx.UpdateKeyResultVelocity(ctx, krID, velocity)
	})
	if err != nil {
		return 0, err
	}
	return velocity, nil
}

// KRVelocity is progress / max(0.1, weeks since start). It is not clamped.
func KRVelocity(progress float64, start, now time.Time) float64 {
	weeks := float64(now.Sub(start)) / float64(week)
	if weeks < minWeeksElapsed {
		weeks = minWeeksElapsed
	}
	return db.Clamp01(progress) / weeks
}

// ClassifyVelocity maps a velocity to its band.
func ClassifyVelocity(v float64) string {
	switch {
	case v < 0.05:
		return BandSlow
	case v < 0.15:
		return BandOnTrack
	default:
		return BandFast
	}
}
