package snapshot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/randalmurphal/okr/internal/db"
	"github.com/randalmurphal/okr/internal/scoring"
)

// Defaults for the built projection.
const (
	DefaultTopPriorities  = 10
	DefaultRiskyThreshold = 0.5
)

// Store is the read and append surface a snapshot needs.
type Store interface {
	GetCycle(ctx context.Context, id string) (*db.Cycle, error)
	GetUserCycle(ctx context.Context, userID, id string) (*db.Cycle, error)
	ListActiveCycleIDs(ctx context.Context, userID string) ([]string, error)
	ListActiveObjectives(ctx context.Context, userID, cycleID string) ([]*db.Objective, error)
	ListKeyResultsForObjectives(ctx context.Context, userID string, objectiveIDs []string) ([]*db.KeyResult, error)
	GetKRTaskCountsBatch(ctx context.Context, krIDs []string) (map[string]db.TaskCount, error)
	GetTaskStats(ctx context.Context, userID string, now time.Time) (*db.TaskStats, error)
	ListBlockingTasks(ctx context.Context, userID string) ([]db.TaskRef, error)
	ListPriorityTasks(ctx context.Context, userID string, limit int) ([]db.PriorityTask, error)
	InsertSnapshot(ctx context.Context, s *db.Snapshot) error
	LatestSnapshot(ctx context.Context, userID, cycleID string) (*db.Snapshot, error)
}

var _ Store = (*db.GoalDB)(nil)

// Builder assembles a Snapshot from current stored state. It does not persist.
type Builder struct {
	store          Store
	now            scoring.Clock
	topPriorities  int
	riskyThreshold float64
}

// Build projects the user's goal state. A non-empty cycleID scopes the
// objectives (and their key results) to that cycle.
func (b *Builder) Build(ctx context.Context, userID, cycleID string) (*Snapshot, time.Time, error) {
	now := b.now().UTC()
	s := &Snapshot{
		TS:         FormatTime(now),
		Objectives: []Objective{},
		KeyResults: []KeyResult{},
		Risky:      []RiskyKR{},
		Blocked:    []BlockedTask{},
		Priorities: []PriorityTask{},
	}

	if cycleID != "" {
		c, err := b.store.GetUserCycle(ctx, userID, cycleID)
		if err != nil {
			return nil, now, fmt.Errorf("load cycle: %w", err)
		}
		if c != nil {
			elapsed, _ := scoring.ElapsedRatio(c.StartDate, c.EndDate, now)
			s.Cycle = &Cycle{ID: c.ID, Name: c.Name, Type: c.Type, Elapsed: db.Round4(elapsed)}
		}
	}

	objectives, err := b.store.ListActiveObjectives(ctx, userID, cycleID)
	if err != nil {
		return nil, now, fmt.Errorf("load objectives: %w", err)
	}
	objectiveIDs := make([]string, 0, len(objectives))
	cycleOf := make(map[string]string, len(objectives))
	for _, o := range objectives {
		s.Objectives = append(s.Objectives, Objective{
			ID: o.ID, T: o.Title, P: o.Progress, R: o.Risk, Type: o.Type, Horizon: o.Horizon,
		})
		objectiveIDs = append(objectiveIDs, o.ID)
		cycleOf[o.ID] = o.CycleID
	}

	if err := b.addKeyResults(ctx, s, userID, objectiveIDs, cycleOf, now); err != nil {
		return nil, now, err
	}

	stats, err := b.store.GetTaskStats(ctx, userID, now)
	if err != nil {
		return nil, now, fmt.Errorf("load task stats: %w", err)
	}
	s.Stats = Stats{
		TotalTasks:    stats.Total,
		Todo:          stats.Todo,
		Doing:         stats.Doing,
		Done:          stats.Done,
		Overdue:       stats.Overdue,
		UnlinkedTasks: stats.Unlinked,
	}

	blocked, err := b.store.ListBlockingTasks(ctx, userID)
	if err != nil {
		return nil, now, fmt.Errorf("load blocking tasks: %w", err)
	}
	for _, t := range blocked {
		s.Blocked = append(s.Blocked, BlockedTask{ID: t.ID, T: t.Title})
	}

	top, err := b.store.ListPriorityTasks(ctx, userID, b.topPriorities)
	if err != nil {
		return nil, now, fmt.Errorf("load priority tasks: %w", err)
	}
	for _, t := range top {
		p := PriorityTask{ID: t.ID, T: t.Title, PS: t.PriorityScore, KRR: t.KRRisk, Status: t.Status, Blocking: t.Blocking}
		if t.DueDate != nil {
			due := FormatTime(*t.DueDate)
			p.Due = &due
		}
		s.Priorities = append(s.Priorities, p)
	}

	return s, now, nil
}

func (b *Builder) addKeyResults(ctx context.Context, s *Snapshot, userID string, objectiveIDs []string,
	cycleOf map[string]string, now time.Time) error {
	krs, err := b.store.ListKeyResultsForObjectives(ctx, userID, objectiveIDs)
	if err != nil {
		return fmt.Errorf("load key results: %w", err)
	}
	if len(krs) == 0 {
		return nil
	}

	krIDs := make([]string, len(krs))
	for i, kr := range krs {
		krIDs[i] = kr.ID
	}
	counts, err := b.store.GetKRTaskCountsBatch(ctx, krIDs)
	if err != nil {
		return fmt.Errorf("load key result task counts: %w", err)
	}

	cycles := map[string]*db.Cycle{}
	for _, kr := range krs {
		daysLeft, err := b.daysLeft(ctx, cycles, cycleOf[kr.ObjectiveID], now)
		if err != nil {
			return err
		}

		var v *float64
		if kr.Velocity != nil && *kr.Velocity != 0 {
			vel := *kr.Velocity
			v = &vel
		}
		c := counts[kr.ID]
		s.KeyResults = append(s.KeyResults, KeyResult{
			ID: kr.ID, OID: kr.ObjectiveID, T: kr.Title, P: kr.Progress, R: kr.Risk, V: v,
			Type: kr.Type, Target: kr.Target, Current: kr.Current, DaysLeft: daysLeft,
			TaskCount: c.Total, DoneCount: c.Done,
		})

		if kr.Risk > b.riskyThreshold {
			s.Risky = append(s.Risky, RiskyKR{ID: kr.ID, T: kr.Title, R: kr.Risk, Gap: db.Round4(1 - kr.Progress)})
		}
	}
	return nil
}

// daysLeft is the whole days until the cycle ends, rounded up and never
// negative. It is nil when there is no cycle.
func (b *Builder) daysLeft(ctx context.Context, cache map[string]*db.Cycle, cycleID string, now time.Time) (*int, error) {
	if cycleID == "" {
		return nil, nil
	}
	c, seen := cache[cycleID]
	if !seen {
		var err error
		c, err = b.store.GetCycle(ctx, cycleID)
		if err != nil {
			return nil, fmt.Errorf("load cycle %s: %w", cycleID, err)
		}
		cache[cycleID] = c
	}
	if c == nil {
		return nil, nil
	}
	days := int(math.Max(0, math.Ceil(c.EndDate.Sub(now).Hours()/24)))
	return &days, nil
}
