// Package cascade drives recomputation of derived goal signals after a
// task or key result changes, and runs that work in the background.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/okr/internal/db"
	"github.com/randalmurphal/okr/internal/enrich"
	"github.com/randalmurphal/okr/internal/scoring"
)

const defaultRecomputeParallelism = 4

// Refresher regenerates a user's snapshots.
type Refresher interface {
	Refresh(ctx context.Context, userID string) error
}

// Options configures a Coordinator.
type Options struct {
	MaxHierarchyDepth int
	// RecomputeParallelism bounds concurrent task rescoring in RecomputeAll.
	RecomputeParallelism int
	Logger               *slog.Logger
	Metrics              *Metrics
}

// Coordinator runs the models in dependency order for a changed entity.
type Coordinator struct {
	store       db.Store
	models      *scoring.Models
	scorer      *enrich.Scorer
	refresher   Refresher
	maxDepth    int
	parallelism int
	logger      *slog.Logger
	metrics     *Metrics
}

// NewCoordinator creates a coordinator. scorer and refresher may be nil.
func NewCoordinator(store db.Store, models *scoring.Models, scorer *enrich.Scorer, refresher Refresher, opts Options) *Coordinator {
	if opts.MaxHierarchyDepth <= 0 {
		opts.MaxHierarchyDepth = scoring.DefaultMaxHierarchyDepth
	}
	if opts.RecomputeParallelism <= 0 {
		opts.RecomputeParallelism = defaultRecomputeParallelism
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		store:       store,
		models:      models,
		scorer:      scorer,
		refresher:   refresher,
		maxDepth:    opts.MaxHierarchyDepth,
		parallelism: opts.RecomputeParallelism,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// CascadeFromTask rescores the task, then cascades into its key result.
// A task without a key result refreshes its owner's snapshots directly.
// A missing task is a no-op.
func (c *Coordinator) CascadeFromTask(ctx context.Context, taskID string) (err error) {
	start := time.Now()
	defer func() { c.metrics.observeCascade(TriggerTask, start, err) }()

	if err := c.scoreTask(ctx, taskID); err != nil {
		return err
	}
	if c.scorer != nil {
		c.scorer.Evaluate(ctx, taskID)
	}

	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil {
		return nil
	}
	if task.KRID != "" {
		found, err := c.cascadeFromKR(ctx, task.KRID, true)
		if err != nil || found {
			return err
		}
	}
	return c.refresh(ctx, task.UserID)
}

// CascadeFromKR recomputes the key result and every ancestor, then the
// owning objectives, then refreshes the owner's snapshots once.
// A missing key result is a no-op.
func (c *Coordinator) CascadeFromKR(ctx context.Context, krID string) (err error) {
	start := time.Now()
	defer func() { c.metrics.observeCascade(TriggerKR, start, err) }()

	_, err = c.cascadeFromKR(ctx, krID, true)
	return err
}

// cascadeFromKR walks up the parent chain computing progress, then walks
// back down computing risk, velocity and objective rollups. It reports
// whether the starting key result exists.
func (c *Coordinator) cascadeFromKR(ctx context.Context, krID string, refresh bool) (bool, error) {
	var chain []*db.KeyResult
	visited := make(map[string]bool)
	for id := krID; id != ""; {
		if visited[id] {
			c.logger.Warn("key result hierarchy loops, stopping bubble-up", "kr_id", krID, "at", id)
			break
		}
		// The start plus maxDepth parent hops, as in the alignment walk.
		if len(chain) > c.maxDepth {
			c.logger.Warn("key result hierarchy too deep, stopping bubble-up", "kr_id", krID, "max_depth", c.maxDepth)
			break
		}
		visited[id] = true

		if _, err := c.models.Progress.ComputeKR(ctx, id); err != nil {
			return len(chain) > 0, err
		}
		kr, err := c.store.GetKeyResult(ctx, id)
		if err != nil {
			return len(chain) > 0, fmt.Errorf("load key result %s: %w", id, err)
		}
		if kr == nil {
			break
		}
		chain = append(chain, kr)
		id = kr.ParentKRID
	}
	if len(chain) == 0 {
		return false, nil
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if err := c.settleKR(ctx, chain[i]); err != nil {
			return true, err
		}
	}

	if refresh {
		return true, c.refresh(ctx, chain[0].UserID)
	}
	return true, nil
}

// settleKR recomputes the signals that depend on a key result's progress.
func (c *Coordinator) settleKR(ctx context.Context, kr *db.KeyResult) error {
	if _, err := c.models.Risk.ComputeKR(ctx, kr.ID); err != nil {
		return err
	}
	if _, err := c.models.Velocity.ComputeKR(ctx, kr.ID); err != nil {
		return err
	}
	if kr.ObjectiveID == "" {
		return nil
	}
	return c.settleObjective(ctx, kr.ObjectiveID)
}

func (c *Coordinator) settleObjective(ctx context.Context, objectiveID string) error {
	if _, err := c.models.Progress.ComputeObjective(ctx, objectiveID); err != nil {
		return err
	}
	_, err := c.models.Risk.ComputeObjective(ctx, objectiveID)
	return err
}

func (c *Coordinator) scoreTask(ctx context.Context, taskID string) error {
	if _, err := c.models.Priority.ComputeTask(ctx, taskID); err != nil {
		return err
	}
	_, err := c.models.Alignment.ComputeTask(ctx, taskID)
	return err
}

func (c *Coordinator) refresh(ctx context.Context, userID string) error {
	if c.refresher == nil || userID == "" {
		return nil
	}
	return c.refresher.Refresh(ctx, userID)
}

// RecomputeAll rescores everything the user can see: tasks, then leaf key
// results deepest first with their ancestors, then active objectives.
// Snapshots are not refreshed. Every step runs even if earlier ones fail;
// failures are joined.
func (c *Coordinator) RecomputeAll(ctx context.Context, userID string) (err error) {
	start := time.Now()
	defer func() { c.metrics.observeCascade(TriggerRecompute, start, err) }()

	var errs []error

	taskIDs, err := c.store.ListRecomputeTaskIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("list tasks for %s: %w", userID, err)
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.parallelism)
	for _, id := range taskIDs {
		g.Go(func() error {
			if err := c.scoreTask(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// Leaves share ancestors, so this pass stays sequential.
	leafIDs, err := c.store.ListLeafKeyResultIDs(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("list leaf key results for %s: %w", userID, err))
	}
	for _, id := range leafIDs {
		if _, err := c.cascadeFromKR(ctx, id, false); err != nil {
			errs = append(errs, err)
		}
	}

	objectiveIDs, err := c.store.ListActiveObjectiveIDs(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("list objectives for %s: %w", userID, err))
	}
	for _, id := range objectiveIDs {
		if err := c.settleObjective(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		c.logger.Warn("recompute finished with failures", "user_id", userID, "failures", len(errs))
	}
	return errors.Join(errs...)
}
