package scoring

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/okr/internal/db"
)

// Alignment computes how many hops separate a task from its objective.
type Alignment struct {
	store    db.Store
	maxDepth int
	logger   *slog.Logger
}

// ComputeTask recomputes and persists a task's alignment depth. A missing
// task is a no-op returning 0.
func (a *Alignment) ComputeTask(ctx context.Context, taskID string) (int, error) {
	var depth int
	err := inStep(ctx, a.store, "task", taskID, "alignment_depth", func(tx db.Store) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil || task == nil {
			return err
		}

		depth, err = a.depth(ctx, tx, task)
		if err != nil {
			return err
		}
		return tx.UpdateTaskAlignmentDepth(ctx, taskID, depth)
	})
	if err != nil {
		return 0, err
	}
	return depth, nil
}

// depth is 0 when unlinked, 1 when linked to an objective only, and
// 1 + parent hops + 1 when linked to a key result.
func (a *Alignment) depth(ctx context.Context, tx db.Store, task *db.Task) (int, error) {
	if task.KRID == "" {
		if task.ObjectiveID != "" {
			return 1, nil
		}
		return 0, nil
	}

	depth := 1
	visited := map[string]bool{task.KRID: true}
	id := task.KRID
	for hops := 0; ; hops++ {
		kr, err := tx.GetKeyResult(ctx, id)
		if err != nil {
			return 0, err
		}
		if kr == nil || kr.ParentKRID == "" {
			break
		}
		if visited[kr.ParentKRID] || hops >= a.maxDepth {
			a.logger.Warn("key result hierarchy walk stopped",
				"task_id", task.ID, "kr_id", id, "parent_kr_id", kr.ParentKRID, "depth", depth)
			break
		}
		visited[kr.ParentKRID] = true
		id = kr.ParentKRID
		depth++
	}
	return depth + 1, nil
}
