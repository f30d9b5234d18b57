package db

import "context"

// Store is the read/write surface the recomputation models need.
// Lookups of missing rows return (nil, nil); callers treat that as a no-op.
type Store interface {
	GetObjective(ctx context.Context, id string) (*Objective, error)
	GetKeyResult(ctx context.Context, id string) (*KeyResult, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	GetCycle(ctx context.Context, id string) (*Cycle, error)

	ListChildKeyResults(ctx context.Context, parentID string) ([]*KeyResult, error)
	ListRootKeyResults(ctx context.Context, objectiveID string) ([]*KeyResult, error)
	ListLinkedTaskOutcomes(ctx context.Context, krID string) ([]TaskOutcome, error)

	UpdateKeyResultProgress(ctx context.Context, id string, progress float64) error
	UpdateKeyResultRisk(ctx context.Context, id string, risk float64) error
	UpdateKeyResultVelocity(ctx context.Context, id string, velocity float64) error
	UpdateObjectiveProgress(ctx context.Context, id string, progress float64) error
	UpdateObjectiveRisk(ctx context.Context, id string, risk float64) error
	UpdateTaskPriorityScore(ctx context.Context, id string, score float64) error
	UpdateTaskAlignmentDepth(ctx context.Context, id string, depth int) error
	UpdateTaskProgressScore(ctx context.Context, id string, score float64) error

	// Bulk recompute scope for a user: own, assigned and org-shared rows.
	ListRecomputeTaskIDs(ctx context.Context, userID string) ([]string, error)
	ListLeafKeyResultIDs(ctx context.Context, userID string) ([]string, error)
	ListActiveObjectiveIDs(ctx context.Context, userID string) ([]string, error)

	// InTx scopes one read-compute-write step to a short transaction.
	InTx(ctx context.Context, fn func(Store) error) error
}
