package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	okrerrors "github.com/randalmurphal/okr/internal/errors"
)

func seedObjective(t *testing.T, g *GoalDB, o *Objective) *Objective {
	t.Helper()
	require.NoError(t, g.CreateObjective(context.Background(), o))
	return o
}

func seedKR(t *testing.T, g *GoalDB, kr *KeyResult) *KeyResult {
	t.Helper()
	require.NoError(t, g.CreateKeyResult(context.Background(), kr))
	return kr
}

func TestGoalDB_MissingRowsReturnNil(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()

	o, err := g.GetObjective(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, o)

	kr, err := g.GetKeyResult(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, kr)

	task, err := g.GetTask(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, task)

	c, err := g.GetCycle(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, c)

	s, err := g.LatestSnapshot(ctx, "u1", "")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestCreateKeyResult_DerivesLevelAndRoot(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()

	seedObjective(t, g, &Objective{ID: "obj", UserID: "u1"})
	root := seedKR(t, g, &KeyResult{ID: "root", UserID: "u1", ObjectiveID: "obj"})
	mid := seedKR(t, g, &KeyResult{ID: "mid", UserID: "u1", ParentKRID: root.ID})
	leaf := seedKR(t, g, &KeyResult{ID: "leaf", UserID: "u1", ParentKRID: mid.ID})

	assert.Equal(t, 0, root.Level)
	assert.Empty(t, root.RootKRID)
	assert.Equal(t, 1, mid.Level)
	assert.Equal(t, "root", mid.RootKRID)
	assert.Equal(t, 2, leaf.Level)
	assert.Equal(t, "root", leaf.RootKRID)

	stored, err := g.GetKeyResult(ctx, "leaf")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "obj", stored.ObjectiveID, "objective inherited from parent")
	assert.Equal(t, 2, stored.Level)
	assert.Equal(t, KRTypeMetric, stored.Type)
}

func TestCreateKeyResult_RejectsMissingParent(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)

	err := g.CreateKeyResult(context.Background(), &KeyResult{UserID: "u1", ParentKRID: "ghost"})
	assert.True(t, errors.Is(err, ErrParentNotFound))
}

func TestCreateKeyResult_RejectsCycle(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()

	// Rows written by another writer can already form a loop.
	_, err := g.DB().ExecContext(ctx, `
		INSERT INTO key_results (id, user_id, parent_kr_id, created_at) VALUES
		('a', 'u1', 'b', '2026-01-01T00:00:00.000000000Z'),
		('b', 'u1', 'a', '2026-01-01T00:00:00.000000000Z')`)
	require.NoError(t, err)

	err = g.CreateKeyResult(ctx, &KeyResult{ID: "c", UserID: "u1", ParentKRID: "a"})
	assert.True(t, errors.Is(err, ErrHierarchyCycle))
	engErr := okrerrors.AsEngineError(err)
	require.NotNil(t, engErr)
	assert.Equal(t, okrerrors.CodeHierarchyCycle, engErr.Code)
	assert.Equal(t, 3, engErr.Category().ExitCode())

	kr, err := g.GetKeyResult(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, kr, "rejected key result is not stored")
}

func TestKeyResult_WeightCoercion(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()

	half := 0.5
	zero := 0.0
	seedKR(t, g, &KeyResult{ID: "unset", UserID: "u1"})
	seedKR(t, g, &KeyResult{ID: "half", UserID: "u1", ImportanceWeight: &half})
	seedKR(t, g, &KeyResult{ID: "zero", UserID: "u1", ImportanceWeight: &zero})
	seedKR(t, g, &KeyResult{ID: "junk", UserID: "u1"})
	_, err := g.DB().ExecContext(ctx, `UPDATE key_results SET importance_weight = 'heavy' WHERE id = 'junk'`)
	require.NoError(t, err)

	want := map[string]float64{"unset": 1, "half": 0.5, "zero": 0, "junk": 1}
	for id, w := range want {
		kr, err := g.GetKeyResult(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, kr, id)
		assert.Equal(t, w, kr.Weight(), id)
	}
}

func TestListLeafKeyResultIDs_DeepestFirst(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)

	seedObjective(t, g, &Objective{ID: "obj", UserID: "u1"})
	seedKR(t, g, &KeyResult{ID: "r", UserID: "u1", ObjectiveID: "obj"})
	seedKR(t, g, &KeyResult{ID: "r-a", UserID: "u1", ParentKRID: "r"})
	seedKR(t, g, &KeyResult{ID: "r-a-1", UserID: "u1", ParentKRID: "r-a"})
	seedKR(t, g, &KeyResult{ID: "r-b", UserID: "u1", ParentKRID: "r"})
	seedKR(t, g, &KeyResult{ID: "solo", UserID: "u1", ObjectiveID: "obj"})
	seedKR(t, g, &KeyResult{ID: "other", UserID: "u2"})

	ids, err := g.ListLeafKeyResultIDs(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r-a-1", "r-b", "solo"}, ids)
}

func TestRecomputeScope_IncludesOrgAndAssigned(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()

	require.NoError(t, g.AddOrgMember(ctx, "org", "u1"))
	require.NoError(t, g.AddOrgMember(ctx, "org", "u1"))
	seedObjective(t, g, &Objective{ID: "own", UserID: "u1"})
	seedObjective(t, g, &Objective{ID: "shared", UserID: "u2", OrgID: "org"})
	seedObjective(t, g, &Objective{ID: "foreign", UserID: "u2"})
	seedObjective(t, g, &Objective{ID: "archived", UserID: "u1", Status: ObjectiveStatusArchived})

	require.NoError(t, g.CreateTask(ctx, &Task{ID: "t-own", UserID: "u1"}))
	require.NoError(t, g.CreateTask(ctx, &Task{ID: "t-assigned", UserID: "u2", AssigneeID: "u1"}))
	require.NoError(t, g.CreateTask(ctx, &Task{ID: "t-shared", UserID: "u2", ObjectiveID: "shared"}))
	require.NoError(t, g.CreateTask(ctx, &Task{ID: "t-foreign", UserID: "u2", ObjectiveID: "foreign"}))

	tasks, err := g.ListRecomputeTaskIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-assigned", "t-own", "t-shared"}, tasks)

	objs, err := g.ListActiveObjectiveIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"own", "shared"}, objs)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()
	seedObjective(t, g, &Objective{ID: "obj", UserID: "u1"})

	boom := errors.New("boom")
	err := g.InTx(ctx, func(s Store) error {
		if err := s.UpdateObjectiveProgress(ctx, "obj", 0.9); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return s.InTx(ctx, func(inner Store) error {
			if err := inner.UpdateObjectiveRisk(ctx, "obj", 0.4); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	o, err := g.GetObjective(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, 0.0, o.Progress)
	assert.Equal(t, 0.0, o.Risk)

	require.NoError(t, g.InTx(ctx, func(s Store) error {
		return s.UpdateObjectiveProgress(ctx, "obj", 0.123456)
	}))
	o, err = g.GetObjective(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, 0.1235, o.Progress, "stored at four decimals")
}

func TestDerivedWrites_ClampAndRound(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()
	seedKR(t, g, &KeyResult{ID: "kr", UserID: "u1"})
	require.NoError(t, g.CreateTask(ctx, &Task{ID: "t", UserID: "u1"}))

	require.NoError(t, g.UpdateKeyResultProgress(ctx, "kr", 1.4))
	require.NoError(t, g.UpdateKeyResultRisk(ctx, "kr", -0.3))
	require.NoError(t, g.UpdateKeyResultVelocity(ctx, "kr", 2.34567))
	require.NoError(t, g.UpdateTaskPriorityScore(ctx, "t", 1.2))
	require.NoError(t, g.UpdateTaskAlignmentDepth(ctx, "t", 3))

	kr, err := g.GetKeyResult(ctx, "kr")
	require.NoError(t, err)
	assert.Equal(t, 1.0, kr.Progress)
	assert.Equal(t, 0.0, kr.Risk)
	require.NotNil(t, kr.Velocity)
	assert.Equal(t, 2.3457, *kr.Velocity, "velocity is not clamped")

	task, err := g.GetTask(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1.0, task.PriorityScore)
	assert.Equal(t, 3, task.AlignmentDepth)

	// Missing rows are a silent no-op.
	assert.NoError(t, g.UpdateKeyResultProgress(ctx, "ghost", 0.5))
}

func TestTask_RoundTrip(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()

	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pct := 40.0
	in := &Task{
		ID: "t1", UserID: "u1", KRID: "kr", Title: "Write", Priority: PriorityHigh,
		DueDate: &due, Blocking: true, ProgressPercent: &pct, ProgressNote: "halfway there",
	}
	require.NoError(t, g.CreateTask(ctx, in))

	got, err := g.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kr", got.KRID)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Equal(t, TaskStatusTodo, got.Status)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
	assert.True(t, got.Blocking)
	require.NotNil(t, got.ProgressPercent)
	assert.Equal(t, 40.0, *got.ProgressPercent)
	assert.Nil(t, got.OutcomeScore)
	assert.Nil(t, got.ProgressScore)

	score := 0.8
	require.NoError(t, g.SetTaskStatus(ctx, "t1", TaskStatusDone, &score))
	outcomes, err := g.ListLinkedTaskOutcomes(ctx, "kr")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, TaskStatusDone, outcomes[0].Status)
	require.NotNil(t, outcomes[0].OutcomeScore)
	assert.Equal(t, 0.8, *outcomes[0].OutcomeScore)
}

func TestTaskStatsAndPriorities(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	seedKR(t, g, &KeyResult{ID: "kr", UserID: "u1"})
	require.NoError(t, g.UpdateKeyResultRisk(ctx, "kr", 0.8))

	tasks := []*Task{
		{ID: "a", UserID: "u1", KRID: "kr", DueDate: &past},
		{ID: "b", UserID: "u1", Status: TaskStatusDoing, Blocking: true, DueDate: &future},
		{ID: "c", UserID: "u1", ObjectiveID: "o", Status: TaskStatusDone, DueDate: &past, Blocking: true},
		{ID: "d", UserID: "u2"},
	}
	for _, task := range tasks {
		require.NoError(t, g.CreateTask(ctx, task))
	}
	require.NoError(t, g.UpdateTaskPriorityScore(ctx, "a", 0.9))
	require.NoError(t, g.UpdateTaskPriorityScore(ctx, "b", 0.3))

	stats, err := g.GetTaskStats(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, TaskStats{Total: 3, Todo: 1, Doing: 1, Done: 1, Overdue: 1, Unlinked: 1}, *stats)

	blocked, err := g.ListBlockingTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []TaskRef{{ID: "b"}}, blocked)

	top, err := g.ListPriorityTasks(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].ID)
	assert.Equal(t, 0.8, top[0].KRRisk)
	assert.Equal(t, "b", top[1].ID)
	assert.Equal(t, 0.0, top[1].KRRisk)

	counts, err := g.GetKRTaskCountsBatch(ctx, []string{"kr", "none"})
	require.NoError(t, err)
	assert.Equal(t, TaskCount{Total: 1, Done: 0}, counts["kr"])
	_, ok := counts["none"]
	assert.False(t, ok)
}

func TestListRiskyKeyResults_DefaultScope(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()

	start := time.Now().Add(-24 * time.Hour)
	end := time.Now().Add(24 * time.Hour)
	require.NoError(t, g.CreateCycle(ctx, &Cycle{ID: "open", UserID: "u1", StartDate: start, EndDate: end}))
	require.NoError(t, g.CreateCycle(ctx, &Cycle{ID: "closed", UserID: "u1", Status: CycleStatusClosed, StartDate: start, EndDate: end}))
	seedObjective(t, g, &Objective{ID: "o-open", UserID: "u1", CycleID: "open"})
	seedObjective(t, g, &Objective{ID: "o-closed", UserID: "u1", CycleID: "closed"})
	seedObjective(t, g, &Objective{ID: "o-none", UserID: "u1"})
	seedObjective(t, g, &Objective{ID: "o-arch", UserID: "u1", Status: ObjectiveStatusArchived})

	for i, obj := range []string{"o-open", "o-closed", "o-none", "o-arch"} {
		id := "kr-" + obj
		seedKR(t, g, &KeyResult{ID: id, UserID: "u1", ObjectiveID: obj})
		require.NoError(t, g.UpdateKeyResultRisk(ctx, id, 0.9-float64(i)*0.1))
	}

	ids := func(rows []RiskyKeyResult) []string {
		var out []string
		for _, r := range rows {
			out = append(out, r.KeyResult.ID)
		}
		return out
	}

	rows, err := g.ListRiskyKeyResults(ctx, RiskFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kr-o-open", "kr-o-none"}, ids(rows))

	rows, err = g.ListRiskyKeyResults(ctx, RiskFilter{UserID: "u1", IncludeClosed: true, Threshold: 0.7})
	require.NoError(t, err)
	assert.Equal(t, []string{"kr-o-open", "kr-o-closed", "kr-o-none"}, ids(rows))

	rows, err = g.ListRiskyKeyResults(ctx, RiskFilter{UserID: "u1", CycleID: "open"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "open", rows[0].CycleID)
	assert.Equal(t, CycleStatusActive, rows[0].CycleStatus)
}

func TestSnapshots_LatestPerScope(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, g.InsertSnapshot(ctx, &Snapshot{UserID: "u1", Payload: []byte(`{"n":1}`), CreatedAt: ts}))
	require.NoError(t, g.InsertSnapshot(ctx, &Snapshot{UserID: "u1", Payload: []byte(`{"n":2}`), CreatedAt: ts.Add(time.Second)}))
	require.NoError(t, g.InsertSnapshot(ctx, &Snapshot{UserID: "u1", CycleID: "c1", Payload: []byte(`{"n":3}`), CreatedAt: ts.Add(time.Hour)}))
	// Same timestamp: insertion order breaks the tie.
	require.NoError(t, g.InsertSnapshot(ctx, &Snapshot{UserID: "u1", Payload: []byte(`{"n":4}`), CreatedAt: ts.Add(time.Second)}))

	latest, err := g.LatestSnapshot(ctx, "u1", "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.JSONEq(t, `{"n":4}`, string(latest.Payload))
	assert.Empty(t, latest.CycleID)

	latest, err = g.LatestSnapshot(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.JSONEq(t, `{"n":3}`, string(latest.Payload))

	n, err := g.CountSnapshots(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "older snapshots are kept")
}

func TestListActiveCycleIDs(t *testing.T) {
	t.Parallel()
	g := NewTestGoalDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, g.CreateCycle(ctx, &Cycle{ID: "q2", UserID: "u1", StartDate: base.AddDate(0, 3, 0), EndDate: base.AddDate(0, 6, 0)}))
	require.NoError(t, g.CreateCycle(ctx, &Cycle{ID: "q1", UserID: "u1", StartDate: base, EndDate: base.AddDate(0, 3, 0)}))
	require.NoError(t, g.CreateCycle(ctx, &Cycle{ID: "old", UserID: "u1", Status: CycleStatusClosed, StartDate: base, EndDate: base}))
	require.NoError(t, g.CreateCycle(ctx, &Cycle{ID: "theirs", UserID: "u2", StartDate: base, EndDate: base}))

	ids, err := g.ListActiveCycleIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids)

	c, err := g.GetUserCycle(ctx, "u2", "q1")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = g.GetUserCycle(ctx, "u1", "q1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, base.Equal(c.StartDate))
}
