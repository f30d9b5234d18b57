package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/randalmurphal/okr/internal/db"
	okrerrors "github.com/randalmurphal/okr/internal/errors"
)

var now = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return now }

func str(s string) *string { return &s }

type fixture struct {
	g     *db.GoalDB
	cache *Cache
}

// seed builds: cycle q (active, 25% elapsed, ends in 30d 12h), objectives
// in and out of it, key results at a range of risks, and a handful of tasks.
func seed(t *testing.T) fixture {
	t.Helper()
	g := db.NewTestGoalDB(t)
	ctx := context.Background()

	require.NoError(t, g.CreateCycle(ctx, &db.Cycle{ID: "q", UserID: "u1", Name: "Q2", Type: "quarter",
		StartDate: now.Add(-10*24*time.Hour - 4*time.Hour), EndDate: now.Add(30*24*time.Hour + 12*time.Hour)}))
	require.NoError(t, g.CreateCycle(ctx, &db.Cycle{ID: "old", UserID: "u1", Status: db.CycleStatusClosed,
		StartDate: now.AddDate(0, -6, 0), EndDate: now.AddDate(0, -3, 0)}))

	require.NoError(t, g.CreateObjective(ctx, &db.Objective{ID: "o1", UserID: "u1", CycleID: "q", Title: "Grow", Type: "committed", Horizon: "quarter"}))
	require.NoError(t, g.CreateObjective(ctx, &db.Objective{ID: "o2", UserID: "u1", Title: "Learn", Type: "aspirational", Horizon: "year"}))
	require.NoError(t, g.CreateObjective(ctx, &db.Objective{ID: "o3", UserID: "u1", Status: db.ObjectiveStatusArchived}))
	require.NoError(t, g.CreateObjective(ctx, &db.Objective{ID: "o4", UserID: "u2"}))
	require.NoError(t, g.UpdateObjectiveRisk(ctx, "o1", 0.51))
	require.NoError(t, g.UpdateObjectiveRisk(ctx, "o2", 0.2))

	krs := []struct {
		id, obj          string
		progress, risk   float64
		velocity         float64
		target, current  string
	}{
		{"k-edge", "o1", 0.5, 0.5, 0, "10", "5"},
		{"k-risky", "o1", 0.33333, 0.51, 0.12, "3", "1"},
		{"k-calm", "o2", 0.9, 0.05, 0.3, "1", "0.9"},
	}
	for _, k := range krs {
		require.NoError(t, g.CreateKeyResult(ctx, &db.KeyResult{ID: k.id, UserID: "u1", ObjectiveID: k.obj, Title: "KR " + k.id,
			Target: str(k.target), Current: str(k.current)}))
		require.NoError(t, g.UpdateKeyResultProgress(ctx, k.id, k.progress))
		require.NoError(t, g.UpdateKeyResultRisk(ctx, k.id, k.risk))
		require.NoError(t, g.UpdateKeyResultVelocity(ctx, k.id, k.velocity))
	}

	due := now.Add(36 * time.Hour)
	past := now.Add(-time.Hour)
	tasks := []*db.Task{
		{ID: "t1", UserID: "u1", KRID: "k-risky", Title: "Call", DueDate: &due, Blocking: true},
		{ID: "t2", UserID: "u1", KRID: "k-risky", Title: "Mail", Status: db.TaskStatusDone},
		{ID: "t3", UserID: "u1", Title: "Loose", Status: db.TaskStatusDoing, DueDate: &past},
		{ID: "t4", UserID: "u2", Title: "Not mine"},
	}
	for _, task := range tasks {
		require.NoError(t, g.CreateTask(ctx, task))
	}
	require.NoError(t, g.UpdateTaskPriorityScore(ctx, "t1", 0.9))
	require.NoError(t, g.UpdateTaskPriorityScore(ctx, "t3", 0.7))

	return fixture{g: g, cache: NewCache(g, Options{Now: clock})}
}

func TestBuild_GlobalProjection(t *testing.T) {
	t.Parallel()
	f := seed(t)

	s, err := f.cache.Build(context.Background(), "u1", "")
	require.NoError(t, err)

	assert.Equal(t, "2026-05-10T09:30:00.000Z", s.TS)
	assert.Nil(t, s.Cycle)

	require.Len(t, s.Objectives, 2)
	assert.Equal(t, Objective{ID: "o1", T: "Grow", P: 0, R: 0.51, Type: "committed", Horizon: "quarter"}, s.Objectives[0])
	assert.Equal(t, "o2", s.Objectives[1].ID)

	require.Len(t, s.KeyResults, 3)
	byID := map[string]KeyResult{}
	for _, k := range s.KeyResults {
		byID[k.ID] = k
	}
	assert.Equal(t, "k-risky", s.KeyResults[0].ID, "riskiest first")

	risky := byID["k-risky"]
	assert.Equal(t, "o1", risky.OID)
	require.NotNil(t, risky.V)
	assert.Equal(t, 0.12, *risky.V)
	require.NotNil(t, risky.DaysLeft)
	assert.Equal(t, 31, *risky.DaysLeft, "30.5 days rounds up")
	assert.Equal(t, 2, risky.TaskCount)
	assert.Equal(t, 1, risky.DoneCount)
	assert.Equal(t, "3", *risky.Target)

	assert.Nil(t, byID["k-edge"].V, "zero velocity is omitted")
	assert.Nil(t, byID["k-calm"].DaysLeft, "no cycle, no days left")
	assert.Equal(t, 0, byID["k-calm"].TaskCount)

	// Strictly above 0.5.
	require.Len(t, s.Risky, 1)
	assert.Equal(t, RiskyKR{ID: "k-risky", T: "KR k-risky", R: 0.51, Gap: 0.6667}, s.Risky[0])

	assert.Equal(t, []BlockedTask{{ID: "t1", T: "Call"}}, s.Blocked)
	assert.Equal(t, Stats{TotalTasks: 3, Todo: 1, Doing: 1, Done: 1, Overdue: 1, UnlinkedTasks: 1}, s.Stats)

	require.Len(t, s.Priorities, 2)
	assert.Equal(t, "t1", s.Priorities[0].ID)
	assert.Equal(t, 0.51, s.Priorities[0].KRR)
	require.NotNil(t, s.Priorities[0].Due)
	assert.Equal(t, "2026-05-11T21:30:00.000Z", *s.Priorities[0].Due)
	assert.True(t, s.Priorities[0].Blocking)
	assert.Equal(t, "t3", s.Priorities[1].ID)
	assert.Equal(t, 0.0, s.Priorities[1].KRR)
}

func TestBuild_CycleScope(t *testing.T) {
	t.Parallel()
	f := seed(t)

	s, err := f.cache.Build(context.Background(), "u1", "q")
	require.NoError(t, err)

	require.NotNil(t, s.Cycle)
	assert.Equal(t, "Q2", s.Cycle.Name)
	assert.Equal(t, "quarter", s.Cycle.Type)
	assert.InDelta(t, 0.25, s.Cycle.Elapsed, 1e-4)

	require.Len(t, s.Objectives, 1)
	assert.Equal(t, "o1", s.Objectives[0].ID)
	assert.Len(t, s.KeyResults, 2)

	// Task sections are user-wide.
	assert.Equal(t, 3, s.Stats.TotalTasks)
}

func TestBuild_TopPrioritiesLimit(t *testing.T) {
	t.Parallel()
	g := db.NewTestGoalDB(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		id := string(rune('a' + i))
		require.NoError(t, g.CreateTask(ctx, &db.Task{ID: id, UserID: "u1"}))
		require.NoError(t, g.UpdateTaskPriorityScore(ctx, id, float64(i)/20))
	}

	s, err := NewCache(g, Options{Now: clock}).Build(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, s.Priorities, DefaultTopPriorities)
	assert.Equal(t, "o", s.Priorities[0].ID)
	for i := 1; i < len(s.Priorities); i++ {
		assert.GreaterOrEqual(t, s.Priorities[i-1].PS, s.Priorities[i].PS)
	}
}

func TestSnapshotJSON_CompactKeys(t *testing.T) {
	t.Parallel()
	f := seed(t)

	s, err := f.cache.Build(context.Background(), "u1", "q")
	require.NoError(t, err)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	keys := func(path string) []string {
		var out []string
		gjson.GetBytes(data, path).ForEach(func(k, _ gjson.Result) bool {
			out = append(out, k.String())
			return true
		})
		sort.Strings(out)
		return out
	}

	assert.Equal(t, []string{"blocked", "c", "k", "o", "priorities", "risky", "stats", "ts"}, keys("@this"))
	assert.Equal(t, []string{"elapsed", "id", "name", "type"}, keys("c"))
	assert.Equal(t, []string{"horizon", "id", "p", "r", "t", "type"}, keys("o.0"))
	assert.Equal(t, []string{"current", "days_left", "done_count", "id", "oid", "p", "r", "t", "target", "task_count", "type", "v"}, keys("k.0"))
	assert.Equal(t, []string{"gap", "id", "r", "t"}, keys("risky.0"))
	assert.Equal(t, []string{"id", "t"}, keys("blocked.0"))
	assert.Equal(t, []string{"blocking", "due", "id", "kr_r", "ps", "status", "t"}, keys("priorities.0"))
	assert.Equal(t, []string{"doing", "done", "overdue", "todo", "total_tasks", "unlinked_tasks"}, keys("stats"))
}

func TestSnapshotJSON_EmptyUser(t *testing.T) {
	t.Parallel()
	g := db.NewTestGoalDB(t)

	s, err := NewCache(g, Options{Now: clock}).Build(context.Background(), "nobody", "")
	require.NoError(t, err)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"ts": "2026-05-10T09:30:00.000Z",
		"c": null,
		"o": [], "k": [], "risky": [], "blocked": [], "priorities": [],
		"stats": {"total_tasks": 0, "todo": 0, "doing": 0, "done": 0, "overdue": 0, "unlinked_tasks": 0}
	}`, string(data))
}

func TestToVerbose_IsOneToOne(t *testing.T) {
	t.Parallel()
	f := seed(t)

	s, err := f.cache.Build(context.Background(), "u1", "q")
	require.NoError(t, err)
	v := ToVerbose(s)

	assert.Equal(t, s.TS, v.Timestamp)
	require.NotNil(t, v.Cycle)
	assert.Equal(t, s.Cycle.Elapsed, v.Cycle.ElapsedRatio)
	require.Len(t, v.Objectives, len(s.Objectives))
	require.Len(t, v.KeyResults, len(s.KeyResults))
	require.Len(t, v.RiskyKeyResults, len(s.Risky))
	require.Len(t, v.BlockedTasks, len(s.Blocked))
	require.Len(t, v.TopPriorities, len(s.Priorities))
	assert.Equal(t, s.Stats, v.Stats)

	for i, k := range s.KeyResults {
		vk := v.KeyResults[i]
		assert.Equal(t, k.ID, vk.ID)
		assert.Equal(t, k.OID, vk.ObjectiveID)
		assert.Equal(t, k.P, vk.Progress)
		assert.Equal(t, k.R, vk.RiskScore)
		assert.Equal(t, k.V, vk.Velocity)
		assert.Equal(t, k.DaysLeft, vk.DaysLeft)
	}
	for i, r := range s.Risky {
		assert.Equal(t, r.Gap, v.RiskyKeyResults[i].ProgressGap)
	}
	for i, p := range s.Priorities {
		assert.Equal(t, p.KRR, v.TopPriorities[i].KRRisk)
		assert.Equal(t, p.Due, v.TopPriorities[i].DueDate)
	}

	// Same number of leaf values under both namings.
	compact, err := json.Marshal(s)
	require.NoError(t, err)
	verbose, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, countLeaves(gjson.ParseBytes(compact)), countLeaves(gjson.ParseBytes(verbose)))
}

func countLeaves(r gjson.Result) int {
	if !r.IsObject() && !r.IsArray() {
		return 1
	}
	n := 0
	r.ForEach(func(_, v gjson.Result) bool {
		n += countLeaves(v)
		return true
	})
	return n
}

func TestGetLatest_BuildsOnMissThenServesStored(t *testing.T) {
	t.Parallel()
	f := seed(t)
	ctx := context.Background()

	first, err := f.cache.GetLatest(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, len(first.Objectives))

	n, err := f.g.CountSnapshots(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := f.cache.GetLatest(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	n, err = f.g.CountSnapshots(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a hit does not build")

	// Cycle scope is separate from the global one.
	scoped, err := f.cache.GetLatest(ctx, "u1", "q")
	require.NoError(t, err)
	require.NotNil(t, scoped.Cycle)
}

func TestGetLatest_ReturnsNewestBuild(t *testing.T) {
	t.Parallel()
	g := db.NewTestGoalDB(t)
	ctx := context.Background()
	current := now
	cache := NewCache(g, Options{Now: func() time.Time { return current }})

	_, err := cache.Build(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, g.CreateTask(ctx, &db.Task{ID: "new", UserID: "u1"}))
	current = now.Add(time.Minute)
	_, err = cache.Build(ctx, "u1", "")
	require.NoError(t, err)

	latest, err := cache.GetLatest(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Stats.TotalTasks)
	assert.Equal(t, "2026-05-10T09:31:00.000Z", latest.TS)
}

func TestGetLatest_ConcurrentMissesBuildOnce(t *testing.T) {
	t.Parallel()
	f := seed(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.cache.GetLatest(ctx, "u1", "q")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := f.g.CountSnapshots(ctx, "u1", "q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// cancelingStore cancels the requesting context part way through a build.
type cancelingStore struct {
	Store
	cancel context.CancelFunc
}

func (c cancelingStore) GetTaskStats(ctx context.Context, userID string, at time.Time) (*db.TaskStats, error) {
	c.cancel()
	return c.Store.GetTaskStats(ctx, userID, at)
}

func TestGetLatest_CallerCancelDoesNotFailSharedBuild(t *testing.T) {
	t.Parallel()
	f := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := NewCache(cancelingStore{Store: f.g, cancel: cancel}, Options{Now: clock})
	s, err := cache.GetLatest(ctx, "u1", "q")
	require.NoError(t, err)
	require.NotNil(t, s.Cycle)
	assert.Error(t, ctx.Err())

	n, err := f.g.CountSnapshots(context.Background(), "u1", "q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLatestField(t *testing.T) {
	t.Parallel()
	f := seed(t)

	got, err := f.cache.LatestField(context.Background(), "u1", "", "stats.total_tasks")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Int())

	got, err = f.cache.LatestField(context.Background(), "u1", "", "risky.#.id")
	require.NoError(t, err)
	assert.Equal(t, `["k-risky"]`, got.Raw)
}

func TestRefresh_GlobalAndActiveCycles(t *testing.T) {
	t.Parallel()
	f := seed(t)
	ctx := context.Background()

	var mu sync.Mutex
	scopes := map[string]int{}
	cache := NewCache(f.g, Options{Now: clock, OnBuild: func(scope string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			scopes[scope]++
		}
	}})

	require.NoError(t, cache.Refresh(ctx, "u1"))

	for cycleID, want := range map[string]int{"": 1, "q": 1, "old": 0} {
		n, err := f.g.CountSnapshots(ctx, "u1", cycleID)
		require.NoError(t, err)
		assert.Equal(t, want, n, "scope %q", cycleID)
	}
	assert.Equal(t, map[string]int{ScopeGlobal: 1, ScopeCycle: 1}, scopes)

	// Refreshing again appends; nothing is overwritten.
	require.NoError(t, cache.Refresh(ctx, "u1"))
	n, err := f.g.CountSnapshots(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// flakyStore fails inserts for one cycle scope.
type flakyStore struct {
	Store
	badCycle string
}

func (f flakyStore) InsertSnapshot(ctx context.Context, s *db.Snapshot) error {
	if s.CycleID == f.badCycle {
		return errors.New("insert refused")
	}
	return f.Store.InsertSnapshot(ctx, s)
}

func TestRefresh_OneCycleFailureDoesNotAbortOthers(t *testing.T) {
	t.Parallel()
	f := seed(t)
	ctx := context.Background()
	require.NoError(t, f.g.CreateCycle(ctx, &db.Cycle{ID: "bad", UserID: "u1", StartDate: now, EndDate: now.Add(time.Hour)}))

	cache := NewCache(flakyStore{Store: f.g, badCycle: "bad"}, Options{Now: clock})
	err := cache.Refresh(ctx, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, okrerrors.ErrSnapshotWrite("", "", nil))

	for cycleID, want := range map[string]int{"": 1, "q": 1, "bad": 0} {
		n, err := f.g.CountSnapshots(ctx, "u1", cycleID)
		require.NoError(t, err)
		assert.Equal(t, want, n, "scope %q", cycleID)
	}
}
