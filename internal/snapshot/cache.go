package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/okr/internal/db"
	okrerrors "github.com/randalmurphal/okr/internal/errors"
	"github.com/randalmurphal/okr/internal/scoring"
)

// Scope labels for build observations.
const (
	ScopeGlobal = "global"
	ScopeCycle  = "cycle"
)

// defaultRefreshParallelism bounds concurrent per-cycle builds in Refresh.
const defaultRefreshParallelism = 4

// Options configures a Cache.
type Options struct {
	Now            scoring.Clock
	TopPriorities  int
	RiskyThreshold float64
	// RefreshParallelism bounds concurrent builds during Refresh.
	RefreshParallelism int
	Logger             *slog.Logger
	// OnBuild, when set, is called after every persisted build attempt.
	OnBuild func(scope string, err error)
}

// Cache builds, persists and serves snapshots. Stored snapshots are
// append-only: every build adds a row and "latest" is the newest row for a
// (user, cycle) scope.
type Cache struct {
	store       Store
	builder     *Builder
	parallelism int
	logger      *slog.Logger
	onBuild     func(scope string, err error)
	group       singleflight.Group
}

// NewCache creates a snapshot cache over store.
func NewCache(store Store, opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TopPriorities <= 0 {
		opts.TopPriorities = DefaultTopPriorities
	}
	if opts.RiskyThreshold <= 0 {
		opts.RiskyThreshold = DefaultRiskyThreshold
	}
	if opts.RefreshParallelism <= 0 {
		opts.RefreshParallelism = defaultRefreshParallelism
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		store: store,
		builder: &Builder{
			store:          store,
			now:            opts.Now,
			topPriorities:  opts.TopPriorities,
			riskyThreshold: opts.RiskyThreshold,
		},
		parallelism: opts.RefreshParallelism,
		logger:      opts.Logger,
		onBuild:     opts.OnBuild,
	}
}

// Build generates a snapshot for the scope and appends it to the store.
func (c *Cache) Build(ctx context.Context, userID, cycleID string) (*Snapshot, error) {
	s, _, err := c.build(ctx, userID, cycleID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BuildVerbose generates and persists a snapshot and returns its verbose form.
func (c *Cache) BuildVerbose(ctx context.Context, userID, cycleID string) (*Verbose, error) {
	s, err := c.Build(ctx, userID, cycleID)
	if err != nil {
		return nil, err
	}
	return ToVerbose(s), nil
}

func (c *Cache) build(ctx context.Context, userID, cycleID string) (*Snapshot, []byte, error) {
	s, payload, err := c.buildAndStore(ctx, userID, cycleID)
	if c.onBuild != nil {
		c.onBuild(scopeOf(cycleID), err)
	}
	if err != nil {
		return nil, nil, okrerrors.ErrSnapshotWrite(userID, cycleID, err)
	}
	return s, payload, nil
}

func (c *Cache) buildAndStore(ctx context.Context, userID, cycleID string) (*Snapshot, []byte, error) {
	s, at, err := c.builder.Build(ctx, userID, cycleID)
	if err != nil {
		return nil, nil, err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("encode snapshot: %w", err)
	}
	row := &db.Snapshot{UserID: userID, CycleID: cycleID, Payload: payload, CreatedAt: at}
	if err := c.store.InsertSnapshot(ctx, row); err != nil {
		return nil, nil, err
	}
	return s, payload, nil
}

// Refresh regenerates the global snapshot and one per active cycle of the
// user. Each build runs independently; failures are logged and joined.
func (c *Cache) Refresh(ctx context.Context, userID string) error {
	cycleIDs, err := c.store.ListActiveCycleIDs(ctx, userID)
	if err != nil {
		// The global snapshot does not depend on cycles.
		c.logger.Warn("list active cycles failed", "user_id", userID, "error", err)
	}

	scopes := append([]string{""}, cycleIDs...)
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("list active cycles: %w", err))
	}
	g.SetLimit(c.parallelism)
	for _, cycleID := range scopes {
		g.Go(func() error {
			if _, err := c.Build(ctx, userID, cycleID); err != nil {
				c.logger.Warn("snapshot refresh failed", "user_id", userID, "cycle_id", cycleID, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// GetLatest returns the newest stored snapshot for the scope, building one
// on a miss. Concurrent misses for the same scope share one build.
func (c *Cache) GetLatest(ctx context.Context, userID, cycleID string) (*Snapshot, error) {
	payload, err := c.latestPayload(ctx, userID, cycleID)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// GetLatestVerbose is GetLatest in verbose form.
func (c *Cache) GetLatestVerbose(ctx context.Context, userID, cycleID string) (*Verbose, error) {
	s, err := c.GetLatest(ctx, userID, cycleID)
	if err != nil {
		return nil, err
	}
	return ToVerbose(s), nil
}

// LatestField extracts a gjson path from the latest snapshot for the scope.
func (c *Cache) LatestField(ctx context.Context, userID, cycleID, path string) (gjson.Result, error) {
	payload, err := c.latestPayload(ctx, userID, cycleID)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(payload) {
		return gjson.Result{}, fmt.Errorf("stored snapshot for %s is not valid JSON", userID)
	}
	return gjson.GetBytes(payload, path), nil
}

func (c *Cache) latestPayload(ctx context.Context, userID, cycleID string) ([]byte, error) {
	row, err := c.store.LatestSnapshot(ctx, userID, cycleID)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row.Payload, nil
	}

	// The build is shared by every waiter, so one caller's cancellation
	// must not fail it for the rest.
	shared := context.WithoutCancel(ctx)
	result, err, _ := c.group.Do(userID+"\x00"+cycleID, func() (any, error) {
		// Another caller may have stored one while we waited.
		row, err := c.store.LatestSnapshot(shared, userID, cycleID)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return row.Payload, nil
		}
		_, payload, err := c.build(shared, userID, cycleID)
		if err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func scopeOf(cycleID string) string {
	if cycleID == "" {
		return ScopeGlobal
	}
	return ScopeCycle
}
