// Package engine is the entry point to goal recomputation. It wires the
// goal store, the scoring models, the background cascade pipeline and the
// snapshot cache behind one facade.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randalmurphal/okr/internal/cascade"
	"github.com/randalmurphal/okr/internal/config"
	"github.com/randalmurphal/okr/internal/db"
	"github.com/randalmurphal/okr/internal/db/driver"
	"github.com/randalmurphal/okr/internal/enrich"
	"github.com/randalmurphal/okr/internal/events"
	"github.com/randalmurphal/okr/internal/scoring"
	"github.com/randalmurphal/okr/internal/snapshot"
)

// Options configures an Engine beyond what Config holds.
type Options struct {
	// Now defaults to time.Now.
	Now    scoring.Clock
	Logger *slog.Logger
	// Registerer receives the engine metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// Publisher carries change events. Nil creates an in-memory publisher
	// owned by the engine.
	Publisher events.Publisher
}

// Engine recomputes derived goal signals and serves snapshots.
type Engine struct {
	cfg    *config.Config
	store  *db.GoalDB
	logger *slog.Logger

	publisher   events.Publisher
	coordinator *cascade.Coordinator
	dispatcher  *cascade.Dispatcher
	cache       *snapshot.Cache
	metrics     *cascade.Metrics
	stopListen  func()

	ownsStore     bool
	ownsPublisher bool
	closeOnce     sync.Once
	closeErr      error
}

// Open validates cfg, opens the configured goal store and starts an engine
// that closes the store with itself.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := driver.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}

	var store *db.GoalDB
	if dialect == driver.DialectSQLite {
		store, err = db.OpenGoals(ctx, cfg.Database.DSN)
	} else {
		store, err = db.OpenGoalsWithDialect(ctx, cfg.Database.DSN, dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open goal store: %w", err)
	}

	e := New(store, cfg, opts)
	e.ownsStore = true
	return e, nil
}

// New starts an engine over an open store. The caller keeps ownership of
// the store. A nil cfg uses config.Default().
func New(store *db.GoalDB, cfg *config.Config, opts Options) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{cfg: cfg, store: store, logger: opts.Logger, publisher: opts.Publisher}
	if e.publisher == nil {
		e.publisher = events.NewMemoryPublisher()
		e.ownsPublisher = true
	}
	if opts.Registerer != nil {
		e.metrics = cascade.NewMetrics(opts.Registerer)
		if counted, ok := e.publisher.(interface{ Dropped() int64 }); ok {
			e.metrics.WatchEventDrops(counted.Dropped)
		}
	}

	e.cache = snapshot.NewCache(store, snapshot.Options{
		Now:                opts.Now,
		TopPriorities:      cfg.Snapshot.TopPriorities,
		RiskyThreshold:     cfg.Snapshot.RiskyThreshold,
		RefreshParallelism: cfg.Snapshot.RefreshParallelism,
		Logger:             opts.Logger,
		OnBuild:            e.metrics.SnapshotBuilt,
	})

	models := scoring.New(store, scoring.Options{
		Now:               opts.Now,
		MaxHierarchyDepth: cfg.Cascade.MaxHierarchyDepth,
		Logger:            opts.Logger,
	})
	e.coordinator = cascade.NewCoordinator(store, models, enrich.NewScorer(store, opts.Logger), e.cache, cascade.Options{
		MaxHierarchyDepth: cfg.Cascade.MaxHierarchyDepth,
		Logger:            opts.Logger,
		Metrics:           e.metrics,
	})

	e.dispatcher = cascade.NewDispatcher(e.coordinator, cascade.DispatcherOptions{
		Workers:      cfg.Cascade.Workers,
		QueueSize:    cfg.Cascade.QueueSize,
		MaxRetries:   cfg.Cascade.MaxRetries,
		RetryBackoff: cfg.Cascade.RetryBackoff,
		Logger:       opts.Logger,
		Metrics:      e.metrics,
	})
	e.stopListen = cascade.Listen(e.publisher, e.dispatcher, opts.Logger)

	return e
}

// Close stops listening for changes, runs every queued cascade and
// releases what the engine owns. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.stopListen()
		e.dispatcher.Close()
		if e.ownsPublisher {
			e.publisher.Close()
		}
		if e.ownsStore {
			e.closeErr = e.store.Close()
		}
	})
	return e.closeErr
}

// Store returns the underlying goal store.
func (e *Engine) Store() *db.GoalDB {
	return e.store
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// FailedCascades lists background cascade jobs that ran out of retries.
func (e *Engine) FailedCascades() []string {
	return e.dispatcher.Tracker().Failed()
}

// OnTaskChanged schedules a background cascade for the task. It returns
// immediately.
func (e *Engine) OnTaskChanged(taskID string) {
	e.publisher.Publish(events.TaskChanged(taskID))
}

// OnKRChanged schedules a background cascade for the key result. It
// returns immediately.
func (e *Engine) OnKRChanged(krID string) {
	e.publisher.Publish(events.KRChanged(krID))
}

// CascadeTask runs a task cascade in the caller's goroutine.
func (e *Engine) CascadeTask(ctx context.Context, taskID string) error {
	return e.coordinator.CascadeFromTask(ctx, taskID)
}

// CascadeKR runs a key result cascade in the caller's goroutine.
func (e *Engine) CascadeKR(ctx context.Context, krID string) error {
	return e.coordinator.CascadeFromKR(ctx, krID)
}

// RecomputeAll rescores everything visible to the user.
func (e *Engine) RecomputeAll(ctx context.Context, userID string) error {
	return e.coordinator.RecomputeAll(ctx, userID)
}

// GetSnapshot returns the latest compact snapshot for the scope, building
// one if none is stored. An empty cycleID is the global scope.
func (e *Engine) GetSnapshot(ctx context.Context, userID, cycleID string) (*snapshot.Snapshot, error) {
	return e.cache.GetLatest(ctx, userID, cycleID)
}

// GetVerboseSnapshot is GetSnapshot with full field names.
func (e *Engine) GetVerboseSnapshot(ctx context.Context, userID, cycleID string) (*snapshot.Verbose, error) {
	return e.cache.GetLatestVerbose(ctx, userID, cycleID)
}

// SnapshotField extracts one gjson path from the latest snapshot.
func (e *Engine) SnapshotField(ctx context.Context, userID, cycleID, path string) (string, error) {
	res, err := e.cache.LatestField(ctx, userID, cycleID, path)
	if err != nil {
		return "", err
	}
	if !res.Exists() {
		return "", fmt.Errorf("snapshot has no field %q", path)
	}
	return res.Raw, nil
}

// RefreshSnapshot rebuilds the user's global and per-cycle snapshots.
func (e *Engine) RefreshSnapshot(ctx context.Context, userID string) error {
	return e.cache.Refresh(ctx, userID)
}

// Priorities returns the user's top not-done tasks by priority score.
// A non-positive limit uses the configured snapshot size.
func (e *Engine) Priorities(ctx context.Context, userID string, limit int) ([]db.PriorityTask, error) {
	if limit <= 0 {
		limit = e.cfg.Snapshot.TopPriorities
	}
	return e.store.ListPriorityTasks(ctx, userID, limit)
}

// Risks lists key results at or above the filter's risk threshold.
func (e *Engine) Risks(ctx context.Context, f db.RiskFilter) ([]db.RiskyKeyResult, error) {
	if f.UserID == "" {
		return nil, errors.New("risks: user id is required")
	}
	if f.Threshold < 0 {
		f.Threshold = 0
	}
	return e.store.ListRiskyKeyResults(ctx, f)
}
