// Package scoring implements the derived-signal models of the goal graph:
// key result and objective progress, risk, velocity, task priority and
// alignment depth.
//
// Every model recomputes from current stored inputs and writes its result
// back inside one short transaction, so repeated runs on unchanged inputs
// persist identical values.
package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/okr/internal/db"
	okrerrors "github.com/randalmurphal/okr/internal/errors"
)

// DefaultMaxHierarchyDepth bounds every walk along parent key result links.
const DefaultMaxHierarchyDepth = 32

// Clock returns the evaluation time.
type Clock func() time.Time

// Options configures the models.
type Options struct {
	// Now defaults to time.Now.
	Now Clock
	// MaxHierarchyDepth defaults to DefaultMaxHierarchyDepth.
	MaxHierarchyDepth int
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.MaxHierarchyDepth <= 0 {
		o.MaxHierarchyDepth = DefaultMaxHierarchyDepth
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Models bundles the five models over one store.
type Models struct {
	Progress  *Progress
	Risk      *Risk
	Velocity  *Velocity
	Priority  *Priority
	Alignment *Alignment
}

// New creates all models over store.
func New(store db.Store, opts Options) *Models {
	opts = opts.withDefaults()
	return &Models{
		Progress:  &Progress{store: store},
		Risk:      &Risk{store: store, now: opts.Now, logger: opts.Logger},
		Velocity:  &Velocity{store: store, now: opts.Now, logger: opts.Logger},
		Priority:  &Priority{store: store, now: opts.Now},
		Alignment: &Alignment{store: store, maxDepth: opts.MaxHierarchyDepth, logger: opts.Logger},
	}
}

// writeErr wraps a failed derived write as a structured error.
func writeErr(entity, id, field string, err error) error {
	if err == nil {
		return nil
	}
	if okrerrors.AsEngineError(err) != nil {
		return err
	}
	return okrerrors.ErrDerivedWrite(entity, id, field, err)
}

// inStep runs one read-compute-write step in its own transaction.
// Failures of the step itself, commit included, surface as derived write errors.
func inStep(ctx context.Context, store db.Store, entity, id, field string, fn func(tx db.Store) error) error {
	return writeErr(entity, id, field, store.InTx(ctx, fn))
}
