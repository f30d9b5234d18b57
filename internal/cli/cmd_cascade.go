package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/okr/internal/engine"
)

type cascadeResult struct {
	Trigger  string `json:"trigger"`
	ID       string `json:"id"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
}

// newCascadeCmd creates the cascade command with subcommands.
func newCascadeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cascade",
		Short: "Recompute signals after a change",
		Long: `Run a cascade synchronously, as the engine does in the background when
a task or key result changes.

Subcommands:
  task  Rescore a task, then bubble up through its key result
  kr    Recompute a key result, its ancestors and its objective

Both refresh the owner's snapshots when they finish.`,
	}

	cmd.AddCommand(newCascadeRunCmd("task", "Cascade from a task", cascadeTrigger{
		run:      func(ctx context.Context, e *engine.Engine, id string) error { return e.CascadeTask(ctx, id) },
		schedule: func(e *engine.Engine, id string) { e.OnTaskChanged(id) },
	}))
	cmd.AddCommand(newCascadeRunCmd("kr", "Cascade from a key result", cascadeTrigger{
		run:      func(ctx context.Context, e *engine.Engine, id string) error { return e.CascadeKR(ctx, id) },
		schedule: func(e *engine.Engine, id string) { e.OnKRChanged(id) },
	}))

	return cmd
}

// cascadeTrigger runs a cascade in place or schedules it on the
// engine's background workers.
type cascadeTrigger struct {
	run      func(context.Context, *engine.Engine, string) error
	schedule func(*engine.Engine, string)
}

// runBackground schedules the cascade, then closes the engine to drain the
// workers and reports jobs that ran out of retries.
func (t cascadeTrigger) runBackground(e *engine.Engine, id string) error {
	t.schedule(e, id)
	if err := e.Close(); err != nil {
		return err
	}
	if failed := e.FailedCascades(); len(failed) > 0 {
		return fmt.Errorf("background cascade failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

func newCascadeRunCmd(trigger, short string, t cascadeTrigger) *cobra.Command {
	var background bool

	cmd := &cobra.Command{
		Use:   trigger + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				start := time.Now()
				var err error
				if background {
					err = t.runBackground(e, id)
				} else {
					err = t.run(ctx, e, id)
				}
				if err != nil {
					return err
				}
				res := cascadeResult{Trigger: trigger, ID: id, Status: "ok", Duration: time.Since(start).Round(time.Millisecond).String()}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cascaded %s %s %s\n", trigger, id,
					dim("("+res.Duration+")", useColor(cmd.OutOrStdout())))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&background, "background", false, "publish a change event and let the worker pool cascade it")

	return cmd
}
