package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/okr/internal/engine"
)

// newRecomputeCmd creates the recompute command
func newRecomputeCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "recompute <user>",
		Short: "Rescore everything a user owns",
		Long: `Recompute every derived value for a user: task priority and alignment,
key result progress, risk and velocity, and objective progress and risk.

Use it to repair values after missed change events. Snapshots are left
alone unless --refresh is set.

Examples:
  okr recompute u1
  okr recompute u1 --refresh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.RecomputeAll(ctx, userID); err != nil {
					return err
				}
				if refresh {
					if err := e.RefreshSnapshot(ctx, userID); err != nil {
						return err
					}
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"user_id":   userID,
						"status":    "ok",
						"refreshed": refresh,
					})
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Recomputed goals for %s\n", userID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "also rebuild the user's snapshots")

	return cmd
}

// newRefreshCmd creates the refresh command
func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <user>",
		Short: "Rebuild a user's snapshots",
		Long: `Build and store a fresh global snapshot and one per active cycle.

A failed cycle does not stop the others; all failures are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.RefreshSnapshot(ctx, userID); err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"user_id": userID, "status": "ok"})
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Refreshed snapshots for %s\n", userID)
				return nil
			})
		},
	}
}
