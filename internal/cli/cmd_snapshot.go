package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/okr/internal/engine"
)

// newSnapshotCmd creates the snapshot command
func newSnapshotCmd() *cobra.Command {
	var (
		cycleID string
		field   string
	)

	cmd := &cobra.Command{
		Use:   "snapshot <user>",
		Short: "Print a user's latest snapshot",
		Long: `Print the latest stored snapshot for a user, building one if none exists.

Without --cycle the global snapshot is printed. Output uses the compact
key names unless --verbose is set. --field prints one value selected by
a gjson path from the stored snapshot.

Examples:
  okr snapshot u1
  okr snapshot u1 --cycle q3 --verbose
  okr snapshot u1 --field 'risky.#.id'
  okr snapshot u1 --field stats.overdue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			out := cmd.OutOrStdout()
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if field != "" {
					raw, err := e.SnapshotField(ctx, userID, cycleID, field)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, raw)
					return nil
				}
				if verbose {
					s, err := e.GetVerboseSnapshot(ctx, userID, cycleID)
					if err != nil {
						return err
					}
					return writeJSON(out, s)
				}
				s, err := e.GetSnapshot(ctx, userID, cycleID)
				if err != nil {
					return err
				}
				return writeJSON(out, s)
			})
		},
	}

	cmd.Flags().StringVar(&cycleID, "cycle", "", "cycle scope (default global)")
	cmd.Flags().StringVar(&field, "field", "", "gjson path of a single value to print")

	return cmd
}
