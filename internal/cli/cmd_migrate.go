package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/okr/internal/engine"
)

// newMigrateCmd creates the migrate command
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the goal store schema",
		Long: `Open the configured goal store and apply any pending schema migrations.

Every command migrates on open; migrate does only that.

Examples:
  okr migrate
  okr migrate --dsn /tmp/goals.db
  okr migrate --dialect postgres --dsn postgres://localhost/okr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(_ context.Context, e *engine.Engine) error {
				cfg := e.Config()
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]string{
						"status":  "ok",
						"dialect": cfg.Database.Dialect,
					})
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Goal store ready (%s)\n", cfg.Database.Dialect)
				return nil
			})
		},
	}
}
