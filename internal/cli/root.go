// Package cli implements the okr command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/okr/internal/config"
	"github.com/randalmurphal/okr/internal/engine"
	"github.com/randalmurphal/okr/internal/events"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool

	// v holds the command-line layer of the configuration.
	v = viper.New()
)

// flagKeys binds root flags to config paths.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"dialect":   "database.dialect",
	"dsn":       "database.dsn",
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context so in-flight cascades stop at their next step.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	v = viper.New()

	cmd := &cobra.Command{
		Use:   "okr",
		Short: "Goal graph recomputation engine",
		Long: `okr keeps the derived signals of an objectives and key results graph
current: progress, risk, velocity, task priority and alignment depth. It
also builds the compact dashboard snapshots read by assistants.

Quick start:
  okr migrate                   Create or upgrade the goal store
  okr recompute USER            Rescore everything a user owns
  okr snapshot USER             Print the user's latest snapshot
  okr risks USER --threshold .5 List at-risk key results`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file layered over .okr/config.yaml")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&jsonOut, "json", false, "output as JSON")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("dialect", "", "goal store dialect (sqlite, postgres)")
	pf.String("dsn", "", "goal store file or connection string")
	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newCascadeCmd())
	cmd.AddCommand(newRecomputeCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newPrioritiesCmd())
	cmd.AddCommand(newRisksCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig layers --config and changed root flags over the file and
// environment layers.
func loadConfig() (*config.TrackedConfig, error) {
	tc, err := config.LoadWithSources()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfgFile != "" {
		if err := tc.MergeFile(cfgFile); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	keys := make([]string, 0, len(flagKeys))
	for _, key := range flagKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !v.IsSet(key) {
			continue
		}
		if err := tc.Config.SetValue(key, v.GetString(key)); err != nil {
			return nil, fmt.Errorf("flag for %s: %w", key, err)
		}
		tc.SetSource(key, config.SourceFlag, "")
	}

	if verbose && tc.GetSource("log_level").Source == config.SourceDefault {
		tc.Config.LogLevel = "debug"
	}
	return tc, nil
}

// newLogger returns a text logger on the command's stderr.
func newLogger(cmd *cobra.Command, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
}

// withEngine opens an engine from the loaded config, runs fn and closes
// the engine, draining any background cascades fn scheduled. With
// --verbose every change event is echoed to stderr.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) (err error) {
	tc, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, tc.Config.LogLevel)
	logger.Debug("opening goal store",
		"dialect", tc.Config.Database.Dialect,
		"dsn_source", tc.GetSource("database.dsn").String())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts := engine.Options{Logger: logger}
	if verbose {
		pub := events.NewCLIPublisher(cmd.ErrOrStderr(), events.WithInnerPublisher(events.NewMemoryPublisher()))
		defer pub.Close()
		opts.Publisher = pub
	}

	e, err := engine.Open(ctx, tc.Config, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, e.Close())
	}()

	return fn(ctx, e)
}
