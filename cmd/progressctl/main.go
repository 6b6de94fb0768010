// Command progressctl drives the progression engine against a local SQLite
// store: award XP, log activities, inspect state and run the daily pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forgo/progression/internal/app"
	"github.com/forgo/progression/internal/config"
)

// cli holds the flags and the engine shared by every subcommand
type cli struct {
	dbPath  string
	userID  string
	verbose bool
	asJSON  bool
	timeout time.Duration

	// now overrides the clock; tests pin it
	now func() time.Time

	cfg    *config.Config
	logger *zap.Logger
	engine *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	return c.rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "progressctl",
		Short: "Local control for the progression engine",
		Long: `progressctl reads and mutates a user's progression record in a local
SQLite database. Configuration comes from PROGRESSION_CONFIG and the
environment; --db overrides the database file.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.teardown()
		},
	}

	// Global flags
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite database file (default from config)")
	root.PersistentFlags().StringVarP(&c.userID, "user", "u", "", "User id (default from config)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "Print JSON instead of text")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(
		c.awardCmd(),
		c.activityCmd(),
		c.freezeCmd(),
		c.statusCmd(),
		c.queryCmd(),
		c.badgesCmd(),
		c.runCmd(),
		c.catchUpCmd(),
		c.correlateCmd(),
		c.reportsCmd(),
	)
	return root
}

// setup loads configuration, builds the logger and opens the engine
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Database.Driver = config.DriverSQLite
	if c.dbPath != "" {
		cfg.Database.SQLitePath = c.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.userID == "" {
		c.userID = cfg.Engine.DefaultUserID
	}
	c.cfg = cfg

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if c.verbose {
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	c.logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()
	c.engine, err = app.Open(ctx, cfg, c.logger, app.Options{Now: c.now})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	return nil
}

func (c *cli) teardown() {
	if c.engine != nil {
		_ = c.engine.Close()
		c.engine = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// context bounds one command by --timeout
func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
