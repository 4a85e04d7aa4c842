// Package cmd implements the galos command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"galos/internal/config"
	"galos/internal/db"
	"galos/internal/logger"
)

// app carries the state shared by every subcommand.
type app struct {
	version  string
	database string
	cfg      *config.Config
}

// NewRootCommand builds the galos command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version}
	root := &cobra.Command{
		Use:     "galos",
		Short:   "Elite: Dangerous galaxy store and jump route planner",
		Version: version,
		Long: `galos keeps a database of star systems fed from player journals, the EDDN
relay and the EDSM/EDDB nightly dumps, and plots jump routes across it.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.load() },
	}
	root.PersistentFlags().StringVarP(&a.database, "database", "d", "", "override the DATABASE_URL from the environment or .env")

	root.AddCommand(
		newRouteCmd(a),
		newSearchCmd(a),
		newNearCmd(a),
		newSyncCmd(a),
		newServeCmd(a),
	)
	return root
}

// Execute runs the command line until it finishes or the process is
// interrupted. Logs go to stderr so command output can be piped.
func Execute(version string) error {
	logger.SetOutput(os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(version).ExecuteContext(ctx)
}

func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.database != "" {
		cfg.DatabaseURL = a.database
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	a.cfg = cfg
	return nil
}

func (a *app) open(ctx context.Context) (*db.DB, error) {
	return db.Open(ctx, a.cfg)
}
