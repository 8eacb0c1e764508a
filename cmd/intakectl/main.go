package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/bootstrap"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	settingsPath string
	jsonOutput   bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:           "intakectl",
	Short:         "intakectl - operate the helpdesk intake pipeline",
	Long:          "Run intake cycles and reconciliation sweeps once from the command line, inspect recent cycle runs, and manage operator keys.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "settings file (default $SETTINGS_FILE or config/settings.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level to stderr")

	rootCmd.AddCommand(runOnceCmd, reconcileCmd, runsCmd, hashKeyCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// buildApp loads configuration and assembles the service graph. The caller
// must Close the returned app and Sync the logger.
func buildApp(ctx context.Context) (*bootstrap.App, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logger.Level = "debug"
	} else if cfg.Logger.Level == "info" {
		cfg.Logger.Level = "warn"
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	path := cfg.SettingsFile
	if settingsPath != "" {
		path = settingsPath
	}
	settings, err := config.LoadSettings(path)
	if err != nil {
		return nil, logger, err
	}

	app, err := bootstrap.Build(ctx, cfg, settings, logger, bootstrap.Overrides{})
	if err != nil {
		return nil, logger, err
	}
	return app, logger, nil
}
