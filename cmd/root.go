// Package cmd defines and implements the CLI commands for the osv-discovery executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/osvhub/osv-discovery/internal/config"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/server"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var cfgFile string

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// App defines the application surface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	RunSession(ctx context.Context, opts crawler.SessionOptions) (vessel.CrawlSession, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	app, err := server.Build(ctx, cfg, Version)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// migrateSchema applies the database schema. Replaced in tests.
var migrateSchema = server.Migrate

// loadConfig reads configuration. Replaced in tests.
var loadConfig = config.Load

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "osv-discovery",
		Short: "Discovers offshore support vessels from MOSVA member fleets.",
		Long: `osv-discovery crawls the websites of MOSVA member companies, extracts the
offshore support vessels they operate, collects photos and spec sheets,
enriches vessels from public IMO databases and publishes them as charter
listings. A dashboard API and WebSocket feed report progress live.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand so each sees the same validated config.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, &cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override it")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "osv-discovery: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
