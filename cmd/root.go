package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"receivables/internal/app"
	"receivables/internal/config"
	"receivables/internal/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "receivables",
	Short: "Invoices, payments, subscriptions and collections",
	Long: `receivables issues invoices, records payments against them, bills
recurring subscriptions, reminds customers about overdue balances and
settles online payments made through payment links.

Configuration is read from a TOML file and overridden by environment
variables (DATABASE_URL, REDIS_ADDR, MINIO_ENDPOINT, ...).`,
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Setup(logger.FromConfig(loaded.Logging)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to the TOML configuration file")
}

// newApp wires the application for one command.
func newApp(ctx context.Context, component string) (*app.App, error) {
	return app.New(ctx, cfg, clockwork.NewRealClock(), logger.WithComponent(component))
}
