package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"receivables/internal/common"
	"receivables/internal/config"
	"receivables/internal/logger"
	"receivables/pkg/database"
)

var runBillingCmd = &cobra.Command{
	Use:   "run-billing",
	Short: "Emit invoices for every subscription due on a date",
	Example: `  receivables run-billing
  receivables run-billing --date 2025-03-01`,
	RunE: runBilling,
}

var sendRemindersCmd = &cobra.Command{
	Use:   "send-reminders",
	Short: "Dispatch reminders for overdue invoices under the current policy",
	RunE:  runSendReminders,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(runBillingCmd, sendRemindersCmd, migrateCmd)

	runBillingCmd.Flags().String("date", "", "billing date (format: YYYY-MM-DD, default: today)")
}

func runBilling(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("run-billing")

	dateStr, _ := cmd.Flags().GetString("date")
	today, err := common.ParseDate(dateStr, "date")
	if err != nil {
		return err
	}
	if today.IsZero() {
		today = time.Now()
	}

	a, err := newApp(cmd.Context(), "app")
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Services.Subscriptions.ProcessAllDue(cmd.Context(), today)
	if err != nil {
		return err
	}
	log.Info().
		Str("date", today.Format(common.DateLayout)).
		Int("processed", result.Processed).
		Int("emitted", result.Emitted).
		Int("failed", result.Failed).
		Msg("billing run finished")
	for _, msg := range result.Errors {
		log.Warn().Msg(msg)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d invoices emitted from %d subscriptions (%d failed)\n",
		result.Emitted, result.Processed, result.Failed)
	return nil
}

func runSendReminders(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "app")
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Services.Reminders.RunOverdueReminders(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary.String())
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate needs the %q driver", config.DriverPostgres)
	}
	log := logger.WithComponent("migrate")

	pool, err := database.NewPool(cmd.Context(), cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.Migrate(cmd.Context(), pool); err != nil {
		return err
	}
	log.Info().Msg("schema applied")
	return nil
}
