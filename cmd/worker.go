package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"receivables/internal/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process settlement and receipt tasks from Redis",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("worker")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "app")
	if err != nil {
		return err
	}
	defer a.Close()

	server, mux, err := a.NewWorker()
	if err != nil {
		return err
	}
	if err := a.StartBackground(ctx); err != nil {
		return err
	}

	if err := server.Start(mux); err != nil {
		return err
	}
	log.Info().Int("concurrency", cfg.Queuing.Concurrency).Msg("worker started")

	<-ctx.Done()
	log.Info().Msg("worker stopping")
	server.Shutdown()
	return nil
}
