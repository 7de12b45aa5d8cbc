package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerDocumentIDs []string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the document worker pool as a daemon",
	Long:  "Starts the bounded extraction pool and serves queued documents until interrupted. Use --document to re-enqueue specific non-terminal documents on startup, e.g. after a crash left them stuck in QUEUED.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		e.coordinator.Start(ctx)
		defer e.coordinator.Stop()

		for _, id := range workerDocumentIDs {
			if err := e.service.ProcessDocument(ctx, id); err != nil {
				return eris.Wrapf(err, "requeue document %s", id)
			}
		}

		zap.L().Info("worker pool running",
			zap.Int("pool_size", cfg.Worker.PoolSize),
			zap.Int("requeued", len(workerDocumentIDs)))

		<-ctx.Done()
		zap.L().Info("worker pool shutting down")
		return nil
	},
}

func init() {
	workerCmd.Flags().StringArrayVar(&workerDocumentIDs, "document", nil, "document ID to re-enqueue on startup (repeatable)")
	rootCmd.AddCommand(workerCmd)
}
