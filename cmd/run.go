package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cjeu-harvester/internal/app"
)

// newRunCmd creates the 'run' subcommand, which performs one harvest.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one incremental harvest",
		Long: `Loads the seen set, discovers identifiers on the configured index pages,
processes at most pipeline.cap new ones and checkpoints the seen set after
every flushed batch. Exits non-zero when the run fails.`,
		Args: cobra.NoArgs,
		RunE: withApp(runHarvest),
	}
}

func runHarvest(cmd *cobra.Command, appInstance *app.App) error {
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, runErr := appInstance.Controller().Run(ctx)

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appInstance.PushMetrics(pushCtx, report.RunID)

	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: %s, %d new record(s) in %d batch(es), %d deferred, %d miss(es), %d fetch failure(s)\n",
		report.RunID, report.State, report.RecordsFlushed, report.BatchesFlushed,
		report.Deferred, report.ExtractionMisses, report.FetchFailures)

	if runErr != nil {
		logger.Error("harvest failed", zap.Error(runErr))
		return fmt.Errorf("harvest failed: %w", runErr)
	}
	return nil
}
