package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"roboadvisor/pkg/app"
	"roboadvisor/pkg/batch"
	"roboadvisor/pkg/config"
)

var (
	logLevel    string
	maxAnalyses int
	cronSpec    string
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dailyjob",
	Short: "Nightly portfolio and watchlist analysis batch",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Server.LogLevel = logLevel
			config.SetupLogging(loaded.Server)
		}
		if maxAnalyses > 0 {
			loaded.Batch.MaxAnalyses = maxAnalyses
		}
		cfg = loaded
		return nil
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one batch now and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		summary, err := application.BatchRunner(application.Reporter()).RunNightlyBatch(cmd.Context())
		if err != nil {
			return fmt.Errorf("batch run: %w", err)
		}
		logrus.Infof("批处理完成: %d 次分析, %d 个错误", summary.TotalAnalyses, summary.TotalErrors)
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the batch on a cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		spec := cfg.Batch.Cron
		if cronSpec != "" {
			spec = cronSpec
		}
		scheduler := batch.NewScheduler(application.BatchRunner(application.Reporter()), spec)
		if err := scheduler.Start(cmd.Context()); err != nil {
			return err
		}

		<-cmd.Context().Done()
		scheduler.Stop()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")
	rootCmd.PersistentFlags().IntVar(&maxAnalyses, "max-analyses", 0, "Override BATCH_MAX_ANALYSES")
	scheduleCmd.Flags().StringVar(&cronSpec, "cron", "", "Override BATCH_CRON (with seconds field)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
