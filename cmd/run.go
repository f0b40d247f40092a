package cmd

import (
	"context"
	"time"

	"github.com/ethpandaops/devsync/pkg/config"
	"github.com/ethpandaops/devsync/pkg/observability"
	"github.com/ethpandaops/devsync/pkg/reconcile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const pushTimeout = 10 * time.Second

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	runDryRun   bool
	runFromFile string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full reconciliation pipeline",
	Long: `Fetch the broker client list, write the corrective SQL artifact, then
execute it and clean the cache when enabled in the config.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd, reconcile.Options{DryRun: runDryRun, FromFile: runFromFile})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "write the artifact only, never execute SQL or touch the cache")
	runCmd.Flags().StringVar(&runFromFile, "from-file", "", "replay statements from an existing artifact instead of fetching")
}

func runPipeline(cmd *cobra.Command, opts reconcile.Options) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	svc, err := reconcile.NewService(logger, cfg, opts)
	if err != nil {
		return err
	}

	_, err = svc.Run(ctx)

	pushMetrics(cfg)

	return err
}

// pushMetrics replaces the job's metrics on the Pushgateway when one is configured
func pushMetrics(cfg *config.Config) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := observability.Push(ctx, &cfg.Metrics, observability.Registry, nil); err != nil {
		logger.WithError(err).Warn("Failed to push metrics")

		return
	}

	logger.WithFields(logrus.Fields{
		"url": cfg.Metrics.PushgatewayURL,
		"job": cfg.Metrics.Job,
	}).Debug("Pushed metrics")
}
