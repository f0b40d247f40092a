package cmd

import (
	"github.com/ethpandaops/devsync/pkg/cache"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Delete cached device keys by prefix",
	Long: `Delete every key matching the configured prefixes in each configured
Redis database, regardless of redis.enableCleanup.`,
	RunE: runEvict,
}

func init() {
	rootCmd.AddCommand(evictCmd)
}

func runEvict(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	evictor, err := cache.NewEvictor(logger, &cfg.Redis)
	if err != nil {
		return err
	}

	report, err := evictor.Evict(ctx)
	if err != nil {
		return err
	}

	for _, e := range report.Errors() {
		logger.WithError(e).Warn("Eviction error")
	}

	logger.WithFields(logrus.Fields{
		"deleted":  report.TotalDeleted(),
		"duration": report.Duration,
	}).Info("Cache cleanup complete")

	pushMetrics(cfg)

	return nil
}
