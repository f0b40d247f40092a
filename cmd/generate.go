package cmd

import (
	"github.com/ethpandaops/devsync/pkg/reconcile"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Fetch the client list and write the SQL artifact only",
	Long: `Fetch the broker client list, render one statement per LAN-side client
and write them to the configured output file. Nothing is executed and the
cache is left alone.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd, reconcile.Options{DryRun: true})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
