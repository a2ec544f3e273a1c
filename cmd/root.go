package cmd

import (
	"github.com/maxkimambo/sparkflow/internal/logger"
	"github.com/spf13/cobra"
)

var (
	debug    bool
	verbose  bool
	jsonLogs bool
	quiet    bool
	envFile  string
	version  = "v0.1.0"

	rootCmd = &cobra.Command{
		Use:   "sparkflow",
		Short: "Run hourly ETL pipelines that stage, load and check warehouse tables",
		Long: `sparkflow runs a pipeline of dependent tasks against a Redshift-compatible warehouse.

Each run stages raw JSON from object storage, loads a fact table and its dimensions,
and finishes with data-quality checks. Tasks run as soon as their upstream tasks
succeed, failed tasks are retried with a fixed delay, and a failure skips every task
that depends on it.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(verbose || debug, jsonLogs, quiet)
			if debug {
				logger.Op.Debug("Debug logging enabled")
			}
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Read settings from this file instead of ./.env")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(validateCmd)
}
