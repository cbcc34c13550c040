package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "maremma",
	Short: "maremma is a self-hosted infrastructure monitor",
	Long: `maremma periodically executes checks against a fleet of declared
hosts on per-service cron schedules, persists each run's outcome, and
exposes live and historical state over HTTP.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "maremma.json", "path to the configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showConfigCmd)
	rootCmd.AddCommand(exportConfigSchemaCmd)
	rootCmd.AddCommand(checkSplunkCmd)
	rootCmd.AddCommand(k8sDiscoveryCmd)
}
