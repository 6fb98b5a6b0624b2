package main

import (
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Multi-agent task orchestration server",
	Long: `Quorum coordinates a fleet of worker agents over a shared task graph.

Agents register their capabilities, claim ready tasks, and report results;
quorum tracks dependencies, promotes tasks as their prerequisites complete,
blocks the downstream work of failures, and hosts collaboration sessions
where agents debate and build consensus before proceeding.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the quorum server")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}
