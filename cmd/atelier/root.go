package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	rootConfigPath string
	rootDebugLog   string
)

var rootCmd = &cobra.Command{
	Use:   "atelier",
	Short: "Goal-driven agent runner and orchestrator",
	Long: `Atelier runs natural-language goals through a plan, execute, observe,
replan, compose loop backed by a tool registry, and orchestrates multiple
role-configured agents over a shared work queue.

Core capabilities:
- Plans goals into validated, dependency-ordered tool steps
- Executes steps against built-in and remote provider tools
- Replans once around hard tool failures, falling back to a direct answer
- Recalls past episodes from local memory to inform planning
- Merges multi-agent results deterministically in submission order`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to a config file (overrides user and project config)")
	rootCmd.PersistentFlags().StringVar(&rootDebugLog, "debug-log", "", "Write debug logs to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
