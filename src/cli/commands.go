package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	versionpkg "browser-engine/src/internal/version"
)

// CLI Constants
const (
	DefaultServerPort = 8080
	CmdServer         = "server"
	CmdStatus         = "status"
	CmdVersion        = "version"
	CmdConfig         = "config"
	CmdSnapshot       = "snapshot"
	FlagConfig        = "config"
	FlagPort          = "port"
	FlagAddr          = "addr"
)

// CLI Variables
var (
	configPath string
	serverAddr string
)

// Root command
var rootCmd = &cobra.Command{
	Use:   "browser-engine",
	Short: "Browser Engine - predictive caching, tab suspension, and background task scheduling",
	Long: `Browser Engine manages browser resources: it decides what to speculatively
prefetch and cache, which idle tabs to suspend under memory pressure, and
schedules the background work with retries and backoff.

QUICK START:
  browser-engine server                    # Start the optimization gateway (port 8080)
  browser-engine status                    # Show engine and task status

CORE FEATURES:
  - Admission-controlled, budget-bounded predictive cache
  - Pressure-driven tab suspension with cooperative restore
  - Priority task scheduling with exponential backoff retries
  - Resource monitoring with debounced pressure-change callbacks
  - Warm-start snapshots for cache and tab state

AVAILABLE COMMANDS:
  browser-engine server                    # Start the HTTP gateway
  browser-engine status                    # Query a running gateway
  browser-engine config init               # Write a default config file
  browser-engine snapshot inspect          # Summarize persisted snapshots
  browser-engine version                   # Show version information

Use 'browser-engine <command> --help' for detailed command information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   CmdVersion,
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionpkg.GetFullVersionInfo())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, FlagConfig, "", "Path to configuration file")

	serverCmd.Flags().StringVar(&serverAddr, FlagAddr, fmt.Sprintf("localhost:%d", DefaultServerPort), "Gateway listen address")
	statusCmd.Flags().StringVar(&serverAddr, FlagAddr, fmt.Sprintf("localhost:%d", DefaultServerPort), "Gateway address to query")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
