package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"browser-engine/src/config"
	"browser-engine/src/internal/common"
)

var configCmd = &cobra.Command{
	Use:   CmdConfig,
	Short: "Manage engine configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.GetDefaultConfigPath()
		}
		if err := config.GenerateDefaultConfig(path); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

// LoadConfigWithFallback loads the config at path, falling back to the
// default path and then to built-in defaults
func LoadConfigWithFallback(path string) *config.Config {
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		common.CLILogger.Debug("Using default config (%v)", err)
		return config.GetDefaultConfig()
	}

	common.CLILogger.Info("Loaded config from %s", path)
	return cfg
}
