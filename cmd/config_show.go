package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/configs"
	"github.com/PolarWolf314/zkdrive/internal/ui"

	"github.com/spf13/cobra"
)

var configShowJSON bool

func init() {
	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output in JSON format")
	ConfigCmd.AddCommand(configShowCmd)
}

// resetConfigShowState resets the config show command's global state for testing.
func resetConfigShowState() {
	configShowJSON = false
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Displays the configuration zkdrive will use: the config file over the
defaults, with .env and ZKDRIVE_* environment overrides applied.

Examples:
  zkdrive config show
  zkdrive config show --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ConfigLogger.Infof("Starting config show command")
		settings := configs.ZkdriveSettings

		ConfigLogger.Debugf("Loading config from %s", settings.ConfigPath)
		config, err := configs.LoadConfig(settings.ConfigPath, settings.EnvPath)
		if err != nil {
			return ConfigLogger.ErrorfAndReturn("Failed to load config: %v", err)
		}

		if configShowJSON {
			out, err := json.MarshalIndent(config, "", "  ")
			if err != nil {
				return ConfigLogger.ErrorfAndReturn("Failed to encode config: %v", err)
			}
			fmt.Println(string(out))
			return nil
		}

		encoded, err := config.Encode()
		if err != nil {
			return ConfigLogger.ErrorfAndReturn("Failed to encode config: %v", err)
		}
		fmt.Println(ui.Muted.Sprint(settings.ConfigPath))
		fmt.Print(ui.EnsureNewline(encoded))
		fmt.Println()
		fmt.Println("Data directory: " + ui.Path.Sprint(settings.DataDir))
		fmt.Println("Audit log:      " + ui.Path.Sprint(settings.AuditLogPath))
		return nil
	},
}
