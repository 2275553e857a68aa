package cmd

import (
	"os"

	"github.com/PolarWolf314/zkdrive/internal/configs"
	"github.com/PolarWolf314/zkdrive/internal/kdf"
	"github.com/PolarWolf314/zkdrive/internal/ui"

	"github.com/spf13/cobra"
)

var (
	configInitBackend     string
	configInitURL         string
	configInitLegacyKDF   bool
	configInitPersistKey  bool
	configInitForce       bool
	configInitParallelism int
)

func init() {
	configInitCmd.Flags().StringVar(&configInitBackend, "backend", configs.BackendLocal, "backend to use: local or http")
	configInitCmd.Flags().StringVar(&configInitURL, "url", "", "server URL for the http backend")
	configInitCmd.Flags().BoolVar(&configInitLegacyKDF, "pbkdf2", false, "use PBKDF2 instead of Argon2id for new accounts")
	configInitCmd.Flags().BoolVar(&configInitPersistKey, "persist-key", false, "keep the unlocked master key on this device")
	configInitCmd.Flags().IntVar(&configInitParallelism, "parallelism", 2, "chunks decrypted at once during downloads")
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing config file")
	ConfigCmd.AddCommand(configInitCmd)
}

func resetConfigInitState() {
	configInitBackend = configs.BackendLocal
	configInitURL = ""
	configInitLegacyKDF = false
	configInitPersistKey = false
	configInitParallelism = 2
	configInitForce = false
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Writes a configuration file with default settings and the given flags.

The KDF settings only apply to accounts created afterwards; existing
accounts keep the parameters they signed up with.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ConfigLogger.Infof("Starting config init command")
		spinner, cleanup := startSpinnerWithFlags("Writing configuration...", configVerbose, configDebug)
		defer cleanup()

		path := configs.ZkdriveSettings.ConfigPath
		if _, err := os.Stat(path); err == nil && !configInitForce {
			spinner.FinalMSG = ui.Warning.Sprint("⚠") + " " + ui.Path.Sprint(path) + " already exists\n" +
				ui.Info.Sprint("→") + " Use " + ui.Flag.Sprint("--force") + " to overwrite it"
			return nil
		}

		config := configs.DefaultConfig()
		config.Server.Backend = configInitBackend
		config.Server.URL = configInitURL
		config.Session.PersistMasterKey = configInitPersistKey
		config.Transfer.Parallelism = configInitParallelism
		if configInitLegacyKDF {
			config.KDF = kdf.LegacyParams()
		}

		ConfigLogger.Debugf("Saving config to %s", path)
		if err := configs.SaveConfig(path, config); err != nil {
			ConfigLogger.Errorf("Failed to save config: %v", err)
			spinner.FinalMSG = ui.Error.Sprint("✗") + " Failed to write configuration\n" +
				ui.Error.Sprint("Error: ") + err.Error()
			return nil
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Configuration written to " + ui.Path.Sprint(path) + "\n" +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("zkdrive vault signup --email <email>") + " to create an account"
		return nil
	},
}
