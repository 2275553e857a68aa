package cmd

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/configs"
	logger "github.com/PolarWolf314/zkdrive/internal/logging"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	debug   bool
	Logger  logger.Logger

	VaultCmd = &cobra.Command{
		Use:   "vault",
		Short: "Manage your encrypted vault",
		Long: `Sign up, unlock, and move files in and out of your zero-knowledge vault.

Everything is encrypted on this machine before it is stored. The backend
only ever sees ciphertext, wrapped keys and a hash derived from your
password.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			Logger = logger.Logger{
				Verbose: verbose,
				Debug:   debug,
			}
			Logger.Debugf("Initializing vault command with verbose=%t, debug=%t", verbose, debug)
		},
	}
)

func init() {
	VaultCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	VaultCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")

	VaultCmd.AddCommand(signupCmd)
	VaultCmd.AddCommand(unlockCmd)
	VaultCmd.AddCommand(lockCmd)
	VaultCmd.AddCommand(logoutCmd)
	VaultCmd.AddCommand(statusCmd)
	VaultCmd.AddCommand(mkdirCmd)
	VaultCmd.AddCommand(lsCmd)
	VaultCmd.AddCommand(uploadCmd)
	VaultCmd.AddCommand(downloadCmd)
	VaultCmd.AddCommand(rmCmd)
	VaultCmd.AddCommand(logCmd)
	VaultCmd.AddCommand(doctorCmd)
}

// openEnv loads the configuration and opens the backend and session.
func openEnv(ctx context.Context) (*workflows.Env, error) {
	settings := configs.ZkdriveSettings
	Logger.Debugf("Loading config from %s", settings.ConfigPath)
	config, err := configs.LoadConfig(settings.ConfigPath, settings.EnvPath)
	if err != nil {
		return nil, err
	}
	env, err := workflows.OpenEnv(ctx, workflows.EnvOptions{
		Config:   config,
		Settings: settings,
		Logger:   Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	return env, nil
}

// GetVaultCmd returns the VaultCmd for testing.
func GetVaultCmd() *cobra.Command {
	return VaultCmd
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	resetSignupCommandState()
	resetUnlockCommandState()
	resetStatusCommandState()
	resetMkdirCommandState()
	resetLsCommandState()
	resetUploadCommandState()
	resetDownloadCommandState()
	resetLogCommandState()
	resetDoctorCommandState()
}

// SetVerbose sets the verbose flag for testing.
func SetVerbose(v bool) {
	verbose = v
}

// SetDebug sets the debug flag for testing.
func SetDebug(d bool) {
	debug = d
}
