package cmd

import (
	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Forget the master key but stay signed in",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting lock command")
		spinner, cleanup := startSpinner("Locking...", verbose)
		defer cleanup()

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		result, err := workflows.Lock(cmd.Context(), env)
		if err != nil {
			spinner.FinalMSG = failureMessage("Failed to lock", err)
			return nil
		}
		if !result.WasUnlocked {
			spinner.FinalMSG = ui.Info.Sprint("→") + " Vault was already locked"
			return nil
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Vault locked"
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the master key and the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting logout command")
		spinner, cleanup := startSpinner("Signing out...", verbose)
		defer cleanup()

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		result, err := workflows.Logout(cmd.Context(), env)
		if err != nil {
			spinner.FinalMSG = failureMessage("Failed to sign out", err)
			return nil
		}
		if result.Email == "" {
			spinner.FinalMSG = ui.Info.Sprint("→") + " Not signed in"
			return nil
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Signed out " + ui.Highlight.Sprint(result.Email)
		return nil
	},
}
