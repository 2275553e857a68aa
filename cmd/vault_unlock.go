package cmd

import (
	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/utils"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	unlockEmail         string
	unlockPasswordStdin bool
)

func init() {
	unlockCmd.Flags().StringVarP(&unlockEmail, "email", "e", "", "account email (defaults to the last session)")
	unlockCmd.Flags().BoolVar(&unlockPasswordStdin, "password-stdin", false, "read the password from stdin")
}

func resetUnlockCommandState() {
	unlockEmail = ""
	unlockPasswordStdin = false
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Sign in and unlock your master key",
	Long: `Derives your keys from your password, signs in, and unwraps your master key.

If session.persist_master_key is enabled, the master key is kept on this
device, wrapped under a device key, until session.max_key_age passes or you
run lock or logout.

Examples:
  zkdrive vault unlock --email alice@example.com
  zkdrive vault unlock                              # same account as last time`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting unlock command")

		password, err := readPassword(unlockPasswordStdin, false)
		if err != nil {
			return Logger.ErrorfAndReturn("failed to read password: %v", err)
		}
		defer utils.Zero(password)

		spinner, cleanup := startSpinner("Deriving keys...", verbose)
		defer cleanup()

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		result, err := workflows.Unlock(cmd.Context(), env, workflows.UnlockOptions{
			Email:    unlockEmail,
			Password: password,
		})
		if err != nil {
			Logger.Errorf("Unlock failed: %v", err)
			spinner.FinalMSG = failureMessage("Failed to unlock", err) + lockedHint(err)
			return nil
		}

		msg := ui.Success.Sprint("✓") + " Unlocked " + ui.Highlight.Sprint(result.Email)
		if result.Persisted {
			msg += "\n" + ui.Info.Sprint("→") + " The key stays unlocked on this device until you run " + ui.Code.Sprint("zkdrive vault lock")
		}
		spinner.FinalMSG = msg
		return nil
	},
}
