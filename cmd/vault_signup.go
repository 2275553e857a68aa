package cmd

import (
	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/utils"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	signupEmail         string
	signupPasswordStdin bool
)

func init() {
	signupCmd.Flags().StringVarP(&signupEmail, "email", "e", "", "email address for the new account")
	signupCmd.Flags().BoolVar(&signupPasswordStdin, "password-stdin", false, "read the password from stdin")
	_ = signupCmd.MarkFlagRequired("email")
}

func resetSignupCommandState() {
	signupEmail = ""
	signupPasswordStdin = false
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and unlock it",
	Long: `Creates a new account. A random master key is generated on this machine
and stored only in wrapped form, under a key derived from your password.

There is no password recovery: if you forget your password, your files
cannot be decrypted by anyone.

Examples:
  # Create an account, prompting for the password twice
  zkdrive vault signup --email alice@example.com

  # Non-interactive
  printf '%s\n' "$PASSWORD" | zkdrive vault signup -e alice@example.com --password-stdin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting signup command")

		if !utils.IsValidEmail(utils.NormalizeEmail(signupEmail)) {
			return Logger.ErrorfAndReturn("invalid email address: %s", signupEmail)
		}

		password, err := readPassword(signupPasswordStdin, true)
		if err != nil {
			return Logger.ErrorfAndReturn("failed to read password: %v", err)
		}
		defer utils.Zero(password)

		spinner, cleanup := startSpinner("Deriving keys and creating your account...", verbose)
		defer cleanup()

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		result, err := workflows.Signup(cmd.Context(), env, workflows.SignupOptions{
			Email:    signupEmail,
			Password: password,
		})
		if err != nil {
			Logger.Errorf("Signup failed: %v", err)
			spinner.FinalMSG = failureMessage("Failed to create the account", err)
			return nil
		}

		Logger.Infof("Signup completed for user %s", result.UserID)
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Account " + ui.Highlight.Sprint(result.Email) + " created and unlocked\n" +
			ui.Info.Sprint("→") + " Create a folder with " + ui.Code.Sprint("zkdrive vault mkdir <path>") + "\n" +
			ui.Warning.Sprint("⚠") + " Your password cannot be recovered. Keep it somewhere safe."
		return nil
	},
}
