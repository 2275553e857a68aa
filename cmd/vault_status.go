package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/session"
	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var statusJSONOutput bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSONOutput, "json", false, "output in JSON format")
}

func resetStatusCommandState() {
	statusJSONOutput = false
}

type statusJSON struct {
	State           string `json:"state"`
	Email           string `json:"email,omitempty"`
	Backend         string `json:"backend"`
	LastUnlockedAt  string `json:"last_unlocked_at,omitempty"`
	KeyExpiresAt    string `json:"key_expires_at,omitempty"`
	Folders         int    `json:"folders"`
	Files           int    `json:"files"`
	MetadataVersion int    `json:"metadata_version"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	Long: `Shows whether you are signed in and whether the vault is unlocked.

States:
  - unauthenticated: no session on this device
  - locked:          signed in, the master key is not available
  - unlocked:        the master key is available

Use --json for machine-readable output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting status command")

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		result, err := workflows.Status(cmd.Context(), env, workflows.StatusOptions{})
		if err != nil {
			return Logger.ErrorfAndReturn("failed to read status: %v", err)
		}

		if statusJSONOutput {
			out, err := json.MarshalIndent(statusJSON{
				State:           result.State.String(),
				Email:           result.Email,
				Backend:         result.Backend,
				LastUnlockedAt:  formatTime(result.LastUnlockedAt),
				KeyExpiresAt:    formatTime(result.KeyExpiresAt),
				Folders:         result.Folders,
				Files:           result.Files,
				MetadataVersion: result.MetadataVersion,
			}, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("failed to encode status: %v", err)
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Println("Backend: " + ui.Highlight.Sprint(result.Backend))
		switch result.State {
		case session.Unlocked:
			fmt.Println(ui.Success.Sprint("✓") + " Unlocked as " + ui.Highlight.Sprint(result.Email))
			fmt.Printf("  %d folder(s), %d file(s) %s\n", result.Folders, result.Files,
				ui.Muted.Sprintf("version %d", result.MetadataVersion))
			if !result.KeyExpiresAt.IsZero() {
				fmt.Println("  Key kept on this device until " + formatTime(result.KeyExpiresAt))
			}
		case session.Locked:
			fmt.Println(ui.Warning.Sprint("⚠") + " Locked " + ui.Muted.Sprint(result.Email))
			fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("zkdrive vault unlock") + " to unlock")
		default:
			fmt.Println(ui.Error.Sprint("✗") + " Not signed in")
			fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("zkdrive vault signup") + " or " + ui.Code.Sprint("zkdrive vault unlock --email <email>"))
		}
		return nil
	},
}
