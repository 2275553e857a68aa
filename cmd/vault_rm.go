package cmd

import (
	"fmt"
	"strings"

	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <folder/file>...",
	Short: "Remove files from the vault",
	Long: `Removes files from your vault. The directory entry is removed first,
then the encrypted manifest and chunks are deleted from the backend.

Examples:
  zkdrive vault rm docs/report.pdf
  zkdrive vault rm docs/a.txt docs/b.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting rm command")
		spinner, cleanup := startSpinner("Removing files...", verbose)
		defer cleanup()

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		var removed, warnings []string
		for _, path := range args {
			result, err := workflows.Remove(cmd.Context(), env, workflows.RemoveOptions{RemotePath: path})
			if err != nil {
				Logger.Errorf("Remove failed for %s: %v", path, err)
				msg := failureMessage("Failed to remove "+ui.Path.Sprint(path), err) + lockedHint(err)
				if len(removed) > 0 {
					msg = ui.Success.Sprint("✓") + fmt.Sprintf(" Removed %d file(s) before the failure\n", len(removed)) + msg
				}
				spinner.FinalMSG = msg
				return nil
			}
			removed = append(removed, ui.Path.Sprint(result.Path))
			if result.ContentErr != nil {
				warnings = append(warnings, ui.Warning.Sprint("⚠")+" Encrypted content of "+ui.Path.Sprint(result.Path)+" was not deleted: "+result.ContentErr.Error())
			}
		}

		msg := ui.Success.Sprint("✓") + fmt.Sprintf(" Removed %d file(s): ", len(removed)) + strings.Join(removed, ", ")
		if len(warnings) > 0 {
			msg += "\n" + strings.Join(warnings, "\n")
		}
		spinner.FinalMSG = msg
		return nil
	},
}
