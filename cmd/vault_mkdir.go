package cmd

import (
	"strings"

	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var mkdirParents bool

func init() {
	mkdirCmd.Flags().BoolVarP(&mkdirParents, "parents", "p", false, "create missing parent folders; no error if the folder exists")
}

func resetMkdirCommandState() {
	mkdirParents = false
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a folder",
	Long: `Creates a folder in your vault. Each folder gets its own key.

Examples:
  zkdrive vault mkdir docs
  zkdrive vault mkdir -p docs/taxes/2024`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting mkdir command")
		spinner, cleanup := startSpinner("Creating folder...", verbose)
		defer cleanup()

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		result, err := workflows.Mkdir(cmd.Context(), env, workflows.MkdirOptions{
			Path:    args[0],
			Parents: mkdirParents,
		})
		if err != nil {
			Logger.Errorf("Mkdir failed: %v", err)
			spinner.FinalMSG = failureMessage("Failed to create "+ui.Folder.Sprint(args[0]), err) + lockedHint(err)
			return nil
		}

		if len(result.Created) == 0 {
			spinner.FinalMSG = ui.Info.Sprint("→") + " " + ui.Folder.Sprint(args[0]) + " already exists"
			return nil
		}
		var created []string
		for _, p := range result.Created {
			created = append(created, ui.Folder.Sprint(p))
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Created " + strings.Join(created, ", ")
		return nil
	},
}
