package cmd

import (
	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	downloadOutput string
	downloadForce  bool
)

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file or directory (defaults to the file name)")
	downloadCmd.Flags().BoolVarP(&downloadForce, "force", "f", false, "overwrite an existing file")
}

func resetDownloadCommandState() {
	downloadOutput = ""
	downloadForce = false
}

var downloadCmd = &cobra.Command{
	Use:   "download <folder/file>",
	Short: "Download and decrypt a file",
	Long: `Downloads a file and decrypts it on this machine. Every chunk is
authenticated before the output replaces anything; a damaged or interrupted
download leaves no partial file behind.

Examples:
  zkdrive vault download docs/report.pdf
  zkdrive vault download photos/2024/beach.jpg -o ~/Pictures/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting download command")
		spinner, cleanup := startSpinner("Downloading...", verbose)
		defer cleanup()

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		result, err := workflows.Download(cmd.Context(), env, workflows.DownloadOptions{
			RemotePath: args[0],
			OutputPath: downloadOutput,
			Overwrite:  downloadForce,
			Progress:   progressSuffix(spinner, "Downloading "+ui.Path.Sprint(args[0])),
		})
		if err != nil {
			Logger.Errorf("Download failed: %v", err)
			spinner.FinalMSG = failureMessage("Failed to download "+ui.Path.Sprint(args[0]), err) + lockedHint(err)
			return nil
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Downloaded " + ui.Path.Sprint(args[0]) +
			" to " + ui.Path.Sprint(result.OutputPath) + " " + ui.Muted.Sprint(ui.Bytes(result.Bytes))
		return nil
	},
}
