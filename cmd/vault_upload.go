package cmd

import (
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/utils"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	uploadFolder     string
	uploadName       string
	uploadMonolithic bool
)

func init() {
	uploadCmd.Flags().StringVarP(&uploadFolder, "to", "t", "", "vault folder to upload into")
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "remote file name (single file only)")
	uploadCmd.Flags().BoolVar(&uploadMonolithic, "monolithic", false, "store as one continuous stream instead of chunks")
	_ = uploadCmd.MarkFlagRequired("to")
}

func resetUploadCommandState() {
	uploadFolder = ""
	uploadName = ""
	uploadMonolithic = false
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file|dir|glob>... --to <folder>",
	Short: "Encrypt and upload files",
	Long: `Encrypts files on this machine and uploads them into a vault folder.
Each file gets its own key. Large files are split into independently
encrypted chunks.

Arguments may be files, directories (all files inside, recursively) or
glob patterns, including ** for any depth.

Examples:
  zkdrive vault upload report.pdf --to docs
  zkdrive vault upload "photos/**/*.jpg" --to photos
  zkdrive vault upload scan.tiff --to docs --name scan-2024.tiff`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting upload command")

		files, err := utils.ResolveFiles(args)
		if err != nil {
			return Logger.ErrorfAndReturn("failed to resolve files: %v", err)
		}
		if uploadName != "" && len(files) > 1 {
			return Logger.ErrorfAndReturn("--name can only be used with a single file, got %d", len(files))
		}
		Logger.Debugf("Resolved %d file(s) to upload", len(files))

		spinner, cleanup := startSpinner("Uploading...", verbose)
		defer cleanup()

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		var uploaded []string
		var total int64
		for i, file := range files {
			label := fmt.Sprintf("Uploading %s (%d/%d)", ui.Path.Sprint(file), i+1, len(files))
			result, err := workflows.Upload(cmd.Context(), env, workflows.UploadOptions{
				LocalPath:  file,
				Folder:     uploadFolder,
				Name:       uploadName,
				Monolithic: uploadMonolithic,
				Progress:   progressSuffix(spinner, label),
			})
			if err != nil {
				Logger.Errorf("Upload of %s failed: %v", file, err)
				msg := failureMessage("Failed to upload "+ui.Path.Sprint(file), err) + lockedHint(err)
				if len(uploaded) > 0 {
					msg += "\nUploaded before the failure: " + utils.FormatPaths(uploaded)
				}
				spinner.FinalMSG = msg
				return nil
			}
			uploaded = append(uploaded, result.Path)
			total += result.Size
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + fmt.Sprintf(" Uploaded %d file(s), %s:", len(uploaded), ui.Bytes(total)) +
			utils.FormatPaths(uploaded)
		return nil
	},
}
