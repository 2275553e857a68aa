package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	lsRecursive  bool
	lsJSONOutput bool
)

func init() {
	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "list subfolders too")
	lsCmd.Flags().BoolVar(&lsJSONOutput, "json", false, "output in JSON format")
}

func resetLsCommandState() {
	lsRecursive = false
	lsJSONOutput = false
}

type lsEntryJSON struct {
	Path      string `json:"path"`
	ID        string `json:"id"`
	Type      string `json:"type"`
	Size      int64  `json:"size,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	CreatedAt string `json:"created_at"`
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List folders and files",
	Long: `Lists the folders and files in a folder, or the top level when no path is
given. Names are decrypted locally.

Examples:
  zkdrive vault ls
  zkdrive vault ls docs/taxes
  zkdrive vault ls -r --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting ls command")
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		defer env.Close()

		result, err := workflows.List(cmd.Context(), env, workflows.ListOptions{Path: path, Recursive: lsRecursive})
		if err != nil {
			Logger.Errorf("List failed: %v", err)
			fmt.Println(failureMessage("Failed to list "+ui.Folder.Sprint(path), err) + lockedHint(err))
			return nil
		}

		if lsJSONOutput {
			entries := make([]lsEntryJSON, 0, len(result.Entries))
			for _, e := range result.Entries {
				kind := "file"
				if e.IsFolder {
					kind = "folder"
				}
				entries = append(entries, lsEntryJSON{
					Path:      e.Path,
					ID:        e.ID,
					Type:      kind,
					Size:      e.Size,
					MimeType:  e.MimeType,
					CreatedAt: formatTime(e.CreatedAt),
				})
			}
			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("failed to encode listing: %v", err)
			}
			fmt.Println(string(out))
			return nil
		}

		if len(result.Entries) == 0 {
			fmt.Println(ui.Info.Sprint("→") + " Nothing here yet")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, e := range result.Entries {
			if e.IsFolder {
				fmt.Fprintf(w, "%s\t\t%s\n", ui.Folder.Sprint(e.Path), ui.Muted.Sprint(e.ID))
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", ui.Path.Sprint(e.Path), ui.Bytes(e.Size), ui.Muted.Sprint(e.ID))
		}
		return w.Flush()
	},
}
