package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/audit"
	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	logLimit     int
	logSince     time.Duration
	logOperation string
	logJSON      bool
)

func init() {
	logCmd.Flags().IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	logCmd.Flags().DurationVar(&logSince, "since", 0, "only entries newer than this, e.g. 24h")
	logCmd.Flags().StringVar(&logOperation, "operation", "", "filter by operation type (comma-separated)")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON array")
}

// resetLogCommandState resets the log command's global state for testing.
func resetLogCommandState() {
	logLimit = 0
	logSince = 0
	logOperation = ""
	logJSON = false
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the audit log of this device",
	Long: `Displays the operations performed from this device. The log records
file and folder IDs, never names, contents or keys.

Examples:
  zkdrive vault log                              # View full log
  zkdrive vault log -n 10                        # Last 10 entries
  zkdrive vault log --since 24h                  # Last day
  zkdrive vault log --operation upload,download  # Filter by operation
  zkdrive vault log --json                       # JSON output`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting log command")

		result, err := workflows.Log(cmd.Context(), workflows.LogOptions{
			Since:      logSince,
			Operations: logOperation,
			Limit:      logLimit,
		})
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read audit log: %v", err)
		}
		Logger.Debugf("Parsed %d entries, %d after filtering", result.TotalEntriesBeforeFilter, len(result.Entries))

		if len(result.Entries) == 0 {
			if result.TotalEntriesBeforeFilter == 0 {
				fmt.Println("No audit log entries found.")
			} else {
				fmt.Println("No audit log entries found matching the filters.")
			}
			return nil
		}

		if logJSON {
			data, err := json.MarshalIndent(result.Entries, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("failed to marshal entries to JSON: %v", err)
			}
			fmt.Println(string(data))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, e := range result.Entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ui.Muted.Sprint(e.Timestamp), e.User, ui.Highlight.Sprint(e.Operation), logDetails(e))
		}
		return w.Flush()
	},
}

// logDetails renders the operation-specific fields of an entry.
func logDetails(e audit.Entry) string {
	switch e.Operation {
	case audit.OpUpload, audit.OpDownload, audit.OpRemove:
		return fmt.Sprintf("%s %s", e.FileID, ui.Bytes(e.Bytes))
	case audit.OpMkdir:
		return e.FolderID
	case audit.OpSignup, audit.OpUnlock:
		return e.Backend
	}
	return ""
}
