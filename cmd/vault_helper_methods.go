package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/transfer"
	"github.com/PolarWolf314/zkdrive/internal/ui"
	"github.com/PolarWolf314/zkdrive/internal/utils"

	"github.com/briandowns/spinner"
)

// startSpinner creates and starts a spinner with the given message when not in verbose or debug mode.
// Returns the spinner and a function that should be deferred to clean up.
//
// IMPORTANT: spinner.FinalMSG values do NOT need trailing newlines. The cleanup function
// automatically calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(message string, verbose bool) (*spinner.Spinner, func()) {
	return startSpinnerWithFlags(message, verbose, debug)
}

// startSpinnerWithFlags creates and starts a spinner with explicit verbose and debug flags.
// This is useful for commands that have their own flag variables (e.g., config commands).
func startSpinnerWithFlags(message string, verbose, debugFlag bool) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr

	// Ignore color errors - continue without colored spinner if it fails.
	_ = s.Color("cyan")

	if !verbose && !debugFlag {
		s.Start()
		// Ensure log output is discarded unless in verbose mode.
		log.SetOutput(io.Discard)
	}

	cleanup := func() {
		// Restore log output first.
		if !verbose && !debugFlag {
			log.SetOutput(os.Stdout)
		}

		// Ensure final message ends with a newline.
		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		// Stop the spinner first to clear the spinner line.
		if !verbose && !debugFlag {
			s.Stop()
		}

		// Print final message to stdout (for tests to capture).
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// progressSuffix keeps the spinner text in step with a transfer.
func progressSuffix(s *spinner.Spinner, label string) transfer.ProgressFunc {
	return func(done, total int64) {
		s.Lock()
		s.Suffix = " " + label + " " + ui.Muted.Sprint(ui.Progress(done, total))
		s.Unlock()
	}
}

// readPasswordStdin is swapped out in tests.
var readPasswordStdin = utils.ReadPasswordStdin

// readPassword reads a password from piped stdin when fromStdin is set,
// otherwise from the terminal without echo. confirm asks twice.
func readPassword(fromStdin, confirm bool) ([]byte, error) {
	if fromStdin {
		return readPasswordStdin()
	}
	if !utils.IsTerminal() {
		return nil, fmt.Errorf("stdin is not a terminal; use --password-stdin to pipe the password")
	}
	if confirm {
		return utils.ReadNewPassword("Password: ", "Confirm password: ")
	}
	return utils.ReadPassword("Password: ")
}

// failureMessage renders err for the user without revealing which key
// layer failed.
func failureMessage(action string, err error) string {
	return ui.Error.Sprint("✗") + " " + action + "\n" +
		ui.Error.Sprint("Error: ") + kerrors.UserMessage(err)
}

// lockedHint points at the command that fixes a locked or missing session.
func lockedHint(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrSessionLocked):
		return "\n" + ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("zkdrive vault unlock") + " first"
	case errors.Is(err, kerrors.ErrNotAuthenticated):
		return "\n" + ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("zkdrive vault unlock --email <email>") +
			" or " + ui.Code.Sprint("zkdrive vault signup")
	}
	return ""
}
