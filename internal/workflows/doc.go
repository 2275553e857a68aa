// Package workflows provides high-level orchestration for zkdrive commands.
//
// Workflows coordinate multiple operations across packages (kdf, keys,
// session, metadata, transfer, api, audit) to implement complete
// user-facing features. Each workflow handles a single command's business
// logic, independent of CLI concerns like flag parsing, spinners, and
// output formatting.
//
// # Design Philosophy
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Reads passwords without echo
//   - Calls the appropriate workflow function
//   - Formats the result for display
//
// Workflows handle everything else:
//   - Deriving keys and talking to the backend
//   - Loading and saving the encrypted directory
//   - Performing the core operation
//   - Recording audit trail entries
//
// An Env carries the opened backend, session and configuration. Open one
// with OpenEnv and pass it to every workflow.
//
// # Available Workflows
//
//   - Signup: Creates an account and an empty encrypted directory
//   - Unlock: Signs in and unwraps the master key
//   - Lock, Logout: Wipe the master key, and for Logout the token too
//   - Status: Reports the session state
//   - Mkdir: Creates folders with their own folder keys
//   - List: Lists folders and files
//   - Upload: Encrypts a local file into a folder
//   - Download: Decrypts a file to local disk
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package, allowing
// the CLI layer to provide appropriate user-facing messages without string
// matching. Use errors.Is() to check for specific error conditions:
//
//	result, err := workflows.Upload(ctx, env, opts)
//	if errors.Is(err, kerrors.ErrSessionLocked) {
//	    // Ask the user to unlock first
//	}
//
// # Context Usage
//
// All workflow functions accept a context.Context as their first parameter.
// Cancelling it stops key derivation and aborts transfers between chunks.
package workflows
