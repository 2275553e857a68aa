package workflows

import (
	"context"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/session"
)

// StatusOptions configures the status workflow.
type StatusOptions struct {
	// No options currently needed - included for consistency.
}

// StatusResult contains the outcome of a status operation.
type StatusResult struct {
	// State is the session state after restoring it.
	State session.State

	// Email is the signed-in account, if any.
	Email string

	// Backend is the configured backend kind.
	Backend string

	// LastUnlockedAt is when the master key was last unwrapped.
	LastUnlockedAt time.Time

	// KeyExpiresAt is when a persisted master key stops being accepted.
	// Zero if keys are not persisted or never expire.
	KeyExpiresAt time.Time

	// Folders and Files count the directory entries. Only filled in when
	// the session is unlocked.
	Folders int
	Files   int

	// MetadataVersion is the server version of the directory.
	MetadataVersion int
}

// Status reports the session state and, when unlocked, a summary of the
// directory. It never fails because the session is locked.
func Status(ctx context.Context, env *Env, opts StatusOptions) (*StatusResult, error) {
	snap := env.Session.Snapshot()
	result := &StatusResult{
		State:          snap.State,
		Email:          snap.Email,
		Backend:        env.Config.Server.Backend,
		LastUnlockedAt: snap.LastUnlockedAt,
	}
	if age := env.Config.Session.MaxKeyAge.Duration; age > 0 && env.Config.Session.PersistMasterKey && !snap.LastUnlockedAt.IsZero() {
		result.KeyExpiresAt = snap.LastUnlockedAt.Add(age)
	}

	if snap.State != session.Unlocked {
		return result, nil
	}
	blob, err := env.Repository().Load(ctx)
	if err != nil {
		return nil, err
	}
	result.Folders = len(blob.Folders)
	result.Files = len(blob.Files)
	result.MetadataVersion = blob.Version
	return result, nil
}
