package workflows

import (
	"context"

	"github.com/PolarWolf314/zkdrive/internal/audit"
	"github.com/PolarWolf314/zkdrive/internal/session"
)

// LockResult contains the outcome of a lock or logout.
type LockResult struct {
	// Email is the account the session belonged to, if any.
	Email string

	// WasUnlocked reports whether a master key was resident before.
	WasUnlocked bool
}

// Lock wipes the master key from memory and from the session store. The
// token is kept so the next unlock only needs the password.
func Lock(ctx context.Context, env *Env) (*LockResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	identity := env.Session.Identity()
	result := &LockResult{Email: identity.Email, WasUnlocked: env.Session.State() == session.Unlocked}

	if err := env.Session.Lock(); err != nil {
		return nil, err
	}
	env.Logger.Infof("Session locked")

	if identity.Email != "" {
		audit.Log(audit.Entry{User: identity.Email, UserID: identity.UserID, Operation: audit.OpLock})
	}
	return result, nil
}

// Logout wipes the master key and every persisted session artifact.
func Logout(ctx context.Context, env *Env) (*LockResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	identity := env.Session.Identity()
	result := &LockResult{Email: identity.Email, WasUnlocked: env.Session.State() == session.Unlocked}

	if err := env.Session.Logout(); err != nil {
		return nil, err
	}
	env.Logger.Infof("Signed out")

	if identity.Email != "" {
		audit.Log(audit.Entry{User: identity.Email, UserID: identity.UserID, Operation: audit.OpLogout})
	}
	return result, nil
}
