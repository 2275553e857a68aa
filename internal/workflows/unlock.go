package workflows

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/api"
	"github.com/PolarWolf314/zkdrive/internal/audit"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/kdf"
	"github.com/PolarWolf314/zkdrive/internal/keys"
	"github.com/PolarWolf314/zkdrive/internal/session"
	"github.com/PolarWolf314/zkdrive/internal/utils"
)

// UnlockOptions configures the unlock workflow.
type UnlockOptions struct {
	// Email defaults to the account of the current session.
	Email string

	// Password is owned by the caller.
	Password []byte
}

// UnlockResult contains the outcome of an unlock.
type UnlockResult struct {
	Email  string
	UserID string

	// Persisted reports whether the master key was kept for later runs.
	Persisted bool
}

// Unlock signs in and unwraps the master key.
//
// The salt and KDF parameters come from the backend, which answers for
// unknown emails too. The auth hash is the only password-derived value
// sent; the wrapping key never leaves this function.
//
// Returns ErrAuthRejected for a wrong email or password, and
// ErrDecryptionFailed if the returned master key does not unwrap.
func Unlock(ctx context.Context, env *Env, opts UnlockOptions) (*UnlockResult, error) {
	email := utils.NormalizeEmail(opts.Email)
	if email == "" {
		email = env.Session.Identity().Email
	}
	if email == "" {
		return nil, fmt.Errorf("%w: no email given and no previous session", kerrors.ErrNotAuthenticated)
	}

	pre, err := env.Client.GetSalt(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("fetching login parameters: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(pre.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt is not base64", kerrors.ErrInvalidKDFParams)
	}

	env.Logger.Debugf("Deriving root key with %s", pre.KDFParams.Algorithm)
	root, err := kdf.DeriveRootKey(ctx, opts.Password, salt, pre.KDFParams)
	if err != nil {
		return nil, err
	}
	defer root.Zero()

	authHash, err := keys.DeriveAuthHash(root)
	if err != nil {
		return nil, err
	}
	defer authHash.Zero()

	res, err := env.Client.Login(ctx, api.LoginRequest{
		Email:    email,
		AuthHash: base64.StdEncoding.EncodeToString(authHash.Bytes()),
	})
	if err != nil {
		return nil, err
	}

	wrappedMaster, err := res.WrappedMasterKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrDecryptionFailed, err)
	}
	wrapping, err := keys.DeriveWrappingKey(root)
	if err != nil {
		return nil, err
	}
	defer wrapping.Zero()

	identity := session.Identity{Email: email, UserID: res.UserID}
	if err := env.Session.Unlock(ctx, res.Token, identity, wrapping, wrappedMaster); err != nil {
		return nil, err
	}
	env.Logger.Infof("Session unlocked for %s", email)

	audit.Log(audit.Entry{
		User:      email,
		UserID:    res.UserID,
		Operation: audit.OpUnlock,
		Backend:   env.Config.Server.Backend,
	})

	return &UnlockResult{
		Email:     email,
		UserID:    res.UserID,
		Persisted: env.Config.Session.PersistMasterKey,
	}, nil
}
