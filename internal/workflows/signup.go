package workflows

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/api"
	"github.com/PolarWolf314/zkdrive/internal/audit"
	"github.com/PolarWolf314/zkdrive/internal/kdf"
	"github.com/PolarWolf314/zkdrive/internal/keys"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
	"github.com/PolarWolf314/zkdrive/internal/session"
	"github.com/PolarWolf314/zkdrive/internal/utils"
)

// SignupOptions configures the signup workflow.
type SignupOptions struct {
	// Email identifies the new account.
	Email string

	// Password is never stored or sent. The caller owns the slice and
	// should zero it afterwards.
	Password []byte
}

// SignupResult contains the outcome of a signup.
type SignupResult struct {
	// Email is the normalized account email.
	Email string

	// UserID is the backend's identifier for the account.
	UserID string

	// KDF is the parameter set fixed for the account.
	KDF kdf.Params
}

// Signup creates an account and leaves the session unlocked.
//
// A fresh salt and master key are generated on this machine. The server
// receives the auth hash, the KDF parameters and the master key wrapped
// under the password-derived wrapping key, then an empty directory
// encrypted under the master key.
//
// Returns ErrUserExists if the email is already registered.
func Signup(ctx context.Context, env *Env, opts SignupOptions) (*SignupResult, error) {
	email := utils.NormalizeEmail(opts.Email)
	if !utils.IsValidEmail(email) {
		return nil, fmt.Errorf("invalid email address %q", opts.Email)
	}
	if len(opts.Password) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}

	params := env.Config.KDF
	salt, err := kdf.NewSalt()
	if err != nil {
		return nil, err
	}

	env.Logger.Debugf("Deriving root key with %s", params.Algorithm)
	root, err := kdf.DeriveRootKey(ctx, opts.Password, salt, params)
	if err != nil {
		return nil, err
	}
	defer root.Zero()

	authHash, err := keys.DeriveAuthHash(root)
	if err != nil {
		return nil, err
	}
	defer authHash.Zero()
	wrapping, err := keys.DeriveWrappingKey(root)
	if err != nil {
		return nil, err
	}
	defer wrapping.Zero()

	master, err := keys.GenerateMasterKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := keys.Wrap(master, wrapping)
	master.Zero()
	if err != nil {
		return nil, err
	}
	w := wrapped.Wire()

	res, err := env.Client.Register(ctx, api.Registration{
		Email:                   email,
		Salt:                    base64.StdEncoding.EncodeToString(salt),
		KDFParams:               params,
		AuthHash:                base64.StdEncoding.EncodeToString(authHash.Bytes()),
		EncryptedMasterKey:      w.Ciphertext,
		EncryptedMasterKeyNonce: w.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", email, err)
	}
	env.Logger.Infof("Registered account %s", res.UserID)

	identity := session.Identity{Email: email, UserID: res.UserID}
	if err := env.Session.Unlock(ctx, res.Token, identity, wrapping, wrapped); err != nil {
		return nil, err
	}

	if err := env.Repository().Save(ctx, metadata.New()); err != nil {
		return nil, fmt.Errorf("saving empty directory: %w", err)
	}

	audit.Log(audit.Entry{
		User:      email,
		UserID:    res.UserID,
		Operation: audit.OpSignup,
		Backend:   env.Config.Server.Backend,
	})

	return &SignupResult{Email: email, UserID: res.UserID, KDF: params}, nil
}
