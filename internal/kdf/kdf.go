package kdf

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

type Algorithm string

const (
	Argon2id Algorithm = "argon2id"
	PBKDF2   Algorithm = "pbkdf2"
)

const (
	// SaltSize is the only accepted salt length.
	SaltSize = 32

	DefaultMemoryCost  = 64 * 1024 // KiB
	DefaultTimeCost    = 3
	DefaultParallelism = 4
	DefaultIterations  = 600_000

	minMemoryCost = 8 * 1024
	maxMemoryCost = 4 * 1024 * 1024
	maxTimeCost   = 64
	minIterations = 10_000
)

// Params selects the password KDF. They are chosen at signup and stay fixed
// for the account; the server returns them before every login.
type Params struct {
	Algorithm   Algorithm `json:"algorithm" toml:"algorithm" validate:"required,oneof=argon2id pbkdf2"`
	MemoryCost  uint32    `json:"memoryCost,omitempty" toml:"memory_cost,omitempty"`
	TimeCost    uint32    `json:"timeCost,omitempty" toml:"time_cost,omitempty"`
	Parallelism uint8     `json:"parallelism,omitempty" toml:"parallelism,omitempty"`
	Iterations  uint32    `json:"iterations,omitempty" toml:"iterations,omitempty"`
}

var validate = validator.New()

// DefaultParams returns the Argon2id parameters used for new accounts.
func DefaultParams() Params {
	return Params{
		Algorithm:   Argon2id,
		MemoryCost:  DefaultMemoryCost,
		TimeCost:    DefaultTimeCost,
		Parallelism: DefaultParallelism,
	}
}

// LegacyParams returns PBKDF2-HMAC-SHA256 parameters for environments
// without Argon2id.
func LegacyParams() Params {
	return Params{Algorithm: PBKDF2, Iterations: DefaultIterations}
}

// Validate checks the parameters for the selected algorithm.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", kerrors.ErrInvalidKDFParams, err)
	}

	switch p.Algorithm {
	case Argon2id:
		if p.MemoryCost < minMemoryCost || p.MemoryCost > maxMemoryCost {
			return fmt.Errorf("%w: argon2id memoryCost %d KiB out of range [%d, %d]",
				kerrors.ErrInvalidKDFParams, p.MemoryCost, minMemoryCost, maxMemoryCost)
		}
		if p.TimeCost < 1 || p.TimeCost > maxTimeCost {
			return fmt.Errorf("%w: argon2id timeCost %d out of range [1, %d]", kerrors.ErrInvalidKDFParams, p.TimeCost, maxTimeCost)
		}
		if p.Parallelism < 1 {
			return fmt.Errorf("%w: argon2id parallelism must be at least 1", kerrors.ErrInvalidKDFParams)
		}
		if p.Iterations != 0 {
			return fmt.Errorf("%w: iterations is not an argon2id parameter", kerrors.ErrInvalidKDFParams)
		}
	case PBKDF2:
		if p.Iterations < minIterations {
			return fmt.Errorf("%w: pbkdf2 iterations %d below minimum %d", kerrors.ErrInvalidKDFParams, p.Iterations, minIterations)
		}
		if p.MemoryCost != 0 || p.TimeCost != 0 || p.Parallelism != 0 {
			return fmt.Errorf("%w: argon2id parameters set for pbkdf2", kerrors.ErrInvalidKDFParams)
		}
	}
	return nil
}

// ParseParams decodes the JSON wire form and validates it.
func ParseParams(data []byte) (Params, error) {
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("%w: %v", kerrors.ErrInvalidKDFParams, err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

type result struct {
	key *keys.Key
	err error
}

// abandon waits out a derivation the caller stopped waiting for and zeroes
// its key.
var abandon = func(done <-chan result) {
	if r := <-done; r.key != nil {
		r.key.Zero()
	}
}

// DeriveRootKey derives the 32-byte root key from a password. It is
// deliberately slow and runs on its own goroutine so callers can cancel
// through ctx. Identical inputs always give the identical key.
func DeriveRootKey(ctx context.Context, password, salt []byte, params Params) (*keys.Key, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrKeyDerivationFailed, err)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", kerrors.ErrKeyDerivationFailed, SaltSize, len(salt))
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", kerrors.ErrKeyDerivationFailed, r)}
			}
		}()
		done <- derive(password, salt, params)
	}()

	select {
	case <-ctx.Done():
		go abandon(done)
		return nil, fmt.Errorf("%w: %w", kerrors.ErrKeyDerivationFailed, ctx.Err())
	case r := <-done:
		return r.key, r.err
	}
}

// UnlockMasterKey derives the root key from the password and opens the
// wrapped master key with it. Only the master key survives the call.
func UnlockMasterKey(ctx context.Context, password, salt []byte, params Params, wrapped aead.EncryptedBlob) (*keys.Key, error) {
	root, err := DeriveRootKey(ctx, password, salt, params)
	if err != nil {
		return nil, err
	}
	defer root.Zero()
	return keys.UnlockMasterKey(root, wrapped)
}

func derive(password, salt []byte, params Params) result {
	var out []byte
	switch params.Algorithm {
	case Argon2id:
		out = argon2.IDKey(password, salt, params.TimeCost, params.MemoryCost, params.Parallelism, keys.KeySize)
	case PBKDF2:
		out = pbkdf2.Key(password, salt, int(params.Iterations), keys.KeySize, sha256.New)
	default:
		return result{err: fmt.Errorf("%w: unsupported algorithm %q", kerrors.ErrKeyDerivationFailed, params.Algorithm)}
	}

	key, err := keys.FromBytes(out)
	for i := range out {
		out[i] = 0
	}
	if err != nil {
		return result{err: fmt.Errorf("%w: %w", kerrors.ErrKeyDerivationFailed, err)}
	}
	if key.IsZero() {
		return result{err: fmt.Errorf("%w: primitive returned an all-zero key", kerrors.ErrKeyDerivationFailed)}
	}
	return result{key: key}
}
