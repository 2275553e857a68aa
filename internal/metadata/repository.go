package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"
	logger "github.com/PolarWolf314/zkdrive/internal/logging"
)

// Envelope is the metadata wire form: base64 ciphertext and nonce plus the
// version used for optimistic concurrency.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Version    int    `json:"version"`
}

// Store is the server side of metadata persistence. SaveMetadata must reject
// a save whose expectedVersion is not the current version with
// ErrVersionConflict, and return the new version otherwise. GetMetadata
// returns ErrNotFound for an account that never saved.
type Store interface {
	GetMetadata(ctx context.Context) (Envelope, error)
	SaveMetadata(ctx context.Context, env Envelope, expectedVersion int) (int, error)
}

// KeyProvider hands out a copy of the master key, or ErrSessionLocked.
type KeyProvider interface {
	MasterKey() (*keys.Key, error)
}

// DefaultUpdateAttempts bounds Update's reload-and-reapply loop.
const DefaultUpdateAttempts = 3

// Repository loads and saves the encrypted directory.
type Repository struct {
	store  Store
	keys   KeyProvider
	Logger logger.Logger
}

func NewRepository(store Store, keys KeyProvider) *Repository {
	return &Repository{store: store, keys: keys}
}

// Load fetches and decrypts the directory. The returned blob carries the
// version it was read at. An account without metadata gets an empty blob
// at version 0.
func (r *Repository) Load(ctx context.Context) (*Blob, error) {
	master, err := r.keys.MasterKey()
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	env, err := r.store.GetMetadata(ctx)
	if errors.Is(err, kerrors.ErrNotFound) {
		r.Logger.Debugf("No metadata stored yet, starting from an empty directory")
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}

	enc, err := aead.WireBlob{Ciphertext: env.Ciphertext, Nonce: env.Nonce}.Blob()
	if err != nil {
		return nil, err
	}
	b, err := Decrypt(enc, master)
	if err != nil {
		return nil, err
	}
	b.Version = env.Version
	r.Logger.Debugf("Loaded metadata version %d with %d folders and %d files", b.Version, len(b.Folders), len(b.Files))
	return b, nil
}

// Save encrypts b and saves it against the version b was loaded at. A stale
// version fails with ErrVersionConflict and b is left unchanged; on success
// b.Version is advanced.
func (r *Repository) Save(ctx context.Context, b *Blob) error {
	master, err := r.keys.MasterKey()
	if err != nil {
		return err
	}
	defer master.Zero()

	enc, err := Encrypt(b, master)
	if err != nil {
		return err
	}
	w := enc.Wire()
	version, err := r.store.SaveMetadata(ctx, Envelope{Ciphertext: w.Ciphertext, Nonce: w.Nonce}, b.Version)
	if err != nil {
		return fmt.Errorf("saving metadata at version %d: %w", b.Version, err)
	}
	r.Logger.Debugf("Saved metadata version %d", version)
	b.Version = version
	return nil
}

// Update loads the directory, applies fn and saves. On a version conflict it
// reloads and applies fn again, up to attempts times. fn must be safe to
// run more than once.
func (r *Repository) Update(ctx context.Context, attempts int, fn func(*Blob) error) (*Blob, error) {
	if attempts < 1 {
		attempts = DefaultUpdateAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		b, err := r.Load(ctx)
		if err != nil {
			return nil, err
		}
		if err := fn(b); err != nil {
			return nil, err
		}
		err = r.Save(ctx, b)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, kerrors.ErrVersionConflict) {
			return nil, err
		}
		r.Logger.Infof("Metadata changed since version %d, reloading", b.Version)
		lastErr = err
	}
	return nil, lastErr
}
