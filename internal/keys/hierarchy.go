package keys

import (
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"

	"golang.org/x/crypto/blake2b"
)

// Domain separators for keyed hashes of the root key. The auth hash goes to
// the server, so it must never be usable to compute the wrapping key.
const (
	authContext = "auth"
	wrapContext = "wrap"
)

func keyedHash(root *Key, context string) (*Key, error) {
	if root == nil || root.IsZero() {
		return nil, fmt.Errorf("%w: root key is empty", kerrors.ErrInvalidKeyLength)
	}
	h, err := blake2b.New256(root.Bytes())
	if err != nil {
		return nil, fmt.Errorf("keyed hash: %w", err)
	}
	h.Write([]byte(context))
	return FromBytes(h.Sum(nil))
}

// DeriveAuthHash returns the login credential sent to the server.
func DeriveAuthHash(root *Key) (*Key, error) {
	return keyedHash(root, authContext)
}

// DeriveWrappingKey returns the client-only key that unwraps the master key.
func DeriveWrappingKey(root *Key) (*Key, error) {
	return keyedHash(root, wrapContext)
}

// Wrap seals key under wrappingKey.
func Wrap(key, wrappingKey *Key) (aead.EncryptedBlob, error) {
	if key == nil || wrappingKey == nil {
		return aead.EncryptedBlob{}, fmt.Errorf("%w: nil key", kerrors.ErrInvalidKeyLength)
	}
	return aead.Encrypt(key.Bytes(), wrappingKey.Bytes())
}

// Unwrap opens a wrapped key. An incorrect wrapping key fails with
// ErrDecryptionFailed; corrupted bytes are never returned.
func Unwrap(blob aead.EncryptedBlob, wrappingKey *Key) (*Key, error) {
	if wrappingKey == nil {
		return nil, fmt.Errorf("%w: nil wrapping key", kerrors.ErrInvalidKeyLength)
	}
	raw, err := aead.Decrypt(blob, wrappingKey.Bytes())
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range raw {
			raw[i] = 0
		}
	}()

	key, err := FromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapped key has wrong length", kerrors.ErrDecryptionFailed)
	}
	return key, nil
}

// UnlockMasterKey runs root → wrapping → master. The wrapping key is zeroed
// before returning; root stays owned by the caller.
func UnlockMasterKey(root *Key, wrappedMaster aead.EncryptedBlob) (*Key, error) {
	wrapping, err := DeriveWrappingKey(root)
	if err != nil {
		return nil, err
	}
	defer wrapping.Zero()

	return Unwrap(wrappedMaster, wrapping)
}
