package keys

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
)

// KeySize is the length of every key in the hierarchy.
const KeySize = 32

// Key is a 32-byte secret: root, auth, wrapping, master, folder or file key.
// Hold keys by pointer so Zero reaches the only copy.
type Key [KeySize]byte

// FromBytes copies b into a new Key. b must be exactly KeySize bytes.
func FromBytes(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", kerrors.ErrInvalidKeyLength, KeySize, len(b))
	}
	var k Key
	copy(k[:], b)
	return &k, nil
}

// Bytes returns the key as a slice aliasing the key's storage.
func (k *Key) Bytes() []byte {
	return k[:]
}

// Clone returns an independent copy.
func (k *Key) Clone() *Key {
	c := *k
	return &c
}

// Equal compares two keys in constant time.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

// IsZero reports whether every byte is zero.
func (k *Key) IsZero() bool {
	var zero Key
	return subtle.ConstantTimeCompare(k[:], zero[:]) == 1
}

// Zero overwrites the key in place.
func (k *Key) Zero() {
	if k == nil {
		return
	}
	for i := range k {
		k[i] = 0
	}
}

func generate() (*Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return nil, fmt.Errorf("reading random key: %w", err)
	}
	return &k, nil
}

// GenerateMasterKey returns a fresh random master key. Called once at signup.
func GenerateMasterKey() (*Key, error) { return generate() }

// GenerateFolderKey returns a fresh random folder key.
func GenerateFolderKey() (*Key, error) { return generate() }

// GenerateFileKey returns a fresh random file key.
func GenerateFileKey() (*Key, error) { return generate() }
