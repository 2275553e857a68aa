// Package aead is the single-shot authenticated encryption codec used for
// wrapped keys and the metadata blob. It uses XChaCha20-Poly1305 with a fresh
// random 24-byte nonce on every call.
package aead

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSizeX
	Overhead  = chacha20poly1305.Overhead
)

// EncryptedBlob is ciphertext with its authentication tag appended, plus the
// nonce it was sealed under.
type EncryptedBlob struct {
	Ciphertext []byte
	Nonce      []byte
}

// WireBlob is the base64 form exchanged with the server.
type WireBlob struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(plaintext, key []byte) (EncryptedBlob, error) {
	return EncryptWithAD(plaintext, key, nil)
}

// EncryptWithAD is Encrypt with associated data bound into the tag.
func EncryptWithAD(plaintext, key, ad []byte) (EncryptedBlob, error) {
	c, err := chacha20poly1305.NewX(key)
	if err != nil {
		return EncryptedBlob{}, fmt.Errorf("%w: %v", kerrors.ErrInvalidKeyLength, err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedBlob{}, fmt.Errorf("generating nonce: %w", err)
	}

	return EncryptedBlob{
		Ciphertext: c.Seal(nil, nonce, plaintext, ad),
		Nonce:      nonce,
	}, nil
}

// Decrypt opens blob under key. Any tag mismatch (wrong key, wrong nonce,
// modified ciphertext) returns ErrDecryptionFailed and no plaintext.
func Decrypt(blob EncryptedBlob, key []byte) ([]byte, error) {
	return DecryptWithAD(blob, key, nil)
}

// DecryptWithAD is Decrypt with associated data.
func DecryptWithAD(blob EncryptedBlob, key, ad []byte) ([]byte, error) {
	c, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidKeyLength, err)
	}
	if len(blob.Nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", kerrors.ErrDecryptionFailed, NonceSize, len(blob.Nonce))
	}
	if len(blob.Ciphertext) < Overhead {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", kerrors.ErrDecryptionFailed)
	}

	plaintext, err := c.Open(nil, blob.Nonce, blob.Ciphertext, ad)
	if err != nil {
		return nil, kerrors.ErrDecryptionFailed
	}
	return plaintext, nil
}

// Wire returns the base64 form of the blob.
func (b EncryptedBlob) Wire() WireBlob {
	return WireBlob{
		Ciphertext: base64.StdEncoding.EncodeToString(b.Ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(b.Nonce),
	}
}

// Blob decodes the base64 form. Malformed base64 is reported as
// ErrDecryptionFailed since the blob can never authenticate.
func (w WireBlob) Blob() (EncryptedBlob, error) {
	ct, err := base64.StdEncoding.DecodeString(w.Ciphertext)
	if err != nil {
		return EncryptedBlob{}, fmt.Errorf("%w: ciphertext is not base64: %v", kerrors.ErrDecryptionFailed, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(w.Nonce)
	if err != nil {
		return EncryptedBlob{}, fmt.Errorf("%w: nonce is not base64: %v", kerrors.ErrDecryptionFailed, err)
	}
	return EncryptedBlob{Ciphertext: ct, Nonce: nonce}, nil
}

// IsZero reports whether the blob carries no data.
func (w WireBlob) IsZero() bool {
	return w.Ciphertext == "" && w.Nonce == ""
}
