// Package api defines the backend the client talks to. The server only ever
// sees the auth hash, wrapped keys, encrypted metadata and chunk ciphertext.
package api

import (
	"context"
	"io"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	"github.com/PolarWolf314/zkdrive/internal/kdf"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
	"github.com/PolarWolf314/zkdrive/internal/stream"
)

// Prelogin is what the server hands out before a login: the account salt
// and KDF parameters, both base64 or JSON encoded as sent.
type Prelogin struct {
	Salt      string     `json:"salt"`
	KDFParams kdf.Params `json:"kdfParams"`
}

// Registration creates an account. The master key travels wrapped under the
// password-derived wrapping key.
type Registration struct {
	Email                   string     `json:"email" validate:"required,email"`
	Salt                    string     `json:"salt" validate:"required,base64"`
	KDFParams               kdf.Params `json:"kdfParams"`
	AuthHash                string     `json:"authHash" validate:"required,base64"`
	EncryptedMasterKey      string     `json:"encryptedMasterKey" validate:"required,base64"`
	EncryptedMasterKeyNonce string     `json:"encryptedMasterKeyNonce" validate:"required,base64"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	AuthHash string `json:"authHash" validate:"required,base64"`
}

// LoginResult carries the session token and the wrapped master key.
type LoginResult struct {
	Token                   string `json:"token"`
	UserID                  string `json:"userId"`
	EncryptedMasterKey      string `json:"encryptedMasterKey"`
	EncryptedMasterKeyNonce string `json:"encryptedMasterKeyNonce"`
}

// WrappedMasterKey decodes the wrapped master key.
func (r LoginResult) WrappedMasterKey() (aead.EncryptedBlob, error) {
	return aead.WireBlob{Ciphertext: r.EncryptedMasterKey, Nonce: r.EncryptedMasterKeyNonce}.Blob()
}

// TokenFunc supplies the bearer token for authenticated calls.
type TokenFunc func() (string, error)

// Client is the backend contract. Errors map onto the kerrors taxonomy:
// ErrAuthRejected for a bad auth hash, ErrNotAuthenticated for a missing or
// invalid token, ErrUserExists, ErrNotFound and ErrVersionConflict.
type Client interface {
	GetSalt(ctx context.Context, email string) (Prelogin, error)
	Register(ctx context.Context, reg Registration) (LoginResult, error)
	Login(ctx context.Context, req LoginRequest) (LoginResult, error)

	metadata.Store

	PutChunk(ctx context.Context, fileID string, index int, data []byte) error
	GetChunk(ctx context.Context, fileID string, index int) (io.ReadCloser, error)
	PutBlob(ctx context.Context, fileID string, r io.Reader) error
	GetBlob(ctx context.Context, fileID string) (io.ReadCloser, error)
	PutManifest(ctx context.Context, m *stream.Manifest) error
	GetManifest(ctx context.Context, fileID string) (*stream.Manifest, error)

	// DeleteFile removes a file's manifest and content. A file that is
	// already gone is not an error.
	DeleteFile(ctx context.Context, fileID string) error
}
