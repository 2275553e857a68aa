package errors

import "errors"

// Cryptographic errors indicate failures in key derivation, wrapping or AEAD.
var (
	// ErrKeyDerivationFailed indicates the password KDF could not produce a key.
	ErrKeyDerivationFailed = errors.New("key derivation failed")

	// ErrInvalidKDFParams indicates the KDF parameters are malformed or unsupported.
	ErrInvalidKDFParams = errors.New("invalid key derivation parameters")

	// ErrDecryptionFailed indicates an AEAD tag mismatch: wrong key or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidKeyLength indicates a key that is not exactly 32 bytes.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrKeyNotFound indicates a key is not reachable from the master key.
	ErrKeyNotFound = errors.New("key not found in key hierarchy")
)

// Stream errors indicate a chunked ciphertext that cannot be decoded.
// Both are fatal to the stream; the file must be uploaded again.
var (
	// ErrStreamCorrupted indicates a chunk boundary or tag-sequence violation.
	ErrStreamCorrupted = errors.New("encrypted stream is corrupted")

	// ErrTruncatedStream indicates the stream ended inside a block.
	ErrTruncatedStream = errors.New("encrypted stream is truncated")

	// ErrStreamFinalized indicates a push or pull after the final tag.
	ErrStreamFinalized = errors.New("encrypted stream already finalized")
)

// Metadata errors.
var (
	// ErrMetadataCorrupted indicates decrypted metadata failed schema validation.
	ErrMetadataCorrupted = errors.New("metadata is corrupted")

	// ErrVersionConflict indicates metadata was saved against a stale version.
	ErrVersionConflict = errors.New("metadata version conflict")
)

// Session errors.
var (
	// ErrSessionLocked indicates the master key is not resident in memory.
	ErrSessionLocked = errors.New("session is locked")

	// ErrNotAuthenticated indicates there is no session token.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAuthRejected indicates the server did not accept the auth hash.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrUserExists indicates signup for an email that is already registered.
	ErrUserExists = errors.New("user already exists")
)

// Storage and transfer errors.
var (
	// ErrNotFound indicates a remote object (chunk, manifest, metadata, user) is missing.
	ErrNotFound = errors.New("not found")

	// ErrTransferAborted indicates a transfer was cancelled and its sink discarded.
	ErrTransferAborted = errors.New("transfer aborted")
)

// UserMessage returns a message that is safe to show to a user. It never
// says which layer of the key hierarchy failed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRejected):
		return "The email or password is incorrect."
	case errors.Is(err, ErrDecryptionFailed):
		return "Unable to decrypt: the password is incorrect or the data was modified."
	case errors.Is(err, ErrStreamCorrupted), errors.Is(err, ErrTruncatedStream):
		return "The file content is damaged and cannot be decrypted. Upload it again."
	case errors.Is(err, ErrMetadataCorrupted):
		return "The folder structure could not be read."
	case errors.Is(err, ErrVersionConflict):
		return "Your folder structure changed elsewhere. Reload and try again."
	case errors.Is(err, ErrSessionLocked):
		return "Your vault is locked. Unlock it with your password."
	case errors.Is(err, ErrNotAuthenticated):
		return "You are not signed in."
	case errors.Is(err, ErrKeyDerivationFailed), errors.Is(err, ErrInvalidKDFParams):
		return "Could not derive your key. Try again."
	case errors.Is(err, ErrTransferAborted):
		return "The transfer was cancelled."
	default:
		return err.Error()
	}
}
