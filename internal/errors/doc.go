// Package errors provides typed error values for zkdrive.
//
// Sentinel errors let callers handle specific failure modes with errors.Is()
// rather than string matching.
//
// # Error Categories
//
//   - Crypto errors: ErrKeyDerivationFailed, ErrDecryptionFailed, ErrKeyNotFound
//   - Stream errors: ErrStreamCorrupted, ErrTruncatedStream, ErrStreamFinalized
//   - Metadata errors: ErrMetadataCorrupted, ErrVersionConflict
//   - Session errors: ErrSessionLocked, ErrNotAuthenticated, ErrAuthRejected
//   - Storage errors: ErrNotFound, ErrTransferAborted
//
// Cryptographic failures are never swallowed. Internal packages wrap them
// with context and return them:
//
//	return fmt.Errorf("unwrapping folder key %s: %w", id, errors.ErrDecryptionFailed)
//
// The CLI layer turns them into user-facing text with UserMessage, which
// deliberately does not say which layer of the key hierarchy failed.
package errors
