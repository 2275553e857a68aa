// Package secretstream implements the push/pull streaming AEAD used for file
// content. The construction is wire compatible with libsodium's
// crypto_secretstream_xchacha20poly1305: a 24-byte header seeds an
// HChaCha20 subkey and nonce, every message carries an encrypted tag byte
// and a Poly1305 MAC, and the nonce ratchets with each message so that
// messages cannot be dropped, reordered or replayed without detection.
//
// A stream moves through Uninitialized → Initialized → Streaming →
// Finalized. Pushing or pulling after TagFinal returns ErrStreamFinalized.
// A message that fails to authenticate moves a Decryptor to Corrupted,
// which is terminal.
//
// Encryptor and Decryptor hold mutable ratchet state and must not be shared
// between goroutines.
package secretstream
