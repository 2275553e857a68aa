package aead

import (
	"bytes"
	"errors"
	"testing"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func keyGen() *rapid.Generator[[]byte] {
	return rapid.SliceOfN(rapid.Byte(), KeySize, KeySize)
}

func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		plaintext := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "plaintext")
		key := keyGen().Draw(t, "key")

		blob, err := Encrypt(plaintext, key)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		got, err := Decrypt(blob, key)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch")
		}
	})
}

func TestWrongKeyFails(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		plaintext := rapid.SliceOfN(rapid.Byte(), 0, 1024).Draw(t, "plaintext")
		key1 := keyGen().Draw(t, "key1")
		key2 := keyGen().Filter(func(k []byte) bool { return !bytes.Equal(k, key1) }).Draw(t, "key2")

		blob, err := Encrypt(plaintext, key1)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		got, err := Decrypt(blob, key2)
		if !errors.Is(err, kerrors.ErrDecryptionFailed) {
			t.Fatalf("expected ErrDecryptionFailed, got %v", err)
		}
		if got != nil {
			t.Fatalf("plaintext returned on failure")
		}
	})
}

func TestTamperingFails(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	blob, err := Encrypt([]byte("folder names are secret"), key)
	require.NoError(t, err)

	for i := range blob.Ciphertext {
		tampered := EncryptedBlob{Ciphertext: bytes.Clone(blob.Ciphertext), Nonce: blob.Nonce}
		tampered.Ciphertext[i] ^= 0x01
		_, err := Decrypt(tampered, key)
		require.ErrorIs(t, err, kerrors.ErrDecryptionFailed, "byte %d", i)
	}

	wrongNonce := EncryptedBlob{Ciphertext: blob.Ciphertext, Nonce: bytes.Clone(blob.Nonce)}
	wrongNonce.Nonce[0] ^= 0xff
	_, err = Decrypt(wrongNonce, key)
	require.ErrorIs(t, err, kerrors.ErrDecryptionFailed)

	_, err = Decrypt(EncryptedBlob{Ciphertext: blob.Ciphertext, Nonce: blob.Nonce[:12]}, key)
	require.ErrorIs(t, err, kerrors.ErrDecryptionFailed)
}

func TestNoncesAreFresh(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeySize)
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		blob, err := Encrypt([]byte("same"), key)
		require.NoError(t, err)
		require.False(t, seen[string(blob.Nonce)], "nonce reused")
		seen[string(blob.Nonce)] = true
	}
}

func TestAssociatedData(t *testing.T) {
	key := bytes.Repeat([]byte{3}, KeySize)
	blob, err := EncryptWithAD([]byte("file key"), key, []byte("file:1"))
	require.NoError(t, err)

	_, err = DecryptWithAD(blob, key, []byte("file:2"))
	require.ErrorIs(t, err, kerrors.ErrDecryptionFailed)

	got, err := DecryptWithAD(blob, key, []byte("file:1"))
	require.NoError(t, err)
	require.Equal(t, []byte("file key"), got)
}

func TestInvalidKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("x"), make([]byte, 16))
	require.ErrorIs(t, err, kerrors.ErrInvalidKeyLength)
}

func TestWireRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{9}, KeySize)
	blob, err := Encrypt([]byte("wire"), key)
	require.NoError(t, err)

	back, err := blob.Wire().Blob()
	require.NoError(t, err)
	got, err := Decrypt(back, key)
	require.NoError(t, err)
	require.Equal(t, []byte("wire"), got)

	_, err = WireBlob{Ciphertext: "!!", Nonce: ""}.Blob()
	require.ErrorIs(t, err, kerrors.ErrDecryptionFailed)
}
