package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/kdf"
	"github.com/PolarWolf314/zkdrive/internal/kvstore"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
	"github.com/PolarWolf314/zkdrive/internal/secretstream"
	"github.com/PolarWolf314/zkdrive/internal/stream"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func registration(email string) Registration {
	return Registration{
		Email:                   email,
		Salt:                    b64("0123456789abcdef0123456789abcdef"),
		KDFParams:               kdf.DefaultParams(),
		AuthHash:                b64("auth-hash"),
		EncryptedMasterKey:      b64("wrapped"),
		EncryptedMasterKeyNonce: b64("nonce"),
	}
}

func newVault(t *testing.T) (*LocalVault, *string) {
	t.Helper()
	kv, err := kvstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	token := new(string)
	v, err := OpenLocalVault(kv, LocalOptions{
		ObjectsDir: t.TempDir(),
		Token:      func() (string, error) { return *token, nil },
	})
	require.NoError(t, err)
	return v, token
}

func TestLocalVaultRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	v, _ := newVault(t)

	res, err := v.Register(ctx, registration("Alice@Example.com"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, b64("wrapped"), res.EncryptedMasterKey)

	_, err = v.Register(ctx, registration("alice@example.com"))
	require.ErrorIs(t, err, kerrors.ErrUserExists)

	pre, err := v.GetSalt(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, registration("x@y.z").Salt, pre.Salt)

	login, err := v.Login(ctx, LoginRequest{Email: "alice@example.com", AuthHash: b64("auth-hash")})
	require.NoError(t, err)
	require.Equal(t, res.UserID, login.UserID)

	_, err = v.Login(ctx, LoginRequest{Email: "alice@example.com", AuthHash: b64("other")})
	require.ErrorIs(t, err, kerrors.ErrAuthRejected)
	_, err = v.Login(ctx, LoginRequest{Email: "nobody@example.com", AuthHash: b64("auth-hash")})
	require.ErrorIs(t, err, kerrors.ErrAuthRejected)
}

func TestLocalVaultPreloginDoesNotRevealAccounts(t *testing.T) {
	ctx := context.Background()
	v, _ := newVault(t)

	a, err := v.GetSalt(ctx, "ghost@example.com")
	require.NoError(t, err)
	b, err := v.GetSalt(ctx, "ghost@example.com")
	require.NoError(t, err)
	require.Equal(t, a, b, "answers for unknown emails must be stable")
	require.NoError(t, a.KDFParams.Validate())

	salt, err := base64.StdEncoding.DecodeString(a.Salt)
	require.NoError(t, err)
	require.Len(t, salt, kdf.SaltSize)
}

func TestLocalVaultMetadataVersions(t *testing.T) {
	ctx := context.Background()
	v, token := newVault(t)

	_, err := v.GetMetadata(ctx)
	require.ErrorIs(t, err, kerrors.ErrNotAuthenticated)

	res, err := v.Register(ctx, registration("a@example.com"))
	require.NoError(t, err)
	*token = res.Token

	_, err = v.GetMetadata(ctx)
	require.ErrorIs(t, err, kerrors.ErrNotFound)

	version, err := v.SaveMetadata(ctx, metadata.Envelope{Ciphertext: "c1", Nonce: "n1"}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, version)

	_, err = v.SaveMetadata(ctx, metadata.Envelope{Ciphertext: "c2", Nonce: "n2"}, 0)
	require.ErrorIs(t, err, kerrors.ErrVersionConflict)

	env, err := v.GetMetadata(ctx)
	require.NoError(t, err)
	require.Equal(t, metadata.Envelope{Ciphertext: "c1", Nonce: "n1", Version: 1}, env)
}

func TestLocalVaultRejectsForgedAndExpiredTokens(t *testing.T) {
	ctx := context.Background()
	v, token := newVault(t)
	res, err := v.Register(ctx, registration("a@example.com"))
	require.NoError(t, err)

	other, _ := newVault(t)
	forged, err := other.Register(ctx, registration("a@example.com"))
	require.NoError(t, err)
	*token = forged.Token
	_, err = v.GetMetadata(ctx)
	require.ErrorIs(t, err, kerrors.ErrNotAuthenticated)

	*token = res.Token
	v.now = func() time.Time { return time.Now().Add(2 * DefaultTokenTTL) }
	_, err = v.GetMetadata(ctx)
	require.ErrorIs(t, err, kerrors.ErrNotAuthenticated)
}

func TestLocalVaultObjects(t *testing.T) {
	ctx := context.Background()
	v, token := newVault(t)
	res, err := v.Register(ctx, registration("a@example.com"))
	require.NoError(t, err)
	*token = res.Token

	fileID := uuid.NewString()
	require.NoError(t, v.PutChunk(ctx, fileID, 0, []byte("chunk zero")))
	rc, err := v.GetChunk(ctx, fileID, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	require.Equal(t, "chunk zero", string(data))
	require.FileExists(t, ChunkPath(v.ObjectsDir(res.UserID), fileID, 0))

	_, err = v.GetChunk(ctx, fileID, 1)
	require.ErrorIs(t, err, kerrors.ErrNotFound)
	require.Error(t, v.PutChunk(ctx, "../escape", 0, []byte("x")))

	m := &stream.Manifest{FileID: fileID, PlaintextSize: 3, BlockSize: 16, Chunks: []stream.Chunk{
		{Index: 0, Size: int64(3 + secretstream.ABytes), Nonce: make([]byte, secretstream.HeaderBytes)},
	}}
	require.NoError(t, v.PutManifest(ctx, m))
	got, err := v.GetManifest(ctx, fileID)
	require.NoError(t, err)
	require.Equal(t, m.Chunks[0].Size, got.Chunks[0].Size)
	require.True(t, got.Chunks[0].Terminal)

	require.NoError(t, v.DeleteFile(ctx, fileID))
	require.NoFileExists(t, ChunkPath(v.ObjectsDir(res.UserID), fileID, 0))
	_, err = v.GetManifest(ctx, fileID)
	require.ErrorIs(t, err, kerrors.ErrNotFound)
	require.NoError(t, v.DeleteFile(ctx, fileID))
	require.Error(t, v.DeleteFile(ctx, "../escape"))
}

func TestHTTPClientStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, kerrors.ErrAuthRejected},
		{http.StatusNotFound, kerrors.ErrNotFound},
		{http.StatusConflict, kerrors.ErrVersionConflict},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c, err := NewHTTPClient(HTTPOptions{BaseURL: srv.URL, Token: func() (string, error) { return "t", nil }})
			require.NoError(t, err)
			_, err = c.GetMetadata(context.Background())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPClientRegisterConflictIsUserExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Register(context.Background(), registration("a@example.com"))
	require.ErrorIs(t, err, kerrors.ErrUserExists)
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(metadata.Envelope{Ciphertext: "c", Nonce: "n", Version: 7})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPOptions{BaseURL: srv.URL, Retries: 3, Token: func() (string, error) { return "tok", nil }})
	require.NoError(t, err)
	c.client.RetryWaitMin = time.Millisecond
	c.client.RetryWaitMax = time.Millisecond

	env, err := c.GetMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, env.Version)
	require.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientSaveMetadataAndChunks(t *testing.T) {
	var saved metadata.Envelope
	var chunk []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/api/metadata", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
		json.NewEncoder(w).Encode(map[string]int{"version": saved.Version + 1})
	})
	mux.HandleFunc("/api/files/f1/chunks/2", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			chunk, _ = io.ReadAll(r.Body)
			return
		}
		w.Write(chunk)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewHTTPClient(HTTPOptions{BaseURL: srv.URL + "/", Token: func() (string, error) { return "tok", nil }})
	require.NoError(t, err)

	version, err := c.SaveMetadata(context.Background(), metadata.Envelope{Ciphertext: "c", Nonce: "n"}, 4)
	require.NoError(t, err)
	require.Equal(t, 5, version)
	require.Equal(t, 4, saved.Version, "the expected version travels in the body")

	require.NoError(t, c.PutChunk(context.Background(), "f1", 2, []byte("ciphertext")))
	rc, err := c.GetChunk(context.Background(), "f1", 2)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.True(t, bytes.Equal([]byte("ciphertext"), got))
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient(HTTPOptions{BaseURL: "ftp://example.com"})
	require.Error(t, err)
}

// countingReader hands out n zero bytes and records how many were read.
type countingReader struct {
	remaining int64
	read      atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	clear(p)
	r.remaining -= int64(len(p))
	r.read.Add(int64(len(p)))
	return len(p), nil
}

func TestHTTPClientPutBlobStreams(t *testing.T) {
	const size = 32 << 20
	src := &countingReader{remaining: size}

	var readBeforeHandler, received int64
	var authHeader string
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		readBeforeHandler = src.read.Load()
		authHeader = r.Header.Get("Authorization")
		received, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPOptions{BaseURL: srv.URL, Retries: 3, Token: func() (string, error) { return "tok", nil }})
	require.NoError(t, err)
	require.NoError(t, c.PutBlob(context.Background(), "f1", src))

	require.Less(t, readBeforeHandler, int64(size))
	require.Equal(t, int64(size), received)
	require.Equal(t, "Bearer tok", authHeader)
	require.Equal(t, int32(1), calls.Load())
}

func TestHTTPClientPutBlobIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPOptions{BaseURL: srv.URL, Retries: 3, Token: func() (string, error) { return "tok", nil }})
	require.NoError(t, err)
	err = c.PutBlob(context.Background(), "f1", bytes.NewReader([]byte("ciphertext")))
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestHTTPClientDeleteFile(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/api/files/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPOptions{BaseURL: srv.URL, Token: func() (string, error) { return "tok", nil }})
	require.NoError(t, err)
	require.NoError(t, c.DeleteFile(context.Background(), "f1"))
	require.NoError(t, c.DeleteFile(context.Background(), "gone"))
	require.Equal(t, []string{"DELETE /api/files/f1", "DELETE /api/files/gone"}, paths)
}
