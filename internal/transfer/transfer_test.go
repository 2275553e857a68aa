package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/PolarWolf314/zkdrive/internal/api"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/kdf"
	"github.com/PolarWolf314/zkdrive/internal/keys"
	"github.com/PolarWolf314/zkdrive/internal/kvstore"
	"github.com/PolarWolf314/zkdrive/internal/stream"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const blockSize = 1024

// memBackend is a Source, ChunkSink and BlobSink held in memory.
type memBackend struct {
	mu        sync.Mutex
	chunks    map[int][]byte
	blob      []byte
	manifest  *stream.Manifest
	fetches   int
	failChunk int
}

func newMemBackend() *memBackend {
	return &memBackend{chunks: map[int][]byte{}, failChunk: -1}
}

func (b *memBackend) PutChunk(_ context.Context, _ string, index int, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks[index] = bytes.Clone(data)
	return nil
}

func (b *memBackend) PutBlob(_ context.Context, _ string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blob = data
	return nil
}

func (b *memBackend) PutManifest(_ context.Context, m *stream.Manifest) error {
	b.manifest = m
	return nil
}

func (b *memBackend) FetchChunk(_ context.Context, _ string, chunk stream.Chunk) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if chunk.Index == b.failChunk {
		return nil, kerrors.ErrNotFound
	}
	data, ok := b.chunks[chunk.Index]
	if !ok {
		return nil, kerrors.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBackend) FetchBlob(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.blob)), nil
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func fileKey(t *testing.T) *keys.Key {
	t.Helper()
	k, err := keys.GenerateFileKey()
	require.NoError(t, err)
	return k
}

func upload(t *testing.T, plain []byte, key *keys.Key) (*memBackend, *stream.Manifest) {
	t.Helper()
	backend := newMemBackend()
	o := NewOrchestrator(backend, Options{ChunkSize: 4 * blockSize, BlockSize: blockSize})
	m, err := o.Upload(context.Background(), uuid.NewString(), bytes.NewReader(plain), int64(len(plain)), key, backend, nil)
	require.NoError(t, err)
	require.Same(t, m, backend.manifest)
	return backend, m
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, blockSize, 4 * blockSize, 4*blockSize + 1, 19*blockSize + 7} {
		for _, parallelism := range []int{1, 3} {
			key := fileKey(t)
			plain := randomBytes(t, size)
			backend, m := upload(t, plain, key)
			require.Equal(t, int64(size), m.PlaintextSize)

			dst := filepath.Join(t.TempDir(), "out.bin")
			sink, err := NewFileSink(dst)
			require.NoError(t, err)

			var last, total int64
			o := NewOrchestrator(backend, Options{Parallelism: parallelism})
			err = o.Download(context.Background(), m, key, sink, func(done, tot int64) {
				require.GreaterOrEqual(t, done, last)
				last, total = done, tot
			})
			require.NoError(t, err, "size %d parallelism %d", size, parallelism)

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			require.True(t, bytes.Equal(plain, got), "size %d parallelism %d", size, parallelism)
			if size > 0 {
				require.Equal(t, int64(size), last)
				require.Equal(t, int64(size), total)
			}
			require.Equal(t, []string{"out.bin"}, dirEntries(t, filepath.Dir(dst)))
		}
	}
}

func TestUploadReportsProgressPerChunk(t *testing.T) {
	backend := newMemBackend()
	o := NewOrchestrator(backend, Options{ChunkSize: 2 * blockSize, BlockSize: blockSize})
	plain := randomBytes(t, 5*blockSize)

	var seen []int64
	_, err := o.Upload(context.Background(), uuid.NewString(), bytes.NewReader(plain), -1, fileKey(t), backend,
		func(done, total int64) {
			require.Equal(t, int64(-1), total)
			seen = append(seen, done)
		})
	require.NoError(t, err)
	require.Equal(t, []int64{2 * blockSize, 4 * blockSize, 5 * blockSize}, seen)
}

func TestTamperedChunkAbortsSink(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		key := fileKey(t)
		backend, m := upload(t, randomBytes(t, 10*blockSize), key)
		backend.chunks[1][40] ^= 0x01

		dir := t.TempDir()
		sink, err := NewFileSink(filepath.Join(dir, "out.bin"))
		require.NoError(t, err)

		err = NewOrchestrator(backend, Options{Parallelism: parallelism}).Download(context.Background(), m, key, sink, nil)
		require.Error(t, err)
		require.Empty(t, dirEntries(t, dir), "a failed download must leave nothing behind")
	}
}

func TestMissingChunkAbortsSink(t *testing.T) {
	key := fileKey(t)
	backend, m := upload(t, randomBytes(t, 10*blockSize), key)
	backend.failChunk = 2

	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "out.bin"))
	require.NoError(t, err)
	err = NewOrchestrator(backend, Options{Parallelism: 2}).Download(context.Background(), m, key, sink, nil)
	require.ErrorIs(t, err, kerrors.ErrNotFound)
	require.Empty(t, dirEntries(t, dir))
}

func TestCancellationAbortsSink(t *testing.T) {
	key := fileKey(t)
	backend, m := upload(t, randomBytes(t, 12*blockSize), key)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "out.bin"))
	require.NoError(t, err)

	err = NewOrchestrator(backend, Options{}).Download(ctx, m, key, sink, func(done, total int64) {
		if done >= 4*blockSize {
			cancel()
		}
	})
	require.ErrorIs(t, err, kerrors.ErrTransferAborted)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, dirEntries(t, dir))
	require.Less(t, backend.fetches, len(m.Chunks), "no chunk is fetched after cancellation")
}

func TestMonolithicRoundTrip(t *testing.T) {
	key := fileKey(t)
	backend := newMemBackend()
	o := NewOrchestrator(backend, Options{BlockSize: blockSize})
	plain := randomBytes(t, 7*blockSize+3)

	var last int64
	m, err := o.UploadMonolithic(context.Background(), uuid.NewString(), bytes.NewReader(plain), int64(len(plain)), key, backend,
		func(done, _ int64) { last = done })
	require.NoError(t, err)
	require.False(t, m.Segmented())
	require.Equal(t, int64(len(plain)), last)

	r := o.DecryptForDownload(context.Background(), m, key)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.True(t, bytes.Equal(plain, got))
}

func TestDecryptForDownloadSurfacesFailure(t *testing.T) {
	key := fileKey(t)
	backend, m := upload(t, randomBytes(t, 9*blockSize), key)
	last := backend.chunks[len(m.Chunks)-1]
	backend.chunks[len(m.Chunks)-1] = last[:len(last)-5]

	r := NewOrchestrator(backend, Options{}).DecryptForDownload(context.Background(), m, key)
	defer r.Close()
	_, err := io.ReadAll(r)
	require.Error(t, err)
}

func TestTieredSourceRoutesByLocation(t *testing.T) {
	ctx := context.Background()
	kv, err := kvstore.OpenInMemory()
	require.NoError(t, err)
	defer kv.Close()

	var token string
	vault, err := api.OpenLocalVault(kv, api.LocalOptions{
		ObjectsDir: t.TempDir(),
		Token:      func() (string, error) { return token, nil },
	})
	require.NoError(t, err)
	res, err := vault.Register(ctx, api.Registration{
		Email:                   "a@example.com",
		Salt:                    "c2FsdA==",
		KDFParams:               kdf.DefaultParams(),
		AuthHash:                "aGFzaA==",
		EncryptedMasterKey:      "bWs=",
		EncryptedMasterKeyNonce: "bm9uY2U=",
	})
	require.NoError(t, err)
	token = res.Token

	key := fileKey(t)
	plain := randomBytes(t, 6*blockSize)
	fileID := uuid.NewString()
	up := NewOrchestrator(nil, Options{ChunkSize: 2 * blockSize, BlockSize: blockSize, LocationHint: stream.LocationLocal})
	m, err := up.Upload(ctx, fileID, bytes.NewReader(plain), int64(len(plain)), key, vault, nil)
	require.NoError(t, err)
	require.Len(t, m.Chunks, 3)

	// Move the middle chunk out of the local directory into a remote tier.
	root := vault.ObjectsDir(res.UserID)
	moved, err := os.ReadFile(api.ChunkPath(root, fileID, 1))
	require.NoError(t, err)
	require.NoError(t, os.Remove(api.ChunkPath(root, fileID, 1)))
	remote := newMemBackend()
	remote.chunks[1] = moved
	m.Chunks[1].LocationHint = stream.LocationRemote

	local := DirTier{Root: root}
	_, err = local.FetchChunk(ctx, fileID, m.Chunks[1])
	require.ErrorIs(t, err, kerrors.ErrNotFound)

	source := NewTieredSource(stream.LocationLocal).
		Register(stream.LocationLocal, local).
		Register(stream.LocationRemote, remote)
	r := NewOrchestrator(source, Options{}).DecryptForDownload(ctx, m, key)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plain, got))
	require.Equal(t, 1, remote.fetches)

	viaAPI := NewTieredSource(stream.LocationRemote).Register(stream.LocationRemote, RemoteTier{Client: vault})
	rc, err := viaAPI.FetchChunk(ctx, fileID, stream.Chunk{Index: 0})
	require.NoError(t, err)
	rc.Close()

	_, err = NewTieredSource("").FetchChunk(ctx, fileID, m.Chunks[0])
	require.Error(t, err)
}
