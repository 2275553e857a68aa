package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/PolarWolf314/zkdrive/internal/api"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/stream"
)

// Source fetches ciphertext for a file.
type Source interface {
	FetchChunk(ctx context.Context, fileID string, chunk stream.Chunk) (io.ReadCloser, error)
	FetchBlob(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// TieredSource routes each chunk to the tier named by its location hint.
// Chunks without a hint, and monolithic blobs, go to the default tier.
type TieredSource struct {
	tiers       map[string]Source
	defaultTier string
}

func NewTieredSource(defaultTier string) *TieredSource {
	return &TieredSource{tiers: map[string]Source{}, defaultTier: defaultTier}
}

// Register adds or replaces the tier for hint.
func (t *TieredSource) Register(hint string, src Source) *TieredSource {
	t.tiers[hint] = src
	return t
}

func (t *TieredSource) tier(hint string) (Source, error) {
	if hint == "" {
		hint = t.defaultTier
	}
	src, ok := t.tiers[hint]
	if !ok {
		return nil, fmt.Errorf("no storage tier registered for location %q", hint)
	}
	return src, nil
}

func (t *TieredSource) FetchChunk(ctx context.Context, fileID string, chunk stream.Chunk) (io.ReadCloser, error) {
	src, err := t.tier(chunk.LocationHint)
	if err != nil {
		return nil, err
	}
	return src.FetchChunk(ctx, fileID, chunk)
}

func (t *TieredSource) FetchBlob(ctx context.Context, fileID string) (io.ReadCloser, error) {
	src, err := t.tier("")
	if err != nil {
		return nil, err
	}
	return src.FetchBlob(ctx, fileID)
}

// DirTier reads objects laid out by the local vault under Root.
type DirTier struct {
	Root string
}

func (d DirTier) open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, kerrors.ErrNotFound)
	}
	return f, err
}

func (d DirTier) FetchChunk(_ context.Context, fileID string, chunk stream.Chunk) (io.ReadCloser, error) {
	return d.open(api.ChunkPath(d.Root, fileID, chunk.Index))
}

func (d DirTier) FetchBlob(_ context.Context, fileID string) (io.ReadCloser, error) {
	return d.open(api.BlobPath(d.Root, fileID))
}

// RemoteTier fetches through the backend client.
type RemoteTier struct {
	Client api.Client
}

func (r RemoteTier) FetchChunk(ctx context.Context, fileID string, chunk stream.Chunk) (io.ReadCloser, error) {
	return r.Client.GetChunk(ctx, fileID, chunk.Index)
}

func (r RemoteTier) FetchBlob(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return r.Client.GetBlob(ctx, fileID)
}

// opener adapts a Source to a single file for the stream decoder.
type opener struct {
	src    Source
	fileID string
}

func (o opener) OpenChunk(ctx context.Context, chunk stream.Chunk) (io.ReadCloser, error) {
	return o.src.FetchChunk(ctx, o.fileID, chunk)
}

func (o opener) OpenBlob(ctx context.Context) (io.ReadCloser, error) {
	return o.src.FetchBlob(ctx, o.fileID)
}
