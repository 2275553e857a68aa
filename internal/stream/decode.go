package stream

import (
	"context"
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"
)

// Opener fetches ciphertext for one file.
type Opener interface {
	OpenChunk(ctx context.Context, chunk Chunk) (io.ReadCloser, error)
	OpenBlob(ctx context.Context) (io.ReadCloser, error)
}

// DecryptChunk decrypts exactly chunk.Size bytes from src into dst under a
// pull session keyed by the chunk's header.
func DecryptChunk(ctx context.Context, dst io.Writer, src io.Reader, key *keys.Key, chunk Chunk, blockSize int) (int64, error) {
	pw, err := NewPullWriter(dst, key, chunk.Nonce, blockSize)
	if err != nil {
		return 0, fmt.Errorf("chunk %d: %w", chunk.Index, err)
	}
	n, err := io.Copy(pw, io.LimitReader(contextReader{ctx: ctx, r: src}, chunk.Size+1))
	if err != nil {
		return pw.Plaintext(), fmt.Errorf("chunk %d: %w", chunk.Index, err)
	}
	if n != chunk.Size {
		return pw.Plaintext(), fmt.Errorf("%w: chunk %d has %d ciphertext bytes, manifest says %d",
			kerrors.ErrStreamCorrupted, chunk.Index, n, chunk.Size)
	}
	if err := pw.Close(); err != nil {
		return pw.Plaintext(), fmt.Errorf("chunk %d: %w", chunk.Index, err)
	}
	return pw.Plaintext(), nil
}

// DecryptMonolithic decrypts one continuous stream whose header leads src.
func DecryptMonolithic(ctx context.Context, dst io.Writer, src io.Reader, key *keys.Key, blockSize int) (int64, error) {
	pw, err := NewEmbeddedPullWriter(dst, key, blockSize)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(pw, contextReader{ctx: ctx, r: src}); err != nil {
		return pw.Plaintext(), err
	}
	if err := pw.Close(); err != nil {
		return pw.Plaintext(), err
	}
	return pw.Plaintext(), nil
}

// Decoder decrypts a file described by a manifest. The mode comes from the
// manifest alone: chunk metadata means segmented, none means monolithic.
// A Decoder runs a monolithic stream at most once.
type Decoder struct {
	monolithicStarted bool
}

// Decrypt writes the file's plaintext to dst and returns its length.
func (d *Decoder) Decrypt(ctx context.Context, m *Manifest, key *keys.Key, open Opener, dst io.Writer) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if !m.Segmented() {
		return d.decryptMonolithic(ctx, m, key, open, dst)
	}

	var total int64
	for _, chunk := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := d.decryptChunk(ctx, m, key, open, chunk, dst)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (d *Decoder) decryptChunk(ctx context.Context, m *Manifest, key *keys.Key, open Opener, chunk Chunk, dst io.Writer) (int64, error) {
	src, err := open.OpenChunk(ctx, chunk)
	if err != nil {
		return 0, fmt.Errorf("fetching chunk %d: %w", chunk.Index, err)
	}
	defer src.Close()
	return DecryptChunk(ctx, dst, src, key, chunk, m.BlockSize)
}

func (d *Decoder) decryptMonolithic(ctx context.Context, m *Manifest, key *keys.Key, open Opener, dst io.Writer) (int64, error) {
	if d.monolithicStarted {
		return 0, fmt.Errorf("%w: monolithic stream re-entered", kerrors.ErrStreamCorrupted)
	}
	d.monolithicStarted = true

	src, err := open.OpenBlob(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching blob: %w", err)
	}
	defer src.Close()
	n, err := DecryptMonolithic(ctx, dst, src, key, m.BlockSize)
	if err != nil {
		return n, err
	}
	if n != m.PlaintextSize {
		return n, fmt.Errorf("%w: stream carried %d plaintext bytes, manifest says %d",
			kerrors.ErrStreamCorrupted, n, m.PlaintextSize)
	}
	return n, nil
}
