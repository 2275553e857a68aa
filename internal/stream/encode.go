package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/PolarWolf314/zkdrive/internal/keys"
)

// Options controls how plaintext is cut into chunks and blocks.
type Options struct {
	FileID string
	// ChunkSize is the plaintext per segmented chunk. It is rounded up to a
	// whole number of blocks.
	ChunkSize int
	BlockSize int
	// LocationHint is recorded on every emitted chunk.
	LocationHint string
}

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if rem := o.ChunkSize % o.BlockSize; rem != 0 {
		o.ChunkSize += o.BlockSize - rem
	}
	return o
}

// EmitFunc receives each chunk's ciphertext in index order. The slice is
// only valid for the duration of the call.
type EmitFunc func(ctx context.Context, chunk Chunk, ciphertext []byte) error

// EncryptSegmented reads r to the end and encrypts it as a sequence of
// independent streams, one per chunk, each with its own header. Empty input
// yields one terminal chunk carrying an empty FINAL block.
func EncryptSegmented(ctx context.Context, r io.Reader, key *keys.Key, opts Options, emit EmitFunc) (*Manifest, error) {
	opts = opts.withDefaults()
	br := bufio.NewReader(r)
	plain := make([]byte, opts.ChunkSize)
	defer zero(plain)

	m := &Manifest{FileID: opts.FileID, BlockSize: opts.BlockSize}
	var out bytes.Buffer
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := io.ReadFull(br, plain)
		last := false
		switch {
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			last = true
		case err != nil:
			return nil, fmt.Errorf("reading chunk %d: %w", index, err)
		default:
			if _, perr := br.Peek(1); errors.Is(perr, io.EOF) {
				last = true
			} else if perr != nil {
				return nil, fmt.Errorf("reading chunk %d: %w", index+1, perr)
			}
		}

		out.Reset()
		pw, err := NewPushWriter(&out, key, opts.BlockSize)
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write(plain[:n]); err != nil {
			return nil, fmt.Errorf("encrypting chunk %d: %w", index, err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("encrypting chunk %d: %w", index, err)
		}

		chunk := Chunk{
			Index:           index,
			PlaintextOffset: m.PlaintextSize,
			Size:            int64(out.Len()),
			Nonce:           pw.Header(),
			Terminal:        last,
			LocationHint:    opts.LocationHint,
			Status:          StatusPending,
		}
		if err := emit(ctx, chunk, out.Bytes()); err != nil {
			return nil, fmt.Errorf("storing chunk %d: %w", index, err)
		}
		chunk.Status = StatusUploaded
		m.Chunks = append(m.Chunks, chunk)
		m.PlaintextSize += int64(n)

		if last {
			return m, nil
		}
	}
}

// EncryptMonolithic writes r to dst as one continuous stream: the header
// followed by every block. The returned manifest carries no chunks.
func EncryptMonolithic(ctx context.Context, dst io.Writer, r io.Reader, key *keys.Key, opts Options) (*Manifest, error) {
	opts = opts.withDefaults()
	pw, err := NewEmbeddedPushWriter(dst, key, opts.BlockSize)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(pw, contextReader{ctx: ctx, r: r}); err != nil {
		return nil, fmt.Errorf("encrypting stream: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("encrypting stream: %w", err)
	}
	plaintext, _ := pw.Written()
	return &Manifest{FileID: opts.FileID, PlaintextSize: plaintext, BlockSize: opts.BlockSize}, nil
}

// contextReader stops a copy loop once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
