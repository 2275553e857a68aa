// Package transfer moves encrypted files between a backend and local
// storage. Downloads decrypt chunk by chunk into a Sink and never present a
// partial result as complete.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"
	logger "github.com/PolarWolf314/zkdrive/internal/logging"
	"github.com/PolarWolf314/zkdrive/internal/stream"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives cumulative plaintext bytes and the expected total.
// total is -1 when the size is not known in advance.
type ProgressFunc func(done, total int64)

// ChunkSink stores an upload's chunks and its manifest.
type ChunkSink interface {
	PutChunk(ctx context.Context, fileID string, index int, data []byte) error
	PutManifest(ctx context.Context, m *stream.Manifest) error
}

// BlobSink stores a monolithic upload and its manifest.
type BlobSink interface {
	PutBlob(ctx context.Context, fileID string, r io.Reader) error
	PutManifest(ctx context.Context, m *stream.Manifest) error
}

type Options struct {
	// Parallelism above 1 decrypts that many segmented chunks at once.
	// Output still reaches the sink in index order.
	Parallelism int
	ChunkSize   int
	BlockSize   int
	// LocationHint is recorded on uploaded chunks.
	LocationHint string
	Logger       logger.Logger
}

type Orchestrator struct {
	source Source
	opts   Options
}

func NewOrchestrator(source Source, opts Options) *Orchestrator {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Orchestrator{source: source, opts: opts}
}

// Download decrypts the file described by m into sink. On success the sink
// is closed; on any failure, including cancellation, it is aborted.
func (o *Orchestrator) Download(ctx context.Context, m *stream.Manifest, fileKey *keys.Key, sink Sink, progress ProgressFunc) error {
	err := o.download(ctx, m, fileKey, sink, progress)
	if err != nil {
		if aerr := sink.Abort(); aerr != nil {
			o.opts.Logger.Warnf("Failed to discard partial download of %s: %v", m.FileID, aerr)
		}
		return err
	}
	return sink.Close()
}

// DecryptForDownload returns a reader over the plaintext. A failure mid-way
// is returned from Read instead of io.EOF; closing the reader early stops
// the transfer.
func (o *Orchestrator) DecryptForDownload(ctx context.Context, m *stream.Manifest, fileKey *keys.Key) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := o.download(ctx, m, fileKey, pw, nil)
		pw.CloseWithError(err)
	}()
	return pr
}

func (o *Orchestrator) download(ctx context.Context, m *stream.Manifest, fileKey *keys.Key, dst io.Writer, progress ProgressFunc) error {
	if err := m.Validate(); err != nil {
		return err
	}
	o.opts.Logger.Debugf("Downloading %s: %d bytes in %d chunk(s)", m.FileID, m.PlaintextSize, len(m.Chunks))

	w := &progressWriter{w: dst, total: m.PlaintextSize, progress: progress}
	var err error
	if m.Segmented() && o.opts.Parallelism > 1 && len(m.Chunks) > 1 {
		err = o.downloadParallel(ctx, m, fileKey, w)
	} else {
		var dec stream.Decoder
		_, err = dec.Decrypt(ctx, m, fileKey, opener{src: o.source, fileID: m.FileID}, w)
	}
	return aborted(ctx, err)
}

// downloadParallel decrypts up to Parallelism chunks ahead of the writer.
// A slot is held from dispatch until the chunk's plaintext is written, so at
// most Parallelism chunks are buffered.
func (o *Orchestrator) downloadParallel(ctx context.Context, m *stream.Manifest, fileKey *keys.Key, dst io.Writer) error {
	g, gctx := errgroup.WithContext(ctx)
	slots := make(chan struct{}, o.opts.Parallelism)
	results := make([]chan []byte, len(m.Chunks))
	for i := range results {
		results[i] = make(chan []byte, 1)
	}
	src := opener{src: o.source, fileID: m.FileID}

	g.Go(func() error {
		for i, chunk := range m.Chunks {
			i, chunk := i, chunk
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			g.Go(func() error {
				rc, err := src.OpenChunk(gctx, chunk)
				if err != nil {
					return fmt.Errorf("fetching chunk %d: %w", chunk.Index, err)
				}
				defer rc.Close()
				var buf bytes.Buffer
				if _, err := stream.DecryptChunk(gctx, &buf, rc, fileKey, chunk, m.BlockSize); err != nil {
					return err
				}
				results[i] <- buf.Bytes()
				return nil
			})
		}
		return nil
	})

	g.Go(func() error {
		for i := range m.Chunks {
			select {
			case plain := <-results[i]:
				_, err := dst.Write(plain)
				clear(plain)
				<-slots
				if err != nil {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

// Upload encrypts r as a segmented file, storing each chunk as it is
// produced and the manifest last. size may be -1.
func (o *Orchestrator) Upload(ctx context.Context, fileID string, r io.Reader, size int64, fileKey *keys.Key, dst ChunkSink, progress ProgressFunc) (*stream.Manifest, error) {
	opts := stream.Options{
		FileID:       fileID,
		ChunkSize:    o.opts.ChunkSize,
		BlockSize:    o.opts.BlockSize,
		LocationHint: o.opts.LocationHint,
	}
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = stream.DefaultBlockSize
	}
	var done int64
	m, err := stream.EncryptSegmented(ctx, r, fileKey, opts, func(ctx context.Context, chunk stream.Chunk, ciphertext []byte) error {
		if err := dst.PutChunk(ctx, fileID, chunk.Index, ciphertext); err != nil {
			return err
		}
		o.opts.Logger.Debugf("Stored chunk %d of %s (%d bytes)", chunk.Index, fileID, len(ciphertext))
		if progress != nil {
			n, _ := chunk.Plaintext(blockSize)
			done = chunk.PlaintextOffset + n
			progress(done, size)
		}
		return nil
	})
	if err != nil {
		return nil, aborted(ctx, err)
	}
	if err := dst.PutManifest(ctx, m); err != nil {
		return nil, fmt.Errorf("storing manifest: %w", err)
	}
	return m, nil
}

// UploadMonolithic encrypts r as one continuous stream and stores it as a
// single blob.
func (o *Orchestrator) UploadMonolithic(ctx context.Context, fileID string, r io.Reader, size int64, fileKey *keys.Key, dst BlobSink, progress ProgressFunc) (*stream.Manifest, error) {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var m *stream.Manifest
	g.Go(func() error {
		in := &progressReader{r: r, total: size, progress: progress}
		var err error
		m, err = stream.EncryptMonolithic(gctx, pw, in, fileKey, stream.Options{FileID: fileID, BlockSize: o.opts.BlockSize})
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := dst.PutBlob(gctx, fileID, pr)
		pr.CloseWithError(err)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, aborted(ctx, err)
	}
	if err := dst.PutManifest(ctx, m); err != nil {
		return nil, fmt.Errorf("storing manifest: %w", err)
	}
	return m, nil
}

// aborted marks errors caused by cancellation so callers can tell them from
// corrupt data.
func aborted(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %w", kerrors.ErrTransferAborted, err)
	}
	return err
}

type progressReader struct {
	r        io.Reader
	done     int64
	total    int64
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.done += int64(n)
	if p.progress != nil && n > 0 {
		p.progress(p.done, p.total)
	}
	return n, err
}
