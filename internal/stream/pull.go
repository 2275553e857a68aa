package stream

import (
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"
	"github.com/PolarWolf314/zkdrive/internal/secretstream"
)

// PullWriter is the decryption transform. It accepts ciphertext in writes of
// any size, decrypts each block as soon as it is complete and forwards the
// plaintext to dst. Close decrypts the trailing partial block and checks
// that the stream ended with FINAL. Errors are sticky.
type PullWriter struct {
	dst       io.Writer
	key       *keys.Key
	dec       *secretstream.Decryptor
	header    []byte
	blockSize int
	buf       []byte

	finalized bool
	plaintext int64
	err       error
}

// NewPullWriter decrypts one segmented chunk whose header is known.
func NewPullWriter(dst io.Writer, key *keys.Key, header []byte, blockSize int) (*PullWriter, error) {
	if key == nil {
		return nil, kerrors.ErrInvalidKeyLength
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	dec, err := secretstream.NewDecryptor(key.Bytes(), header)
	if err != nil {
		return nil, err
	}
	return &PullWriter{dst: dst, dec: dec, blockSize: blockSize}, nil
}

// NewEmbeddedPullWriter decrypts a monolithic stream. The header is read
// from the first HeaderBytes written.
func NewEmbeddedPullWriter(dst io.Writer, key *keys.Key, blockSize int) (*PullWriter, error) {
	if key == nil {
		return nil, kerrors.ErrInvalidKeyLength
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	return &PullWriter{
		dst:       dst,
		key:       key.Clone(),
		header:    make([]byte, 0, secretstream.HeaderBytes),
		blockSize: blockSize,
	}, nil
}

// Plaintext reports how many plaintext bytes have been forwarded.
func (w *PullWriter) Plaintext() int64 {
	return w.plaintext
}

// Finalized reports whether the FINAL block has been seen.
func (w *PullWriter) Finalized() bool {
	return w.finalized
}

func (w *PullWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	consumed := 0

	if w.dec == nil {
		n := copy(w.header[len(w.header):secretstream.HeaderBytes], p)
		w.header = w.header[:len(w.header)+n]
		p = p[n:]
		consumed += n
		if len(w.header) < secretstream.HeaderBytes {
			return consumed, nil
		}
		dec, err := secretstream.NewDecryptor(w.key.Bytes(), w.header)
		w.key.Zero()
		if err != nil {
			return consumed, w.fail(err)
		}
		w.dec = dec
	}

	full := CiphertextBlockSize(w.blockSize)
	if w.buf == nil && len(p) > 0 {
		w.buf = make([]byte, 0, full)
	}
	for len(p) > 0 {
		if w.finalized {
			return consumed, w.fail(fmt.Errorf("%w: %d bytes after final block", kerrors.ErrStreamCorrupted, len(p)))
		}
		n := copy(w.buf[len(w.buf):full], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		consumed += n
		if len(w.buf) == full {
			if err := w.pull(); err != nil {
				return consumed, err
			}
		}
	}
	return consumed, nil
}

// Close finishes the stream. It does not close dst.
func (w *PullWriter) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.dec == nil {
		return w.fail(fmt.Errorf("%w: stream ended inside its %d-byte header", kerrors.ErrTruncatedStream, secretstream.HeaderBytes))
	}
	if !w.finalized {
		switch {
		case len(w.buf) == 0:
			return w.fail(fmt.Errorf("%w: stream ended without a final block", kerrors.ErrStreamCorrupted))
		case len(w.buf) < secretstream.ABytes:
			return w.fail(fmt.Errorf("%w: trailing block of %d bytes", kerrors.ErrTruncatedStream, len(w.buf)))
		}
		if err := w.pull(); err != nil {
			return err
		}
		if !w.finalized {
			return w.fail(fmt.Errorf("%w: stream ended without a final block", kerrors.ErrStreamCorrupted))
		}
	}
	w.err = kerrors.ErrStreamFinalized
	return nil
}

func (w *PullWriter) pull() error {
	msg, tag, err := w.dec.Pull(w.buf)
	w.buf = w.buf[:0]
	if err != nil {
		return w.fail(err)
	}
	if tag == secretstream.TagFinal {
		w.finalized = true
	}
	n, err := w.dst.Write(msg)
	w.plaintext += int64(n)
	zero(msg)
	if err == nil && n != len(msg) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return w.fail(fmt.Errorf("writing plaintext: %w", err))
	}
	return nil
}

func (w *PullWriter) fail(err error) error {
	w.err = err
	w.key.Zero()
	zero(w.buf)
	return err
}
