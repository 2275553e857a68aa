package stream

import (
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"
	"github.com/PolarWolf314/zkdrive/internal/secretstream"
)

// PushWriter encrypts everything written to it as one stream. A block is
// pushed with MESSAGE only once a later byte proves it is not the last; Close
// pushes whatever remains, possibly nothing, with FINAL.
type PushWriter struct {
	dst       io.Writer
	enc       *secretstream.Encryptor
	header    []byte
	blockSize int
	buf       []byte

	plaintext  int64
	ciphertext int64
	closed     bool
}

// NewPushWriter starts a stream under key. The header is not written to dst;
// the caller stores it with the chunk.
func NewPushWriter(dst io.Writer, key *keys.Key, blockSize int) (*PushWriter, error) {
	if key == nil {
		return nil, kerrors.ErrInvalidKeyLength
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	enc, header, err := secretstream.NewEncryptor(key.Bytes())
	if err != nil {
		return nil, err
	}
	return &PushWriter{dst: dst, enc: enc, header: header, blockSize: blockSize}, nil
}

// NewEmbeddedPushWriter starts a monolithic stream: the header is written to
// dst ahead of the first block.
func NewEmbeddedPushWriter(dst io.Writer, key *keys.Key, blockSize int) (*PushWriter, error) {
	w, err := NewPushWriter(dst, key, blockSize)
	if err != nil {
		return nil, err
	}
	n, err := dst.Write(w.header)
	w.ciphertext += int64(n)
	if err != nil {
		return nil, fmt.Errorf("writing stream header: %w", err)
	}
	return w, nil
}

// Header returns the stream header.
func (w *PushWriter) Header() []byte {
	return w.header
}

// Written reports plaintext consumed and ciphertext produced so far.
func (w *PushWriter) Written() (plaintext, ciphertext int64) {
	return w.plaintext, w.ciphertext
}

func (w *PushWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, kerrors.ErrStreamFinalized
	}
	if w.buf == nil {
		w.buf = make([]byte, 0, w.blockSize)
	}

	written := 0
	for len(p) > 0 {
		if len(w.buf) == w.blockSize {
			if err := w.push(secretstream.TagMessage); err != nil {
				return written, err
			}
		}
		n := copy(w.buf[len(w.buf):w.blockSize], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		written += n
		w.plaintext += int64(n)
	}
	return written, nil
}

// Close pushes the last block with FINAL. It does not close dst.
func (w *PushWriter) Close() error {
	if w.closed {
		return nil
	}
	err := w.push(secretstream.TagFinal)
	w.closed = true
	return err
}

func (w *PushWriter) push(tag byte) error {
	c, err := w.enc.Push(w.buf, tag)
	zero(w.buf)
	w.buf = w.buf[:0]
	if err != nil {
		return err
	}
	n, err := w.dst.Write(c)
	w.ciphertext += int64(n)
	if err == nil && n != len(c) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("writing ciphertext block: %w", err)
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

