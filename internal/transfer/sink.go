package transfer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink receives decrypted plaintext in order. Exactly one of Close or Abort
// ends it: Close presents the output as complete, Abort discards it.
type Sink interface {
	io.Writer
	Close() error
	Abort() error
}

// FileSink writes to a hidden temp file beside the destination and renames
// it into place on Close.
type FileSink struct {
	path string
	tmp  *os.File
	done bool
}

// NewFileSink creates the temp file for path. The destination is not touched
// until Close.
func NewFileSink(path string) (*FileSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".part-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	return &FileSink{path: path, tmp: tmp}, nil
}

// Path returns the final destination.
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Write(p []byte) (int, error) {
	if s.done {
		return 0, os.ErrClosed
	}
	return s.tmp.Write(p)
}

func (s *FileSink) Close() error {
	if s.done {
		return os.ErrClosed
	}
	s.done = true
	if err := s.tmp.Sync(); err != nil {
		s.tmp.Close()
		os.Remove(s.tmp.Name())
		return fmt.Errorf("syncing %s: %w", s.path, err)
	}
	if err := s.tmp.Close(); err != nil {
		os.Remove(s.tmp.Name())
		return fmt.Errorf("closing %s: %w", s.path, err)
	}
	if err := os.Rename(s.tmp.Name(), s.path); err != nil {
		os.Remove(s.tmp.Name())
		return fmt.Errorf("moving download into place: %w", err)
	}
	return nil
}

func (s *FileSink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	s.tmp.Close()
	if err := os.Remove(s.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// progressWriter reports cumulative bytes after each write.
type progressWriter struct {
	w        io.Writer
	done     int64
	total    int64
	progress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if p.progress != nil && n > 0 {
		p.progress(p.done, p.total)
	}
	return n, err
}
