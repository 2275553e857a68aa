package stream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/secretstream"
)

const (
	// DefaultBlockSize is the plaintext carried by one stream message. It
	// bounds peak memory on both the push and the pull side.
	DefaultBlockSize = 64 << 20

	// DefaultChunkSize is the plaintext carried by one segmented chunk.
	DefaultChunkSize = DefaultBlockSize
)

// Chunk status values reported by the file-listing collaborator.
const (
	StatusUploaded = "uploaded"
	StatusPending  = "pending"
)

// Location hints select the storage tier a chunk is fetched from.
const (
	LocationLocal  = "local"
	LocationRemote = "remote"
)

// CiphertextBlockSize is the size of one full encrypted block.
func CiphertextBlockSize(blockSize int) int {
	return blockSize + secretstream.ABytes
}

// Chunk is one independently keyed stream of a segmented file. Nonce holds
// the stream header.
type Chunk struct {
	Index           int
	PlaintextOffset int64
	Size            int64
	Nonce           []byte
	Terminal        bool
	LocationHint    string
	Status          string
}

type wireChunk struct {
	Index        int    `json:"index"`
	Size         int64  `json:"size"`
	Nonce        string `json:"nonce"`
	LocationHint string `json:"locationHint,omitempty"`
	Status       string `json:"status,omitempty"`
}

// MarshalJSON writes the chunk manifest entry wire form.
func (c Chunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireChunk{
		Index:        c.Index,
		Size:         c.Size,
		Nonce:        base64.StdEncoding.EncodeToString(c.Nonce),
		LocationHint: c.LocationHint,
		Status:       c.Status,
	})
}

// UnmarshalJSON reads the wire form. Offsets and the terminal flag are
// derived later by Manifest.Validate.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var w wireChunk
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	nonce, err := base64.StdEncoding.DecodeString(w.Nonce)
	if err != nil {
		return fmt.Errorf("chunk %d nonce: %w", w.Index, err)
	}
	*c = Chunk{
		Index:        w.Index,
		Size:         w.Size,
		Nonce:        nonce,
		LocationHint: w.LocationHint,
		Status:       w.Status,
	}
	return nil
}

// Manifest lists a file's ciphertext. A manifest with chunks describes a
// segmented file; one without chunks describes a monolithic stream whose
// header is the first bytes of the blob.
type Manifest struct {
	FileID        string  `json:"fileId"`
	PlaintextSize int64   `json:"plaintextSize"`
	BlockSize     int     `json:"blockSize"`
	Chunks        []Chunk `json:"chunks,omitempty"`
}

// Segmented reports whether the manifest carries chunk metadata.
func (m *Manifest) Segmented() bool {
	return len(m.Chunks) > 0
}

// CiphertextSize is the total size of all chunks.
func (m *Manifest) CiphertextSize() int64 {
	var total int64
	for _, c := range m.Chunks {
		total += c.Size
	}
	return total
}

// plaintextLen returns the plaintext carried by a stream of size ciphertext
// bytes split into blocks of blockSize.
func plaintextLen(size int64, blockSize int) (int64, error) {
	full := int64(CiphertextBlockSize(blockSize))
	blocks := size / full
	rem := size % full
	switch {
	case rem == 0 && blocks > 0:
		return blocks * int64(blockSize), nil
	case rem >= secretstream.ABytes:
		return blocks*int64(blockSize) + rem - secretstream.ABytes, nil
	default:
		return 0, fmt.Errorf("%w: %d ciphertext bytes do not form whole blocks", kerrors.ErrStreamCorrupted, size)
	}
}

// Plaintext returns how many plaintext bytes the chunk carries.
func (c Chunk) Plaintext(blockSize int) (int64, error) {
	return plaintextLen(c.Size, blockSize)
}

// Validate checks the chunk list and fills in plaintext offsets and the
// terminal flag. Chunks must be indexed 0..n-1 in order, carry a full
// stream header, and have a size that splits into whole blocks.
func (m *Manifest) Validate() error {
	if m.BlockSize <= 0 {
		m.BlockSize = DefaultBlockSize
	}
	var offset int64
	for i := range m.Chunks {
		c := &m.Chunks[i]
		if c.Index != i {
			return fmt.Errorf("%w: chunk at position %d has index %d", kerrors.ErrStreamCorrupted, i, c.Index)
		}
		if len(c.Nonce) != secretstream.HeaderBytes {
			return fmt.Errorf("%w: chunk %d header is %d bytes", kerrors.ErrStreamCorrupted, i, len(c.Nonce))
		}
		plain, err := plaintextLen(c.Size, m.BlockSize)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		c.PlaintextOffset = offset
		c.Terminal = i == len(m.Chunks)-1
		offset += plain
	}
	if m.Segmented() && m.PlaintextSize != offset {
		return fmt.Errorf("%w: chunks carry %d plaintext bytes, manifest says %d",
			kerrors.ErrStreamCorrupted, offset, m.PlaintextSize)
	}
	return nil
}

// ParseManifest decodes and normalizes a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", kerrors.ErrStreamCorrupted, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
