package secretstream

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

const (
	KeyBytes    = chacha20.KeySize
	HeaderBytes = 24
	// ABytes is the per-message overhead: one encrypted tag byte and a
	// 16-byte Poly1305 MAC.
	ABytes = 1 + poly1305.TagSize

	counterBytes = 4
	inonceBytes  = 8
	blockBytes   = 64
)

// Tags carried by every message.
const (
	TagMessage byte = 0x00
	TagPush    byte = 0x01
	TagRekey   byte = 0x02
	TagFinal   byte = TagPush | TagRekey
)

// Phase is the lifecycle of one stream.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitialized
	PhaseStreaming
	PhaseFinalized
	PhaseCorrupted
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinalized:
		return "finalized"
	case PhaseCorrupted:
		return "corrupted"
	default:
		return "uninitialized"
	}
}

var pad0 [16]byte

type state struct {
	k     [KeyBytes]byte
	nonce [counterBytes + inonceBytes]byte
}

func (s *state) init(key, header []byte) error {
	if len(key) != KeyBytes {
		return fmt.Errorf("%w: stream key must be %d bytes", kerrors.ErrInvalidKeyLength, KeyBytes)
	}
	if len(header) != HeaderBytes {
		return fmt.Errorf("%w: stream header must be %d bytes, got %d", kerrors.ErrTruncatedStream, HeaderBytes, len(header))
	}
	subkey, err := chacha20.HChaCha20(key, header[:16])
	if err != nil {
		return fmt.Errorf("deriving stream subkey: %w", err)
	}
	copy(s.k[:], subkey)
	s.resetCounter()
	copy(s.nonce[counterBytes:], header[16:])
	return nil
}

func (s *state) resetCounter() {
	for i := 0; i < counterBytes; i++ {
		s.nonce[i] = 0
	}
	s.nonce[0] = 1
}

func (s *state) cipher() *chacha20.Cipher {
	c, err := chacha20.NewUnauthenticatedCipher(s.k[:], s.nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed by the state layout.
		panic(err)
	}
	return c
}

func (s *state) rekey() {
	var buf [KeyBytes + inonceBytes]byte
	copy(buf[:KeyBytes], s.k[:])
	copy(buf[KeyBytes:], s.nonce[counterBytes:])
	s.cipher().XORKeyStream(buf[:], buf[:])
	copy(s.k[:], buf[:KeyBytes])
	copy(s.nonce[counterBytes:], buf[KeyBytes:])
	s.resetCounter()
	for i := range buf {
		buf[i] = 0
	}
}

// advance mixes the MAC into the nonce, bumps the counter and rekeys when
// asked or when the counter wraps.
func (s *state) advance(mac []byte, tag byte) {
	for i := 0; i < inonceBytes; i++ {
		s.nonce[counterBytes+i] ^= mac[i]
	}
	counter := binary.LittleEndian.Uint32(s.nonce[:counterBytes]) + 1
	binary.LittleEndian.PutUint32(s.nonce[:counterBytes], counter)
	if tag&TagRekey != 0 || counter == 0 {
		s.rekey()
	}
}

// mac computes the Poly1305 tag over the encrypted tag block and ciphertext.
// The padding after the message reproduces the reference construction.
func mac(polyKey *[32]byte, block, c []byte) []byte {
	h := poly1305.New(polyKey)
	// No associated data: its length and padding contribute nothing.
	h.Write(block)
	h.Write(c)
	h.Write(pad0[:(0x10-blockBytes+len(c))&0xf])

	var lens [16]byte
	binary.LittleEndian.PutUint64(lens[:8], 0)
	binary.LittleEndian.PutUint64(lens[8:], uint64(blockBytes+len(c)))
	h.Write(lens[:])
	return h.Sum(nil)
}

func (s *state) zero() {
	for i := range s.k {
		s.k[i] = 0
	}
	for i := range s.nonce {
		s.nonce[i] = 0
	}
}

// Encryptor is the push side of a stream. It is not safe for concurrent use.
type Encryptor struct {
	s     state
	phase Phase
}

// NewEncryptor starts a push stream under key and returns the header that
// the pull side needs.
func NewEncryptor(key []byte) (*Encryptor, []byte, error) {
	header := make([]byte, HeaderBytes)
	if _, err := rand.Read(header); err != nil {
		return nil, nil, fmt.Errorf("generating stream header: %w", err)
	}
	e := &Encryptor{}
	if err := e.s.init(key, header); err != nil {
		return nil, nil, err
	}
	e.phase = PhaseInitialized
	return e, header, nil
}

// Phase reports where the stream is in its lifecycle.
func (e *Encryptor) Phase() Phase { return e.phase }

// Push encrypts msg with tag. The result is len(msg)+ABytes long.
func (e *Encryptor) Push(msg []byte, tag byte) ([]byte, error) {
	switch e.phase {
	case PhaseUninitialized:
		return nil, fmt.Errorf("push on uninitialized stream")
	case PhaseFinalized:
		return nil, kerrors.ErrStreamFinalized
	}

	c := e.s.cipher()
	var polyKey [32]byte
	c.XORKeyStream(polyKey[:], polyKey[:])
	var discard [32]byte
	c.XORKeyStream(discard[:], discard[:])

	var block [blockBytes]byte
	block[0] = tag
	c.XORKeyStream(block[:], block[:])

	out := make([]byte, 1+len(msg)+poly1305.TagSize)
	out[0] = block[0]
	ct := out[1 : 1+len(msg)]
	c.XORKeyStream(ct, msg)

	tagMAC := mac(&polyKey, block[:], ct)
	copy(out[1+len(msg):], tagMAC)

	e.s.advance(tagMAC, tag)
	e.phase = PhaseStreaming
	if tag == TagFinal {
		e.phase = PhaseFinalized
		e.s.zero()
	}
	return out, nil
}

// Decryptor is the pull side of a stream. It is not safe for concurrent use.
type Decryptor struct {
	s     state
	phase Phase
}

// NewDecryptor starts a pull stream from the header written by the push side.
func NewDecryptor(key, header []byte) (*Decryptor, error) {
	d := &Decryptor{}
	if err := d.s.init(key, header); err != nil {
		return nil, err
	}
	d.phase = PhaseInitialized
	return d, nil
}

// Phase reports where the stream is in its lifecycle.
func (d *Decryptor) Phase() Phase { return d.phase }

// Pull authenticates and decrypts one message, returning the plaintext and
// the tag the sender attached. A failed message leaves the stream corrupted.
func (d *Decryptor) Pull(in []byte) ([]byte, byte, error) {
	switch d.phase {
	case PhaseUninitialized:
		return nil, 0, fmt.Errorf("pull on uninitialized stream")
	case PhaseFinalized:
		return nil, 0, kerrors.ErrStreamFinalized
	case PhaseCorrupted:
		return nil, 0, kerrors.ErrStreamCorrupted
	}
	if len(in) < ABytes {
		d.fail()
		return nil, 0, fmt.Errorf("%w: message of %d bytes is shorter than %d", kerrors.ErrTruncatedStream, len(in), ABytes)
	}

	mlen := len(in) - ABytes
	c := d.s.cipher()
	var polyKey [32]byte
	c.XORKeyStream(polyKey[:], polyKey[:])
	var discard [32]byte
	c.XORKeyStream(discard[:], discard[:])

	var block [blockBytes]byte
	block[0] = in[0]
	c.XORKeyStream(block[:], block[:])
	tag := block[0]
	block[0] = in[0]

	ct := in[1 : 1+mlen]
	expected := mac(&polyKey, block[:], ct)
	if subtle.ConstantTimeCompare(expected, in[1+mlen:]) != 1 {
		d.fail()
		return nil, 0, kerrors.ErrStreamCorrupted
	}

	msg := make([]byte, mlen)
	c.XORKeyStream(msg, ct)

	d.s.advance(expected, tag)
	d.phase = PhaseStreaming
	if tag == TagFinal {
		d.phase = PhaseFinalized
		d.s.zero()
	}
	return msg, tag, nil
}

func (d *Decryptor) fail() {
	d.phase = PhaseCorrupted
	d.s.zero()
}
