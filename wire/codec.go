/*
Package wire implements the length-prefixed little-endian wire format shared
by every decipi message: the fixed-size identity/key types, the envelope
chain (Signed, Macced, Encrypted, Obfuscated) and the top-level Message
union described in spec §4.1 and §6.
*/
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a Reader runs out of bytes mid-decode.
var ErrShortBuffer = errors.New("wire: short buffer")

// ErrTooLong is returned when a variable-length field exceeds its declared
// maximum, guarding against a peer trying to make us allocate unboundedly.
var ErrTooLong = errors.New("wire: field exceeds maximum length")

// Encodable is implemented by every wire type. Encode must never fail: all
// validation happens at construction time, not serialization time.
type Encodable interface {
	Encode(w *Writer)
}

// Writer accumulates a little-endian encoded message.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with sizeHint bytes of pre-allocated capacity.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteVarBytes writes a 32-bit length prefix followed by b.
func (w *Writer) WriteVarBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteVarBytes8 writes an 8-bit length prefix followed by b. Used for
// fields that are statically bounded to at most 255 elements/bytes.
func (w *Writer) WriteVarBytes8(b []byte) {
	w.WriteByte(byte(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

// Reader consumes a little-endian encoded message.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) ReadByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// maxVarBytes caps variable-length allocations driven by attacker-controlled
// length prefixes. MAX_MESSAGE_SIZE bounds any single datagram anyway, but a
// sanity cap here avoids trusting an adversarial length field in isolation.
const maxVarBytes = 1 << 20

func (r *Reader) ReadVarBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n > maxVarBytes {
		return nil, ErrTooLong
	}
	return r.ReadBytes(int(n))
}

func (r *Reader) ReadVarBytes8() ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(n))
}

// Encode is a convenience that runs v.Encode into a fresh Writer and returns
// the resulting bytes.
func Encode(v Encodable) []byte {
	w := NewWriter(64)
	v.Encode(w)
	return w.Bytes()
}
