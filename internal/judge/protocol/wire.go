// Package protocol implements the worker's wire format: a small
// length-prefixed, big-endian, fixed-width binary codec (the Go-native
// analogue of the bincode encoding the master speaks), plus the ECDH/HKDF/
// AES-GCM handshake and encryption used to protect payloads in transit.
package protocol

import (
	"encoding/binary"

	judgeerrors "judgeworker/pkg/errors"
)

// Writer accumulates a packet body using fixed-width, big-endian encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

func (w *Writer) WriteUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteBytes writes a uint32 length prefix followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString writes a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) { w.WriteBytes([]byte(s)) }

// Bytes returns the accumulated body.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader consumes a packet body written by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps a packet body for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) ensure(n int) error {
	if r.pos+n > len(r.buf) {
		return judgeerrors.New(judgeerrors.DecodeFailed).WithDetail("reason", "truncated body")
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.ensure(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.ensure(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.ensure(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := r.ensure(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	return string(b), err
}

// Remaining reports whether unconsumed bytes remain in the buffer.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }
