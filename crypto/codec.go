package crypto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder appends a deterministic, self-describing byte sequence: the wire
// format every consensus-relevant struct (header, transaction, account)
// uses so independently-built nodes compute bit-identical bytes. Fields are
// written in a fixed, caller-chosen order (their numeric tag order), never
// derived from map iteration or reflection.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with a pre-sized backing buffer.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Uvarint appends v as a little-endian base-128 varint.
func (e *Encoder) Uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	e.buf = append(e.buf, tmp[:n]...)
}

// Fixed32 appends v as 4 big-endian bytes (timestamps, versions).
func (e *Encoder) Fixed32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

// Fixed64 appends v as 8 big-endian bytes (heights, nonces, fees).
func (e *Encoder) Fixed64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

// Raw appends b verbatim with no length prefix — only for fixed-size fields
// (hashes, public keys, signatures) whose length is implied by the schema.
func (e *Encoder) Raw(b []byte) {
	e.buf = append(e.buf, b...)
}

// Bytes32, Bytes20, Bytes64 append fixed-size identifier/key fields.
func (e *Encoder) Bytes32(b [32]byte) { e.buf = append(e.buf, b[:]...) }
func (e *Encoder) Bytes20(b [20]byte) { e.buf = append(e.buf, b[:]...) }
func (e *Encoder) Bytes64(b [64]byte) { e.buf = append(e.buf, b[:]...) }

// LengthPrefixed appends a uvarint length followed by b — for variable-size
// byte strings (transaction payloads, opaque module state).
func (e *Encoder) LengthPrefixed(b []byte) {
	e.Uvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// Decoder reads the inverse of Encoder's format off a byte slice, tracking a
// read cursor and the first error encountered.
type Decoder struct {
	buf []byte
	pos int
	err error
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Err returns the first error seen so far, if any.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) Uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		d.fail(fmt.Errorf("crypto: codec: bad uvarint at offset %d", d.pos))
		return 0
	}
	d.pos += n
	return v
}

func (d *Decoder) Fixed32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *Decoder) Fixed64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *Decoder) Bytes32() (out [32]byte) {
	b := d.take(32)
	if b != nil {
		copy(out[:], b)
	}
	return out
}

func (d *Decoder) Bytes20() (out [20]byte) {
	b := d.take(20)
	if b != nil {
		copy(out[:], b)
	}
	return out
}

func (d *Decoder) Bytes64() (out [64]byte) {
	b := d.take(64)
	if b != nil {
		copy(out[:], b)
	}
	return out
}

func (d *Decoder) LengthPrefixed() []byte {
	n := d.Uvarint()
	return d.take(int(n))
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.fail(io.ErrUnexpectedEOF)
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

// Done returns the first decode error, or a trailing-bytes error if the
// decoder did not consume the whole input, the way a strict consensus codec
// must.
func (d *Decoder) Done() error {
	if d.err != nil {
		return d.err
	}
	if d.pos != len(d.buf) {
		return fmt.Errorf("crypto: codec: %d trailing bytes", len(d.buf)-d.pos)
	}
	return nil
}
