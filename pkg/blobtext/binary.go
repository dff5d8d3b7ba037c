package blobtext

import (
	"bytes"

	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// Binary holds a buffer that is either in raw or in encoded form and converts it in
// place on demand. The zero value is an empty raw buffer.
type Binary struct {
	buf     []byte
	n       int // raw length, valid when !encoded
	encoded bool
}

// SetBinary stores a copy of p in raw form.
func (b *Binary) SetBinary(p []byte) {
	b.alloc(len(p))
	copy(b.buf, p)
	b.n = len(p)
}

// SetEncoded stores a copy of an encoded buffer, up to its terminator if it has one.
func (b *Binary) SetEncoded(p []byte) {
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	b.buf = make([]byte, len(p)+1)
	copy(b.buf, p)
	b.encoded = true
}

// Encoded returns the encoded form without its terminator, encoding the held buffer
// first if needed. The returned slice aliases the holder's storage.
func (b *Binary) Encoded() []byte {
	if !b.encoded {
		raw := append([]byte(nil), b.buf[:b.n]...)
		if len(b.buf) < MaxEncodedLen(len(raw)) {
			b.buf = make([]byte, MaxEncodedLen(len(raw)))
		}
		n := Encode(b.buf, raw)
		b.buf = b.buf[:n+1]
		b.encoded = true
	}
	return b.buf[:len(b.buf)-1]
}

// Bytes returns the raw form, decoding the held buffer in place first if needed.
// The returned slice aliases the holder's storage.
func (b *Binary) Bytes() ([]byte, error) {
	if b.encoded {
		n := Decode(b.buf, b.buf)
		if n < 0 {
			return nil, types.ErrMalformedBinary
		}
		b.n = n
		b.encoded = false
	}
	return b.buf[:b.n], nil
}

// Len returns the length of the raw form.
func (b *Binary) Len() (int, error) {
	p, err := b.Bytes()
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Alloc discards the held data and returns a raw buffer of n bytes for the caller to
// fill.
func (b *Binary) Alloc(n int) []byte {
	b.alloc(n)
	b.n = n
	return b.buf[:n]
}

// Clear releases the held buffer.
func (b *Binary) Clear() {
	b.buf = nil
	b.n = 0
	b.encoded = false
}

// alloc sizes the buffer so that it can later be encoded in place.
func (b *Binary) alloc(n int) {
	b.buf = make([]byte, MaxEncodedLen(n))
	b.n = 0
	b.encoded = false
}
