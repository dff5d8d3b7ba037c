// Package blobtext encodes arbitrary byte buffers into NUL-free, quote-free text so
// they can travel through text-only paths such as SQL string literals, and decodes
// them back exactly.
//
// The encoding picks an additive offset that minimizes the number of escaped bytes,
// so the output is at most about 1.2% larger than the input plus two bytes. Escape
// sequences use 0x01 as the escape byte:
//
//	0x00 -> 0x01 0x01
//	0x01 -> 0x01 0x02
//	0x27 -> 0x01 0x03
//
// The first encoded byte is the offset; the encoded form is followed by a 0x00
// terminator that is not counted in the returned length.
package blobtext

import "github.com/mesh-intelligence/litewrap/pkg/types"

const (
	quote  = '\''
	escape = 0x01
)

// MaxEncodedLen returns the buffer size Encode needs for n input bytes, terminator
// included.
func MaxEncodedLen(n int) int {
	return 2 + (257*n)/254
}

// Encode writes the encoded form of src into dst followed by a 0x00 terminator and
// returns the number of bytes written, terminator excluded. dst must hold at least
// MaxEncodedLen(len(src)) bytes. An empty src encodes to "x".
func Encode(dst, src []byte) int {
	if len(src) == 0 {
		dst[0] = 'x'
		dst[1] = 0
		return 1
	}

	e := offset(src)
	dst[0] = e
	j := 1
	for _, b := range src {
		switch c := b - e; c {
		case 0:
			dst[j], dst[j+1] = escape, 1
			j += 2
		case escape:
			dst[j], dst[j+1] = escape, 2
			j += 2
		case quote:
			dst[j], dst[j+1] = escape, 3
			j += 2
		default:
			dst[j] = c
			j++
		}
	}
	dst[j] = 0
	return j
}

// offset returns the additive offset that needs the fewest escapes for src. Ties go to
// the smallest offset; the scan stops at the first offset that needs none.
func offset(src []byte) byte {
	var cnt [256]int
	for _, b := range src {
		cnt[b]++
	}

	e, m := 1, len(src)
	for i := 1; i < 256; i++ {
		if i == quote {
			continue
		}
		sum := cnt[i] + cnt[(i+1)&0xff] + cnt[(i+quote)&0xff]
		if sum < m {
			m = sum
			e = i
			if m == 0 {
				break
			}
		}
	}
	return byte(e)
}

// EncodeToString returns the encoded form of src without the terminator.
func EncodeToString(src []byte) string {
	buf := make([]byte, MaxEncodedLen(len(src)))
	n := Encode(buf, src)
	return string(buf[:n])
}

// Decode reverses Encode, writing the original bytes into dst and returning how many
// were written. Decoding stops at the first unescaped 0x00 or at the end of src, so
// the terminator is optional. It returns -1 if src is not a well-formed encoding.
//
// dst may be the same buffer as src: output never overtakes input, so decoding in
// place is safe. dst must hold at least len(src)-1 bytes.
func Decode(dst, src []byte) int {
	if len(src) == 0 {
		return -1
	}
	e := src[0]
	i := 0
	for k := 1; k < len(src); k++ {
		c := src[k]
		if c == 0 {
			break
		}
		if c == escape {
			k++
			if k == len(src) {
				return -1
			}
			switch src[k] {
			case 1:
				c = 0
			case 2:
				c = escape
			case 3:
				c = quote
			default:
				return -1
			}
		}
		dst[i] = c + e
		i++
	}
	return i
}

// DecodeString decodes s into a new buffer. Malformed input yields
// types.ErrMalformedBinary.
func DecodeString(s string) ([]byte, error) {
	buf := []byte(s)
	n := Decode(buf, buf)
	if n < 0 {
		return nil, types.ErrMalformedBinary
	}
	return buf[:n], nil
}
