// Package shortvec implements the compact-u16 length prefix used by the
// Solana wire format.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// MaxEncodedLen is the number of bytes needed to encode math.MaxUint16.
const MaxEncodedLen = 3

var (
	ErrLenTooLarge  = errors.Errorf("len exceeds %d", math.MaxUint16)
	ErrNonCanonical = errors.New("non canonical compact-u16 encoding")
)

// EncodeLen writes length as a compact-u16 and returns the number of bytes
// written.
func EncodeLen(w io.Writer, length int) (int, error) {
	if length < 0 || length > math.MaxUint16 {
		return 0, ErrLenTooLarge
	}

	var buf [MaxEncodedLen]byte
	n := 0
	for {
		buf[n] = byte(length & 0x7f)
		length >>= 7
		if length == 0 {
			n++
			break
		}
		buf[n] |= 0x80
		n++
	}

	return w.Write(buf[:n])
}

// DecodeLen reads a compact-u16. Encodings with redundant trailing zero
// groups or values above math.MaxUint16 are rejected, matching the runtime.
func DecodeLen(r io.ByteReader) (int, error) {
	var val int
	for i := 0; i < MaxEncodedLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}

		if i > 0 && b == 0 {
			return 0, ErrNonCanonical
		}

		val |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if val > math.MaxUint16 {
				return 0, ErrLenTooLarge
			}
			return val, nil
		}
	}

	return 0, ErrLenTooLarge
}
