package protocol

import "errors"

// ErrIncomplete is returned by ParsePair when b does not yet hold a
// complete name/value pair. The caller should retain b and retry once more
// bytes have arrived.
var ErrIncomplete = errors.New("protocol: incomplete name/value pair")

// Pair is a decoded PARAMS/GET_VALUES name/value pair. Name and Value are
// slices into the buffer passed to ParsePair; callers that need to retain
// them across further reads must copy.
type Pair struct {
	Name  []byte
	Value []byte
}

// ParsePair decodes a single name/value pair from the head of b, using the
// FastCGI length-prefix scheme: a length is one byte (top bit clear, value
// in the low 7 bits) or four bytes big-endian (top bit set, value in the
// low 31 bits of the first byte combined with the following three).
//
// It returns the decoded pair and the offset of the byte following it. If
// b is a strict prefix of a valid encoding, it returns ErrIncomplete.
func ParsePair(b []byte) (pair Pair, end int, err error) {
	nameLen, off, ok := readLength(b, 0)
	if !ok {
		return Pair{}, 0, ErrIncomplete
	}

	valueLen, off2, ok := readLength(b, off)
	if !ok {
		return Pair{}, 0, ErrIncomplete
	}
	off = off2

	need := off + nameLen + valueLen
	if need > len(b) {
		return Pair{}, 0, ErrIncomplete
	}

	pair.Name = b[off : off+nameLen]
	pair.Value = b[off+nameLen : need]
	end = need
	return pair, end, nil
}

// readLength decodes one length field starting at b[i], returning the
// length, the offset just past it, and whether enough bytes were present.
func readLength(b []byte, i int) (length int, next int, ok bool) {
	if i >= len(b) {
		return 0, 0, false
	}

	first := b[i]
	if first&0x80 == 0 {
		return int(first), i + 1, true
	}

	if i+4 > len(b) {
		return 0, 0, false
	}

	length = int(first&0x7f)<<24 | int(b[i+1])<<16 | int(b[i+2])<<8 | int(b[i+3])
	return length, i + 4, true
}

// writeLength appends the length-prefix encoding of n to dst.
func writeLength(dst []byte, n int) []byte {
	if n < 128 {
		return append(dst, byte(n))
	}
	u := uint32(n) | (1 << 31)
	return append(dst, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

// EncodePair appends the length-prefixed encoding of name=value to dst and
// returns the grown slice.
func EncodePair(dst []byte, name, value []byte) []byte {
	dst = writeLength(dst, len(name))
	dst = writeLength(dst, len(value))
	dst = append(dst, name...)
	dst = append(dst, value...)
	return dst
}
