package textenc

import "strings"

// PercentDecode runs a three-state machine: in NORMAL, '%' switches to
// DECODING_FIRST, '+' emits a space, other bytes pass through;
// DECODING_FIRST/DECODING_SECOND accumulate the two hex nibbles of an
// escaped byte. Hex digits are accepted case-insensitively. A truncated
// escape at the end of the input is passed through verbatim rather than
// dropped, so no byte is silently lost.
func PercentDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	const (
		normal = iota
		first
		second
	)

	state := normal
	var hi byte

	flushPartial := func(pct bool, h byte, hasHi bool) {
		if pct {
			b.WriteByte('%')
		}
		if hasHi {
			b.WriteByte(h)
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case normal:
			switch c {
			case '%':
				state = first
			case '+':
				b.WriteByte(' ')
			default:
				b.WriteByte(c)
			}

		case first:
			if v, ok := hexVal(c); ok {
				hi = v
				state = second
			} else {
				// Not a valid escape; emit the literal '%' and reprocess c
				// as a normal byte.
				b.WriteByte('%')
				state = normal
				i--
			}

		case second:
			if v, ok := hexVal(c); ok {
				b.WriteByte(hi<<4 | v)
				state = normal
			} else {
				flushPartial(true, hexChar(hi), true)
				state = normal
				i--
			}
		}
	}

	// Trailing incomplete escape: emit what we have rather than drop it.
	switch state {
	case first:
		b.WriteByte('%')
	case second:
		b.WriteByte('%')
		b.WriteByte(hexChar(hi))
	}

	return b.String()
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

func hexChar(v byte) byte {
	const digits = "0123456789ABCDEF"
	return digits[v&0xf]
}

// isUnreserved reports whether b needs no percent-escaping per RFC 3986's
// unreserved set.
func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~':
		return true
	default:
		return false
	}
}

// PercentEncode percent-escapes every byte of s outside the unreserved
// set. Encoding an already-unreserved string is a no-op, and
// PercentDecode(PercentEncode(s)) == s for all inputs.
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteByte(hexChar(c >> 4))
			b.WriteByte(hexChar(c & 0xf))
		}
	}
	return b.String()
}
