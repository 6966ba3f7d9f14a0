package httpenv

import (
	"strings"

	"github.com/mapscape/gofastcgi/internal/textenc"
)

// DecodeFieldList splits s on sep into key=value fields, percent-decodes
// both sides ('+' becomes a space on each side too), and inserts them into
// dst in arrival order. Used for both QUERY_STRING (sep='&') and the
// Cookie header (sep=';').
func DecodeFieldList(dst *MultiMap, s string, sep byte) {
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != sep {
			continue
		}
		field := s[start:i]
		start = i + 1
		if field == "" {
			continue
		}

		key, value := field, ""
		if eq := strings.IndexByte(field, '='); eq >= 0 {
			key, value = field[:eq], field[eq+1:]
		}
		dst.Add(textenc.PercentDecode(key), textenc.PercentDecode(value))
	}
}
