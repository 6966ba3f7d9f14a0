// Package textenc implements the utility encoders shared across the
// runtime: base64, percent-escaping, and the HTML/URL entity tables used
// by output streams' encoding modes.
package textenc

import (
	"encoding/base64"
	"strings"
)

// b64 is the standard alphabet with padding: A-Z a-z 0-9 + / with '='
// padding exactly. encoding/base64 is the idiomatic vehicle here: no
// repository in the retrieval pack hand-rolls base64, and the stdlib
// implementation is already the ecosystem standard for this exact
// alphabet (see DESIGN.md).
var b64 = base64.StdEncoding

// EncodeBase64 returns the base64 encoding of src. Encoded length is
// always ceil(len(src)/3)*4, as guaranteed by encoding/base64.
func EncodeBase64(src []byte) string {
	return b64.EncodeToString(src)
}

// DecodeBase64 decodes s. A malformed input (any byte outside the
// alphabet that isn't padding) aborts the decode and returns nil plus the
// error reporting that abort.
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return nil, base64.CorruptInputError(i)
	}
	b, err := b64.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}
