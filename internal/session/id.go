package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// IDLen is the fixed size, in bytes, of a session id.
const IDLen = 24

// ID is a 24-byte opaque session identifier, comparable and hashable by
// byte value. Its textual form is the base64 encoding of those bytes.
type ID [IDLen]byte

// processSeed keys every ID derived in this process, so an id leaked from
// one process run carries no information usable to forge an id in
// another.
var processSeed [32]byte

func init() {
	if _, err := rand.Read(processSeed[:]); err != nil {
		panic(fmt.Sprintf("session: failed to seed process entropy: %v", err))
	}
}

// NewID draws fresh entropy from crypto/rand and folds it through a
// blake2b hash keyed on this process's seed, so the wire-visible id is
// never raw OS entropy.
func NewID() (ID, error) {
	var raw [IDLen]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return ID{}, fmt.Errorf("session: reading entropy: %w", err)
	}

	h, err := blake2b.New(IDLen, processSeed[:])
	if err != nil {
		return ID{}, fmt.Errorf("session: building id hash: %w", err)
	}
	h.Write(raw[:])

	var id ID
	copy(id[:], h.Sum(nil))
	return id, nil
}

// String returns the base64 textual form of id.
func (id ID) String() string {
	return base64.StdEncoding.EncodeToString(id[:])
}

// ParseID decodes the base64 textual form produced by String. It
// rejects anything that doesn't decode to exactly IDLen bytes, so a
// tampered or truncated cookie value never silently maps to a valid id.
func ParseID(s string) (ID, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("session: decoding id: %w", err)
	}
	if len(b) != IDLen {
		return ID{}, fmt.Errorf("session: decoded id has length %d, want %d", len(b), IDLen)
	}
	var id ID
	copy(id[:], b)
	return id, nil
}
