package corekey

import (
	"fmt"

	"github.com/google/uuid"
)

// Identifier uniquely names an entity across all of its revisions. It is
// held in its 16-byte raw form, which index keys also use, and rendered to
// its 36-character display form (RFC 4122) for logs, the RPC wire format,
// CLI output and the entity keys produced by Key.Encode.
type Identifier [16]byte

// NewIdentifier generates a fresh random identifier.
func NewIdentifier() Identifier {
	return Identifier(uuid.New())
}

// ParseIdentifier parses the 36-character display form of an identifier.
func ParseIdentifier(s string) (Identifier, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Identifier{}, fmt.Errorf("corekey: invalid identifier %q: %w", s, err)
	}
	return Identifier(u), nil
}

// IdentifierFromBytes wraps a raw 16-byte identifier. It does not validate
// that b actually holds a well-formed UUID; callers reading identifiers
// back out of storage are expected to trust what they themselves wrote.
func IdentifierFromBytes(b []byte) (Identifier, error) {
	if len(b) != 16 {
		return Identifier{}, fmt.Errorf("corekey: identifier must be 16 bytes, got %d", len(b))
	}
	var id Identifier
	copy(id[:], b)
	return id, nil
}

// Bytes returns the raw 16-byte internal form.
func (id Identifier) Bytes() []byte {
	return id[:]
}

// String renders the 36-character display form.
func (id Identifier) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero identifier, used as a sentinel for
// "no identifier assigned yet".
func (id Identifier) IsZero() bool {
	return id == Identifier{}
}
