package corekey

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Key names one revision of one entity: Identifier ‖ Revision. It is the
// only key shape ever written to the entity sub-database; index
// sub-databases build their own composite keys out of indexed property
// values followed by the entity's raw 16-byte Identifier, so a hit can be
// turned straight into a latest-revision lookup.
type Key struct {
	ID       Identifier
	Revision Revision
}

const keySep = "|"

// Encode renders the key as "<identifier>|<revision>". The identifier's
// display form is used rather than its raw bytes so encoded keys are safe
// to print in logs and durable-queue files without a hex dump.
func (k Key) Encode() []byte {
	return []byte(k.ID.String() + keySep + k.Revision.Encode())
}

// ParseKey parses the encoding produced by Encode.
func ParseKey(b []byte) (Key, error) {
	s := string(b)
	idPart, revPart, ok := strings.Cut(s, keySep)
	if !ok {
		return Key{}, fmt.Errorf("corekey: malformed key %q", s)
	}
	id, err := ParseIdentifier(idPart)
	if err != nil {
		return Key{}, err
	}
	rev, err := ParseRevision(revPart)
	if err != nil {
		return Key{}, err
	}
	return Key{ID: id, Revision: rev}, nil
}

// Prefix returns the byte prefix shared by every revision of id, suitable
// for a range scan over an entity's full history.
func (id Identifier) Prefix() []byte {
	return []byte(id.String() + keySep)
}

// String implements fmt.Stringer for debugging and log output.
func (k Key) String() string {
	return string(k.Encode())
}

// keyInternalSize is the width of a Key's internal byte-array form: a raw
// 16-byte Identifier followed by an 8-byte big-endian Revision.
const keyInternalSize = 16 + 8

// ToInternalBytes renders k in its internal form - the raw Identifier bytes
// followed by the Revision as a fixed-width big-endian integer - for
// contexts that compare or transmit keys as bytes rather than text, such as
// another module embedding a Key inside its own binary-framed wire format.
// Unlike Encode, this form is not meant to be read by a human.
func (k Key) ToInternalBytes() []byte {
	out := make([]byte, keyInternalSize)
	copy(out[:16], k.ID[:])
	binary.BigEndian.PutUint64(out[16:], uint64(k.Revision))
	return out
}

// KeyFromInternalBytes parses the encoding produced by ToInternalBytes.
func KeyFromInternalBytes(b []byte) (Key, error) {
	if len(b) != keyInternalSize {
		return Key{}, fmt.Errorf("corekey: internal key must be %d bytes, got %d", keyInternalSize, len(b))
	}
	var id Identifier
	copy(id[:], b[:16])
	rev := Revision(binary.BigEndian.Uint64(b[16:]))
	return Key{ID: id, Revision: rev}, nil
}
