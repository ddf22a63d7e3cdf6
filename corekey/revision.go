package corekey

import (
	"fmt"
	"strconv"
)

// Revision is a globally monotonic logical clock. Every committed command
// is assigned exactly one revision by the pipeline; nothing above the
// pipeline is allowed to assign one itself.
type Revision uint64

// revisionWidth is wide enough that byte-lexicographic and numeric order
// agree for any Revision that fits in a uint64.
const revisionWidth = 20

// ZeroRevision is never assigned to a real command. It is used as the
// "before anything happened" sentinel for cursors and low-water-marks.
const ZeroRevision Revision = 0

// Encode renders the revision as a fixed-width, zero-padded decimal string
// so that comparing encoded revisions byte-by-byte gives the same answer as
// comparing the underlying uint64s.
func (r Revision) Encode() string {
	return fmt.Sprintf("%0*d", revisionWidth, uint64(r))
}

// ParseRevision parses the fixed-width encoding produced by Encode.
func ParseRevision(s string) (Revision, error) {
	if len(s) != revisionWidth {
		return 0, fmt.Errorf("corekey: revision %q has wrong width, want %d", s, revisionWidth)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corekey: invalid revision %q: %w", s, err)
	}
	return Revision(v), nil
}

// Next returns the successor revision. It does not mutate r; the pipeline
// owns the single counter this is called against.
func (r Revision) Next() Revision {
	return r + 1
}

// Before reports whether r happened before other.
func (r Revision) Before(other Revision) bool {
	return r < other
}
