package entitystore

import "github.com/sinkdb/core/corekey"

// Operation classifies why a revision was written.
type Operation uint8

const (
	Create Operation = iota
	Modify
	Remove
)

func (o Operation) String() string {
	switch o {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Metadata carries the bookkeeping fields every revision of every entity
// has, independent of its type-specific payload.
type Metadata struct {
	// Resource names the resource instance that owns this entity.
	Resource string
	// Type is the entity's adaptor type name, e.g. "mail".
	Type string
	// Operation is why this revision exists.
	Operation Operation
	// Replayed reports whether this revision has already been delivered
	// to every registered change-replay consumer. The pipeline commits
	// every revision with it false, and the replay engine does not update
	// it: replay progress is recorded only in the engine's per-consumer
	// cursors.
	Replayed bool
}

// Entity is one committed revision: identity, bookkeeping metadata and a
// decoded payload.
type Entity struct {
	Key      corekey.Key
	Metadata Metadata
	Payload  interface{}
}
