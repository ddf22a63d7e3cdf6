package pipeline

import (
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/entitystore"
)

// State is a Command's position in the commit path.
type State uint8

const (
	Queued State = iota
	Decoding
	Preprocessing
	CommitScheduled
	Committed
	Notified
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Decoding:
		return "decoding"
	case Preprocessing:
		return "preprocessing"
	case CommitScheduled:
		return "commit_scheduled"
	case Committed:
		return "committed"
	case Notified:
		return "notified"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Command is one unit of work submitted to the pipeline: create, modify or
// remove one entity.
type Command struct {
	ID        corekey.Identifier
	Resource  string
	Type      string
	Operation entitystore.Operation
	Payload   interface{}

	state State
	err   error
	// Revision is set once the command reaches CommitScheduled.
	Revision corekey.Revision
}

// State returns the command's current position in the commit path.
func (c *Command) State() State {
	return c.state
}

// Err returns the error that moved the command to Failed, or nil.
func (c *Command) Err() error {
	return c.err
}
