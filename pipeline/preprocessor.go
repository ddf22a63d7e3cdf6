package pipeline

import (
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/storage"
)

// Preprocessor inspects or rewrites a Command's payload before it is
// committed. txn is the same read-write Transaction the command will
// commit under, open for the duration of the whole chain plus the commit
// itself - a preprocessor may read (or even write) other entities through
// it to validate or enrich cmd against current state, and anything it
// writes rolls back together with the command if a later preprocessor or
// the commit step fails. Returning a non-nil error fails the command with
// Failed; returning a replacement payload lets a later preprocessor or the
// commit step see the rewritten value.
type Preprocessor interface {
	Process(cmd *Command, txn *storage.Transaction) (payload interface{}, err error)
}

// PreprocessorFunc adapts a plain function to the Preprocessor interface.
type PreprocessorFunc func(cmd *Command, txn *storage.Transaction) (interface{}, error)

func (f PreprocessorFunc) Process(cmd *Command, txn *storage.Transaction) (interface{}, error) {
	return f(cmd, txn)
}

// chainKey identifies one (type, operation) preprocessor chain.
type chainKey struct {
	typeName  string
	operation string
}

// Chains is a registry of preprocessor chains keyed by (entity type,
// operation). A command looks up its chain once, at Preprocessing time; an
// empty or missing chain is not an error, it just means the payload passes
// through unchanged.
type Chains struct {
	byKey map[chainKey][]Preprocessor
}

// NewChains creates an empty preprocessor chain registry.
func NewChains() *Chains {
	return &Chains{byKey: make(map[chainKey][]Preprocessor)}
}

// Register appends preprocessors to the chain run for commands of typeName
// and operation, in the order given.
func (c *Chains) Register(typeName string, operation string, preprocessors ...Preprocessor) {
	k := chainKey{typeName: typeName, operation: operation}
	c.byKey[k] = append(c.byKey[k], preprocessors...)
}

// Run executes the chain registered for cmd's (Type, Operation), in order,
// threading each preprocessor's output payload into the next and giving
// each one txn to consult or extend.
func (c *Chains) Run(cmd *Command, txn *storage.Transaction) error {
	k := chainKey{typeName: cmd.Type, operation: cmd.Operation.String()}
	chain := c.byKey[k]
	for _, p := range chain {
		payload, err := p.Process(cmd, txn)
		if err != nil {
			return corerr.Wrap(corerr.Internal, "preprocessor failed for "+cmd.Type+"/"+cmd.Operation.String(), err)
		}
		cmd.Payload = payload
	}
	return nil
}
