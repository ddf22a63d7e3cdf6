package query

import "github.com/sinkdb/core/entitystore"

// CollectingResultProvider accumulates every match of a non-live Query into
// a slice, for callers that just want a snapshot result set rather than a
// running subscription - the RPC query adapter, most notably.
type CollectingResultProvider struct {
	BaseResultProvider
	Matches []entitystore.Entity
}

func (c *CollectingResultProvider) Add(entity entitystore.Entity) {
	c.Matches = append(c.Matches, entity)
}

func (c *CollectingResultProvider) Modify(entity entitystore.Entity) {
	c.Matches = append(c.Matches, entity)
}

func (c *CollectingResultProvider) Remove(entitystore.Entity) {}
