package query

import "github.com/sinkdb/core/corekey"

// Query describes one lookup: which types to scan, optional restrictions to
// specific resources or identifiers, a property filter every match must
// satisfy, and whether the caller wants to keep receiving updates after the
// initial scan.
type Query struct {
	// Types lists the entity type names to scan. Required.
	Types []string

	// Resources, if non-empty, restricts matches to entities owned by one
	// of these resource instances.
	Resources []string

	// IDs, if non-empty, restricts matches to these identifiers.
	IDs []corekey.Identifier

	// PropertyFilter names properties every match must satisfy, using
	// Comparator so a value can be matched exactly, against a set, or
	// (later) against a range or prefix.
	PropertyFilter map[string]Comparator

	// ParentProperty, if set, re-runs the query with
	// PropertyFilter[ParentProperty] == the parent identifier for each
	// expansion, turning the flat result into a tree.
	ParentProperty string

	// LiveQuery keeps the ResultProvider updated with revisions committed
	// after the initial scan. Requires a replay.Consumer at Subscribe time.
	LiveQuery bool

	// RequestedProperties hints which properties the caller actually
	// needs, for a future fetcher to avoid loading unneeded ones. The
	// engine does not currently trim payloads by this list.
	RequestedProperties []string
}

func (q *Query) matchesResource(resource string) bool {
	if len(q.Resources) == 0 {
		return true
	}
	for _, r := range q.Resources {
		if r == resource {
			return true
		}
	}
	return false
}

func (q *Query) matchesID(id corekey.Identifier) bool {
	if len(q.IDs) == 0 {
		return true
	}
	for _, want := range q.IDs {
		if want == id {
			return true
		}
	}
	return false
}
