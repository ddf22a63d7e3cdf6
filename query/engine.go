package query

import (
	"context"

	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corelog"
	"github.com/sinkdb/core/entitystore"
	"github.com/sinkdb/core/replay"
	"github.com/sinkdb/core/storage"
)

var log = corelog.Get("query")

// valueEnumerator is implemented by comparators whose full set of matching
// values can be listed up front, letting the engine push them down as exact
// secondary-index lookups instead of a full scan plus residual filter.
type valueEnumerator interface {
	Values() []string
}

func (c equalComparator) Values() []string { return []string{c.want} }

func (c oneOfComparator) Values() []string {
	out := make([]string, 0, len(c.want))
	for v := range c.want {
		out = append(out, v)
	}
	return out
}

// Engine runs Query values against one entitystore.Store.
type Engine struct {
	env   *storage.Environment
	store *entitystore.Store
}

// NewEngine binds an Engine to store's environment.
func NewEngine(env *storage.Environment, store *entitystore.Store) *Engine {
	return &Engine{env: env, store: store}
}

// Run performs q's initial scan and delivers every match to rp as a
// Creation, then records the max revision seen as rp's baseline. It does not
// keep rp updated afterwards; use Subscribe for a live query.
func (e *Engine) Run(q *Query, rp ResultProvider) error {
	if q.ParentProperty != "" {
		e.installFetcher(q, rp)
	}
	_, maxRev, err := e.scan(q, rp)
	if err != nil {
		return err
	}
	rp.SetRevision(maxRev)
	return nil
}

// Subscribe performs the same initial scan as Run, then - if q.LiveQuery is
// set - keeps rp updated as further revisions arrive on consumer's event
// stream, until ctx is done. It blocks for the lifetime of the
// subscription; call it from its own goroutine. If ready is non-nil, it is
// called once the initial scan has completed and rp's baseline revision is
// set, before the (possibly long-lived) incremental loop starts - callers
// that only need to know when the initial batch has landed, such as the
// façade's Load operation, resolve their own completion signal from it
// instead of waiting for Subscribe itself to return.
func (e *Engine) Subscribe(ctx context.Context, q *Query, rp ResultProvider, consumer *replay.Consumer, ready func()) error {
	if q.ParentProperty != "" {
		e.installFetcher(q, rp)
	}
	included, maxRev, err := e.scan(q, rp)
	if err != nil {
		return err
	}
	rp.SetRevision(maxRev)
	if ready != nil {
		ready()
	}
	if !q.LiveQuery {
		return nil
	}
	return e.incrementalLoop(ctx, q, rp, consumer, included)
}

// installFetcher wires rp's fetcher to re-run q as a child query for the
// requested parent, the mechanism behind parent/child tree expansion.
func (e *Engine) installFetcher(q *Query, rp ResultProvider) {
	rp.SetFetcher(func(parent corekey.Identifier) {
		if err := e.ExpandChildren(parent, q, rp); err != nil {
			log.Warningf("expand children of %s: %v", parent, err)
		}
	})
}

// ExpandChildren re-runs q restricted to entities whose ParentProperty
// equals parent, delivering matches to rp the same way the base query does.
func (e *Engine) ExpandChildren(parent corekey.Identifier, q *Query, rp ResultProvider) error {
	if q.ParentProperty == "" {
		return nil
	}
	child := *q
	child.PropertyFilter = make(map[string]Comparator, len(q.PropertyFilter)+1)
	for k, v := range q.PropertyFilter {
		child.PropertyFilter[k] = v
	}
	child.PropertyFilter[q.ParentProperty] = Equal(parent.String())
	child.ParentProperty = ""
	_, _, err := e.scan(&child, rp)
	return err
}

// scan performs the index-selection, candidate-gathering and residual-filter
// steps of the initial query algorithm within one read transaction, calling
// rp.Add for every match. It returns the matched identifiers (for a
// subsequent live subscription's tombstone bookkeeping) and the max
// revision observed at scan time.
func (e *Engine) scan(q *Query, rp ResultProvider) (map[corekey.Identifier]struct{}, corekey.Revision, error) {
	included := make(map[corekey.Identifier]struct{})
	var maxRev corekey.Revision

	err := e.env.View(func(txn *storage.Transaction) error {
		rev, err := e.store.MaxRevision(txn)
		if err != nil {
			return err
		}
		maxRev = rev

		for _, typeName := range q.Types {
			appliedFilter, ids, err := e.candidateIDs(txn, typeName, q.PropertyFilter)
			if err != nil {
				return err
			}
			for id := range ids {
				entity, found, err := e.store.ReadLatest(txn, id)
				if err != nil {
					return err
				}
				if !found || entity.Metadata.Operation == entitystore.Remove {
					continue
				}
				if !q.matchesResource(entity.Metadata.Resource) || !q.matchesID(id) {
					continue
				}
				if !e.residualMatches(entity, typeName, q.PropertyFilter, appliedFilter) {
					continue
				}
				included[id] = struct{}{}
				rp.Add(entity)
			}
		}
		return nil
	})
	return included, maxRev, err
}

// candidateIDs picks the best indexed filter key it can satisfy exactly and
// returns the resulting candidate set, or falls back to the implicit
// entitystore.TypeProperty index for a full scan of typeName if no filter
// key is both indexed and enumerable. The returned string names which
// filter key (if any) the candidate set already satisfies, so scan does not
// re-check it in the residual pass.
func (e *Engine) candidateIDs(txn *storage.Transaction, typeName string, filter map[string]Comparator) (string, map[corekey.Identifier]struct{}, error) {
	for property, cmp := range filter {
		enum, ok := cmp.(valueEnumerator)
		if !ok || !e.store.SupportsIndex(typeName, property) {
			continue
		}
		ids := make(map[corekey.Identifier]struct{})
		for _, value := range enum.Values() {
			matched, err := e.store.QueryIndexes(txn, typeName, property, value)
			if err != nil {
				return "", nil, err
			}
			for _, id := range matched {
				ids[id] = struct{}{}
			}
		}
		return property, ids, nil
	}

	matched, err := e.store.QueryIndexes(txn, typeName, entitystore.TypeProperty, typeName)
	if err != nil {
		return "", nil, err
	}
	ids := make(map[corekey.Identifier]struct{}, len(matched))
	for _, id := range matched {
		ids[id] = struct{}{}
	}
	return "", ids, nil
}

// residualMatches applies every filter key not already satisfied by the
// index lookup that produced entity's candidacy. A comparison against a
// missing or unreadable property treats the entity as non-matching, per the
// query engine's edge-case policy.
func (e *Engine) residualMatches(entity entitystore.Entity, typeName string, filter map[string]Comparator, applied string) bool {
	for property, cmp := range filter {
		if property == applied {
			continue
		}
		value, err := e.store.PropertyValue(typeName, entity.Payload, property)
		if err != nil {
			log.Warningf("property %q unavailable on entity %s: %v", property, entity.Key.ID, err)
			return false
		}
		if !cmp.Match(value) {
			return false
		}
	}
	return true
}

// incrementalLoop implements the live-query algorithm: each committed
// revision arriving on consumer's channel is resolved to its entity and
// delivered to rp as Add, Modify or Remove, with a Modification that stops
// satisfying the filter delivered as Remove instead.
func (e *Engine) incrementalLoop(ctx context.Context, q *Query, rp ResultProvider, consumer *replay.Consumer, included map[corekey.Identifier]struct{}) error {
	typeSet := make(map[string]struct{}, len(q.Types))
	for _, t := range q.Types {
		typeSet[t] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-consumer.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case replay.FlushMarker:
				consumer.FlushComplete(ev.FlushToken)
			case replay.RevisionCommitted:
				if err := e.applyRevision(q, rp, typeSet, included, ev.Revision); err != nil {
					return err
				}
				if err := consumer.Advance(ev.Revision); err != nil {
					return err
				}
			}
		}
	}
}

func (e *Engine) applyRevision(q *Query, rp ResultProvider, typeSet map[string]struct{}, included map[corekey.Identifier]struct{}, rev corekey.Revision) error {
	if rev <= rp.Revision() {
		// Already covered by the initial scan's baseline; Notify can
		// fan this revision out to a consumer registered just before
		// the scan ran, before the scan itself observed it.
		return nil
	}
	return e.env.View(func(txn *storage.Transaction) error {
		typeName, err := e.store.GetTypeFromRevision(txn, rev)
		if err != nil {
			return err
		}
		if _, wanted := typeSet[typeName]; !wanted {
			return nil
		}
		id, err := e.store.GetUidFromRevision(txn, rev)
		if err != nil {
			return err
		}
		entity, found, err := e.store.ReadEntity(txn, corekey.Key{ID: id, Revision: rev})
		if err != nil || !found {
			return err
		}
		if !q.matchesResource(entity.Metadata.Resource) || !q.matchesID(id) {
			return nil
		}

		_, wasIncluded := included[id]

		if entity.Metadata.Operation == entitystore.Remove {
			if wasIncluded {
				delete(included, id)
				rp.Remove(entity)
			}
			rp.SetRevision(rev)
			return nil
		}

		if e.residualMatches(entity, typeName, q.PropertyFilter, "") {
			if wasIncluded {
				rp.Modify(entity)
			} else {
				included[id] = struct{}{}
				rp.Add(entity)
			}
		} else if wasIncluded {
			delete(included, id)
			rp.Remove(entity)
		}

		rp.SetRevision(rev)
		return nil
	})
}
