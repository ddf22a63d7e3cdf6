package query

import (
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/entitystore"
)

// FetchFunc is called by the engine when a ResultProvider wants more data for
// a parent/child expansion - pagination or subtree loading is the caller's
// concern, not the engine's.
type FetchFunc func(parent corekey.Identifier)

// ResultProvider receives a Query's matches. Add is called for every match
// found during the initial scan; Modify and Remove are only called by a live
// query's incremental phase. A Modification that stops satisfying the
// filter is delivered as Remove, not Modify, so the provider never has to
// re-check the filter itself.
type ResultProvider interface {
	Add(entity entitystore.Entity)
	Modify(entity entitystore.Entity)
	Remove(entity entitystore.Entity)

	// SetRevision/Revision track the baseline a live query resumes
	// incremental delivery from.
	SetRevision(rev corekey.Revision)
	Revision() corekey.Revision

	// SetFetcher installs the callback the engine invokes for
	// parent/child expansion requests.
	SetFetcher(fn FetchFunc)

	// SetQueryRunner installs a callback the provider can use to re-run
	// a sub-query, e.g. to expand one node of a parent/child tree.
	SetQueryRunner(fn func(q *Query, rp ResultProvider) error)
}

// BaseResultProvider is a minimal ResultProvider a caller can embed to get
// the revision-tracking and callback-storage bookkeeping for free, defining
// only Add/Modify/Remove.
type BaseResultProvider struct {
	revision corekey.Revision
	fetcher  FetchFunc
	runner   func(q *Query, rp ResultProvider) error
}

func (b *BaseResultProvider) SetRevision(rev corekey.Revision) { b.revision = rev }
func (b *BaseResultProvider) Revision() corekey.Revision       { return b.revision }
func (b *BaseResultProvider) SetFetcher(fn FetchFunc)          { b.fetcher = fn }
func (b *BaseResultProvider) SetQueryRunner(fn func(q *Query, rp ResultProvider) error) {
	b.runner = fn
}

// Fetch invokes the installed fetcher, if any.
func (b *BaseResultProvider) Fetch(parent corekey.Identifier) {
	if b.fetcher != nil {
		b.fetcher(parent)
	}
}

// RunQuery invokes the installed query runner, if any.
func (b *BaseResultProvider) RunQuery(q *Query, rp ResultProvider) error {
	if b.runner == nil {
		return nil
	}
	return b.runner(q, rp)
}
