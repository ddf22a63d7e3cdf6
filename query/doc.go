// Package query answers one-shot and live queries over an entitystore.Store,
// combining secondary-index lookups with an in-process residual filter the
// way a storage layer decides between a native feature and a generic
// fallback: ask what the index layer can satisfy, then cover the rest by
// hand.
//
// A Query names a type, an optional set of resources or identifiers to
// restrict to, and a property filter. Run performs the initial scan and
// streams matches to a ResultProvider as Creations. If the Query is live,
// Subscribe keeps the same ResultProvider up to date as further revisions
// commit, turning a Modification that stops matching into a Removal.
package query
