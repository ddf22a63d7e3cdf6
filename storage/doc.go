// Package storage is the ordered, transactional byte-keyed backend every
// other package in this module is built on.
//
// It generalizes a flat key/value interface: instead of a single map with
// a write-index field bolted onto every call, storage exposes named
// sub-databases inside one physical Pebble instance, and atomicity across
// sub-databases (an entity write plus its
// secondary-index entries) comes from committing them in the same
// Transaction instead of from per-call parameters.
//
// Sub-databases are not a Pebble feature; they are emulated the way
// other_examples/drpcorg-chotki__doc.go emulates per-class/per-field index
// namespaces - every key written through a Database is physically stored
// behind a fixed-width hash of that database's name, so a single Pebble
// instance behaves like several independent ordered maps, and a prefix
// iterator stays scoped to one of them. A reserved "__internal_dbname"
// record under each prefix marks that the sub-database has been opened at
// least once and records the name it was opened under, which is enough to
// tell "empty" apart from "never created" and to catch a name/prefix
// disagreement (a hash collision between two different names) as a
// Misconfiguration error instead of silently mixing their data.
//
// Environment is the per-path singleton (one instance per data directory);
// Transaction wraps a pebble.Batch for read-write use or a
// pebble.Snapshot for a consistent read-only view.
package storage
