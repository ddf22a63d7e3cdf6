// Package corekey defines the identifier, revision and composite key types
// shared by every other package in this module.
//
// An Identifier names an entity independently of any particular revision of
// it. A Revision is a globally monotonic stamp assigned by the pipeline at
// commit time. A Key pairs the two and is the key of the entity
// sub-database; the entitystore package builds its index and
// revision-lookup keys from Identifier and Revision parts itself.
//
// Revisions are encoded as fixed-width, zero-padded decimal strings so that
// byte-lexicographic order (what every ordered key-value store gives you
// for free) is the same as numeric order. This is the same trick the
// underlying store uses for its own write index, just made explicit and
// given a type instead of being an implicit uint64 argument.
package corekey
