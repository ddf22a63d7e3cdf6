// Package entitystore is the revisioned entity store built on storage and
// adaptor.
//
// It owns three sub-databases inside one storage.Environment:
//
//   - "entities": corekey.Key -> encoded Entity envelope. Every revision of
//     every entity that has ever been committed lives here permanently
//     until the replay engine's low-water mark allows cleanup.
//   - "revisions": Revision.Encode() -> Identifier ‖ type name, letting the
//     change-replay engine translate a bare revision number back into
//     "which entity, of what type" without touching the entities database.
//   - "index": composite secondary-index keys built from a type's
//     IndexedProperties, each pointing back at the Identifier that produced
//     them.
//
// All three are written to in the same storage.Transaction as the entity
// record itself, following the same batch-together discipline
// other_examples/drpcorg-chotki__doc.go documents for its own fullscan and
// hashtable indexes: an entity write either lands with its index entries or
// not at all.
package entitystore
