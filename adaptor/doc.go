// Package adaptor is the typed-capability registry entity types plug into.
//
// A type - "mail", "contact", "event" and so on - does not get special-cased
// anywhere in entitystore, pipeline or query. Instead each type registers an
// Adaptor describing how to encode and decode its payload and which of its
// properties are indexed, and every other package works only against the
// Registry. This mirrors a factory-function dependency-injection pattern (a
// factory supplies the concrete backend so a package never imports a
// concrete engine) generalized from "one factory for the one backend in
// use" to "one factory per registered type name", and a bit-flag capability
// query generalized from a fixed enum of operations to an open-ended set of
// property names.
package adaptor
