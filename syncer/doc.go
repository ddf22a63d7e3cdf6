// Package syncer reconciles a resource's local entities against a remote
// source of truth.
//
// RemoteIDMapper is the bidirectional local-id/remote-id table every sync
// operation goes through: a remote item is never addressed by its remote id
// directly, it is translated to a local corekey.Identifier first, the same
// way every other package only ever deals in Identifier and never in a
// backend-specific key. A remote id resolves to exactly one local id, but a
// local id can hold zero or more remote ids at once, since a write-back
// race can leave one local entity mirrored under several remote items
// before a later sync reconciles them.
//
// RequestScheduler coalesces concurrent sync requests for the same resource
// name into one in-flight Request; it is meant to be owned by whatever
// coordinates several Synchronizers (the resource façade), not by a single
// Synchronizer, which only ever represents one resource and has nothing of
// its own to coalesce against.
//
// The retry loop CreateOrModify runs on transient failures is grounded on
// rpc/transport/base/client.go's request retry: exponential backoff with
// jitter, capped at a configured retry count, the same shape generalized
// from "resend an RPC frame" to "retry a sync request against a remote
// resource".
package syncer
