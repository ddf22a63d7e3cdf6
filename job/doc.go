// Package job provides Job[T], an async result handle.
//
// It is the reusable form of the pattern dstore.storeImpl uses inline for
// every remote operation: start a goroutine, wait on a channel for either a
// result or the caller's context to end, and turn a timeout or cancellation
// into the same kind of error a real failure would produce. Job[T] pulls
// that pattern out from under a single blocking call into a value that can
// be created by one goroutine, handed to another, and completed exactly
// once from a third - which the synchronizer needs, since a sync request's
// completion is reported asynchronously by whatever goroutine is driving
// the remote exchange, not by the goroutine that scheduled the request.
package job
