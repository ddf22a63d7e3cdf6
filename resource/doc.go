// Package resource is the client-facing façade for one resource instance:
// one storage.Environment, one pipeline.Pipeline, one replay.Engine, one
// query.Engine, and whatever syncer.Synchronizers the caller registers for
// the remote sources this resource mirrors.
//
// Every operation returns a *job.Job, the façade's answer to the original's
// callback-based async API: a caller either blocks on Wait(ctx) or polls
// Done() from its own event loop, and cancelling ctx ends that caller's
// wait while the operation itself runs on to completion, so the façade
// never blocks on a slow caller.
package resource
