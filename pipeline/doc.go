// Package pipeline is the command commit path.
//
// It generalizes a state-machine batch-apply loop: entries arrive as a
// batch, each entry is independently decoded and processed, and each
// entry's outcome is reported back without one entry's failure blocking the
// rest of the batch. Where a fixed CommandType would dispatch to a handful
// of inline calls, Pipeline dispatches through a per-(type, operation)
// chain of Preprocessors before handing the command to entitystore for the
// actual commit, and tracks each command through an explicit state machine
// instead of only reporting a final result code.
//
// A Command moves through:
//
//	Queued -> Decoding -> Preprocessing -> CommitScheduled -> Committed -> Notified
//
// or into Failed from any of the first four states. Notified is reached
// once every registered CommitListener (typically replay.Engine.Notify) has
// been called with the new revision; the pipeline sets it itself, right
// after Committed.
package pipeline
