// Package replay delivers committed revisions to registered consumers and
// tracks, per consumer, how far each one has gotten.
//
// Fan-out is modeled on lib/db/util/lockfreempsc.go's single-producer shape
// - the pipeline is the one producer calling Notify - generalized from one
// shared output channel to one independent channel per registered
// consumer, since every consumer must see every revision rather than
// compete for the same one. Each consumer's cursor is persisted so a
// restarted consumer resumes instead of re-processing its whole history;
// the low-water mark across all cursors (the oldest any consumer has not
// yet passed) is tracked with the same key-addressable priority queue
// lib/db/util/mapheap.go uses for its own oldest-item lookups, here keyed
// by consumer name instead of object id, so CleanupRevision is an O(1)
// peek instead of a scan over every consumer's cursor.
//
// Flush/FlushComplete is a token protocol: a caller that needs to know a
// consumer has drained everything committed so far enqueues a flush marker
// behind the consumer's pending revisions and waits for the consumer to
// report it back.
package replay
