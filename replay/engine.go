package replay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corelog"
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/storage"
)

var log = corelog.Get("replay")

const dbCursors = "cursors"

// EventKind distinguishes a committed revision from a flush marker in a
// consumer's event stream.
type EventKind uint8

const (
	RevisionCommitted EventKind = iota
	FlushMarker
)

// Event is one item delivered to a consumer.
type Event struct {
	Kind       EventKind
	Revision   corekey.Revision
	FlushToken uint64
}

// consumerState is the fan-out channel and persisted cursor for one
// registered consumer.
type consumerState struct {
	name   string
	events chan Event
	cursor atomic.Uint64 // corekey.Revision, most recent value Advance was called with
}

// Engine is the change-replay fan-out for one storage.Environment. Register
// a consumer once at startup; call Notify from the pipeline's commit
// listener for every committed revision.
type Engine struct {
	env     *storage.Environment
	cursors *storage.Database

	mu        sync.Mutex
	consumers map[string]*consumerState
	lowWater  *lowWaterHeap
	onAdvance []func(corekey.Revision)

	flushMu      sync.Mutex
	nextToken    uint64
	pendingFlush map[uint64]*pendingFlush
}

// pendingFlush tracks how many of the consumers a Flush call fanned a
// marker out to have reported FlushComplete for its token.
type pendingFlush struct {
	remaining int
	done      chan struct{}
}

// NewEngine opens the cursor sub-database within env and returns an Engine
// ready to accept Register calls.
func NewEngine(env *storage.Environment) (*Engine, error) {
	cursors, err := env.Database(dbCursors)
	if err != nil {
		return nil, err
	}
	return &Engine{
		env:          env,
		cursors:      cursors,
		consumers:    make(map[string]*consumerState),
		lowWater:     newLowWaterHeap(),
		pendingFlush: make(map[uint64]*pendingFlush),
	}, nil
}

// Register adds consumerName to the fan-out, resuming its cursor from disk
// if it was registered in a previous run. bufferSize bounds how many
// undelivered events may queue up before Notify blocks; pick it generously
// for consumers expected to keep up in real time.
func (e *Engine) Register(consumerName string, bufferSize int) (*Consumer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.consumers[consumerName]; exists {
		return nil, corerr.New(corerr.Misconfiguration, "consumer "+consumerName+" already registered")
	}

	cursor, err := e.loadCursor(consumerName)
	if err != nil {
		return nil, err
	}

	cs := &consumerState{name: consumerName, events: make(chan Event, bufferSize)}
	cs.cursor.Store(uint64(cursor))
	e.consumers[consumerName] = cs
	e.lowWater.Set(consumerName, cursor)

	log.Infof("registered consumer %s resuming from revision %s", consumerName, cursor.Encode())
	return &Consumer{engine: e, state: cs}, nil
}

// Unregister removes consumerName from the fan-out. Its persisted cursor is
// left on disk so re-registering it later resumes where it left off.
func (e *Engine) Unregister(consumerName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.consumers, consumerName)
	e.lowWater.Remove(consumerName)
}

// Notify fans a newly committed revision out to every registered consumer.
// It is meant to be passed directly as a pipeline.CommitListener.
func (e *Engine) Notify(rev corekey.Revision) {
	e.mu.Lock()
	consumers := make([]*consumerState, 0, len(e.consumers))
	for _, cs := range e.consumers {
		consumers = append(consumers, cs)
	}
	e.mu.Unlock()

	// The send happens outside e.mu: a consumer's buffer is bounded, and
	// the only way it ever drains is through Advance, which also takes
	// e.mu. Holding the lock across a blocking send here would deadlock
	// against a consumer draining its own channel the moment any buffer
	// fills up.
	for _, cs := range consumers {
		cs.events <- Event{Kind: RevisionCommitted, Revision: rev}
	}
}

// Flush enqueues a flush marker behind every event currently pending for
// every registered consumer and blocks until every consumer has reported
// FlushComplete for it, or ctx is done first.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	consumers := make([]*consumerState, 0, len(e.consumers))
	for _, cs := range e.consumers {
		consumers = append(consumers, cs)
	}
	e.mu.Unlock()

	if len(consumers) == 0 {
		return nil
	}

	e.flushMu.Lock()
	token := e.nextToken
	e.nextToken++
	pf := &pendingFlush{remaining: len(consumers), done: make(chan struct{})}
	e.pendingFlush[token] = pf
	e.flushMu.Unlock()

	for _, cs := range consumers {
		cs.events <- Event{Kind: FlushMarker, FlushToken: token}
	}

	select {
	case <-pf.done:
		return nil
	case <-ctx.Done():
		return corerr.Wrap(corerr.Cancelled, "flush", ctx.Err())
	}
}

// FlushComplete is called by a consumer once it has processed a flush
// marker with the given token. Once every consumer the originating Flush
// call fanned the marker out to has reported it, the matching Flush call
// unblocks.
func (e *Engine) FlushComplete(token uint64) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	pf, ok := e.pendingFlush[token]
	if !ok {
		return
	}
	pf.remaining--
	if pf.remaining <= 0 {
		close(pf.done)
		delete(e.pendingFlush, token)
	}
}

// Advance persists consumerName's cursor at rev and updates the low-water
// mark used by CleanupRevision. Consumers call this after durably recording
// their own progress past rev, not merely after reading the event. Once
// persisted, every function registered with OnAdvance is called with the
// new low-water mark so old revisions can be reclaimed.
func (e *Engine) Advance(consumerName string, rev corekey.Revision) error {
	e.mu.Lock()
	cs, ok := e.consumers[consumerName]
	if !ok {
		e.mu.Unlock()
		return corerr.New(corerr.NotFound, "unknown consumer "+consumerName)
	}
	cs.cursor.Store(uint64(rev))
	e.lowWater.Set(consumerName, rev)
	low, lowOk := e.lowWater.Min()
	hooks := e.onAdvance
	e.mu.Unlock()

	if err := e.env.Update(func(txn *storage.Transaction) error {
		return txn.Set(e.cursors, []byte(consumerName), []byte(rev.Encode()))
	}); err != nil {
		return err
	}

	if lowOk {
		for _, fn := range hooks {
			fn(low)
		}
	}
	return nil
}

// OnAdvance registers fn to be called, in registration order, after every
// successful Advance, passed the current low-water mark (which may be
// unchanged if a consumer other than the slowest advanced). Revisions
// at or below that mark have been seen by every registered consumer and are
// safe for fn to reclaim.
func (e *Engine) OnAdvance(fn func(corekey.Revision)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAdvance = append(e.onAdvance, fn)
}

func (e *Engine) loadCursor(consumerName string) (corekey.Revision, error) {
	var rev corekey.Revision
	err := e.env.View(func(txn *storage.Transaction) error {
		value, found, err := txn.Get(e.cursors, []byte(consumerName))
		if err != nil || !found {
			return err
		}
		rev, err = corekey.ParseRevision(string(value))
		return err
	})
	return rev, err
}

// CleanupRevision returns the lowest cursor across every registered
// consumer - revisions at or below it have been seen by every consumer and
// may be garbage collected. The second result is false if no consumer is
// registered, in which case nothing is safe to clean up.
func (e *Engine) CleanupRevision() (corekey.Revision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lowWater.Min()
}

// Consumer is a registered replay consumer's handle onto its event stream.
type Consumer struct {
	engine *Engine
	state  *consumerState
}

// Events returns the channel this consumer receives RevisionCommitted and
// FlushMarker events on.
func (c *Consumer) Events() <-chan Event {
	return c.state.events
}

// Advance persists this consumer's cursor at rev.
func (c *Consumer) Advance(rev corekey.Revision) error {
	return c.engine.Advance(c.state.name, rev)
}

// Cursor returns this consumer's last-advanced revision.
func (c *Consumer) Cursor() corekey.Revision {
	return corekey.Revision(c.state.cursor.Load())
}

// FlushComplete reports that this consumer has processed the flush marker
// carrying token.
func (c *Consumer) FlushComplete(token uint64) {
	c.engine.FlushComplete(token)
}
