package pipeline

import (
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/sinkdb/core/adaptor"
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corelog"
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/entitystore"
	"github.com/sinkdb/core/storage"
)

var log = corelog.Get("pipeline")

// CommitListener is notified once a command has committed, so the change
// replay engine can pick the new revision up without polling the entity
// store.
type CommitListener func(rev corekey.Revision)

// Pipeline is the command commit path for one storage.Environment. Step and
// ReplayQueue hold an internal lock for their whole batch, so concurrent
// callers are serialized and never race each other on the revision counter,
// matching the single-writer discipline a resource instance keeps over its
// own data.
type Pipeline struct {
	env      *storage.Environment
	store    *entitystore.Store
	registry *adaptor.Registry
	chains   *Chains
	queue    *DurableQueue

	mu        sync.Mutex
	nextRev   corekey.Revision
	listeners []CommitListener

	stepLatency metrics.Histogram
}

// New creates a Pipeline bound to store. It seeds its revision counter from
// store.MaxRevision so restarting a resource never reissues a revision that
// was already committed.
func New(env *storage.Environment, store *entitystore.Store, registry *adaptor.Registry, chains *Chains, queue *DurableQueue) (*Pipeline, error) {
	var maxRev corekey.Revision
	err := env.View(func(txn *storage.Transaction) error {
		var err error
		maxRev, err = store.MaxRevision(txn)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		env:         env,
		store:       store,
		registry:    registry,
		chains:      chains,
		queue:       queue,
		nextRev:     maxRev,
		stepLatency: metrics.NewHistogram(metrics.NewUniformSample(1024)),
	}, nil
}

// OnCommit registers fn to be called, in registration order, after every
// successfully committed command.
func (p *Pipeline) OnCommit(fn CommitListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// StepLatency returns the histogram of per-command commit latencies, in
// nanoseconds, for metrics export.
func (p *Pipeline) StepLatency() metrics.Histogram {
	return p.stepLatency
}

// Enqueue runs a single command through the pipeline and returns once it
// has reached Committed or Failed.
func (p *Pipeline) Enqueue(cmd *Command) error {
	results := p.Step([]*Command{cmd})
	return results[0]
}

// Step runs a batch of commands through the pipeline, independently: one
// command failing to decode, preprocess or commit does not stop the rest of
// the batch from being tried, the same independent-per-entry contract
// dstore.KVStateMachine.Update keeps for a raft log batch. The returned
// slice has one error (nil on success) per input command, in order.
func (p *Pipeline) Step(cmds []*Command) []error {
	if len(cmds) == 0 {
		return nil
	}

	start := time.Now()
	errs := make([]error, len(cmds))

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, cmd := range cmds {
		errs[i] = p.stepOne(cmd)
	}

	elapsed := time.Since(start)
	p.stepLatency.Update(elapsed.Nanoseconds())
	if elapsed > time.Millisecond*250 {
		log.Warningf("pipeline step took %s for %d commands", elapsed, len(cmds))
	}

	return errs
}

func (p *Pipeline) stepOne(cmd *Command) error {
	cmd.state = Decoding
	if _, err := p.registry.Get(cmd.Type); err != nil {
		cmd.state = Failed
		cmd.err = err
		return err
	}

	if cmd.ID.IsZero() {
		cmd.ID = corekey.NewIdentifier()
	}
	p.nextRev = p.nextRev.Next()
	cmd.Revision = p.nextRev

	key := corekey.Key{ID: cmd.ID, Revision: cmd.Revision}
	meta := entitystore.Metadata{
		Resource:  cmd.Resource,
		Type:      cmd.Type,
		Operation: cmd.Operation,
	}

	cmd.state = Preprocessing
	err := p.env.Update(func(txn *storage.Transaction) error {
		// A Remove issued without a payload records the entity's last
		// payload, so the adaptor's Encode always receives a decoded value.
		if cmd.Operation == entitystore.Remove && cmd.Payload == nil {
			latest, found, err := p.store.ReadLatest(txn, cmd.ID)
			if err != nil {
				return err
			}
			if found {
				cmd.Payload = latest.Payload
			}
		}
		if err := p.chains.Run(cmd, txn); err != nil {
			return err
		}

		cmd.state = CommitScheduled
		if p.queue != nil {
			payloadBytes, err := p.encodeForQueue(cmd)
			if err == nil {
				_ = p.queue.Append(queuedCommand{
					ID:        cmd.ID,
					Resource:  cmd.Resource,
					Type:      cmd.Type,
					Operation: cmd.Operation,
					Payload:   payloadBytes,
				})
			}
		}

		if err := p.store.WriteEntity(txn, key, meta, cmd.Payload); err != nil {
			return corerr.Wrap(corerr.Internal, "commit command", err)
		}
		return nil
	})
	if err != nil {
		cmd.state = Failed
		cmd.err = err
		return err
	}

	cmd.state = Committed
	for _, l := range p.listeners {
		l(cmd.Revision)
	}
	cmd.state = Notified
	return nil
}

// ReplayQueue redoes every command still sitting in the durable queue,
// committing each one exactly as Enqueue would, then truncates the queue.
// Call it once at startup, before any new command is accepted: anything the
// queue held either never reached Committed before the last shutdown, or
// did and is being redone harmlessly (WriteEntity always appends a new
// revision, so a redundant replay costs an extra revision, not a corrupted
// one). Queueing is suspended for the duration of the replay so redone
// commands are not appended right back to the log they are being drained
// from.
func (p *Pipeline) ReplayQueue() error {
	if p.queue == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	queue := p.queue
	p.queue = nil
	err := queue.Replay(func(qc queuedCommand) error {
		ad, err := p.registry.Get(qc.Type)
		if err != nil {
			return err
		}
		payload, err := ad.Decode(qc.Payload)
		if err != nil {
			return corerr.Wrap(corerr.Corruption, "decode queued payload for type "+qc.Type, err)
		}
		cmd := &Command{ID: qc.ID, Resource: qc.Resource, Type: qc.Type, Operation: qc.Operation, Payload: payload}
		if err := p.stepOne(cmd); err != nil {
			log.Warningf("replay of queued command for %s failed: %v", qc.ID, err)
		}
		return nil
	})
	p.queue = queue
	if err != nil {
		return err
	}
	return queue.Truncate()
}

func (p *Pipeline) encodeForQueue(cmd *Command) ([]byte, error) {
	ad, err := p.registry.Get(cmd.Type)
	if err != nil {
		return nil, err
	}
	return ad.Encode(cmd.Payload)
}

// currentRevision reports the last revision this pipeline assigned, for
// tests and diagnostics.
func (p *Pipeline) currentRevision() corekey.Revision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextRev
}
