package resource

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/sinkdb/core/adaptor"
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corelog"
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/entitystore"
	"github.com/sinkdb/core/job"
	"github.com/sinkdb/core/pipeline"
	"github.com/sinkdb/core/query"
	"github.com/sinkdb/core/replay"
	"github.com/sinkdb/core/storage"
	"github.com/sinkdb/core/syncer"
)

var log = corelog.Get("resource")

const userQueueFile = "queue.user.log"

// Resource is one running resource instance: a storage environment plus the
// pipeline, replay and query engines layered over it, and zero or more
// syncer.Synchronizers for the remote sources it mirrors.
type Resource struct {
	id         string
	storageDir string

	env      *storage.Environment
	store    *entitystore.Store
	registry *adaptor.Registry
	queue    *pipeline.DurableQueue
	pipeline *pipeline.Pipeline
	replay   *replay.Engine
	query    *query.Engine

	mu       sync.Mutex
	draining bool
	calls    sync.WaitGroup

	syncMu        sync.Mutex
	synchronizers map[string]*syncer.Synchronizer
	syncRequests  *syncer.RequestScheduler
}

// Open opens (creating if necessary) the resource instance identified by id
// at storageDir, replaying its durable queue before accepting new calls.
func Open(id, storageDir string, registry *adaptor.Registry, chains *pipeline.Chains) (*Resource, error) {
	env, err := storage.Open(storageDir)
	if err != nil {
		return nil, err
	}

	store, err := entitystore.New(env, registry)
	if err != nil {
		_ = env.Close()
		return nil, err
	}

	queue, err := pipeline.OpenDurableQueue(filepath.Join(storageDir, userQueueFile))
	if err != nil {
		_ = env.Close()
		return nil, err
	}

	p, err := pipeline.New(env, store, registry, chains, queue)
	if err != nil {
		_ = queue.Close()
		_ = env.Close()
		return nil, err
	}
	if err := p.ReplayQueue(); err != nil {
		_ = queue.Close()
		_ = env.Close()
		return nil, corerr.Wrap(corerr.Internal, "replay durable queue for resource "+id, err)
	}

	replayEngine, err := replay.NewEngine(env)
	if err != nil {
		_ = queue.Close()
		_ = env.Close()
		return nil, err
	}
	p.OnCommit(replayEngine.Notify)
	replayEngine.OnAdvance(func(upTo corekey.Revision) {
		if err := env.Update(func(txn *storage.Transaction) error {
			_, err := store.CleanupRevision(txn, upTo)
			return err
		}); err != nil {
			log.Errorf("cleanup revisions below %s for resource %s: %v", upTo.Encode(), id, err)
		}
	})

	r := &Resource{
		id:            id,
		storageDir:    storageDir,
		env:           env,
		store:         store,
		registry:      registry,
		queue:         queue,
		pipeline:      p,
		replay:        replayEngine,
		query:         query.NewEngine(env, store),
		synchronizers: make(map[string]*syncer.Synchronizer),
		syncRequests:  syncer.NewRequestScheduler(),
	}
	log.Infof("opened resource %s at %s", id, storageDir)
	return r, nil
}

// beginCall admits one façade call unless the resource is draining or shut
// down, and registers it against calls so Drain can wait for it to finish.
func (r *Resource) beginCall() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return corerr.New(corerr.Unsupported, "resource "+r.id+" is draining")
	}
	r.calls.Add(1)
	return nil
}

func (r *Resource) endCall() {
	r.calls.Done()
}

// Create issues a Create command for a new entity of typeName owned by
// resourceName, resolving to its freshly assigned identifier.
func (r *Resource) Create(resourceName, typeName string, payload interface{}) *job.Job[corekey.Identifier] {
	j := job.New[corekey.Identifier]()
	if err := r.beginCall(); err != nil {
		j.Reject(err)
		return j
	}
	go func() {
		defer r.endCall()
		cmd := &pipeline.Command{Resource: resourceName, Type: typeName, Operation: entitystore.Create, Payload: payload}
		if err := r.pipeline.Enqueue(cmd); err != nil {
			j.Reject(err)
			return
		}
		j.Resolve(cmd.ID)
	}()
	return j
}

// Modify issues a Modify command against an existing entity.
func (r *Resource) Modify(id corekey.Identifier, resourceName, typeName string, payload interface{}) *job.Job[struct{}] {
	return r.writeCommand(&pipeline.Command{ID: id, Resource: resourceName, Type: typeName, Operation: entitystore.Modify, Payload: payload})
}

// Remove issues a Remove command against an existing entity.
func (r *Resource) Remove(id corekey.Identifier, resourceName, typeName string) *job.Job[struct{}] {
	return r.writeCommand(&pipeline.Command{ID: id, Resource: resourceName, Type: typeName, Operation: entitystore.Remove})
}

func (r *Resource) writeCommand(cmd *pipeline.Command) *job.Job[struct{}] {
	j := job.New[struct{}]()
	if err := r.beginCall(); err != nil {
		j.Reject(err)
		return j
	}
	go func() {
		defer r.endCall()
		if err := r.pipeline.Enqueue(cmd); err != nil {
			j.Reject(err)
			return
		}
		j.Resolve(struct{}{})
	}()
	return j
}

// Load runs q against the resource's data, delivering matches to rp. If
// q.LiveQuery is set, rp keeps receiving updates until ctx is done; the Job
// resolves as soon as the initial scan completes, not when the live stream
// ends, the same way a caller with a non-live query gets its Job resolved
// once the (necessarily finite) scan is done.
func (r *Resource) Load(ctx context.Context, q *query.Query, rp query.ResultProvider) *job.Job[struct{}] {
	j := job.New[struct{}]()
	if err := r.beginCall(); err != nil {
		j.Reject(err)
		return j
	}

	if !q.LiveQuery {
		go func() {
			defer r.endCall()
			if err := r.query.Run(q, rp); err != nil {
				j.Reject(err)
				return
			}
			j.Resolve(struct{}{})
		}()
		return j
	}

	consumerName := "query-" + corekey.NewIdentifier().String()
	consumer, err := r.replay.Register(consumerName, 64)
	if err != nil {
		r.endCall()
		j.Reject(err)
		return j
	}

	go func() {
		defer r.endCall()
		defer r.replay.Unregister(consumerName)
		ready := func() { j.Resolve(struct{}{}) }
		if err := r.query.Subscribe(ctx, q, rp, consumer, ready); err != nil {
			select {
			case <-j.Done():
			default:
				j.Reject(err)
			}
		}
	}()
	return j
}

// RegisterSynchronizer creates and registers the Synchronizer for
// resourceName, the remote source a caller's domain-specific sync code
// drives through CreateOrModify/ScanForRemovals.
func (r *Resource) RegisterSynchronizer(resourceName string, retry syncer.RetryPolicy) (*syncer.Synchronizer, error) {
	mapper, err := syncer.NewRemoteIDMapper(r.env)
	if err != nil {
		return nil, err
	}
	s := syncer.New(resourceName, r.pipeline, mapper, r.store, r.env, retry)

	r.syncMu.Lock()
	r.synchronizers[resourceName] = s
	r.syncMu.Unlock()
	return s, nil
}

// Synchronize runs run against resourceName's registered Synchronizer,
// coalescing concurrent Synchronize calls for the same resource into one
// in-flight request: a second caller gets the first caller's Job instead of
// triggering a redundant sync.
func (r *Resource) Synchronize(resourceName string, run func(*syncer.Synchronizer) error) *job.Job[struct{}] {
	r.syncMu.Lock()
	s, ok := r.synchronizers[resourceName]
	r.syncMu.Unlock()
	if !ok {
		j := job.New[struct{}]()
		j.Reject(corerr.New(corerr.Misconfiguration, "no synchronizer registered for resource "+resourceName))
		return j
	}

	req, reused := r.syncRequests.Schedule(resourceName)
	if reused {
		return req.Done()
	}

	if err := r.beginCall(); err != nil {
		r.syncRequests.Complete(req, err)
		return req.Done()
	}
	go func() {
		defer r.endCall()
		err := run(s)
		r.syncRequests.Complete(req, err)
	}()
	return req.Done()
}

// RevisionReplayed advances the low-water cursor for a live query consumer
// once its caller has processed every entity up to revision, letting
// replay.Engine.CleanupRevision and the entity store's revision cleanup
// advance past it. consumerName must match the name a prior Load call registered.
func (r *Resource) RevisionReplayed(consumerName string, revision corekey.Revision) error {
	return r.replay.Advance(consumerName, revision)
}

// Adaptor returns the registered Adaptor for typeName, letting a transport
// layer decode a wire payload before calling Create/Modify.
func (r *Resource) Adaptor(typeName string) (*adaptor.Adaptor, error) {
	return r.registry.Get(typeName)
}

// FlushMessageQueue blocks until every registered live query and replay
// consumer has observed every revision committed before this call, for the
// resourceNames given (currently every registered consumer is flushed
// regardless of name, since the replay engine fans out by consumer, not by
// resource; resourceNames is kept for façade-compatibility and future
// per-resource fan-out).
func (r *Resource) FlushMessageQueue(ctx context.Context, resourceNames ...string) *job.Job[struct{}] {
	j := job.New[struct{}]()
	if err := r.beginCall(); err != nil {
		j.Reject(err)
		return j
	}
	go func() {
		defer r.endCall()
		if err := r.replay.Flush(ctx); err != nil {
			j.Reject(err)
			return
		}
		j.Resolve(struct{}{})
	}()
	return j
}

// Drain stops accepting new façade calls and waits for every in-flight one
// to finish, matching the original's distinction between "resource accepts
// commands" and "resource is draining": once Drain returns, Shutdown is
// safe to call.
func (r *Resource) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.calls.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return corerr.Wrap(corerr.Cancelled, "drain resource "+r.id, ctx.Err())
	}
}

// Shutdown closes the resource's storage environment and durable queue.
// Callers should Drain first; Shutdown does not itself wait for in-flight
// calls.
func (r *Resource) Shutdown() error {
	if err := r.queue.Close(); err != nil {
		return err
	}
	return r.env.Close()
}

// RemoveDataFromDisk shuts the resource down and deletes its storage
// directory entirely. It is irreversible.
func (r *Resource) RemoveDataFromDisk() error {
	if err := r.Shutdown(); err != nil {
		return err
	}
	if err := os.RemoveAll(r.storageDir); err != nil {
		return corerr.Wrap(corerr.Internal, "remove storage directory "+r.storageDir, err)
	}
	log.Infof("removed all data for resource %s at %s", r.id, r.storageDir)
	return nil
}
