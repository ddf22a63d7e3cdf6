package syncer

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corelog"
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/entitystore"
	"github.com/sinkdb/core/pipeline"
	"github.com/sinkdb/core/storage"
)

var log = corelog.Get("syncer")

// RetryPolicy configures CreateOrModify's retry loop for a Transient
// failure, mirroring rpc/transport/base/client.go's retry-with-backoff
// shape: exponential growth from an initial delay, +-10% jitter, capped at
// MaxAttempts.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultRetryPolicy is a conservative default backoff starting point.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond}

// Synchronizer reconciles one resource's local entities against a remote
// source of truth, going through a pipeline.Pipeline for every write so
// synced entities are committed and replayed exactly like locally
// originated ones.
type Synchronizer struct {
	resource string
	pipeline *pipeline.Pipeline
	mapper   *RemoteIDMapper
	store    *entitystore.Store
	env      *storage.Environment
	retry    RetryPolicy

	status atomic.Uint32
}

// New creates a Synchronizer for resource. Coalescing concurrent sync
// requests for the same resource is the caller's concern - see
// RequestScheduler - since one Synchronizer only ever represents one
// resource and has nothing of its own to coalesce against. store and env
// let CreateOrModify read an entity's latest payload back to compare
// against a freshly fetched one before deciding whether a Modify is
// actually needed.
func New(resource string, p *pipeline.Pipeline, mapper *RemoteIDMapper, store *entitystore.Store, env *storage.Environment, retry RetryPolicy) *Synchronizer {
	return &Synchronizer{
		resource: resource,
		pipeline: p,
		mapper:   mapper,
		store:    store,
		env:      env,
		retry:    retry,
	}
}

// Status returns the synchronizer's current state.
func (s *Synchronizer) Status() Status {
	return Status(s.status.Load())
}

func (s *Synchronizer) setStatus(st Status) {
	s.status.Store(uint32(st))
}

// MergeCriteria decides, for one candidate local entity's latest payload,
// whether it is the same real-world item as a remote payload that has no
// recorded remote-id mapping yet - letting a first sync from a second
// remote source adopt an entity a different source already created instead
// of creating a duplicate.
type MergeCriteria func(candidatePayload interface{}) bool

// CreateOrModify applies one remote item. If remoteID already resolves to a
// local entity, its latest payload is compared against payload (by the
// type's adaptor-declared comparable properties, adaptor.Adaptor.
// ComparableProperties); a Modify is only enqueued when something actually
// changed, so a no-op resync does not spuriously bump the entity's
// revision. If remoteID has no mapping yet and mergeCriteria is non-nil, the
// local entities of typeName not already bound to any remote id are
// searched for one mergeCriteria accepts; a match is adopted (bound to
// remoteID, and Modified if its payload differs) instead of creating a new
// entity. Otherwise a Create command is issued and the resulting local
// identifier is bound to remoteID. Transient pipeline failures are retried
// with backoff up to s.retry.MaxAttempts before giving up.
func (s *Synchronizer) CreateOrModify(ctx context.Context, remoteID, typeName string, payload interface{}, mergeCriteria ...MergeCriteria) (corekey.Identifier, error) {
	s.setStatus(Busy)
	defer func() {
		if s.Status() != Error {
			s.setStatus(Idle)
		}
	}()

	local, existed, err := s.mapper.Lookup(s.resource, remoteID)
	if err != nil {
		s.setStatus(Error)
		return corekey.Identifier{}, err
	}

	adopted := false
	if !existed && len(mergeCriteria) > 0 && mergeCriteria[0] != nil {
		candidate, found, err := s.findAdoptionCandidate(typeName, mergeCriteria[0])
		if err != nil {
			s.setStatus(Error)
			return corekey.Identifier{}, err
		}
		if found {
			local = candidate
			existed = true
			adopted = true
		}
	}

	if existed {
		differs, err := s.payloadDiffers(local, typeName, payload)
		if err != nil {
			s.setStatus(Error)
			return corekey.Identifier{}, err
		}
		if differs {
			cmd := &pipeline.Command{ID: local, Resource: s.resource, Type: typeName, Operation: entitystore.Modify, Payload: payload}
			if err := s.runWithRetry(ctx, cmd); err != nil {
				s.setStatus(Error)
				return corekey.Identifier{}, err
			}
		}
		if adopted {
			if err := s.mapper.Bind(s.resource, remoteID, local); err != nil {
				s.setStatus(Error)
				return corekey.Identifier{}, err
			}
		}
		return local, nil
	}

	cmd := &pipeline.Command{Resource: s.resource, Type: typeName, Operation: entitystore.Create, Payload: payload}
	if err := s.runWithRetry(ctx, cmd); err != nil {
		s.setStatus(Error)
		return corekey.Identifier{}, err
	}
	if err := s.mapper.Bind(s.resource, remoteID, cmd.ID); err != nil {
		s.setStatus(Error)
		return corekey.Identifier{}, err
	}
	return cmd.ID, nil
}

// payloadDiffers reports whether fresh differs from local's latest stored
// payload under typeName's adaptor.Adaptor.PayloadsDiffer. An entity with no
// stored revision yet (a newly adopted candidate that has never actually
// been written locally, which cannot happen via findAdoptionCandidate but
// would via a caller-supplied local id) is treated as always differing.
func (s *Synchronizer) payloadDiffers(local corekey.Identifier, typeName string, fresh interface{}) (bool, error) {
	ad, err := s.store.Adaptor(typeName)
	if err != nil {
		return false, err
	}

	var old interface{}
	var found bool
	err = s.env.View(func(txn *storage.Transaction) error {
		entity, ok, err := s.store.ReadLatest(txn, local)
		if err != nil {
			return err
		}
		found = ok
		if ok {
			old = entity.Payload
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return ad.PayloadsDiffer(old, fresh)
}

// findAdoptionCandidate searches typeName's local entities that hold no
// remote-id mapping of their own for resource, in pursuit of the first one
// mergeCriteria accepts.
func (s *Synchronizer) findAdoptionCandidate(typeName string, mergeCriteria MergeCriteria) (corekey.Identifier, bool, error) {
	var candidate corekey.Identifier
	var found bool

	err := s.env.View(func(txn *storage.Transaction) error {
		ids, err := s.store.QueryIndexes(txn, typeName, entitystore.TypeProperty, typeName)
		if err != nil {
			return err
		}
		for _, id := range ids {
			entity, ok, err := s.store.ReadLatest(txn, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			remotes, err := s.mapper.ReverseLookupAll(s.resource, id)
			if err != nil {
				return err
			}
			if len(remotes) > 0 {
				continue
			}
			if mergeCriteria(entity.Payload) {
				candidate, found = id, true
				return nil
			}
		}
		return nil
	})
	return candidate, found, err
}

// runWithRetry retries cmd through the pipeline while the failure is
// classified Transient, backing off exponentially with jitter between
// attempts.
func (s *Synchronizer) runWithRetry(ctx context.Context, cmd *pipeline.Command) error {
	delay := s.retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			jitter := float64(delay) * (0.9 + 0.2*rand.Float64())
			select {
			case <-time.After(time.Duration(jitter)):
			case <-ctx.Done():
				return corerr.Wrap(corerr.Cancelled, "sync retry wait", ctx.Err())
			}
			delay *= 2
		}

		err := s.pipeline.Enqueue(cmd)
		if err == nil {
			return nil
		}
		lastErr = err
		if !corerr.Is(err, corerr.Transient) {
			return err
		}
		log.Warningf("sync attempt %d/%d for %s failed transiently: %v", attempt+1, s.retry.MaxAttempts, s.resource, err)
	}

	return corerr.Wrap(corerr.Transient, "sync retries exhausted", lastErr)
}

// Remove issues a Remove command for the entity mapped to remoteID and
// unbinds the mapping.
func (s *Synchronizer) Remove(remoteID string) error {
	local, found, err := s.mapper.Lookup(s.resource, remoteID)
	if err != nil {
		return err
	}
	if !found {
		return corerr.New(corerr.NotFound, "no local entity mapped for remote id "+remoteID)
	}

	var typeName string
	if err := s.env.View(func(txn *storage.Transaction) error {
		entity, ok, err := s.store.ReadLatest(txn, local)
		if ok {
			typeName = entity.Metadata.Type
		}
		return err
	}); err != nil {
		return err
	}

	cmd := &pipeline.Command{ID: local, Resource: s.resource, Type: typeName, Operation: entitystore.Remove}
	if err := s.pipeline.Enqueue(cmd); err != nil {
		return err
	}
	return s.mapper.Unbind(s.resource, remoteID, local)
}

// ScanForRemovals compares seenRemoteIDs (a fresh listing from the remote
// source) against every remote id currently mapped for this resource and
// issues a Remove for every one no longer present.
func (s *Synchronizer) ScanForRemovals(seenRemoteIDs []string) error {
	known, err := s.mapper.KnownRemoteIDs(s.resource)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(seenRemoteIDs))
	for _, id := range seenRemoteIDs {
		seen[id] = struct{}{}
	}

	for _, remoteID := range known {
		if _, ok := seen[remoteID]; ok {
			continue
		}
		if err := s.Remove(remoteID); err != nil {
			return corerr.Wrap(corerr.Internal, "remove stale entity for remote id "+remoteID, err)
		}
	}
	return nil
}
