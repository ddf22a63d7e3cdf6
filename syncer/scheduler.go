package syncer

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sinkdb/core/job"
)

// Request is one scheduled sync request for a resource.
type Request struct {
	ID       uint64
	Resource string
	job      *job.Job[struct{}]
}

// Done returns the job callers can Wait on for this request's completion.
func (r *Request) Done() *job.Job[struct{}] {
	return r.job
}

// RequestScheduler tracks in-flight sync requests in an xsync.MapOf keyed
// by an opaque request id. Only one request per resource runs at a time; a second request for a
// resource already in flight is coalesced onto the first one's job instead
// of starting a redundant sync.
type RequestScheduler struct {
	nextID   atomic.Uint64
	requests *xsync.MapOf[uint64, *Request]

	mu         sync.Mutex
	byResource map[string]*Request
}

// NewRequestScheduler creates an empty scheduler.
func NewRequestScheduler() *RequestScheduler {
	return &RequestScheduler{
		requests:   xsync.NewMapOf[uint64, *Request](),
		byResource: make(map[string]*Request),
	}
}

// Schedule returns the in-flight Request for resource if one already
// exists, or creates and registers a new one. The boolean result reports
// whether an existing request was reused.
func (s *RequestScheduler) Schedule(resource string) (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byResource[resource]; ok {
		return existing, true
	}

	req := &Request{
		ID:       s.nextID.Add(1),
		Resource: resource,
		job:      job.New[struct{}](),
	}
	s.requests.Store(req.ID, req)
	s.byResource[resource] = req
	return req, false
}

// Complete resolves req's job and removes it from the scheduler so a later
// Schedule call for the same resource starts a fresh request.
func (s *RequestScheduler) Complete(req *Request, err error) {
	if err != nil {
		req.job.Reject(err)
	} else {
		req.job.Resolve(struct{}{})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests.Delete(req.ID)
	if s.byResource[req.Resource] == req {
		delete(s.byResource, req.Resource)
	}
}

// InFlight reports how many distinct resources currently have a scheduled
// request.
func (s *RequestScheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byResource)
}

// SyncRequestKind is what a SyncRequest asks a resource's domain-specific
// sync driver to do.
type SyncRequestKind uint8

const (
	Synchronization SyncRequestKind = iota
	ChangeReplay
	Flush
)

func (k SyncRequestKind) String() string {
	switch k {
	case Synchronization:
		return "synchronization"
	case ChangeReplay:
		return "change-replay"
	case Flush:
		return "flush"
	default:
		return "unknown"
	}
}

// SyncRequestFlags modify how a SyncRequest should be carried out.
type SyncRequestFlags uint8

const (
	FlagNone SyncRequestFlags = 0
	// FlagForce bypasses any "nothing changed" shortcut a sync driver would
	// otherwise take, e.g. CreateOrModify's payload-differs check.
	FlagForce SyncRequestFlags = 1
)

// SyncRequest is one concrete unit of sync work: decomposing an
// application-visible query (RequestDecomposer) is how a resource turns,
// say, "give me everything" for a mail resource into one Synchronization
// request that lists folders followed by one ChangeReplay request per
// folder once the folder list is known. Query is whatever the decomposer
// and its consuming sync driver agree on (a folder name, a remote
// collection id, ...); MergeIntoQueue compares it with ==, so it must be a
// comparable value.
type SyncRequest struct {
	ID    uint64
	Kind  SyncRequestKind
	Query interface{}
	Flags SyncRequestFlags
}

// RequestDecomposer expands one application-visible query into the
// concrete SyncRequests needed to satisfy it. It is necessarily
// domain-specific - the generic core has no notion of "folder" or
// "collection" - and is supplied by whatever resource-specific code drives
// a Synchronizer, the same way CreateOrModify's caller supplies the remote
// listing ScanForRemovals compares against.
type RequestDecomposer func(query interface{}) []SyncRequest

// GetSyncRequests runs decompose over query and assigns each resulting
// SyncRequest a fresh, scheduler-unique id.
func (s *RequestScheduler) GetSyncRequests(decompose RequestDecomposer, query interface{}) []SyncRequest {
	reqs := decompose(query)
	out := make([]SyncRequest, len(reqs))
	for i, r := range reqs {
		r.ID = s.nextID.Add(1)
		out[i] = r
	}
	return out
}

// MergeIntoQueue merges req into queue, deduplicating or subsuming existing
// entries so a sync driver never runs the same work twice:
//   - a Flush request drops every queued Synchronization/ChangeReplay
//     request against the same Query, since flushing already waits for
//     them to finish;
//   - otherwise, a request already queued for the same (Kind, Query) is
//     kept in place with req's Flags OR'd into it, rather than duplicated.
//
// The returned slice replaces queue; MergeIntoQueue does not mutate the
// scheduler's own state, so callers own and pass in whatever queue they are
// accumulating (typically one per resource).
func MergeIntoQueue(queue []SyncRequest, req SyncRequest) []SyncRequest {
	if req.Kind == Flush {
		filtered := make([]SyncRequest, 0, len(queue))
		for _, q := range queue {
			if q.Kind != Flush && q.Query == req.Query {
				continue
			}
			filtered = append(filtered, q)
		}
		queue = filtered
	}

	for i, q := range queue {
		if q.Kind == req.Kind && q.Query == req.Query {
			queue[i].Flags |= req.Flags
			return queue
		}
	}
	return append(queue, req)
}
