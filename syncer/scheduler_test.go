package syncer

import "testing"

func TestScheduleCoalescesSameResource(t *testing.T) {
	s := NewRequestScheduler()

	r1, reused1 := s.Schedule("res")
	if reused1 {
		t.Errorf("expected first Schedule call not to reuse an existing request")
	}
	r2, reused2 := s.Schedule("res")
	if !reused2 || r1 != r2 {
		t.Errorf("expected second Schedule call to reuse the in-flight request")
	}
	if s.InFlight() != 1 {
		t.Errorf("got InFlight %d, want 1", s.InFlight())
	}
}

func TestCompleteAllowsNewSchedule(t *testing.T) {
	s := NewRequestScheduler()
	r1, _ := s.Schedule("res")
	s.Complete(r1, nil)

	if s.InFlight() != 0 {
		t.Errorf("got InFlight %d, want 0", s.InFlight())
	}

	r2, reused := s.Schedule("res")
	if reused {
		t.Errorf("expected a fresh request after Complete")
	}
	if r2.ID == r1.ID {
		t.Errorf("expected a new request id")
	}
}

func mailDecomposer(query interface{}) []SyncRequest {
	folders := query.([]string)
	reqs := []SyncRequest{{Kind: Synchronization, Query: "list-folders"}}
	for _, f := range folders {
		reqs = append(reqs, SyncRequest{Kind: ChangeReplay, Query: f})
	}
	return reqs
}

func TestGetSyncRequestsDecomposesQueryAndAssignsIDs(t *testing.T) {
	s := NewRequestScheduler()

	reqs := s.GetSyncRequests(mailDecomposer, []string{"inbox", "sent"})
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3", len(reqs))
	}
	if reqs[0].Kind != Synchronization || reqs[0].Query != "list-folders" {
		t.Errorf("got %+v, want the list-folders synchronization request first", reqs[0])
	}
	if reqs[1].Query != "inbox" || reqs[2].Query != "sent" {
		t.Errorf("got folder requests %+v, want inbox then sent", reqs[1:])
	}
	if reqs[0].ID == 0 || reqs[0].ID == reqs[1].ID || reqs[1].ID == reqs[2].ID {
		t.Errorf("expected every request to get a distinct, non-zero id: %+v", reqs)
	}
}

func TestMergeIntoQueueDeduplicatesSameKindAndQuery(t *testing.T) {
	var queue []SyncRequest
	queue = MergeIntoQueue(queue, SyncRequest{Kind: ChangeReplay, Query: "inbox"})
	queue = MergeIntoQueue(queue, SyncRequest{Kind: ChangeReplay, Query: "inbox", Flags: FlagForce})

	if len(queue) != 1 {
		t.Fatalf("got %d queued requests, want 1 (deduplicated)", len(queue))
	}
	if queue[0].Flags != FlagForce {
		t.Errorf("expected the merged entry to carry FlagForce, got %v", queue[0].Flags)
	}
}

func TestMergeIntoQueueFlushSubsumesPendingRequestsForSameQuery(t *testing.T) {
	var queue []SyncRequest
	queue = MergeIntoQueue(queue, SyncRequest{Kind: ChangeReplay, Query: "inbox"})
	queue = MergeIntoQueue(queue, SyncRequest{Kind: Synchronization, Query: "sent"})
	queue = MergeIntoQueue(queue, SyncRequest{Kind: Flush, Query: "inbox"})

	if len(queue) != 2 {
		t.Fatalf("got %d queued requests, want 2: %+v", len(queue), queue)
	}
	for _, r := range queue {
		if r.Query == "inbox" && r.Kind != Flush {
			t.Errorf("expected the flush to subsume the pending inbox request, found %+v", r)
		}
	}
}
