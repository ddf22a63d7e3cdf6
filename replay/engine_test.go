package replay

import (
	"context"
	"testing"
	"time"

	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Environment) {
	t.Helper()
	env, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = env.Close() })

	engine, err := NewEngine(env)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, env
}

func TestNotifyFansOutToAllConsumers(t *testing.T) {
	engine, _ := newTestEngine(t)

	c1, err := engine.Register("consumer-1", 8)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	c2, err := engine.Register("consumer-2", 8)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	engine.Notify(corekey.Revision(1))

	for _, c := range []*Consumer{c1, c2} {
		select {
		case ev := <-c.Events():
			if ev.Kind != RevisionCommitted || ev.Revision != 1 {
				t.Errorf("got %+v, want RevisionCommitted(1)", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestCursorPersistsAcrossRegistrations(t *testing.T) {
	engine, _ := newTestEngine(t)

	c, err := engine.Register("consumer", 8)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Advance(corekey.Revision(42)); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	engine.Unregister("consumer")

	c2, err := engine.Register("consumer", 8)
	if err != nil {
		t.Fatalf("Register (again): %v", err)
	}
	if got := c2.Cursor(); got != 42 {
		t.Errorf("got cursor %d, want 42", got)
	}
}

func TestCleanupRevisionIsSlowestConsumer(t *testing.T) {
	engine, _ := newTestEngine(t)

	c1, _ := engine.Register("fast", 8)
	c2, _ := engine.Register("slow", 8)

	_ = c1.Advance(corekey.Revision(10))
	_ = c2.Advance(corekey.Revision(3))

	got, ok := engine.CleanupRevision()
	if !ok || got != 3 {
		t.Errorf("got (%d, %v), want (3, true)", got, ok)
	}
}

func TestCleanupRevisionNoConsumers(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, ok := engine.CleanupRevision(); ok {
		t.Errorf("expected no low-water mark with zero consumers registered")
	}
}

func TestFlushWaitsForEveryConsumer(t *testing.T) {
	engine, _ := newTestEngine(t)

	c1, _ := engine.Register("c1", 8)
	c2, _ := engine.Register("c2", 8)

	flushErr := make(chan error, 1)
	go func() {
		flushErr <- engine.Flush(context.Background())
	}()

	ev1 := <-c1.Events()
	ev2 := <-c2.Events()
	if ev1.Kind != FlushMarker || ev2.Kind != FlushMarker {
		t.Fatalf("expected flush markers, got %+v %+v", ev1, ev2)
	}

	c1.FlushComplete(ev1.FlushToken)

	select {
	case err := <-flushErr:
		t.Fatalf("Flush returned early after only one consumer reported: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	c2.FlushComplete(ev2.FlushToken)

	select {
	case err := <-flushErr:
		if err != nil {
			t.Errorf("Flush returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Flush did not return after all consumers reported")
	}
}

func TestNotifyDoesNotDeadlockOnFullConsumerBuffer(t *testing.T) {
	engine, _ := newTestEngine(t)

	c, err := engine.Register("slow", 1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Fill the consumer's single-slot buffer so the next Notify would
	// block on the channel send.
	engine.Notify(corekey.Revision(1))

	done := make(chan struct{})
	go func() {
		// Draining one event and calling Advance exercises the same lock
		// Notify takes; if Notify were still holding it across a blocked
		// send, this would never return.
		<-c.Events()
		_ = c.Advance(corekey.Revision(1))
		close(done)
	}()

	notifyDone := make(chan struct{})
	go func() {
		engine.Notify(corekey.Revision(2))
		close(notifyDone)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("consumer could not drain and Advance - Notify is holding the lock across a blocked send")
	}
	select {
	case <-notifyDone:
	case <-time.After(time.Second):
		t.Fatalf("Notify did not return after the consumer drained its buffer")
	}
}

func TestOnAdvanceFiresWithNewLowWaterMark(t *testing.T) {
	engine, _ := newTestEngine(t)

	c, _ := engine.Register("only", 8)

	var got []corekey.Revision
	engine.OnAdvance(func(rev corekey.Revision) {
		got = append(got, rev)
	})

	_ = c.Advance(corekey.Revision(5))
	_ = c.Advance(corekey.Revision(9))

	if len(got) != 2 {
		t.Fatalf("OnAdvance called %d times, want 2: %v", len(got), got)
	}
	if got[0] != 5 || got[1] != 9 {
		t.Errorf("got %v, want [5 9]", got)
	}
}

func TestFlushRespectsContextCancellation(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, _ = engine.Register("c1", 8)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := engine.Flush(ctx)
	if err == nil {
		t.Errorf("expected Flush to time out when the consumer never reports completion")
	}
}
