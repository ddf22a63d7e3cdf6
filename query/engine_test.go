package query

import (
	"context"
	"testing"
	"time"

	"github.com/sinkdb/core/adaptor"
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/entitystore"
	"github.com/sinkdb/core/pipeline"
	"github.com/sinkdb/core/replay"
	"github.com/sinkdb/core/storage"
)

type contactPayload struct {
	Name string
	Team string
}

func contactAdaptor() *adaptor.Adaptor {
	return &adaptor.Adaptor{
		TypeName:          "contact",
		IndexedProperties: []string{"team"},
		Encode: func(p interface{}) ([]byte, error) {
			c := p.(contactPayload)
			return []byte(c.Name + "\x00" + c.Team), nil
		},
		Decode: func(data []byte) (interface{}, error) {
			for i, b := range data {
				if b == 0 {
					return contactPayload{Name: string(data[:i]), Team: string(data[i+1:])}, nil
				}
			}
			return contactPayload{}, nil
		},
		PropertyValue: func(p interface{}, property string) (string, error) {
			c := p.(contactPayload)
			if property == "team" {
				return c.Team, nil
			}
			return c.Name, nil
		},
	}
}

type fakeResultProvider struct {
	BaseResultProvider
	added    []entitystore.Entity
	modified []entitystore.Entity
	removed  []entitystore.Entity
}

func (f *fakeResultProvider) Add(e entitystore.Entity)    { f.added = append(f.added, e) }
func (f *fakeResultProvider) Modify(e entitystore.Entity) { f.modified = append(f.modified, e) }
func (f *fakeResultProvider) Remove(e entitystore.Entity) { f.removed = append(f.removed, e) }

func newTestEngine(t *testing.T) (*Engine, *entitystore.Store, *pipeline.Pipeline, *replay.Engine, *storage.Environment) {
	t.Helper()
	env, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = env.Close() })

	registry := adaptor.NewRegistry()
	if err := registry.Register(contactAdaptor()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	store, err := entitystore.New(env, registry)
	if err != nil {
		t.Fatalf("entitystore.New: %v", err)
	}

	replayEngine, err := replay.NewEngine(env)
	if err != nil {
		t.Fatalf("replay.NewEngine: %v", err)
	}

	p, err := pipeline.New(env, store, registry, pipeline.NewChains(), nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	p.OnCommit(replayEngine.Notify)

	return NewEngine(env, store), store, p, replayEngine, env
}

func TestRunFullScanUsesTypeIndexFallback(t *testing.T) {
	e, _, p, _, _ := newTestEngine(t)

	for _, name := range []string{"alice", "bob"} {
		cmd := &pipeline.Command{Resource: "res", Type: "contact", Operation: entitystore.Create, Payload: contactPayload{Name: name, Team: "eng"}}
		if err := p.Enqueue(cmd); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	rp := &fakeResultProvider{}
	if err := e.Run(&Query{Types: []string{"contact"}}, rp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rp.added) != 2 {
		t.Fatalf("got %d added, want 2", len(rp.added))
	}
}

func TestRunUsesDeclaredIndexAndResidualFilter(t *testing.T) {
	e, _, p, _, _ := newTestEngine(t)

	_ = p.Enqueue(&pipeline.Command{Resource: "res", Type: "contact", Operation: entitystore.Create, Payload: contactPayload{Name: "alice", Team: "eng"}})
	_ = p.Enqueue(&pipeline.Command{Resource: "res", Type: "contact", Operation: entitystore.Create, Payload: contactPayload{Name: "bob", Team: "sales"}})

	rp := &fakeResultProvider{}
	q := &Query{Types: []string{"contact"}, PropertyFilter: map[string]Comparator{"team": Equal("eng")}}
	if err := e.Run(q, rp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rp.added) != 1 {
		t.Fatalf("got %d added, want 1", len(rp.added))
	}
	if rp.added[0].Payload.(contactPayload).Name != "alice" {
		t.Errorf("got %v, want alice", rp.added[0].Payload)
	}
}

func TestSubscribeDeliversLiveCreateModifyRemove(t *testing.T) {
	e, _, p, replayEngine, _ := newTestEngine(t)

	consumer, err := replayEngine.Register("query-sub", 16)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rp := &fakeResultProvider{}
	q := &Query{Types: []string{"contact"}, PropertyFilter: map[string]Comparator{"team": Equal("eng")}, LiveQuery: true}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- e.Subscribe(ctx, q, rp, consumer, nil) }()

	// Give Subscribe time to finish its initial scan before the pipeline
	// commits anything new.
	time.Sleep(20 * time.Millisecond)

	cmd := &pipeline.Command{Resource: "res", Type: "contact", Operation: entitystore.Create, Payload: contactPayload{Name: "carol", Team: "eng"}}
	if err := p.Enqueue(cmd); err != nil {
		t.Fatalf("Enqueue create: %v", err)
	}
	waitFor(t, func() bool { return len(rp.added) == 1 })

	modify := &pipeline.Command{ID: cmd.ID, Resource: "res", Type: "contact", Operation: entitystore.Modify, Payload: contactPayload{Name: "carol", Team: "eng"}}
	if err := p.Enqueue(modify); err != nil {
		t.Fatalf("Enqueue modify: %v", err)
	}
	waitFor(t, func() bool { return len(rp.modified) == 1 })

	retarget := &pipeline.Command{ID: cmd.ID, Resource: "res", Type: "contact", Operation: entitystore.Modify, Payload: contactPayload{Name: "carol", Team: "sales"}}
	if err := p.Enqueue(retarget); err != nil {
		t.Fatalf("Enqueue retarget: %v", err)
	}
	waitFor(t, func() bool { return len(rp.removed) == 1 })

	cancel()
	<-done
}

func TestSubscribeFlushCompletesAfterPriorCommits(t *testing.T) {
	e, _, p, replayEngine, _ := newTestEngine(t)

	consumer, err := replayEngine.Register("query-flush", 16)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rp := &fakeResultProvider{}
	q := &Query{Types: []string{"contact"}, LiveQuery: true}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- e.Subscribe(ctx, q, rp, consumer, nil) }()
	time.Sleep(20 * time.Millisecond)

	cmd := &pipeline.Command{Resource: "res", Type: "contact", Operation: entitystore.Create, Payload: contactPayload{Name: "dana", Team: "eng"}}
	if err := p.Enqueue(cmd); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), time.Second)
	defer flushCancel()
	if err := replayEngine.Flush(flushCtx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(rp.added) != 1 {
		t.Errorf("got %d added by the time Flush returned, want 1", len(rp.added))
	}

	cancel()
	<-done
}

func TestExpandChildrenFiltersByParentProperty(t *testing.T) {
	e, _, p, _, _ := newTestEngine(t)

	parent := corekey.NewIdentifier()
	_ = p.Enqueue(&pipeline.Command{Resource: "res", Type: "contact", Operation: entitystore.Create, Payload: contactPayload{Name: "manager", Team: "eng"}})
	_ = p.Enqueue(&pipeline.Command{Resource: "res", Type: "contact", Operation: entitystore.Create, Payload: contactPayload{Name: "report", Team: parent.String()}})

	rp := &fakeResultProvider{}
	q := &Query{Types: []string{"contact"}, ParentProperty: "team"}
	if err := e.ExpandChildren(parent, q, rp); err != nil {
		t.Fatalf("ExpandChildren: %v", err)
	}
	if len(rp.added) != 1 || rp.added[0].Payload.(contactPayload).Name != "report" {
		t.Fatalf("got %v, want exactly [report]", rp.added)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within timeout")
}
