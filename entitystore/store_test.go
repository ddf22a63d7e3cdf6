package entitystore

import (
	"testing"

	"github.com/sinkdb/core/adaptor"
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/storage"
)

type mailPayload struct {
	Subject string
	Body    string
}

func mailAdaptor() *adaptor.Adaptor {
	return &adaptor.Adaptor{
		TypeName:          "mail",
		IndexedProperties: []string{"subject"},
		Encode: func(p interface{}) ([]byte, error) {
			m := p.(mailPayload)
			return []byte(m.Subject + "\x00" + m.Body), nil
		},
		Decode: func(data []byte) (interface{}, error) {
			for i, b := range data {
				if b == 0 {
					return mailPayload{Subject: string(data[:i]), Body: string(data[i+1:])}, nil
				}
			}
			return mailPayload{}, nil
		},
		PropertyValue: func(p interface{}, property string) (string, error) {
			return p.(mailPayload).Subject, nil
		},
	}
}

func newTestStore(t *testing.T) (*Store, *storage.Environment) {
	t.Helper()
	env, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = env.Close() })

	registry := adaptor.NewRegistry()
	if err := registry.Register(mailAdaptor()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	store, err := New(env, registry)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, env
}

func TestWriteAndReadLatest(t *testing.T) {
	store, env := newTestStore(t)
	id := corekey.NewIdentifier()
	key := corekey.Key{ID: id, Revision: 1}

	err := env.Update(func(txn *storage.Transaction) error {
		return store.WriteEntity(txn, key, Metadata{Resource: "res1", Type: "mail", Operation: Create}, mailPayload{Subject: "hi", Body: "there"})
	})
	if err != nil {
		t.Fatalf("WriteEntity: %v", err)
	}

	var got Entity
	var found bool
	err = env.View(func(txn *storage.Transaction) error {
		var err error
		got, found, err = store.ReadLatest(txn, id)
		return err
	})
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if !found {
		t.Fatalf("expected to find entity")
	}
	if got.Payload.(mailPayload).Subject != "hi" {
		t.Errorf("got subject %q, want %q", got.Payload.(mailPayload).Subject, "hi")
	}
}

func TestReadLatestPicksHighestRevision(t *testing.T) {
	store, env := newTestStore(t)
	id := corekey.NewIdentifier()

	err := env.Update(func(txn *storage.Transaction) error {
		if err := store.WriteEntity(txn, corekey.Key{ID: id, Revision: 1}, Metadata{Type: "mail", Operation: Create}, mailPayload{Subject: "v1"}); err != nil {
			return err
		}
		return store.WriteEntity(txn, corekey.Key{ID: id, Revision: 5}, Metadata{Type: "mail", Operation: Modify}, mailPayload{Subject: "v5"})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	var got Entity
	err = env.View(func(txn *storage.Transaction) error {
		var err error
		got, _, err = store.ReadLatest(txn, id)
		return err
	})
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if got.Key.Revision != 5 {
		t.Errorf("got revision %d, want 5", got.Key.Revision)
	}
}

func TestIndexUpdatesOnModify(t *testing.T) {
	store, env := newTestStore(t)
	id := corekey.NewIdentifier()

	err := env.Update(func(txn *storage.Transaction) error {
		if err := store.WriteEntity(txn, corekey.Key{ID: id, Revision: 1}, Metadata{Type: "mail", Operation: Create}, mailPayload{Subject: "old"}); err != nil {
			return err
		}
		return store.WriteEntity(txn, corekey.Key{ID: id, Revision: 2}, Metadata{Type: "mail", Operation: Modify}, mailPayload{Subject: "new"})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = env.View(func(txn *storage.Transaction) error {
		oldMatches, err := store.QueryIndexes(txn, "mail", "subject", "old")
		if err != nil {
			return err
		}
		if len(oldMatches) != 0 {
			t.Errorf("expected stale index entry for 'old' to be retracted, got %v", oldMatches)
		}
		newMatches, err := store.QueryIndexes(txn, "mail", "subject", "new")
		if err != nil {
			return err
		}
		if len(newMatches) != 1 || newMatches[0] != id {
			t.Errorf("expected index entry for 'new' to point at %v, got %v", id, newMatches)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestRemoveDropsIndexEntries(t *testing.T) {
	store, env := newTestStore(t)
	id := corekey.NewIdentifier()

	err := env.Update(func(txn *storage.Transaction) error {
		if err := store.WriteEntity(txn, corekey.Key{ID: id, Revision: 1}, Metadata{Type: "mail", Operation: Create}, mailPayload{Subject: "s"}); err != nil {
			return err
		}
		return store.WriteEntity(txn, corekey.Key{ID: id, Revision: 2}, Metadata{Type: "mail", Operation: Remove}, mailPayload{})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = env.View(func(txn *storage.Transaction) error {
		matches, err := store.QueryIndexes(txn, "mail", "subject", "s")
		if err != nil {
			return err
		}
		if len(matches) != 0 {
			t.Errorf("expected no index entries after remove, got %v", matches)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestTypePropertyIndexCoversEntitiesWithNoDeclaredIndex(t *testing.T) {
	store, env := newTestStore(t)
	id := corekey.NewIdentifier()

	err := env.Update(func(txn *storage.Transaction) error {
		return store.WriteEntity(txn, corekey.Key{ID: id, Revision: 1}, Metadata{Type: "mail", Operation: Create}, mailPayload{Subject: "s"})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = env.View(func(txn *storage.Transaction) error {
		matches, err := store.QueryIndexes(txn, "mail", TypeProperty, "mail")
		if err != nil {
			return err
		}
		if len(matches) != 1 || matches[0] != id {
			t.Errorf("got %v, want [%v]", matches, id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	err = env.Update(func(txn *storage.Transaction) error {
		return store.WriteEntity(txn, corekey.Key{ID: id, Revision: 2}, Metadata{Type: "mail", Operation: Remove}, mailPayload{})
	})
	if err != nil {
		t.Fatalf("Update (remove): %v", err)
	}

	err = env.View(func(txn *storage.Transaction) error {
		matches, err := store.QueryIndexes(txn, "mail", TypeProperty, "mail")
		if err != nil {
			return err
		}
		if len(matches) != 0 {
			t.Errorf("expected the __type index entry to be retracted after remove, got %v", matches)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestRevisionLookups(t *testing.T) {
	store, env := newTestStore(t)
	id := corekey.NewIdentifier()

	err := env.Update(func(txn *storage.Transaction) error {
		return store.WriteEntity(txn, corekey.Key{ID: id, Revision: 7}, Metadata{Type: "mail", Operation: Create}, mailPayload{Subject: "s"})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = env.View(func(txn *storage.Transaction) error {
		max, err := store.MaxRevision(txn)
		if err != nil {
			return err
		}
		if max != 7 {
			t.Errorf("got MaxRevision %d, want 7", max)
		}
		gotID, err := store.GetUidFromRevision(txn, 7)
		if err != nil {
			return err
		}
		if gotID != id {
			t.Errorf("got id %v, want %v", gotID, id)
		}
		gotType, err := store.GetTypeFromRevision(txn, 7)
		if err != nil {
			return err
		}
		if gotType != "mail" {
			t.Errorf("got type %q, want mail", gotType)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestGetUidFromRevisionNotFound(t *testing.T) {
	store, env := newTestStore(t)
	err := env.View(func(txn *storage.Transaction) error {
		_, err := store.GetUidFromRevision(txn, 999)
		if err == nil {
			t.Errorf("expected error for unknown revision")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestCleanupRevisionRemovesSupersededRevisionsOnly(t *testing.T) {
	store, env := newTestStore(t)
	id := corekey.NewIdentifier()

	err := env.Update(func(txn *storage.Transaction) error {
		for _, rev := range []corekey.Revision{1, 2, 3} {
			if err := store.WriteEntity(txn, corekey.Key{ID: id, Revision: rev}, Metadata{Type: "mail", Operation: Modify}, mailPayload{Subject: "v"}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update(write revisions): %v", err)
	}

	var removed int
	err = env.Update(func(txn *storage.Transaction) error {
		var err error
		removed, err = store.CleanupRevision(txn, corekey.Revision(3))
		return err
	})
	if err != nil {
		t.Fatalf("Update(cleanup): %v", err)
	}
	if removed != 2 {
		t.Fatalf("got %d revisions removed, want 2", removed)
	}

	err = env.View(func(txn *storage.Transaction) error {
		if _, found, err := store.ReadEntity(txn, corekey.Key{ID: id, Revision: 1}); err != nil || found {
			t.Errorf("expected revision 1 to be gone, found=%v err=%v", found, err)
		}
		if _, found, err := store.ReadEntity(txn, corekey.Key{ID: id, Revision: 2}); err != nil || found {
			t.Errorf("expected revision 2 to be gone, found=%v err=%v", found, err)
		}
		got, found, err := store.ReadEntity(txn, corekey.Key{ID: id, Revision: 3})
		if err != nil || !found {
			t.Fatalf("expected revision 3 (the latest) to survive, found=%v err=%v", found, err)
		}
		if got.Key.Revision != 3 {
			t.Errorf("got revision %d, want 3", got.Key.Revision)
		}
		if _, err := store.GetUidFromRevision(txn, 1); err == nil {
			t.Errorf("expected revisions index entry for revision 1 to be gone")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestCleanupRevisionNeverRemovesSoleRevision(t *testing.T) {
	store, env := newTestStore(t)
	id := corekey.NewIdentifier()

	err := env.Update(func(txn *storage.Transaction) error {
		return store.WriteEntity(txn, corekey.Key{ID: id, Revision: 1}, Metadata{Type: "mail", Operation: Create}, mailPayload{Subject: "v"})
	})
	if err != nil {
		t.Fatalf("Update(write): %v", err)
	}

	var removed int
	err = env.Update(func(txn *storage.Transaction) error {
		var err error
		removed, err = store.CleanupRevision(txn, corekey.Revision(100))
		return err
	})
	if err != nil {
		t.Fatalf("Update(cleanup): %v", err)
	}
	if removed != 0 {
		t.Errorf("got %d revisions removed, want 0 (the only revision must survive)", removed)
	}

	err = env.View(func(txn *storage.Transaction) error {
		_, found, err := store.ReadEntity(txn, corekey.Key{ID: id, Revision: 1})
		if err != nil || !found {
			t.Errorf("expected the sole revision to survive, found=%v err=%v", found, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
