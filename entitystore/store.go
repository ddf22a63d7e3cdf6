package entitystore

import (
	"bytes"
	"encoding/gob"

	"github.com/sinkdb/core/adaptor"
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corelog"
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/storage"
)

var log = corelog.Get("entitystore")

const (
	dbEntities  = "entities"
	dbRevisions = "revisions"
	dbIndex     = "index"
)

// Store is the revisioned entity store for one storage.Environment.
type Store struct {
	env      *storage.Environment
	entities *storage.Database
	revs     *storage.Database
	index    *storage.Database
	registry *adaptor.Registry
}

// New opens the entity store's sub-databases within env and binds it to
// registry for payload encode/decode and index maintenance.
func New(env *storage.Environment, registry *adaptor.Registry) (*Store, error) {
	entities, err := env.Database(dbEntities)
	if err != nil {
		return nil, err
	}
	revs, err := env.Database(dbRevisions)
	if err != nil {
		return nil, err
	}
	index, err := env.Database(dbIndex)
	if err != nil {
		return nil, err
	}
	return &Store{env: env, entities: entities, revs: revs, index: index, registry: registry}, nil
}

// envelope is the on-disk record for one revision: bookkeeping fields plus
// the adaptor-encoded payload. gob is used for the envelope itself since it
// round-trips Go structs without a schema file, the same way rpc/serializer
// offers a GOB implementation alongside JSON and a hand-rolled binary
// format for its own wire messages.
type envelope struct {
	Resource  string
	Type      string
	Operation Operation
	Replayed  bool
	Payload   []byte
}

func encodeEnvelope(e envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, corerr.Wrap(corerr.Internal, "encode entity envelope", err)
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var e envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return envelope{}, corerr.Wrap(corerr.Corruption, "decode entity envelope", err)
	}
	return e, nil
}

// WriteEntity persists one revision of an entity, replacing any secondary
// index entries the previous revision (if any) contributed with ones built
// from the new payload. It must run inside a writable storage.Transaction
// so the entity record, the revision index and the secondary index entries
// commit together.
func (s *Store) WriteEntity(txn *storage.Transaction, key corekey.Key, meta Metadata, payload interface{}) error {
	ad, err := s.registry.Get(meta.Type)
	if err != nil {
		return err
	}

	if err := s.retractStaleIndexEntries(txn, ad, key.ID); err != nil {
		return err
	}

	encodedPayload, err := ad.Encode(payload)
	if err != nil {
		return corerr.Wrap(corerr.Protocol, "encode payload for type "+meta.Type, err)
	}

	env := envelope{
		Resource:  meta.Resource,
		Type:      meta.Type,
		Operation: meta.Operation,
		Replayed:  meta.Replayed,
		Payload:   encodedPayload,
	}
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	if err := txn.Set(s.entities, key.Encode(), raw); err != nil {
		return err
	}
	if err := txn.Set(s.revs, []byte(key.Revision.Encode()), append(key.ID.Bytes(), []byte(meta.Type)...)); err != nil {
		return err
	}

	if meta.Operation != Remove {
		if err := s.addIndexEntries(txn, ad, key.ID, payload); err != nil {
			return err
		}
	}

	log.Debugf("wrote %s revision %s for entity %s", meta.Operation, key.Revision.Encode(), key.ID)
	return nil
}

// ReadLatest returns the most recent revision of id, if any exist.
func (s *Store) ReadLatest(txn *storage.Transaction, id corekey.Identifier) (Entity, bool, error) {
	entry, found, err := txn.FindLatest(s.entities, id.Prefix())
	if err != nil || !found {
		return Entity{}, found, err
	}
	key, err := corekey.ParseKey(entry.Key)
	if err != nil {
		return Entity{}, false, corerr.Wrap(corerr.Corruption, "parse key from entities database", err)
	}
	entity, err := s.decode(key, entry.Value)
	return entity, true, err
}

// ReadEntity returns the exact revision named by key.
func (s *Store) ReadEntity(txn *storage.Transaction, key corekey.Key) (Entity, bool, error) {
	value, found, err := txn.Get(s.entities, key.Encode())
	if err != nil || !found {
		return Entity{}, found, err
	}
	entity, err := s.decode(key, value)
	return entity, true, err
}

func (s *Store) decode(key corekey.Key, raw []byte) (Entity, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return Entity{}, err
	}
	ad, err := s.registry.Get(env.Type)
	if err != nil {
		return Entity{}, err
	}
	payload, err := ad.Decode(env.Payload)
	if err != nil {
		return Entity{}, corerr.Wrap(corerr.Corruption, "decode payload for type "+env.Type, err)
	}
	return Entity{
		Key: key,
		Metadata: Metadata{
			Resource:  env.Resource,
			Type:      env.Type,
			Operation: env.Operation,
			Replayed:  env.Replayed,
		},
		Payload: payload,
	}, nil
}

// MaxRevision returns the greatest revision ever committed, or ZeroRevision
// if nothing has been written yet.
func (s *Store) MaxRevision(txn *storage.Transaction) (corekey.Revision, error) {
	entry, found, err := txn.FindLatest(s.revs, nil)
	if err != nil || !found {
		return corekey.ZeroRevision, err
	}
	return corekey.ParseRevision(string(entry.Key))
}

// GetUidFromRevision resolves a bare revision number to the entity it
// belongs to.
func (s *Store) GetUidFromRevision(txn *storage.Transaction, rev corekey.Revision) (corekey.Identifier, error) {
	value, found, err := txn.Get(s.revs, []byte(rev.Encode()))
	if err != nil {
		return corekey.Identifier{}, err
	}
	if !found {
		return corekey.Identifier{}, corerr.New(corerr.NotFound, "no entity for revision "+rev.Encode())
	}
	return corekey.IdentifierFromBytes(value[:16])
}

// GetTypeFromRevision resolves a bare revision number to the entity type
// name it was written against.
func (s *Store) GetTypeFromRevision(txn *storage.Transaction, rev corekey.Revision) (string, error) {
	value, found, err := txn.Get(s.revs, []byte(rev.Encode()))
	if err != nil {
		return "", err
	}
	if !found {
		return "", corerr.New(corerr.NotFound, "no entity for revision "+rev.Encode())
	}
	return string(value[16:]), nil
}

// CleanupRevision removes every entity revision strictly below upTo for
// which a later revision of the same entity still exists, along with each
// removed revision's entry in the revisions index. The latest revision of
// an entity is never removed, even if it falls below upTo, so a crash or a
// slow-to-register consumer can never find an entity with no revisions at
// all. Callers are responsible for only passing an upTo no consumer's
// cursor has crossed - replay.Engine.CleanupRevision computes that bound.
func (s *Store) CleanupRevision(txn *storage.Transaction, upTo corekey.Revision) (int, error) {
	var group []corekey.Key
	var currentID corekey.Identifier
	haveCurrent := false
	var toDelete []corekey.Key
	var parseErr error

	flush := func() {
		for _, k := range group[:len(group)-1] {
			if k.Revision < upTo {
				toDelete = append(toDelete, k)
			}
		}
		group = group[:0]
	}

	err := txn.Scan(s.entities, nil, func(e storage.Entry) bool {
		key, perr := corekey.ParseKey(e.Key)
		if perr != nil {
			parseErr = corerr.Wrap(corerr.Corruption, "parse key during cleanup scan", perr)
			return false
		}
		if haveCurrent && key.ID != currentID {
			flush()
		}
		currentID = key.ID
		haveCurrent = true
		group = append(group, key)
		return true
	})
	if err != nil {
		return 0, err
	}
	if parseErr != nil {
		return 0, parseErr
	}
	if len(group) > 0 {
		flush()
	}

	for _, key := range toDelete {
		if err := txn.Delete(s.entities, key.Encode()); err != nil {
			return 0, err
		}
		if err := txn.Delete(s.revs, []byte(key.Revision.Encode())); err != nil {
			return 0, err
		}
	}

	if len(toDelete) > 0 {
		log.Debugf("cleanup: removed %d stale revisions below %s", len(toDelete), upTo.Encode())
	}
	return len(toDelete), nil
}
