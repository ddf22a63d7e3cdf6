package syncer

import (
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/storage"
)

const (
	dbRemoteToLocal = "remote_to_local"
	dbLocalToRemote = "local_to_remote"
)

// RemoteIDMapper is the persisted bidirectional mapping between a remote
// source's item ids and this resource's local corekey.Identifier values,
// scoped per resource name so two resources may reuse the same remote id
// space without colliding.
type RemoteIDMapper struct {
	env           *storage.Environment
	remoteToLocal *storage.Database
	localToRemote *storage.Database
}

// NewRemoteIDMapper opens the mapper's sub-databases within env.
func NewRemoteIDMapper(env *storage.Environment) (*RemoteIDMapper, error) {
	r2l, err := env.Database(dbRemoteToLocal)
	if err != nil {
		return nil, err
	}
	l2r, err := env.Database(dbLocalToRemote)
	if err != nil {
		return nil, err
	}
	return &RemoteIDMapper{env: env, remoteToLocal: r2l, localToRemote: l2r}, nil
}

func mapKey(resource, id string) []byte {
	return []byte(resource + "\x00" + id)
}

// localToRemote entries are keyed by resource ‖ local ‖ remoteID rather than
// just resource ‖ local, so a local id can hold zero or more remote ids at
// once - write-back races can leave the same local entity mirrored under
// more than one remote item before a later sync reconciles them.
func localRemoteKey(resource string, local corekey.Identifier, remoteID string) []byte {
	return []byte(resource + "\x00" + local.String() + "\x00" + remoteID)
}

func localRemotePrefix(resource string, local corekey.Identifier) []byte {
	return []byte(resource + "\x00" + local.String() + "\x00")
}

// Lookup returns the local identifier mapped to (resource, remoteID), if
// any mapping has been recorded.
func (m *RemoteIDMapper) Lookup(resource, remoteID string) (corekey.Identifier, bool, error) {
	var id corekey.Identifier
	var found bool
	err := m.env.View(func(txn *storage.Transaction) error {
		value, ok, err := txn.Get(m.remoteToLocal, mapKey(resource, remoteID))
		if err != nil || !ok {
			found = ok
			return err
		}
		id, err = corekey.IdentifierFromBytes(value)
		found = err == nil
		return err
	})
	return id, found, err
}

// ReverseLookupAll returns every remote id currently bound to (resource,
// local) - zero, one, or more, since write-back races can leave one local
// entity mirrored under several remote items at once.
func (m *RemoteIDMapper) ReverseLookupAll(resource string, local corekey.Identifier) ([]string, error) {
	var remoteIDs []string
	prefix := localRemotePrefix(resource, local)
	err := m.env.View(func(txn *storage.Transaction) error {
		return txn.Scan(m.localToRemote, prefix, func(e storage.Entry) bool {
			remoteIDs = append(remoteIDs, string(e.Value))
			return true
		})
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.Internal, "scan bound remote ids", err)
	}
	return remoteIDs, nil
}

// Bind records that (resource, remoteID) corresponds to local, adding to
// rather than replacing whatever other remote ids local already holds for
// resource. It is idempotent: binding the same pair again is a no-op.
func (m *RemoteIDMapper) Bind(resource, remoteID string, local corekey.Identifier) error {
	return m.env.Update(func(txn *storage.Transaction) error {
		if err := txn.Set(m.remoteToLocal, mapKey(resource, remoteID), local.Bytes()); err != nil {
			return err
		}
		return txn.Set(m.localToRemote, localRemoteKey(resource, local, remoteID), []byte(remoteID))
	})
}

// Unbind removes the mapping for (resource, remoteID), used once a remote
// removal has been fully processed. Any other remote id still bound to
// local is left untouched.
func (m *RemoteIDMapper) Unbind(resource, remoteID string, local corekey.Identifier) error {
	return m.env.Update(func(txn *storage.Transaction) error {
		if err := txn.Delete(m.remoteToLocal, mapKey(resource, remoteID)); err != nil {
			return err
		}
		return txn.Delete(m.localToRemote, localRemoteKey(resource, local, remoteID))
	})
}

// KnownRemoteIDs returns every remote id currently mapped for resource, for
// ScanForRemovals to diff against a fresh remote listing.
func (m *RemoteIDMapper) KnownRemoteIDs(resource string) ([]string, error) {
	var ids []string
	prefix := []byte(resource + "\x00")
	err := m.env.View(func(txn *storage.Transaction) error {
		return txn.Scan(m.remoteToLocal, prefix, func(e storage.Entry) bool {
			ids = append(ids, string(e.Key[len(prefix):]))
			return true
		})
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.Internal, "scan known remote ids", err)
	}
	return ids, nil
}
