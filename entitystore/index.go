package entitystore

import (
	"github.com/sinkdb/core/adaptor"
	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/storage"
)

// indexKey builds a composite secondary-index key: type ‖ NUL ‖ property ‖
// NUL ‖ value ‖ NUL ‖ identifier. The identifier suffix lets several
// entities share the same property value without one overwriting another's
// index entry; QueryIndexes strips it back off when it matters, but usually
// only cares that a matching key exists at all.
func indexKey(typeName, property, value string, id corekey.Identifier) []byte {
	out := append([]byte{}, typeName...)
	out = append(out, 0)
	out = append(out, property...)
	out = append(out, 0)
	out = append(out, value...)
	out = append(out, 0)
	out = append(out, id.Bytes()...)
	return out
}

func indexPrefix(typeName, property, value string) []byte {
	out := append([]byte{}, typeName...)
	out = append(out, 0)
	out = append(out, property...)
	out = append(out, 0)
	out = append(out, value...)
	out = append(out, 0)
	return out
}

// TypeProperty is the implicit indexed property every entity carries
// regardless of what its adaptor declares, mapping a type name to every
// identifier currently holding a non-removed entity of that type. The query
// engine uses it as the "scan everything of this type" starting point when
// none of a query's filters name a property the adaptor actually indexes.
const TypeProperty = "__type"

// addIndexEntries writes one index entry per property in ad.IndexedProperties
// whose value can be extracted from payload, plus the implicit TypeProperty
// entry every entity gets regardless of its adaptor.
func (s *Store) addIndexEntries(txn *storage.Transaction, ad *adaptor.Adaptor, id corekey.Identifier, payload interface{}) error {
	if err := txn.Set(s.index, indexKey(ad.TypeName, TypeProperty, ad.TypeName, id), id.Bytes()); err != nil {
		return err
	}
	for _, prop := range ad.IndexedProperties {
		value, err := ad.PropertyValue(payload, prop)
		if err != nil {
			return corerr.Wrap(corerr.Internal, "extract indexed property "+prop, err)
		}
		if err := txn.Set(s.index, indexKey(ad.TypeName, prop, value, id), id.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// retractStaleIndexEntries removes whatever index entries the entity's
// previous revision contributed, before the caller writes the new revision's
// entries. This must run before addIndexEntries in the same transaction so
// an entity that changes an indexed property's value does not leave a stale
// entry pointing at the old value alongside the new one.
func (s *Store) retractStaleIndexEntries(txn *storage.Transaction, ad *adaptor.Adaptor, id corekey.Identifier) error {
	prev, found, err := s.ReadLatest(txn, id)
	if err != nil {
		return err
	}
	if !found || prev.Metadata.Operation == Remove {
		return nil
	}
	prevAd, err := s.registry.Get(prev.Metadata.Type)
	if err != nil {
		return err
	}
	if err := txn.Delete(s.index, indexKey(prevAd.TypeName, TypeProperty, prevAd.TypeName, id)); err != nil {
		return err
	}
	for _, prop := range prevAd.IndexedProperties {
		value, err := prevAd.PropertyValue(prev.Payload, prop)
		if err != nil {
			return corerr.Wrap(corerr.Internal, "extract previous indexed property "+prop, err)
		}
		if err := txn.Delete(s.index, indexKey(prevAd.TypeName, prop, value, id)); err != nil {
			return err
		}
	}
	return nil
}

// QueryIndexes returns every entity identifier whose current indexed
// property matches value exactly. Callers still need to confirm a hit
// against the live entity before trusting it (see the query package's
// residual filter), since an index entry only records that the value
// matched as of the write that produced it.
func (s *Store) QueryIndexes(txn *storage.Transaction, typeName, property, value string) ([]corekey.Identifier, error) {
	var ids []corekey.Identifier
	err := txn.Scan(s.index, indexPrefix(typeName, property, value), func(e storage.Entry) bool {
		id, perr := corekey.IdentifierFromBytes(e.Value)
		if perr != nil {
			return true
		}
		ids = append(ids, id)
		return true
	})
	return ids, err
}

// SupportsIndex reports whether typeName's adaptor declares property as
// indexed - the capability-discovery step the query engine uses to decide
// between an index-driven scan and a full scan, generalizing a fixed
// feature-support query to an open-ended set of property names.
func (s *Store) SupportsIndex(typeName, property string) bool {
	ad, err := s.registry.Get(typeName)
	if err != nil {
		return false
	}
	return ad.Supports(property)
}

// PropertyValue extracts property's string value from payload using
// typeName's registered adaptor, for residual filtering of entities whose
// index entry only proves a historical match.
func (s *Store) PropertyValue(typeName string, payload interface{}, property string) (string, error) {
	ad, err := s.registry.Get(typeName)
	if err != nil {
		return "", err
	}
	return ad.PropertyValue(payload, property)
}

// Adaptor returns typeName's registered adaptor.Adaptor, letting a caller
// outside the entitystore package (a syncer.Synchronizer deciding whether a
// freshly fetched payload actually changed anything, a transport layer
// decoding a wire payload) reach the same adaptor WriteEntity uses.
func (s *Store) Adaptor(typeName string) (*adaptor.Adaptor, error) {
	return s.registry.Get(typeName)
}
