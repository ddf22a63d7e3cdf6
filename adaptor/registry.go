package adaptor

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/sinkdb/core/corerr"
)

// Adaptor describes how one entity type is encoded, decoded and indexed.
type Adaptor struct {
	// TypeName is the entity type this adaptor handles, e.g. "mail".
	TypeName string

	// Encode serializes a decoded payload to bytes for storage.
	Encode func(payload interface{}) ([]byte, error)

	// Decode deserializes stored bytes back into a payload value.
	Decode func(data []byte) (interface{}, error)

	// IndexedProperties lists the property names this type maintains
	// secondary indexes for. Property values are extracted by
	// PropertyValue.
	IndexedProperties []string

	// PropertyValue extracts the string value of a named property from a
	// decoded payload. It is called with names from IndexedProperties to
	// build or query a secondary index, with names from
	// ComparableProperties by PayloadsDiffer, and with any filter key a
	// query checks in its residual pass.
	PropertyValue func(payload interface{}, property string) (string, error)

	// ComparableProperties lists the properties a syncer.Synchronizer
	// should compare to decide whether a freshly fetched remote payload
	// actually changed anything before it enqueues a Modify. Defaults to
	// IndexedProperties when left nil, since those are already the
	// properties this type considers significant.
	ComparableProperties []string
}

// Supports reports whether this adaptor indexes the named property.
func (a *Adaptor) Supports(property string) bool {
	for _, p := range a.IndexedProperties {
		if p == property {
			return true
		}
	}
	return false
}

// PayloadsDiffer reports whether old and fresh differ in any of a's
// comparable properties (ComparableProperties, or IndexedProperties if that
// is unset). An adaptor with no comparable properties at all falls back to
// comparing the two payloads' encoded bytes.
func (a *Adaptor) PayloadsDiffer(old, fresh interface{}) (bool, error) {
	props := a.ComparableProperties
	if props == nil {
		props = a.IndexedProperties
	}

	if len(props) == 0 {
		oldBytes, err := a.Encode(old)
		if err != nil {
			return false, err
		}
		freshBytes, err := a.Encode(fresh)
		if err != nil {
			return false, err
		}
		return !bytes.Equal(oldBytes, freshBytes), nil
	}

	for _, prop := range props {
		oldValue, err := a.PropertyValue(old, prop)
		if err != nil {
			return false, err
		}
		freshValue, err := a.PropertyValue(fresh, prop)
		if err != nil {
			return false, err
		}
		if oldValue != freshValue {
			return true, nil
		}
	}
	return false, nil
}

// Registry maps entity type names to their Adaptor. It is safe for
// concurrent use; adaptors are normally all registered once at startup and
// read many times afterwards, but nothing prevents registering a new type
// while the system is running.
type Registry struct {
	mu       sync.RWMutex
	adaptors map[string]*Adaptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adaptors: make(map[string]*Adaptor)}
}

// Register adds or replaces the Adaptor for a.TypeName.
func (r *Registry) Register(a *Adaptor) error {
	if a.TypeName == "" {
		return corerr.New(corerr.Misconfiguration, "adaptor must have a non-empty TypeName")
	}
	if a.Encode == nil || a.Decode == nil {
		return corerr.New(corerr.Misconfiguration, fmt.Sprintf("adaptor %q must define Encode and Decode", a.TypeName))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adaptors[a.TypeName] = a
	return nil
}

// Get returns the Adaptor registered for typeName.
func (r *Registry) Get(typeName string) (*Adaptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adaptors[typeName]
	if !ok {
		return nil, corerr.New(corerr.Unsupported, fmt.Sprintf("no adaptor registered for type %q", typeName))
	}
	return a, nil
}

// TypeNames returns every registered type name, in no particular order.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adaptors))
	for name := range r.adaptors {
		out = append(out, name)
	}
	return out
}
