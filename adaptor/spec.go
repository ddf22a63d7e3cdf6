package adaptor

import (
	"strings"

	"github.com/sinkdb/core/corerr"
)

// ParseRegistrySpec builds a Registry of JSON adaptors from a compact
// configuration string, for processes that register entity types from a
// flag or config file rather than from Go code. The format is a
// semicolon-separated list of "typeName=prop1,prop2" entries, e.g.
// "mail=subject,from;contact=email". A type with no indexed properties may
// omit the "=" entirely.
func ParseRegistrySpec(spec string) (*Registry, error) {
	registry := NewRegistry()
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return registry, nil
	}

	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		typeName, props, _ := strings.Cut(entry, "=")
		typeName = strings.TrimSpace(typeName)
		if typeName == "" {
			return nil, corerr.New(corerr.Misconfiguration, "entity type spec entry has no type name: "+entry)
		}

		var indexedProperties []string
		if props = strings.TrimSpace(props); props != "" {
			for _, p := range strings.Split(props, ",") {
				if p = strings.TrimSpace(p); p != "" {
					indexedProperties = append(indexedProperties, p)
				}
			}
		}

		if err := registry.Register(NewJSONAdaptor(typeName, indexedProperties...)); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
