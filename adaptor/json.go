package adaptor

import (
	"encoding/json"
	"fmt"
)

// NewJSONAdaptor builds an Adaptor for typeName whose payload is an
// arbitrary JSON document. Payloads are decoded into map[string]interface{}
// and indexedProperties names the top-level keys to maintain secondary
// indexes for. It lets a generic resource process (the CLI, most notably)
// register entity types from configuration instead of from Go code, at the
// cost of the type safety a hand-written Adaptor gives a specific entity.
func NewJSONAdaptor(typeName string, indexedProperties ...string) *Adaptor {
	return &Adaptor{
		TypeName:          typeName,
		IndexedProperties: indexedProperties,
		Encode: func(payload interface{}) ([]byte, error) {
			return json.Marshal(payload)
		},
		Decode: func(data []byte) (interface{}, error) {
			var doc map[string]interface{}
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, err
			}
			return doc, nil
		},
		PropertyValue: func(payload interface{}, property string) (string, error) {
			doc, ok := payload.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("adaptor %s: payload is not a JSON document", typeName)
			}
			v, ok := doc[property]
			if !ok {
				return "", nil
			}
			return fmt.Sprintf("%v", v), nil
		},
	}
}
