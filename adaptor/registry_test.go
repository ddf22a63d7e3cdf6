package adaptor

import "testing"

func jsonLikeAdaptor(name string) *Adaptor {
	return &Adaptor{
		TypeName:          name,
		IndexedProperties: []string{"subject"},
		Encode: func(payload interface{}) ([]byte, error) {
			return []byte(payload.(string)), nil
		},
		Decode: func(data []byte) (interface{}, error) {
			return string(data), nil
		},
		PropertyValue: func(payload interface{}, property string) (string, error) {
			return payload.(string), nil
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(jsonLikeAdaptor("mail")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a, err := r.Get("mail")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !a.Supports("subject") {
		t.Errorf("expected mail adaptor to support subject")
	}
	if a.Supports("body") {
		t.Errorf("expected mail adaptor not to support body")
	}
}

func TestGetUnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); err == nil {
		t.Errorf("expected error for unregistered type")
	}
}

func TestRegisterRejectsIncomplete(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Adaptor{TypeName: "broken"}); err == nil {
		t.Errorf("expected error registering an adaptor without Encode/Decode")
	}
	if err := r.Register(&Adaptor{Encode: func(interface{}) ([]byte, error) { return nil, nil }, Decode: func([]byte) (interface{}, error) { return nil, nil }}); err == nil {
		t.Errorf("expected error registering an adaptor without a TypeName")
	}
}

func TestTypeNames(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(jsonLikeAdaptor("mail"))
	_ = r.Register(jsonLikeAdaptor("contact"))

	names := r.TypeNames()
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2", len(names))
	}
}
