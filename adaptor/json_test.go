package adaptor

import "testing"

func TestJSONAdaptorRoundTrip(t *testing.T) {
	a := NewJSONAdaptor("mail", "subject", "from")

	data, err := a.Encode(map[string]interface{}{"subject": "hi", "from": "a@b.com"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	payload, err := a.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	doc, ok := payload.(map[string]interface{})
	if !ok {
		t.Fatalf("decoded payload is %T, want map[string]interface{}", payload)
	}
	if doc["subject"] != "hi" {
		t.Errorf("subject = %v, want hi", doc["subject"])
	}
}

func TestJSONAdaptorPropertyValue(t *testing.T) {
	a := NewJSONAdaptor("mail", "subject")
	doc := map[string]interface{}{"subject": "hi", "priority": 3}

	v, err := a.PropertyValue(doc, "subject")
	if err != nil {
		t.Fatalf("PropertyValue: %v", err)
	}
	if v != "hi" {
		t.Errorf("PropertyValue(subject) = %q, want hi", v)
	}

	v, err = a.PropertyValue(doc, "priority")
	if err != nil {
		t.Fatalf("PropertyValue: %v", err)
	}
	if v != "3" {
		t.Errorf("PropertyValue(priority) = %q, want 3", v)
	}

	v, err = a.PropertyValue(doc, "missing")
	if err != nil {
		t.Fatalf("PropertyValue(missing): %v", err)
	}
	if v != "" {
		t.Errorf("PropertyValue(missing) = %q, want empty", v)
	}
}

func TestJSONAdaptorPropertyValueWrongPayload(t *testing.T) {
	a := NewJSONAdaptor("mail", "subject")
	if _, err := a.PropertyValue("not a document", "subject"); err == nil {
		t.Errorf("expected error for non-document payload")
	}
}

func TestJSONAdaptorRegisters(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewJSONAdaptor("contact", "email")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	a, err := r.Get("contact")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !a.Supports("email") {
		t.Errorf("expected contact adaptor to support email")
	}
}
