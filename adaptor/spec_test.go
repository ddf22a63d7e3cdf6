package adaptor

import "testing"

func TestParseRegistrySpec(t *testing.T) {
	r, err := ParseRegistrySpec("mail=subject,from;contact=email")
	if err != nil {
		t.Fatalf("ParseRegistrySpec: %v", err)
	}

	mail, err := r.Get("mail")
	if err != nil {
		t.Fatalf("Get(mail): %v", err)
	}
	if !mail.Supports("subject") || !mail.Supports("from") {
		t.Errorf("mail adaptor missing expected indexed properties: %v", mail.IndexedProperties)
	}

	contact, err := r.Get("contact")
	if err != nil {
		t.Fatalf("Get(contact): %v", err)
	}
	if !contact.Supports("email") {
		t.Errorf("contact adaptor missing expected indexed property: %v", contact.IndexedProperties)
	}
}

func TestParseRegistrySpecNoProperties(t *testing.T) {
	r, err := ParseRegistrySpec("note")
	if err != nil {
		t.Fatalf("ParseRegistrySpec: %v", err)
	}
	note, err := r.Get("note")
	if err != nil {
		t.Fatalf("Get(note): %v", err)
	}
	if len(note.IndexedProperties) != 0 {
		t.Errorf("expected no indexed properties, got %v", note.IndexedProperties)
	}
}

func TestParseRegistrySpecEmpty(t *testing.T) {
	r, err := ParseRegistrySpec("")
	if err != nil {
		t.Fatalf("ParseRegistrySpec: %v", err)
	}
	if len(r.TypeNames()) != 0 {
		t.Errorf("expected empty registry, got %v", r.TypeNames())
	}
}

func TestParseRegistrySpecRejectsMissingTypeName(t *testing.T) {
	if _, err := ParseRegistrySpec("=subject"); err == nil {
		t.Errorf("expected error for entry with no type name")
	}
}
