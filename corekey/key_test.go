package corekey

import "testing"

func TestRevisionEncodeOrder(t *testing.T) {
	revs := []Revision{0, 1, 9, 10, 999, 1_000_000, 1<<63 - 1}
	for i := 1; i < len(revs); i++ {
		prev, cur := revs[i-1].Encode(), revs[i].Encode()
		if len(prev) != len(cur) {
			t.Fatalf("encoded widths differ: %q vs %q", prev, cur)
		}
		if prev >= cur {
			t.Errorf("expected %q < %q for revisions %d < %d", prev, cur, revs[i-1], revs[i])
		}
	}
}

func TestRevisionRoundTrip(t *testing.T) {
	for _, r := range []Revision{0, 1, 42, 1 << 40} {
		enc := r.Encode()
		got, err := ParseRevision(enc)
		if err != nil {
			t.Fatalf("ParseRevision(%q) error: %v", enc, err)
		}
		if got != r {
			t.Errorf("round trip mismatch: got %d, want %d", got, r)
		}
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	id := NewIdentifier()
	parsed, err := ParseIdentifier(id.String())
	if err != nil {
		t.Fatalf("ParseIdentifier error: %v", err)
	}
	if parsed != id {
		t.Errorf("round trip mismatch: got %v, want %v", parsed, id)
	}

	fromBytes, err := IdentifierFromBytes(id.Bytes())
	if err != nil {
		t.Fatalf("IdentifierFromBytes error: %v", err)
	}
	if fromBytes != id {
		t.Errorf("IdentifierFromBytes mismatch: got %v, want %v", fromBytes, id)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	k := Key{ID: NewIdentifier(), Revision: 1234}
	parsed, err := ParseKey(k.Encode())
	if err != nil {
		t.Fatalf("ParseKey error: %v", err)
	}
	if parsed != k {
		t.Errorf("round trip mismatch: got %v, want %v", parsed, k)
	}
}

func TestKeyInternalBytesRoundTrip(t *testing.T) {
	k := Key{ID: NewIdentifier(), Revision: 1234}
	parsed, err := KeyFromInternalBytes(k.ToInternalBytes())
	if err != nil {
		t.Fatalf("KeyFromInternalBytes error: %v", err)
	}
	if parsed != k {
		t.Errorf("round trip mismatch: got %v, want %v", parsed, k)
	}
}

func TestKeyInternalBytesRejectsWrongWidth(t *testing.T) {
	if _, err := KeyFromInternalBytes([]byte{1, 2, 3}); err == nil {
		t.Errorf("expected error for malformed internal key bytes")
	}
}

func TestKeyOrderingWithinIdentifier(t *testing.T) {
	id := NewIdentifier()
	k1 := Key{ID: id, Revision: 1}
	k2 := Key{ID: id, Revision: 2}
	if string(k1.Encode()) >= string(k2.Encode()) {
		t.Errorf("expected %s < %s", k1.Encode(), k2.Encode())
	}
}

func TestIdentifierZero(t *testing.T) {
	var id Identifier
	if !id.IsZero() {
		t.Errorf("expected zero value to be IsZero")
	}
	if NewIdentifier().IsZero() {
		t.Errorf("fresh identifier should not be IsZero")
	}
}
