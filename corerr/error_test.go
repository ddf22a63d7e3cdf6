package corerr

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := New(NotFound, "entity missing")
	if got, want := e.Error(), "not_found: entity missing"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	wrapped := Wrap(Corruption, "decode failed", errors.New("bad byte"))
	if got, want := wrapped.Error(), "corruption: decode failed: bad byte"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIs(t *testing.T) {
	err := Wrap(Transient, "busy", errors.New("lock held"))
	if !Is(err, Transient) {
		t.Errorf("expected Is(err, Transient) to be true")
	}
	if Is(err, NotFound) {
		t.Errorf("expected Is(err, NotFound) to be false")
	}
	if Is(errors.New("plain"), Transient) {
		t.Errorf("expected Is on non-corerr error to be false")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(Internal, "wrapper", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find wrapped cause")
	}
}
