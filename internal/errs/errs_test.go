package errs

import (
	"errors"
	"testing"
)

func TestKindMatchingNotMessage(t *testing.T) {
	err := Wrap(Policy, "no consent granted for purpose AiProcessing", errors.New("db says no"))
	if !errors.Is(err, PolicyKind) {
		t.Fatalf("expected errors.Is to match PolicyKind")
	}
	if errors.Is(err, ValidationKind) {
		t.Fatalf("did not expect errors.Is to match ValidationKind")
	}
}

func TestKindOf(t *testing.T) {
	err := New(Integrity, "tag mismatch")
	k, ok := KindOf(err)
	if !ok || k != Integrity {
		t.Fatalf("KindOf = %v, %v; want Integrity, true", k, ok)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("KindOf on plain error should be false")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(Availability, "store unreachable", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap chain to reach cause")
	}
}
