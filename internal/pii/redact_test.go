package pii

import "testing"

func TestRedactor_ModeRedact_ReplacesWithPlaceholder(t *testing.T) {
	r := NewRedactor()
	text := "Email alice@example.com now"
	spans := []Span{{Start: 6, End: 23, Type: EntityEmail, Confidence: 0.95, Agreement: 1}}
	out, mapping := r.Apply(text, spans, ModeRedact, "")
	want := "Email [REDACTED_EMAIL] now"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
	if mapping != nil {
		t.Errorf("expected no mapping in ModeRedact, got %+v", mapping)
	}
}

func TestRedactor_ModeAnonymize_IsReversible(t *testing.T) {
	r := NewRedactor()
	text := "Email alice@example.com now"
	spans := []Span{{Start: 6, End: 23, Type: EntityEmail, Confidence: 0.95, Agreement: 1}}
	session := "sess-1"

	out, mapping := r.Apply(text, spans, ModeAnonymize, session)
	if out == text {
		t.Fatal("expected anonymized text to differ from original")
	}
	if len(mapping) != 1 || mapping["EMAIL_001"] != "alice@example.com" {
		t.Fatalf("expected mapping {EMAIL_001: alice@example.com}, got %+v", mapping)
	}
	if r.SessionTokenCount(session) != 1 {
		t.Fatalf("expected 1 recorded token, got %d", r.SessionTokenCount(session))
	}

	back := r.Deanonymize(out, session)
	if back != text {
		t.Errorf("deanonymize round trip failed: got %q, want %q", back, text)
	}
}

func TestRedactor_CountersAreMonotonicPerTypePerCall(t *testing.T) {
	r := NewRedactor()
	text := "alice@example.com and bob@example.com"
	spans := []Span{
		{Start: 0, End: 17, Type: EntityEmail},
		{Start: 22, End: 37, Type: EntityEmail},
	}
	out, mapping := r.Apply(text, spans, ModeAnonymize, "s1")
	if out != "EMAIL_001 and EMAIL_002" {
		t.Errorf("expected sequential per-type counters, got %q", out)
	}
	if mapping["EMAIL_001"] != "alice@example.com" || mapping["EMAIL_002"] != "bob@example.com" {
		t.Errorf("unexpected mapping: %+v", mapping)
	}
}

func TestRedactor_CountersResetPerCall(t *testing.T) {
	r := NewRedactor()
	text := "alice@example.com"
	spans := []Span{{Start: 0, End: len(text), Type: EntityEmail}}

	out1, _ := r.Apply(text, spans, ModeAnonymize, "s1")
	out2, _ := r.Apply(text, spans, ModeAnonymize, "s1")
	if out1 != "EMAIL_001" || out2 != "EMAIL_001" {
		t.Errorf("expected counters to reset to 001 each call, got %q then %q", out1, out2)
	}
}

func TestRedactor_DeleteSession(t *testing.T) {
	r := NewRedactor()
	text := "alice@example.com"
	spans := []Span{{Start: 0, End: len(text), Type: EntityEmail}}
	r.Apply(text, spans, ModeAnonymize, "s1")
	if r.SessionTokenCount("s1") == 0 {
		t.Fatal("expected recorded tokens before delete")
	}
	r.DeleteSession("s1")
	if r.SessionTokenCount("s1") != 0 {
		t.Error("expected 0 tokens after DeleteSession")
	}
}

func TestRedactor_EmptySpans_ReturnsOriginal(t *testing.T) {
	r := NewRedactor()
	text := "nothing to redact here"
	out, mapping := r.Apply(text, nil, ModeRedact, "")
	if out != text {
		t.Errorf("expected unchanged text, got %q", out)
	}
	if mapping != nil {
		t.Errorf("expected nil mapping, got %+v", mapping)
	}
}

func TestRedactor_OutOfBoundsSpanSkipped(t *testing.T) {
	r := NewRedactor()
	text := "short"
	spans := []Span{{Start: 2, End: 100, Type: EntityEmail}}
	out, _ := r.Apply(text, spans, ModeRedact, "")
	if out != text {
		t.Errorf("expected out-of-bounds span to be skipped, got %q", out)
	}
}
