package pii

import (
	"context"
	"strings"
	"testing"

	"legalcore/internal/logger"
	"legalcore/internal/metrics"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	reg := NewExclusionRegistry()
	if err := reg.Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	log := logger.New("PII", "error")
	m := metrics.New()
	return NewPipeline(reg, "english", m, log)
}

func TestPipeline_DetectAndRedact(t *testing.T) {
	p := newTestPipeline(t)
	text := "Contact alice@example.com regarding the Plaintiff's motion."

	out, mapping := p.Redact(context.Background(), text, ModeRedact, "")
	if strings.Contains(out, "alice@example.com") {
		t.Errorf("expected email to be redacted, got %q", out)
	}
	if !strings.Contains(out, "Plaintiff") {
		t.Errorf("expected excluded legal term to survive redaction, got %q", out)
	}
	if mapping != nil {
		t.Errorf("expected no mapping in ModeRedact, got %+v", mapping)
	}
}

func TestPipeline_AnonymizeRoundTrip(t *testing.T) {
	p := newTestPipeline(t)
	text := "Contact alice@example.com for details."
	session := "sess-1"

	out, mapping := p.Redact(context.Background(), text, ModeAnonymize, session)
	if out == text {
		t.Fatal("expected anonymized text to differ")
	}
	if len(mapping) != 1 {
		t.Fatalf("expected 1 mapping entry, got %+v", mapping)
	}
	if got := mapping["EMAIL_001"]; got != "alice@example.com" {
		t.Errorf("expected EMAIL_001 -> alice@example.com, got %q", got)
	}

	back := p.Deanonymize(out, session)
	if back != text {
		t.Errorf("round trip failed: got %q, want %q", back, text)
	}
	p.DeleteSession(session)
}

func TestPipeline_MetricsRecorded(t *testing.T) {
	reg := NewExclusionRegistry()
	if err := reg.Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := metrics.New()
	p := NewPipeline(reg, "english", m, logger.New("PII", "error"))

	p.Detect(context.Background(), "alice@example.com")
	snap := m.Snapshot()
	if snap.Detection.Total == 0 {
		t.Error("expected DetectionsTotal to be incremented")
	}
}

func TestPipeline_Close(t *testing.T) {
	p := newTestPipeline(t)
	if err := p.Close(); err != nil {
		t.Errorf("Close with no external layer should be a no-op: %v", err)
	}
}

func TestPipeline_ConfidenceThresholdOption(t *testing.T) {
	reg := NewExclusionRegistry()
	if err := reg.Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := metrics.New()
	p := NewPipeline(reg, "english", m, logger.New("PII", "error"), WithConfidenceThreshold(0.99))

	// The phone pattern's baseline confidence (0.65) sits below this
	// threshold, so raising it should suppress an otherwise-detected span.
	spans := p.Detect(context.Background(), "call 555-123-4567")
	for _, s := range spans {
		if s.Type == EntityPhone {
			t.Errorf("expected phone candidate below threshold to be dropped, got span %+v", s)
		}
	}
}
