package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func sampleSnapshot() *Snapshot {
	snap := &Snapshot{
		SubjectID:  "u1",
		ExportTime: "2026-07-31T00:00:00Z",
		Chats: []ChatExport{{
			ID:    "chat-1",
			Title: "Contract review",
			Messages: []MessageExport{
				{Role: "user", Content: "please review this clause", Timestamp: "2026-07-30T10:00:00Z"},
				{Role: "assistant", Content: "here is my analysis", Timestamp: "2026-07-30T10:01:00Z"},
			},
		}},
		Documents: []DocumentExport{{
			ID:    "doc-1",
			Title: "NDA.pdf",
			PiiDetections: []PiiDetection{
				{EntityType: "PERSON", Replacement: "[PERSON_1]", Confidence: 0.95, Start: 10, End: 20},
			},
		}},
		Settings: SettingsExport{Present: true, Settings: `{"theme":"dark"}`},
		Consents: []ConsentExport{{Purpose: "chat_storage", Version: 1, Granted: true}},
		AuditTrail: []AuditExport{
			{Timestamp: "2026-07-30T09:00:00Z", EventKind: "consent_grant", Success: true},
		},
	}
	snap.Metadata = Metadata{
		FormatVersion: formatVersion,
		AppVersion:    appVersion,
		IntegrityHash: integrityHash(snap),
		Compliance:    Compliance{Portability: true, Encrypted: true, IntegrityVerified: true},
	}
	return snap
}

func TestRenderJSON_RoundTrips(t *testing.T) {
	snap := sampleSnapshot()
	data, err := RenderJSON(snap)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SubjectID != snap.SubjectID || len(got.Chats) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestRenderText_ContainsKeySections(t *testing.T) {
	out := string(RenderText(sampleSnapshot()))
	for _, want := range []string{"LEGALCORE DATA EXPORT", "CHAT HISTORY", "DOCUMENTS", "CONSENT RECORD", "AUDIT TRAIL", "please review this clause"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text export to contain %q", want)
		}
	}
}

func TestRenderMarkdown_ContainsKeySections(t *testing.T) {
	out := string(RenderMarkdown(sampleSnapshot()))
	for _, want := range []string{"# LegalCore Data Export", "## Chat History", "## Documents", "## Consent Record", "✓ GDPR Article 20"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected markdown export to contain %q", want)
		}
	}
}

func TestRenderPDF_ProducesNonEmptyPDF(t *testing.T) {
	data, err := RenderPDF(sampleSnapshot())
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("expected output to start with the PDF header")
	}
}

func TestRenderDocx_ProducesValidZip(t *testing.T) {
	data, err := RenderDocx(sampleSnapshot())
	if err != nil {
		t.Fatalf("RenderDocx: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("expected output to start with the zip local file header")
	}
	if !bytes.Contains(data, []byte("word/document.xml")) {
		t.Error("expected archive to contain word/document.xml")
	}
}
