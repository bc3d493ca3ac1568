package export

import (
	"fmt"
	"strings"
)

// RenderText produces the plain-text fallback rendering, grounded on the
// original export engine's text export: banner-separated sections, no
// markup, safe for any terminal or editor.
func RenderText(snap *Snapshot) []byte {
	var b strings.Builder

	separator := strings.Repeat("=", 60)
	rule := strings.Repeat("-", 60)

	b.WriteString(separator + "\n")
	b.WriteString("LEGALCORE DATA EXPORT\n")
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "Subject:      %s\n", snap.SubjectID)
	fmt.Fprintf(&b, "Export time:  %s\n", snap.ExportTime)
	fmt.Fprintf(&b, "Format:       v%s\n", snap.Metadata.FormatVersion)
	fmt.Fprintf(&b, "Integrity:    %s\n", snap.Metadata.IntegrityHash)
	b.WriteString("\n")
	b.WriteString("GDPR Article 20 (data portability): satisfied\n")
	fmt.Fprintf(&b, "Encrypted at rest: %v\n", snap.Metadata.Compliance.Encrypted)
	fmt.Fprintf(&b, "Integrity verified: %v\n", snap.Metadata.Compliance.IntegrityVerified)
	b.WriteString("\n")

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "CHAT HISTORY (%d sessions)\n", len(snap.Chats))
	b.WriteString(rule + "\n")
	for _, chat := range snap.Chats {
		title := chat.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "\n[%s] %s (%s)\n", chat.ID, title, chat.CreatedAt)
		for _, m := range chat.Messages {
			who := "YOU"
			if m.Role != "user" {
				who = "ASSISTANT"
			}
			fmt.Fprintf(&b, "  %s | %s: %s\n", m.Timestamp, who, m.Content)
		}
	}

	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, "DOCUMENTS (%d)\n", len(snap.Documents))
	b.WriteString(rule + "\n")
	for _, d := range snap.Documents {
		fmt.Fprintf(&b, "\n[%s] %s (%s)\n", d.ID, d.Title, d.CreatedAt)
		fmt.Fprintf(&b, "  PII detections: %d\n", len(d.PiiDetections))
		for _, p := range d.PiiDetections {
			fmt.Fprintf(&b, "    - %s -> %s (confidence %.2f, offset %d-%d)\n",
				p.EntityType, p.Replacement, p.Confidence, p.Start, p.End)
		}
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("SETTINGS\n")
	b.WriteString(rule + "\n")
	if snap.Settings.Present {
		fmt.Fprintf(&b, "%s\n", snap.Settings.Settings)
	} else {
		b.WriteString("(none recorded)\n")
	}

	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, "CONSENT RECORD (%d entries)\n", len(snap.Consents))
	b.WriteString(rule + "\n")
	for _, c := range snap.Consents {
		status := "granted"
		if !c.Granted {
			status = "revoked"
		}
		fmt.Fprintf(&b, "  %s v%d: %s\n", c.Purpose, c.Version, status)
	}

	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, "AUDIT TRAIL (%d entries)\n", len(snap.AuditTrail))
	b.WriteString(rule + "\n")
	for _, e := range snap.AuditTrail {
		result := "ok"
		if !e.Success {
			result = "failed"
		}
		fmt.Fprintf(&b, "  %s  %-20s  %s\n", e.Timestamp, e.EventKind, result)
	}
	b.WriteString("\n" + separator + "\n")

	return []byte(b.String())
}
