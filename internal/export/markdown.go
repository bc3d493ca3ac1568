package export

import (
	"fmt"
	"strings"
)

// RenderMarkdown produces a structured Markdown rendering of the export,
// grounded on the original export engine's markdown export: the same
// section order as the text renderer, with checkmark compliance markers.
func RenderMarkdown(snap *Snapshot) []byte {
	var b strings.Builder

	b.WriteString("# LegalCore Data Export\n\n")
	fmt.Fprintf(&b, "- **Subject:** %s\n", snap.SubjectID)
	fmt.Fprintf(&b, "- **Export time:** %s\n", snap.ExportTime)
	fmt.Fprintf(&b, "- **Format version:** %s\n", snap.Metadata.FormatVersion)
	fmt.Fprintf(&b, "- **Integrity hash:** `%s`\n\n", snap.Metadata.IntegrityHash)

	b.WriteString("## Compliance\n\n")
	b.WriteString("- " + checkmark(true) + " GDPR Article 20 (right to data portability)\n")
	b.WriteString("- " + checkmark(snap.Metadata.Compliance.Encrypted) + " Encrypted at rest\n")
	b.WriteString("- " + checkmark(snap.Metadata.Compliance.IntegrityVerified) + " Integrity verified\n\n")

	fmt.Fprintf(&b, "## Chat History (%d)\n\n", len(snap.Chats))
	for _, chat := range snap.Chats {
		title := chat.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "### %s\n\n", title)
		fmt.Fprintf(&b, "_%s — created %s_\n\n", chat.ID, chat.CreatedAt)
		for _, m := range chat.Messages {
			who := "**You**"
			if m.Role != "user" {
				who = "**Assistant**"
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", who, m.Timestamp, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Documents (%d)\n\n", len(snap.Documents))
	for _, d := range snap.Documents {
		fmt.Fprintf(&b, "### %s\n\n", d.Title)
		fmt.Fprintf(&b, "_%s — uploaded %s — %d PII detections_\n\n", d.ID, d.CreatedAt, len(d.PiiDetections))
		if len(d.PiiDetections) > 0 {
			b.WriteString("| Type | Replacement | Confidence | Offset |\n")
			b.WriteString("|---|---|---|---|\n")
			for _, p := range d.PiiDetections {
				fmt.Fprintf(&b, "| %s | %s | %.2f | %d-%d |\n", p.EntityType, p.Replacement, p.Confidence, p.Start, p.End)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Settings\n\n")
	if snap.Settings.Present {
		fmt.Fprintf(&b, "```\n%s\n```\n\n", snap.Settings.Settings)
	} else {
		b.WriteString("_None recorded._\n\n")
	}

	fmt.Fprintf(&b, "## Consent Record (%d)\n\n", len(snap.Consents))
	b.WriteString("| Purpose | Version | Status |\n")
	b.WriteString("|---|---|---|\n")
	for _, c := range snap.Consents {
		status := "granted"
		if !c.Granted {
			status = "revoked"
		}
		fmt.Fprintf(&b, "| %s | %d | %s |\n", c.Purpose, c.Version, status)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Audit Trail (%d)\n\n", len(snap.AuditTrail))
	b.WriteString("| Timestamp | Event | Result |\n")
	b.WriteString("|---|---|---|\n")
	for _, e := range snap.AuditTrail {
		result := "ok"
		if !e.Success {
			result = "failed"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", e.Timestamp, e.EventKind, result)
	}

	return []byte(b.String())
}

func checkmark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
