package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"legalcore/internal/errs"
)

// pageBottom is the naive pagination cutoff: once the cursor passes this
// y-position on an A4 page, the next section starts a fresh page rather
// than running into the margin.
const pageBottom = 270.0

// RenderPDF produces a single-document PDF rendering, grounded on the
// original export engine's PDF export: title page, compliance statement,
// chat history, documents and consent sections, each in Helvetica with
// section headings in bold. Settings and the audit trail are not rendered
// in the PDF.
func RenderPDF(snap *Snapshot) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "LegalCore Data Export", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	line(pdf, fmt.Sprintf("Subject: %s", snap.SubjectID))
	line(pdf, fmt.Sprintf("Export time: %s", snap.ExportTime))
	line(pdf, fmt.Sprintf("Format version: %s", snap.Metadata.FormatVersion))
	line(pdf, fmt.Sprintf("Integrity hash: %s", snap.Metadata.IntegrityHash))
	pdf.Ln(4)

	heading(pdf, "Compliance")
	line(pdf, "GDPR Article 20 (right to data portability): satisfied")
	line(pdf, fmt.Sprintf("Encrypted at rest: %v", snap.Metadata.Compliance.Encrypted))
	line(pdf, fmt.Sprintf("Integrity verified: %v", snap.Metadata.Compliance.IntegrityVerified))
	pdf.Ln(4)

	heading(pdf, fmt.Sprintf("Chat History (%d)", len(snap.Chats)))
	for _, chat := range snap.Chats {
		ensureRoom(pdf)
		title := chat.Title
		if title == "" {
			title = "(untitled)"
		}
		pdf.SetFont("Helvetica", "B", 12)
		line(pdf, title)
		pdf.SetFont("Helvetica", "", 10)
		for _, m := range chat.Messages {
			ensureRoom(pdf)
			who := "YOU"
			if m.Role != "user" {
				who = "ASSISTANT"
			}
			line(pdf, fmt.Sprintf("%s | %s: %s", m.Timestamp, who, m.Content))
		}
		pdf.Ln(2)
	}

	heading(pdf, fmt.Sprintf("Documents (%d)", len(snap.Documents)))
	for _, d := range snap.Documents {
		ensureRoom(pdf)
		pdf.SetFont("Helvetica", "B", 12)
		line(pdf, d.Title)
		pdf.SetFont("Helvetica", "", 10)
		line(pdf, fmt.Sprintf("PII detections: %d", len(d.PiiDetections)))
	}
	pdf.Ln(4)

	heading(pdf, "Consent Record")
	pdf.SetFont("Helvetica", "", 10)
	for _, c := range snap.Consents {
		ensureRoom(pdf)
		status := "granted"
		if !c.Granted {
			status = "revoked"
		}
		line(pdf, fmt.Sprintf("%s v%d: %s", c.Purpose, c.Version, status))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errs.Wrap(errs.Fatal, "render pdf export", err)
	}
	return buf.Bytes(), nil
}

func heading(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, text, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func line(pdf *gofpdf.Fpdf, text string) {
	pdf.MultiCell(0, 6, text, "", "L", false)
}

func ensureRoom(pdf *gofpdf.Fpdf) {
	if _, y := pdf.GetXY(); y > pageBottom {
		pdf.AddPage()
	}
}
