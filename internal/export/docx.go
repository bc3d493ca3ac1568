package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"

	"legalcore/internal/errs"
)

// RenderDocx hand-builds a minimal OOXML (.docx) package: a zip archive
// containing just the three parts Word requires to open a document
// ([Content_Types].xml, _rels/.rels, word/document.xml). No OOXML writer
// library exists anywhere in the reference corpus, so this renderer
// writes the XML parts directly rather than pulling in an unrelated
// dependency for one format.
func RenderDocx(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := map[string]string{
		"[Content_Types].xml": contentTypesXML,
		"_rels/.rels":         relsXML,
		"word/document.xml":   documentXML(snap),
	}
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			return nil, errs.Wrap(errs.Fatal, "create docx part "+name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return nil, errs.Wrap(errs.Fatal, "write docx part "+name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errs.Wrap(errs.Fatal, "finalize docx archive", err)
	}
	return buf.Bytes(), nil
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func documentXML(snap *Snapshot) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + "\n")

	heading1(&b, "LegalCore Data Export")
	para(&b, fmt.Sprintf("Subject: %s", snap.SubjectID))
	para(&b, fmt.Sprintf("Export time: %s", snap.ExportTime))
	para(&b, fmt.Sprintf("Integrity hash: %s", snap.Metadata.IntegrityHash))

	heading1(&b, "Compliance")
	para(&b, "GDPR Article 20 (right to data portability): satisfied")
	para(&b, fmt.Sprintf("Encrypted at rest: %v", snap.Metadata.Compliance.Encrypted))
	para(&b, fmt.Sprintf("Integrity verified: %v", snap.Metadata.Compliance.IntegrityVerified))

	heading1(&b, fmt.Sprintf("Chat History (%d)", len(snap.Chats)))
	for _, chat := range snap.Chats {
		title := chat.Title
		if title == "" {
			title = "(untitled)"
		}
		heading2(&b, title)
		for _, m := range chat.Messages {
			who := "YOU"
			if m.Role != "user" {
				who = "BEAR AI"
			}
			para(&b, fmt.Sprintf("%s | %s: %s", m.Timestamp, who, m.Content))
		}
	}

	heading1(&b, fmt.Sprintf("Documents (%d)", len(snap.Documents)))
	for _, d := range snap.Documents {
		heading2(&b, d.Title)
		para(&b, fmt.Sprintf("PII detections: %d", len(d.PiiDetections)))
	}

	heading1(&b, "Consent Record")
	for _, c := range snap.Consents {
		status := "granted"
		if !c.Granted {
			status = "revoked"
		}
		para(&b, fmt.Sprintf("%s v%d: %s", c.Purpose, c.Version, status))
	}

	b.WriteString(`<w:sectPr/></w:body></w:document>`)
	return b.String()
}

func heading1(b *bytes.Buffer, text string) {
	b.WriteString(`<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>` + escapeXML(text) + `</w:t></w:r></w:p>` + "\n")
}

func heading2(b *bytes.Buffer, text string) {
	b.WriteString(`<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>` + escapeXML(text) + `</w:t></w:r></w:p>` + "\n")
}

func para(b *bytes.Buffer, text string) {
	b.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + escapeXML(text) + `</w:t></w:r></w:p>` + "\n")
}

func escapeXML(s string) string {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return html.EscapeString(s)
	}
	return b.String()
}
