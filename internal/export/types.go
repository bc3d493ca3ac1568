// Package export implements the Data Export Assembler (C11): it reads
// from the Encrypted Store and Consent Ledger only — it never writes —
// and produces an integrity-hashed snapshot of one subject's data in
// four on-disk renderings (JSON, Markdown, PDF, plain text), plus an
// optional .docx rendering.
package export

// Snapshot is the ExportSnapshot entity: everything the system holds
// about one subject, at the moment it was assembled. Every rendering
// (JSON, Markdown, PDF, text, DOCX) derives from exactly this struct — no
// format may include a field absent here.
type Snapshot struct {
	SubjectID  string           `json:"subjectId"`
	ExportTime string           `json:"exportTime"`
	Chats      []ChatExport     `json:"chats"`
	Documents  []DocumentExport `json:"documents"`
	Settings   SettingsExport   `json:"settings"`
	Consents   []ConsentExport  `json:"consents"`
	AuditTrail []AuditExport    `json:"auditTrail"`
	Metadata   Metadata         `json:"metadata"`
}

// ChatExport mirrors one chat_sessions row plus its chat_messages.
type ChatExport struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	CreatedAt string          `json:"createdAt"`
	Messages  []MessageExport `json:"messages"`
}

// MessageExport mirrors one decrypted chat_messages row.
type MessageExport struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// DocumentExport mirrors one documents row and its pii_detections —
// never the original detected text, only type/replacement/confidence/position.
type DocumentExport struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	CreatedAt     string         `json:"createdAt"`
	PiiDetections []PiiDetection `json:"piiDetections"`
}

// PiiDetection mirrors one pii_detections row.
type PiiDetection struct {
	EntityType  string  `json:"entityType"`
	Replacement string  `json:"replacement"`
	Confidence  float64 `json:"confidence"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
}

// SettingsExport mirrors the decrypted user_settings row, if any.
type SettingsExport struct {
	Present  bool   `json:"present"`
	Settings string `json:"settings,omitempty"`
}

// ConsentExport mirrors one user_consent row.
type ConsentExport struct {
	Purpose   string `json:"purpose"`
	Version   int    `json:"version"`
	Granted   bool   `json:"granted"`
	GrantedAt string `json:"grantedAt,omitempty"`
	RevokedAt string `json:"revokedAt,omitempty"`
}

// AuditExport mirrors one audit_log row relevant to this subject.
type AuditExport struct {
	Timestamp string `json:"timestamp"`
	EventKind string `json:"eventKind"`
	Success   bool   `json:"success"`
}

// Compliance flags embedded in Metadata, matching the spec's
// metadata.compliance sub-object exactly.
type Compliance struct {
	Portability       bool `json:"portability"`
	Encrypted         bool `json:"encrypted"`
	IntegrityVerified bool `json:"integrityVerified"`
}

// Metadata is the ExportSnapshot's metadata sub-object.
type Metadata struct {
	FormatVersion  string     `json:"formatVersion"`
	AppVersion     string     `json:"appVersion"`
	IntegrityHash  string     `json:"integrityHash"`
	Compliance     Compliance `json:"compliance"`
}

const (
	formatVersion = "1"
	appVersion    = "legalcore-0.1"
)
