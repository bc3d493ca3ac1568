// Package consent implements the Consent & Compliance Core's ledger (C9)
// and guard (C10): a versioned grant/revoke record per (subject, purpose)
// and the policy wrapper every data-processing operation is enforced
// against.
package consent

// Purpose is the closed alphabet of reasons data may be processed for.
// Unknown strings parse to PurposeUnknown rather than failing, per the
// "dynamic behavior as a static sum type with a documented fallback"
// design note.
type Purpose string

const (
	PurposePiiDetection       Purpose = "pii_detection"
	PurposeChatStorage        Purpose = "chat_storage"
	PurposeDocumentProcessing Purpose = "document_processing"
	PurposeAnalytics          Purpose = "analytics"
	PurposeAiProcessing       Purpose = "ai_processing"
	PurposeDataRetention      Purpose = "data_retention"
	PurposeUnknown            Purpose = "unknown"
)

// AllPurposes enumerates every known purpose, used to seed default
// consent versions and to drive check-all-reconsents sweeps.
var AllPurposes = []Purpose{
	PurposePiiDetection,
	PurposeChatStorage,
	PurposeDocumentProcessing,
	PurposeAnalytics,
	PurposeAiProcessing,
	PurposeDataRetention,
}

// ParsePurpose validates a purpose string against the closed alphabet,
// falling back to PurposeUnknown for anything else.
func ParsePurpose(s string) Purpose {
	switch Purpose(s) {
	case PurposePiiDetection, PurposeChatStorage, PurposeDocumentProcessing,
		PurposeAnalytics, PurposeAiProcessing, PurposeDataRetention:
		return Purpose(s)
	default:
		return PurposeUnknown
	}
}

func (p Purpose) String() string { return string(p) }

// Record mirrors one row of user_consent: the effective consent state
// for a (subject, purpose) at a given version.
type Record struct {
	ID        string
	SubjectID string
	Purpose   Purpose
	Version   int
	Granted   bool
	GrantedAt *string
	RevokedAt *string
	Text      string
	CreatedAt string
	UpdatedAt string
}

// LogEntry mirrors one append-only row of consent_log.
type LogEntry struct {
	ID               string
	SubjectID        string
	Purpose          Purpose
	Version          int
	Granted          bool
	Timestamp        string
	NetworkAddress   string
	ClientUA         string
	WithdrawalReason string
	Text             string
}

// Statistics summarizes consent_log activity for compliance reporting.
type Statistics struct {
	TotalActions   int
	GrantedCount   int
	WithdrawnCount int
	Distribution   []DistributionEntry
}

// DistributionEntry is one (purpose, granted) bucket of Statistics.
type DistributionEntry struct {
	Purpose Purpose
	Granted bool
	Count   int
}
