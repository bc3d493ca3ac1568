// Package pii implements the PII Protection Core: multi-layer detection,
// span reconciliation, and redaction/anonymization of sensitive text.
//
// The pipeline is collect → reconcile → redact, not the single-pass
// in-place replacement an earlier proxy-style anonymizer used: every
// detection layer (L1 regex, L2 local NER, L3 external analyzer) emits
// independent Candidates over the same text, the Span Reconciler resolves
// overlaps and boosts confidence on agreement, and only the final Redactor
// stage touches the text.
package pii

// EntityType classifies the kind of sensitive data a Candidate or Span
// represents. This is a closed alphabet; ParseEntityType never returns an
// error and falls back to EntityUnknown for anything it doesn't recognize.
type EntityType string

// Supported entity types for detection and redaction.
const (
	EntityEmail      EntityType = "email"
	EntityPhone      EntityType = "phone"
	EntitySSN        EntityType = "ssn"
	EntityCreditCard EntityType = "credit_card"
	EntityIPAddress  EntityType = "ip_address"
	EntityAPIKey     EntityType = "api_key"
	EntityName       EntityType = "name"
	EntityAddress    EntityType = "address"
	EntityMedical    EntityType = "medical"
	EntitySalary     EntityType = "salary"
	EntityCompany    EntityType = "company"
	EntityJobTitle   EntityType = "job_title"
	EntityCaseNumber EntityType = "case_number"
	EntityLawFirm    EntityType = "law_firm"
	EntityUnknown    EntityType = "unknown"
)

// ParseEntityType maps a string to an EntityType, falling back to
// EntityUnknown for any value outside the closed alphabet.
func ParseEntityType(s string) EntityType {
	switch EntityType(s) {
	case EntityEmail, EntityPhone, EntitySSN, EntityCreditCard, EntityIPAddress,
		EntityAPIKey, EntityName, EntityAddress, EntityMedical, EntitySalary,
		EntityCompany, EntityJobTitle, EntityCaseNumber, EntityLawFirm:
		return EntityType(s)
	default:
		return EntityUnknown
	}
}

// Layer identifies which detection layer produced a Candidate.
type Layer string

// Detection layer identifiers, in ascending cost order.
const (
	LayerRegex    Layer = "L1_regex"
	LayerLocalNER Layer = "L2_local_ner"
	LayerExternal Layer = "L3_external"
)

// Candidate is one unreconciled detection emitted by a single layer.
// Start/End are byte offsets into the source text (half-open [Start,End)).
type Candidate struct {
	Start      int
	End        int
	Type       EntityType
	Text       string
	Confidence float64
	Source     Layer
}

// Span is a reconciled, non-overlapping region of text carrying a final
// entity type and confidence. Spans are what the Redactor consumes.
type Span struct {
	Start      int
	End        int
	Type       EntityType
	Confidence float64
	// Agreement counts how many independent layers contributed an
	// overlapping candidate that was folded into this span.
	Agreement int
}

// Mode selects how the Redactor treats a Span.
type Mode int

const (
	// ModeRedact replaces the span with a type-only placeholder and keeps
	// no record capable of recovering the original value.
	ModeRedact Mode = iota
	// ModeAnonymize replaces the span with a deterministic token and
	// records a reversible mapping in a session-scoped map.
	ModeAnonymize
)
