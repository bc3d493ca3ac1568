package store

import (
	"regexp"
	"strings"

	"legalcore/internal/errs"
)

// maxQueryLength bounds the size of a query accepted by ValidateQuerySecurity.
const maxQueryLength = 10_000

// denyListKeywords are mutating or schema-altering statement keywords.
// Matched as standalone tokens (word boundaries) so a column literally
// named "update_count" doesn't trip the guard.
var denyListKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "REPLACE",
	"TRUNCATE", "ATTACH", "DETACH", "PRAGMA", "VACUUM", "REINDEX",
	"GRANT", "REVOKE", "EXEC", "EXECUTE",
}

var denyListPattern = regexp.MustCompile(
	`(?i)\b(` + strings.Join(denyListKeywords, "|") + `)\b`,
)

var selectPrefixPattern = regexp.MustCompile(`(?i)^\s*SELECT\b`)

// ValidateQuerySecurity is the read-only SQL safety guard that sits ahead
// of any agentic-tool read path over the store. It runs every check
// against the raw, unmodified input: trimming, case-folding, or comment
// stripping are themselves attack surfaces, so none happen before these
// checks do.
func ValidateQuerySecurity(q string) error {
	if len(q) > maxQueryLength {
		return errs.New(errs.Validation, "query exceeds maximum length")
	}
	if !selectPrefixPattern.MatchString(q) {
		return errs.New(errs.Validation, "query must begin with SELECT")
	}
	if strings.Contains(q, ";") {
		return errs.New(errs.Validation, "query contains a statement terminator")
	}
	if strings.Contains(q, "--") {
		return errs.New(errs.Validation, "query contains a line comment")
	}
	if strings.Contains(q, "/*") || strings.Contains(q, "*/") {
		return errs.New(errs.Validation, "query contains a block comment")
	}
	if denyListPattern.MatchString(q) {
		return errs.New(errs.Validation, "query contains a disallowed keyword")
	}
	upper := strings.ToUpper(q)
	if strings.Contains(upper, "UNION") {
		return errs.New(errs.Validation, "query contains UNION")
	}
	if strings.Contains(upper, "INTO OUTFILE") || strings.Contains(upper, "INTO DUMPFILE") {
		return errs.New(errs.Validation, "query contains a file-write clause")
	}
	return nil
}
