package store

import (
	"strings"
	"testing"
)

func TestValidateQuerySecurity_AcceptsPlainSelect(t *testing.T) {
	if err := ValidateQuerySecurity("SELECT id, title FROM documents WHERE subject_id = 'u1'"); err != nil {
		t.Errorf("expected plain SELECT to pass, got %v", err)
	}
}

func TestValidateQuerySecurity_RequiresSelectPrefix(t *testing.T) {
	cases := []string{
		"  \t SELECT 1",
		"INSERT INTO documents VALUES (1)",
		"UPDATE documents SET title = 'x'",
		"",
	}
	for _, q := range cases {
		err := ValidateQuerySecurity(q)
		wantOK := strings.Contains(strings.ToUpper(q), "SELECT") && !strings.Contains(q, "INSERT")
		if wantOK && err != nil {
			t.Errorf("ValidateQuerySecurity(%q): unexpected error %v", q, err)
		}
		if !wantOK && err == nil {
			t.Errorf("ValidateQuerySecurity(%q): expected error", q)
		}
	}
}

func TestValidateQuerySecurity_RejectsTerminatorCommentsAndKeywords(t *testing.T) {
	cases := []string{
		"SELECT 1; DROP TABLE documents",
		"SELECT 1 -- comment",
		"SELECT /* hidden */ 1",
		"SELECT * FROM documents WHERE 1=1 UNION SELECT * FROM subject_salts",
		"SELECT 1 INTO OUTFILE '/tmp/x'",
		"DELETE FROM documents",
		"SELECT update_count FROM documents", // word-boundary should still reject "UPDATE" standalone only
	}
	for _, q := range cases[:len(cases)-1] {
		if err := ValidateQuerySecurity(q); err == nil {
			t.Errorf("ValidateQuerySecurity(%q): expected rejection", q)
		}
	}
	// column literally named update_count must NOT trip the UPDATE keyword check
	if err := ValidateQuerySecurity("SELECT update_count FROM documents"); err != nil {
		t.Errorf("expected column name containing keyword substring to pass, got %v", err)
	}
}

func TestValidateQuerySecurity_RejectsOverlongQuery(t *testing.T) {
	q := "SELECT " + strings.Repeat("a", maxQueryLength)
	if err := ValidateQuerySecurity(q); err == nil {
		t.Error("expected overlong query to be rejected")
	}
}
