package consent

import (
	"context"
	"strings"

	"legalcore/internal/errs"
)

// Mode selects how strictly the Guard treats a stale (outdated-version)
// grant: Strict requires the current version, Lenient accepts any active
// grant regardless of version.
type Mode int

const (
	Strict Mode = iota
	Lenient
)

// CheckResult is the outcome of evaluating one purpose for one subject.
type CheckResult struct {
	Purpose           Purpose
	SubjectID         string
	Allowed           bool
	Reason            string
	RequiresReconsent bool
}

// Denial is returned by Enforce when a purpose is not permitted.
type Denial struct {
	Purpose           Purpose
	Reason            string
	RequiresReconsent bool
}

func (d *Denial) Error() string { return "consent denied for " + string(d.Purpose) + ": " + d.Reason }

// Guard is the Consent Guard (C10): a thin policy wrapper every
// data-processing operation is enforced against ahead of touching
// personal data.
type Guard struct {
	ledger *Ledger
	mode   Mode
}

// NewGuard wraps ledger with the given enforcement mode.
func NewGuard(ledger *Ledger, mode Mode) *Guard {
	return &Guard{ledger: ledger, mode: mode}
}

// SetMode changes strict/lenient enforcement at runtime.
func (g *Guard) SetMode(mode Mode) { g.mode = mode }

// Check evaluates one purpose without erroring on denial, mirroring the
// spec's exact reason strings: "No consent granted" when there is no
// active grant at all, "Consent version outdated" when a grant exists
// but has gone stale relative to the purpose's current version.
func (g *Guard) Check(ctx context.Context, subjectID string, purpose Purpose) (CheckResult, error) {
	if purpose == PurposeUnknown {
		return CheckResult{}, errs.New(errs.Validation, "unknown consent purpose")
	}

	has, err := g.ledger.HasConsent(ctx, subjectID, purpose)
	if err != nil {
		return CheckResult{}, err
	}
	needsReconsent, err := g.ledger.NeedsReconsent(ctx, subjectID, purpose)
	if err != nil {
		return CheckResult{}, err
	}

	var allowed bool
	switch g.mode {
	case Strict:
		allowed = has && !needsReconsent
	default: // Lenient
		allowed = has
	}

	var reason string
	switch {
	case !has:
		reason = "No consent granted"
	case needsReconsent:
		reason = "Consent version outdated"
	}

	return CheckResult{
		Purpose:           purpose,
		SubjectID:         subjectID,
		Allowed:           allowed,
		Reason:            reason,
		RequiresReconsent: needsReconsent,
	}, nil
}

// Enforce returns a *Denial (wrapped in a Policy errs.Error) if purpose
// is not permitted for subjectID under the Guard's current mode.
func (g *Guard) Enforce(ctx context.Context, subjectID string, purpose Purpose) error {
	result, err := g.Check(ctx, subjectID, purpose)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return errs.Wrap(errs.Policy, "operation denied", &Denial{
			Purpose: purpose, Reason: result.Reason, RequiresReconsent: result.RequiresReconsent,
		})
	}
	return nil
}

// CheckBatch evaluates every purpose in purposes and returns all results.
func (g *Guard) CheckBatch(ctx context.Context, subjectID string, purposes []Purpose) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(purposes))
	for _, p := range purposes {
		r, err := g.Check(ctx, subjectID, p)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// EnforceBatch fails if any purpose in purposes is denied, aggregating
// every denial reason into a single error.
func (g *Guard) EnforceBatch(ctx context.Context, subjectID string, purposes []Purpose) error {
	results, err := g.CheckBatch(ctx, subjectID, purposes)
	if err != nil {
		return err
	}

	var denied []string
	for _, r := range results {
		if !r.Allowed {
			denied = append(denied, string(r.Purpose)+": "+r.Reason)
		}
	}
	if len(denied) > 0 {
		return errs.New(errs.Policy, "multiple consent violations: "+strings.Join(denied, ", "))
	}
	return nil
}
