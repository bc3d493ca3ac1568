package consent

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"legalcore/internal/errs"
)

// RequestContext carries the optional network/client metadata attached
// to a consent_log entry, mirroring the original's ip_address/user_agent
// parameters without threading two more string args through every call.
type RequestContext struct {
	NetworkAddress string
	ClientUA       string
}

// Ledger is the Consent Ledger (C9): it exclusively owns the
// user_consent, consent_versions, and consent_log tables.
type Ledger struct {
	db *sql.DB
}

// NewLedger wraps an open *sql.DB (normally store.Store.DB()) and seeds a
// version-1 consent_versions row for every known Purpose that doesn't
// already have a current (non-deprecated) version. The ledger owns these
// tables but not the connection itself — Store owns schema and pooling.
func NewLedger(ctx context.Context, db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db}
	if err := l.seedDefaultVersions(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) seedDefaultVersions(ctx context.Context) error {
	for _, p := range AllPurposes {
		var exists int
		err := l.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM consent_versions WHERE purpose = ? AND deprecated_date IS NULL",
			string(p),
		).Scan(&exists)
		if err != nil {
			return wrapDB("probe consent_versions", err)
		}
		if exists > 0 {
			continue
		}
		if _, err := l.db.ExecContext(ctx,
			`INSERT INTO consent_versions (purpose, version, text, effective_date)
			 VALUES (?, 1, ?, CURRENT_TIMESTAMP)`,
			string(p), defaultConsentText(p),
		); err != nil {
			return wrapDB("seed consent_versions", err)
		}
	}
	return nil
}

func defaultConsentText(p Purpose) string {
	return "Consent to process data for purpose: " + string(p)
}

// currentVersion returns the version number of the one non-deprecated
// consent_versions row for purpose. A missing row is a Fatal condition
// per the spec: an unconfigured purpose has no defined consent text.
func (l *Ledger) currentVersion(ctx context.Context, purpose Purpose) (int, string, error) {
	var version int
	var text string
	err := l.db.QueryRowContext(ctx,
		"SELECT version, text FROM consent_versions WHERE purpose = ? AND deprecated_date IS NULL",
		string(purpose),
	).Scan(&version, &text)
	if err == sql.ErrNoRows {
		return 0, "", errs.New(errs.Fatal, "no current consent_versions row for purpose "+string(purpose))
	}
	if err != nil {
		return 0, "", wrapDB("read current consent version", err)
	}
	return version, text, nil
}

// Grant upserts the current-version row for (subject, purpose), setting
// granted=true and clearing revoked_at, then appends a consent_log entry.
func (l *Ledger) Grant(ctx context.Context, subjectID string, purpose Purpose, rc RequestContext) error {
	if purpose == PurposeUnknown {
		return errs.New(errs.Validation, "unknown consent purpose")
	}
	version, text, err := l.currentVersion(ctx, purpose)
	if err != nil {
		return err
	}

	var existingID string
	err = l.db.QueryRowContext(ctx,
		"SELECT id FROM user_consent WHERE subject_id = ? AND purpose = ? AND version = ?",
		subjectID, string(purpose), version,
	).Scan(&existingID)

	switch err {
	case sql.ErrNoRows:
		if _, err := l.db.ExecContext(ctx,
			`INSERT INTO user_consent (id, subject_id, purpose, version, granted, granted_at, text)
			 VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP, ?)`,
			uuid.NewString(), subjectID, string(purpose), version, text,
		); err != nil {
			return wrapDB("insert consent grant", err)
		}
	case nil:
		if _, err := l.db.ExecContext(ctx,
			`UPDATE user_consent SET granted = 1, granted_at = CURRENT_TIMESTAMP,
			 revoked_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			existingID,
		); err != nil {
			return wrapDB("update consent grant", err)
		}
	default:
		return wrapDB("probe existing consent row", err)
	}

	return l.appendLog(ctx, subjectID, purpose, version, true, text, rc, "")
}

// Revoke sets granted=false and stamps revoked_at on the active grant row
// for (subject, purpose), then appends a consent_log entry.
func (l *Ledger) Revoke(ctx context.Context, subjectID string, purpose Purpose, reason string, rc RequestContext) error {
	if purpose == PurposeUnknown {
		return errs.New(errs.Validation, "unknown consent purpose")
	}
	version, text, err := l.currentVersion(ctx, purpose)
	if err != nil {
		return err
	}

	if _, err := l.db.ExecContext(ctx,
		`UPDATE user_consent SET granted = 0, revoked_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE subject_id = ? AND purpose = ? AND granted = 1 AND revoked_at IS NULL`,
		subjectID, string(purpose),
	); err != nil {
		return wrapDB("revoke consent", err)
	}

	return l.appendLog(ctx, subjectID, purpose, version, false, text, rc, reason)
}

// WithdrawAll revokes every active grant for subjectID across all
// purposes, logging each with the given reason. Returns the count of
// grants revoked.
func (l *Ledger) WithdrawAll(ctx context.Context, subjectID, reason string, rc RequestContext) (int, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT DISTINCT purpose FROM user_consent WHERE subject_id = ? AND granted = 1 AND revoked_at IS NULL",
		subjectID,
	)
	if err != nil {
		return 0, wrapDB("select active grants", err)
	}
	var purposes []Purpose
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, wrapDB("scan active grant purpose", err)
		}
		purposes = append(purposes, ParsePurpose(p))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, wrapDB("iterate active grants", err)
	}

	for _, p := range purposes {
		if err := l.Revoke(ctx, subjectID, p, reason, rc); err != nil {
			return 0, err
		}
	}
	return len(purposes), nil
}

// HasConsent reports whether the latest-version row for (subject,
// purpose) is granted and not revoked.
func (l *Ledger) HasConsent(ctx context.Context, subjectID string, purpose Purpose) (bool, error) {
	var granted bool
	err := l.db.QueryRowContext(ctx,
		`SELECT granted FROM user_consent WHERE subject_id = ? AND purpose = ? AND revoked_at IS NULL
		 ORDER BY version DESC LIMIT 1`,
		subjectID, string(purpose),
	).Scan(&granted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapDB("read consent state", err)
	}
	return granted, nil
}

// NeedsReconsent reports whether the subject has no active grant, or an
// active grant older than the purpose's current version.
func (l *Ledger) NeedsReconsent(ctx context.Context, subjectID string, purpose Purpose) (bool, error) {
	currentVersion, _, err := l.currentVersion(ctx, purpose)
	if err != nil {
		return false, err
	}

	var grantedVersion int
	err = l.db.QueryRowContext(ctx,
		`SELECT version FROM user_consent WHERE subject_id = ? AND purpose = ? AND granted = 1 AND revoked_at IS NULL
		 ORDER BY version DESC LIMIT 1`,
		subjectID, string(purpose),
	).Scan(&grantedVersion)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, wrapDB("read granted version", err)
	}
	return grantedVersion < currentVersion, nil
}

// CheckAllReconsents returns every purpose for which subjectID holds an
// active grant that has gone stale due to a version bump.
func (l *Ledger) CheckAllReconsents(ctx context.Context, subjectID string) ([]Purpose, error) {
	var stale []Purpose
	for _, p := range AllPurposes {
		has, err := l.HasConsent(ctx, subjectID, p)
		if err != nil {
			return nil, err
		}
		if !has {
			continue
		}
		needs, err := l.NeedsReconsent(ctx, subjectID, p)
		if err != nil {
			return nil, err
		}
		if needs {
			stale = append(stale, p)
		}
	}
	return stale, nil
}

// Statistics summarizes consent_log activity for compliance reporting.
func (l *Ledger) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM consent_log").Scan(&stats.TotalActions); err != nil {
		return stats, wrapDB("count consent_log", err)
	}
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM consent_log WHERE granted = 1").Scan(&stats.GrantedCount); err != nil {
		return stats, wrapDB("count granted consent_log", err)
	}
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM consent_log WHERE granted = 0").Scan(&stats.WithdrawnCount); err != nil {
		return stats, wrapDB("count withdrawn consent_log", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT purpose, granted, COUNT(*) FROM consent_log GROUP BY purpose, granted ORDER BY purpose`)
	if err != nil {
		return stats, wrapDB("query consent_log distribution", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var granted bool
		var count int
		if err := rows.Scan(&p, &granted, &count); err != nil {
			return stats, wrapDB("scan distribution row", err)
		}
		stats.Distribution = append(stats.Distribution, DistributionEntry{
			Purpose: ParsePurpose(p), Granted: granted, Count: count,
		})
	}
	return stats, rows.Err()
}

// AuditTrail returns every consent_log entry for subjectID, most recent first.
func (l *Ledger) AuditTrail(ctx context.Context, subjectID string) ([]LogEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, purpose, version, granted, timestamp, COALESCE(network_address, ''),
		        COALESCE(client_ua, ''), COALESCE(withdrawal_reason, ''), text
		 FROM consent_log WHERE subject_id = ? ORDER BY rowid DESC`,
		subjectID,
	)
	if err != nil {
		return nil, wrapDB("query consent_log", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		e := LogEntry{SubjectID: subjectID}
		var purpose string
		if err := rows.Scan(&e.ID, &purpose, &e.Version, &e.Granted, &e.Timestamp,
			&e.NetworkAddress, &e.ClientUA, &e.WithdrawalReason, &e.Text); err != nil {
			return nil, wrapDB("scan consent_log row", err)
		}
		e.Purpose = ParsePurpose(purpose)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *Ledger) appendLog(ctx context.Context, subjectID string, purpose Purpose, version int, granted bool, text string, rc RequestContext, reason string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO consent_log (id, subject_id, purpose, version, granted, network_address, client_ua, withdrawal_reason, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), subjectID, string(purpose), version, granted,
		nullIfEmpty(rc.NetworkAddress), nullIfEmpty(rc.ClientUA), nullIfEmpty(reason), text,
	)
	if err != nil {
		return wrapDB("append consent log", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func wrapDB(reason string, err error) error {
	return errs.Wrap(errs.Availability, reason, err)
}
