// Package audit implements the Audit Log (C12): an append-only record of
// every processing event and rights exercise, stored inside the same
// encrypted database the rest of the core uses. Nothing in this package
// ever takes a PII payload as an argument — callers pass only entity
// kinds, identifiers, and counts, per the observability design note that
// PII must never reach a log line.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"legalcore/internal/errs"
)

// EventKind is the closed alphabet of audit event kinds named by the
// spec: consent grant/revoke, data access, data deletion, policy denial,
// cryptographic rekey, migration completion.
type EventKind string

const (
	EventConsentGrant      EventKind = "consent_grant"
	EventConsentRevoke     EventKind = "consent_revoke"
	EventDataAccess        EventKind = "data_access"
	EventDataDeletion      EventKind = "data_deletion"
	EventPolicyDenial      EventKind = "policy_denial"
	EventCryptoRekey       EventKind = "crypto_rekey"
	EventMigrationComplete EventKind = "migration_complete"
)

// Entry mirrors one append-only row of audit_log.
type Entry struct {
	ID          string
	Timestamp   string
	SubjectID   string
	EventKind   EventKind
	EntityKind  string
	EntityID    string
	DetailsJSON string
	Success     bool
	Error       string
}

// Log is the Audit Log (C12). It owns the audit_log table exclusively.
type Log struct {
	db *sql.DB
}

// New wraps an open *sql.DB (normally store.Store.DB()).
func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record appends one audit entry. details is marshaled to JSON; pass nil
// for no structured details. A marshal failure degrades to an empty
// object rather than dropping the entry — a swallowed audit write is
// itself a compliance gap.
func (l *Log) Record(ctx context.Context, kind EventKind, subjectID, entityKind, entityID string, details any, success bool, errMsg string) error {
	detailsJSON := "{}"
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		}
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, subject_id, event_kind, entity_kind, entity_id, details_json, success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), nullIfEmpty(subjectID), string(kind), entityKind, nullIfEmpty(entityID),
		detailsJSON, success, nullIfEmpty(errMsg),
	)
	if err != nil {
		return errs.Wrap(errs.Availability, "append audit entry", err)
	}
	return nil
}

// ForSubject returns every audit entry for subjectID, oldest first —
// readers observe a monotonic prefix, per the ordering guarantee.
func (l *Log) ForSubject(ctx context.Context, subjectID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, timestamp, subject_id, event_kind, entity_kind, COALESCE(entity_id, ''),
		        details_json, success, COALESCE(error, '')
		 FROM audit_log WHERE subject_id = ? ORDER BY rowid ASC`,
		subjectID,
	)
	if err != nil {
		return nil, errs.Wrap(errs.Availability, "query audit_log", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Tail returns the most recent n audit entries across all subjects, for
// the admin surface's log-tail view.
func (l *Log) Tail(ctx context.Context, n int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, timestamp, COALESCE(subject_id, ''), event_kind, entity_kind, COALESCE(entity_id, ''),
		        details_json, success, COALESCE(error, '')
		 FROM audit_log ORDER BY rowid DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, errs.Wrap(errs.Availability, "query audit_log tail", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.SubjectID, &kind, &e.EntityKind, &e.EntityID,
			&e.DetailsJSON, &e.Success, &e.Error); err != nil {
			return nil, errs.Wrap(errs.Availability, "scan audit_log row", err)
		}
		e.EventKind = EventKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
