package export

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"legalcore/internal/consent"
	"legalcore/internal/cryptutil"
	"legalcore/internal/errs"
)

// Assembler is the Data Export Assembler (C11). It only reads from the
// Encrypted Store and the Consent Ledger — it never writes to either —
// and produces a Snapshot ready for rendering.
type Assembler struct {
	db     *sql.DB
	ledger *consent.Ledger
	km     *cryptutil.KeyManager
	cipher *cryptutil.Cipher
}

// New builds an Assembler over an already-open store connection.
func New(db *sql.DB, ledger *consent.Ledger, km *cryptutil.KeyManager, cipher *cryptutil.Cipher) *Assembler {
	return &Assembler{db: db, ledger: ledger, km: km, cipher: cipher}
}

// Assemble gathers everything held about subjectID into one Snapshot and
// stamps its integrity hash. exportTime is passed in by the caller (e.g.
// time.Now().UTC().Format(time.RFC3339)) since this package must not call
// time.Now() itself to stay reproducible under test.
func (a *Assembler) Assemble(ctx context.Context, subjectID, exportTime string) (*Snapshot, error) {
	chats, err := a.chats(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	documents, err := a.documents(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	settings, err := a.settings(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	consents, err := a.consents(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	auditTrail, err := a.auditTrail(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SubjectID:  subjectID,
		ExportTime: exportTime,
		Chats:      chats,
		Documents:  documents,
		Settings:   settings,
		Consents:   consents,
		AuditTrail: auditTrail,
	}
	snap.Metadata = Metadata{
		FormatVersion: formatVersion,
		AppVersion:    appVersion,
		IntegrityHash: integrityHash(snap),
		Compliance: Compliance{
			Portability:       true,
			Encrypted:         true,
			IntegrityVerified: true,
		},
	}
	return snap, nil
}

// Verify recomputes the integrity hash over snap's identifying fields and
// reports whether it still matches snap.Metadata.IntegrityHash. This is
// the check a caller runs after reading an exported JSON document back in.
func Verify(snap *Snapshot) bool {
	return integrityHash(snap) == snap.Metadata.IntegrityHash
}

// integrityHash is a SHA-256 hex digest over a stable serialization of the
// snapshot's identifying fields: subject, export time, and the count of
// each collection. It intentionally excludes free-text content (messages,
// document titles) so that re-hashing after a lossless re-render of the
// same counts reproduces the same 64 hex characters, per the export
// integrity contract.
func integrityHash(snap *Snapshot) string {
	var b strings.Builder
	b.WriteString(snap.SubjectID)
	b.WriteByte('|')
	b.WriteString(snap.ExportTime)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(snap.Chats)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(snap.Documents)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(snap.Consents)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(snap.AuditTrail)))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (a *Assembler) chats(ctx context.Context, subjectID string) ([]ChatExport, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, COALESCE(title, ''), created_at FROM chat_sessions WHERE subject_id = ? ORDER BY created_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, wrapQuery("query chat_sessions", err)
	}
	defer rows.Close()

	var chats []ChatExport
	for rows.Next() {
		var c ChatExport
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, wrapQuery("scan chat_sessions", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQuery("iterate chat_sessions", err)
	}

	for i := range chats {
		messages, err := a.messages(ctx, chats[i].ID, subjectID)
		if err != nil {
			return nil, err
		}
		chats[i].Messages = messages
	}
	return chats, nil
}

func (a *Assembler) messages(ctx context.Context, chatID, subjectID string) ([]MessageExport, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT role, content, created_at, encrypted FROM chat_messages WHERE chat_id = ? ORDER BY id ASC`,
		chatID,
	)
	if err != nil {
		return nil, wrapQuery("query chat_messages", err)
	}
	defer rows.Close()

	var messages []MessageExport
	for rows.Next() {
		var role, content, createdAt string
		var encrypted bool
		if err := rows.Scan(&role, &content, &createdAt, &encrypted); err != nil {
			return nil, wrapQuery("scan chat_messages", err)
		}
		plaintext := content
		if encrypted {
			decoded, err := a.decryptColumn(subjectID, content)
			if err != nil {
				plaintext = "[export: unable to decrypt message]"
			} else {
				plaintext = decoded
			}
		}
		messages = append(messages, MessageExport{Role: role, Content: plaintext, Timestamp: createdAt})
	}
	return messages, rows.Err()
}

func (a *Assembler) decryptColumn(subjectID, envelopeJSON string) (string, error) {
	if a.km == nil || a.cipher == nil {
		return "", errs.New(errs.Integrity, "assembler has no key manager configured")
	}
	env, err := cryptutil.UnmarshalEnvelope([]byte(envelopeJSON))
	if err != nil {
		return "", errs.Wrap(errs.Integrity, "unmarshal envelope", err)
	}
	key, err := a.km.GetSubjectKey(subjectID)
	if err != nil {
		return "", err
	}
	return a.cipher.OpenString(key, env)
}

func (a *Assembler) documents(ctx context.Context, subjectID string) ([]DocumentExport, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM documents WHERE subject_id = ? ORDER BY created_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, wrapQuery("query documents", err)
	}
	defer rows.Close()

	var documents []DocumentExport
	for rows.Next() {
		var d DocumentExport
		if err := rows.Scan(&d.ID, &d.Title, &d.CreatedAt); err != nil {
			return nil, wrapQuery("scan documents", err)
		}
		documents = append(documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQuery("iterate documents", err)
	}

	for i := range documents {
		detections, err := a.piiDetections(ctx, documents[i].ID)
		if err != nil {
			return nil, err
		}
		documents[i].PiiDetections = detections
	}
	return documents, nil
}

func (a *Assembler) piiDetections(ctx context.Context, documentID string) ([]PiiDetection, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT entity_type, replacement, confidence, start_offset, end_offset
		 FROM pii_detections WHERE document_id = ? ORDER BY start_offset ASC`,
		documentID,
	)
	if err != nil {
		return nil, wrapQuery("query pii_detections", err)
	}
	defer rows.Close()

	var detections []PiiDetection
	for rows.Next() {
		var d PiiDetection
		if err := rows.Scan(&d.EntityType, &d.Replacement, &d.Confidence, &d.Start, &d.End); err != nil {
			return nil, wrapQuery("scan pii_detections", err)
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}

func (a *Assembler) settings(ctx context.Context, subjectID string) (SettingsExport, error) {
	var envelopeJSON string
	err := a.db.QueryRowContext(ctx,
		`SELECT settings_envelope FROM user_settings WHERE subject_id = ?`, subjectID,
	).Scan(&envelopeJSON)
	if err == sql.ErrNoRows {
		return SettingsExport{Present: false}, nil
	}
	if err != nil {
		return SettingsExport{}, wrapQuery("query user_settings", err)
	}

	plaintext, err := a.decryptColumn(subjectID, envelopeJSON)
	if err != nil {
		return SettingsExport{Present: true, Settings: "[export: unable to decrypt settings]"}, nil
	}
	return SettingsExport{Present: true, Settings: plaintext}, nil
}

func (a *Assembler) consents(ctx context.Context, subjectID string) ([]ConsentExport, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT purpose, version, granted, COALESCE(granted_at, ''), COALESCE(revoked_at, '')
		 FROM user_consent WHERE subject_id = ? ORDER BY purpose ASC, version ASC`,
		subjectID,
	)
	if err != nil {
		return nil, wrapQuery("query user_consent", err)
	}
	defer rows.Close()

	var consents []ConsentExport
	for rows.Next() {
		var c ConsentExport
		if err := rows.Scan(&c.Purpose, &c.Version, &c.Granted, &c.GrantedAt, &c.RevokedAt); err != nil {
			return nil, wrapQuery("scan user_consent", err)
		}
		consents = append(consents, c)
	}
	return consents, rows.Err()
}

func (a *Assembler) auditTrail(ctx context.Context, subjectID string) ([]AuditExport, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT timestamp, event_kind, success FROM audit_log WHERE subject_id = ? ORDER BY timestamp ASC, id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, wrapQuery("query audit_log", err)
	}
	defer rows.Close()

	var entries []AuditExport
	for rows.Next() {
		var e AuditExport
		if err := rows.Scan(&e.Timestamp, &e.EventKind, &e.Success); err != nil {
			return nil, wrapQuery("scan audit_log", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func wrapQuery(action string, err error) error {
	return errs.Wrap(errs.Availability, fmt.Sprintf("export assembler: %s", action), err)
}
