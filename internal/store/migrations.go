package store

// schema is the full set of tables the Encrypted Store owns, executed as
// one ordered batch of idempotent statements on every open. Each table
// uses CREATE TABLE IF NOT EXISTS so re-running against an already
// up-to-date database is a no-op; columns added after a table's original
// release go through addColumnIfMissing instead, since SQLite's ALTER
// TABLE has no IF NOT EXISTS form.
const schema = `
CREATE TABLE IF NOT EXISTS _encryption_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    cipher_preset TEXT NOT NULL,
    cipher_version INTEGER NOT NULL,
    kdf_iterations INTEGER NOT NULL DEFAULT 256000,
    page_size INTEGER NOT NULL DEFAULT 4096,
    hmac_algorithm TEXT NOT NULL DEFAULT 'HMAC-SHA512',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    rekeyed_at DATETIME
);

-- One random salt per subject, owned by the Key Manager (cryptutil.SaltStore).
-- salt_version increments on every RotateSalt so callers can tell whether
-- data encrypted under an older salt still needs migrating.
CREATE TABLE IF NOT EXISTS subject_salts (
    subject_id TEXT PRIMARY KEY,
    salt BLOB NOT NULL,
    salt_version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content_envelope TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_subject ON documents(subject_id);

CREATE TABLE IF NOT EXISTS document_chunks (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    content_envelope TEXT NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks(document_id);

-- No original text is ever stored here: only type, replacement tag,
-- confidence, and position, per the spec's "no original text" contract.
CREATE TABLE IF NOT EXISTS pii_detections (
    id TEXT PRIMARY KEY,
    document_id TEXT,
    entity_type TEXT NOT NULL,
    replacement TEXT NOT NULL,
    confidence REAL NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pii_detections_document ON pii_detections(document_id);

CREATE TABLE IF NOT EXISTS legal_cases (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    case_name TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS case_documents (
    case_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    PRIMARY KEY (case_id, document_id),
    FOREIGN KEY (case_id) REFERENCES legal_cases(id) ON DELETE CASCADE,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS query_history (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    query_envelope TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_sessions (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    title TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_subject ON chat_sessions(subject_id);

-- content starts as plaintext; the Migration Engine (C8) encrypts it in
-- place and stamps encrypted/encryption_version/subject_id.
CREATE TABLE IF NOT EXISTS chat_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (chat_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_chat ON chat_messages(chat_id);

CREATE TABLE IF NOT EXISTS user_settings (
    subject_id TEXT PRIMARY KEY,
    settings_envelope TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS consent_versions (
    purpose TEXT NOT NULL,
    version INTEGER NOT NULL,
    text TEXT NOT NULL,
    effective_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deprecated_date DATETIME,
    PRIMARY KEY (purpose, version)
);

CREATE TABLE IF NOT EXISTS user_consent (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    purpose TEXT NOT NULL,
    version INTEGER NOT NULL,
    granted INTEGER NOT NULL,
    granted_at DATETIME,
    revoked_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (subject_id, purpose, version)
);

CREATE INDEX IF NOT EXISTS idx_user_consent_subject_purpose ON user_consent(subject_id, purpose);

CREATE TABLE IF NOT EXISTS consent_log (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    purpose TEXT NOT NULL,
    version INTEGER NOT NULL,
    granted INTEGER NOT NULL,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    network_address TEXT,
    client_ua TEXT,
    withdrawal_reason TEXT,
    text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consent_log_subject ON consent_log(subject_id);

CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    subject_id TEXT,
    event_kind TEXT NOT NULL,
    entity_kind TEXT NOT NULL,
    entity_id TEXT,
    details_json TEXT NOT NULL DEFAULT '{}',
    success INTEGER NOT NULL,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_log_subject ON audit_log(subject_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);

CREATE TABLE IF NOT EXISTS processing_records (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    purpose TEXT NOT NULL,
    data_categories TEXT NOT NULL DEFAULT '[]',
    legal_basis TEXT NOT NULL,
    retention_days INTEGER,
    recipients TEXT NOT NULL DEFAULT '[]',
    controller TEXT NOT NULL,
    security_measures TEXT NOT NULL DEFAULT '[]',
    entity_kind TEXT NOT NULL,
    entity_id TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (subject_id, purpose, entity_kind, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_processing_records_subject ON processing_records(subject_id, purpose);
`

// columnAdditions lists columns that post-date a table's original
// release and so cannot live in the idempotent CREATE TABLE block above.
// Each is applied only if PRAGMA table_info reports it missing.
var columnAdditions = []struct {
	table, column, definition string
}{
	// Migration Engine (C8) stamps these on first encrypting a legacy
	// plaintext chat_messages row.
	{"chat_messages", "encrypted", "INTEGER NOT NULL DEFAULT 0"},
	{"chat_messages", "encryption_version", "INTEGER"},
	{"chat_messages", "subject_id", "TEXT"},
}

func (s *Store) runMigrations() error {
	if _, err := s.db.Exec(schema); err != nil {
		return wrapExec("run schema migrations", err)
	}
	for _, c := range columnAdditions {
		has, err := s.hasColumn(c.table, c.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		stmt := "ALTER TABLE " + c.table + " ADD COLUMN " + c.column + " " + c.definition
		if _, err := s.db.Exec(stmt); err != nil {
			return wrapExec("add column "+c.table+"."+c.column, err)
		}
	}
	return nil
}

// hasColumn probes sqlite's PRAGMA table_info rather than attempting the
// ALTER and inspecting the error, so a failed add never leaves the
// migration in a half-applied, order-dependent state.
func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, wrapExec("probe table_info("+table+")", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			dfltValue  any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &primaryKey); err != nil {
			return false, wrapExec("scan table_info("+table+")", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
