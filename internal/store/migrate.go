package store

import (
	"context"
	"database/sql"
	"sync"

	"legalcore/internal/cryptutil"
	"legalcore/internal/errs"
)

// migrationMu makes Migrate and Rollback globally exclusive across the
// process, per the spec's "concurrent migrations are prevented by a
// process-wide mutex" ordering guarantee.
var migrationMu sync.Mutex

// defaultSubject is used for legacy rows with no associable subject,
// matching the Migration Engine's documented fallback.
const defaultSubject = "default_user"

// batchSize bounds how many plaintext rows are read and re-written per
// iteration, so a multi-million-row database doesn't hold every
// decrypted plaintext in memory at once.
const batchSize = 100

// MigrationReport summarizes one Migrate call, per the progress/rollback
// contract: every row is accounted for as either encrypted or failed,
// and the two always sum to total.
type MigrationReport struct {
	Total     int
	Encrypted int
	Failed    int
}

// ProgressFunc is invoked after each processed row with (done, total).
type ProgressFunc func(done, total int)

// Migrate converts existing plaintext chat_messages rows into encrypted
// Envelope records in a single atomic transaction. It is idempotent:
// rows already marked encrypted are skipped, so re-running Migrate after
// a partial prior run (or on an already-migrated database) is a no-op.
//
// A concurrent migration is prevented by migrationMu, a process-wide
// mutex — the spec requires migrations be "globally exclusive".
func (s *Store) Migrate(ctx context.Context, km *cryptutil.KeyManager, cipher *cryptutil.Cipher, progress ProgressFunc) (MigrationReport, error) {
	migrationMu.Lock()
	defer migrationMu.Unlock()

	var report MigrationReport

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_messages WHERE encrypted IS NULL OR encrypted = 0",
	).Scan(&total); err != nil {
		return report, wrapExec("count plaintext rows", err)
	}
	report.Total = total
	if total == 0 {
		return report, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, wrapExec("begin migration transaction", err)
	}
	defer tx.Rollback()

	done := 0
	var lastID int64
	for {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, chat_id, content, subject_id FROM chat_messages
			 WHERE (encrypted IS NULL OR encrypted = 0) AND id > ?
			 ORDER BY id LIMIT ?`, lastID, batchSize,
		)
		if err != nil {
			return report, wrapExec("select plaintext batch", err)
		}

		type row struct {
			id        int64
			chatID    string
			content   string
			subjectID sql.NullString
		}
		var batch []row
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.id, &r.chatID, &r.content, &r.subjectID); err != nil {
				rows.Close()
				return report, wrapExec("scan plaintext row", err)
			}
			batch = append(batch, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return report, wrapExec("iterate plaintext batch", err)
		}
		rows.Close()

		if len(batch) == 0 {
			break
		}

		for _, r := range batch {
			lastID = r.id
			subjectID := defaultSubject
			if r.subjectID.Valid && r.subjectID.String != "" {
				subjectID = r.subjectID.String
			}

			if err := s.migrateRow(ctx, tx, km, cipher, r.id, subjectID, r.content); err != nil {
				report.Failed++
			} else {
				report.Encrypted++
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return MigrationReport{}, wrapExec("commit migration transaction", err)
	}
	return report, nil
}

func (s *Store) migrateRow(ctx context.Context, tx *sql.Tx, km *cryptutil.KeyManager, cipher *cryptutil.Cipher, id int64, subjectID, plaintext string) error {
	key, err := km.GetSubjectKey(subjectID)
	if err != nil {
		return err
	}
	env, err := cipher.SealString(key, plaintext, subjectID)
	if err != nil {
		return err
	}
	data, err := cryptutil.MarshalEnvelope(env)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE chat_messages
		 SET content = ?, encrypted = 1, encryption_version = ?, subject_id = ?
		 WHERE id = ?`,
		string(data), env.Version, subjectID, id,
	)
	if err != nil {
		return errs.Wrap(errs.Integrity, "write encrypted row", err)
	}
	return nil
}

// Rollback performs the inverse of Migrate: it decrypts every row marked
// encrypted back to plaintext and clears the encrypted flag. It is
// explicitly dangerous — plaintext PII returns to the database — and is
// provided only for the narrow case of reverting a migration that turned
// out to target the wrong key or subject.
func (s *Store) Rollback(ctx context.Context, km *cryptutil.KeyManager, cipher *cryptutil.Cipher) (MigrationReport, error) {
	migrationMu.Lock()
	defer migrationMu.Unlock()

	var report MigrationReport

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, wrapExec("begin rollback transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id, content, subject_id FROM chat_messages WHERE encrypted = 1")
	if err != nil {
		return report, wrapExec("select encrypted rows", err)
	}

	type row struct {
		id        int64
		content   string
		subjectID sql.NullString
	}
	var batch []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.content, &r.subjectID); err != nil {
			rows.Close()
			return report, wrapExec("scan encrypted row", err)
		}
		batch = append(batch, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, wrapExec("iterate encrypted rows", err)
	}

	report.Total = len(batch)
	for _, r := range batch {
		env, err := cryptutil.UnmarshalEnvelope([]byte(r.content))
		if err != nil {
			report.Failed++
			continue
		}
		subjectID := defaultSubject
		if r.subjectID.Valid && r.subjectID.String != "" {
			subjectID = r.subjectID.String
		}
		key, err := km.GetSubjectKey(subjectID)
		if err != nil {
			report.Failed++
			continue
		}
		plaintext, err := cipher.OpenString(key, env)
		if err != nil {
			report.Failed++
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE chat_messages SET content = ?, encrypted = 0, encryption_version = NULL WHERE id = ?",
			plaintext, r.id,
		); err != nil {
			report.Failed++
			continue
		}
		report.Encrypted++
	}

	if err := tx.Commit(); err != nil {
		return MigrationReport{}, wrapExec("commit rollback transaction", err)
	}
	return report, nil
}
