package store

import (
	"context"
	"path/filepath"
	"testing"

	"legalcore/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New("STORE", "error")
}

func TestCreateNew_RefusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legalcore.db")

	s, err := CreateNew(path, PresetBalanced, testLogger())
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	s.Close()

	if _, err := CreateNew(path, PresetBalanced, testLogger()); err == nil {
		t.Fatal("expected CreateNew to refuse an existing file")
	}
}

func TestConnect_VerifiesEncryptionMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legalcore.db")

	s, err := CreateNew(path, PresetHighSecurity, testLogger())
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	s.Close()

	s2, err := Connect(path, testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s2.Close()
	if s2.preset != PresetHighSecurity {
		t.Errorf("expected preset %s, got %s", PresetHighSecurity, s2.preset)
	}
}

func TestCreateNew_StampsPresetParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legalcore.db")

	s, err := CreateNew(path, PresetHighSecurity, testLogger())
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	defer s.Close()

	var iterations, pageSize int
	var hmac string
	if err := s.db.QueryRow(
		"SELECT kdf_iterations, page_size, hmac_algorithm FROM _encryption_meta WHERE id = 1",
	).Scan(&iterations, &pageSize, &hmac); err != nil {
		t.Fatalf("query _encryption_meta: %v", err)
	}
	want := cipherPresetParams[PresetHighSecurity]
	if iterations != want.kdfIterations {
		t.Errorf("kdf_iterations: got %d, want %d", iterations, want.kdfIterations)
	}
	if pageSize != want.pageSize {
		t.Errorf("page_size: got %d, want %d", pageSize, want.pageSize)
	}
	if hmac != want.hmacAlgorithm {
		t.Errorf("hmac_algorithm: got %s, want %s", hmac, want.hmacAlgorithm)
	}
}

func TestHealthCheck_ReportsOK(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	report, err := s.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if !report.OK {
		t.Error("expected healthy report")
	}
}

func TestSaltStore_GetPutRoundTrip(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, found, err := s.GetSalt("subject-1"); err != nil || found {
		t.Fatalf("expected no salt yet, got found=%v err=%v", found, err)
	}

	salt := []byte("0123456789abcdef")
	if err := s.PutSalt("subject-1", salt); err != nil {
		t.Fatalf("PutSalt: %v", err)
	}

	got, found, err := s.GetSalt("subject-1")
	if err != nil || !found {
		t.Fatalf("GetSalt: found=%v err=%v", found, err)
	}
	if string(got) != string(salt) {
		t.Errorf("got %q, want %q", got, salt)
	}
}

func TestMigrations_AddsChatMessageColumns(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	for _, col := range []string{"encrypted", "encryption_version", "subject_id"} {
		has, err := s.hasColumn("chat_messages", col)
		if err != nil {
			t.Fatalf("hasColumn(%s): %v", col, err)
		}
		if !has {
			t.Errorf("expected chat_messages.%s to exist after migration", col)
		}
	}
}

func TestMigrations_IdempotentOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legalcore.db")

	s1, err := CreateNew(path, PresetBalanced, testLogger())
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	s1.Close()

	s2, err := Connect(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if err := s2.runMigrations(); err != nil {
		t.Fatalf("re-running migrations should be a no-op, got: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "legalcore.db")
	s, err := CreateNew(path, PresetBalanced, testLogger())
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	return s
}
