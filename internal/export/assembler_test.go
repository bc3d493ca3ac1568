package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"

	"legalcore/internal/consent"
	"legalcore/internal/cryptutil"
	"legalcore/internal/logger"
	"legalcore/internal/store"
)

func newTestAssembler(t *testing.T) (*Assembler, *store.Store, *cryptutil.KeyManager, *cryptutil.Cipher) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.CreateNew(filepath.Join(dir, "legalcore.db"), store.PresetPerformance, logger.New("STORE", "error"))
	if err != nil {
		t.Fatalf("store.CreateNew: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	km, err := cryptutil.NewKeyManager(cryptutil.KeyManagerConfig{
		ServiceName:      "legalcore-export-test",
		FileDir:          t.TempDir(),
		FilePasswordFunc: keyring.PromptFunc(func(string) (string, error) { return "test-password", nil }),
		Salts:            s,
	})
	if err != nil {
		t.Fatalf("NewKeyManager: %v", err)
	}
	cipher := cryptutil.NewCipher()

	ledger, err := consent.NewLedger(context.Background(), s.DB())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	return New(s.DB(), ledger, km, cipher), s, km, cipher
}

func seedChat(t *testing.T, s *store.Store, km *cryptutil.KeyManager, cipher *cryptutil.Cipher, subjectID, chatID string, messages []string) {
	t.Helper()
	if _, err := s.DB().Exec(
		"INSERT INTO chat_sessions (id, subject_id, title) VALUES (?, ?, ?)",
		chatID, subjectID, "export test chat",
	); err != nil {
		t.Fatalf("seed chat_sessions: %v", err)
	}
	key, err := km.GetSubjectKey(subjectID)
	if err != nil {
		t.Fatalf("GetSubjectKey: %v", err)
	}
	for _, m := range messages {
		env, err := cipher.SealString(key, m, subjectID)
		if err != nil {
			t.Fatalf("SealString: %v", err)
		}
		envJSON, err := cryptutil.MarshalEnvelope(env)
		if err != nil {
			t.Fatalf("MarshalEnvelope: %v", err)
		}
		if _, err := s.DB().Exec(
			"INSERT INTO chat_messages (chat_id, role, content, encrypted, subject_id) VALUES (?, 'user', ?, 1, ?)",
			chatID, string(envJSON), subjectID,
		); err != nil {
			t.Fatalf("seed chat_messages: %v", err)
		}
	}
}

func TestAssemble_IncludesChatsAndConsents(t *testing.T) {
	asm, s, km, cipher := newTestAssembler(t)
	ctx := context.Background()

	seedChat(t, s, km, cipher, "u1", "chat-1", []string{"hello counsel"})

	ledger, err := consent.NewLedger(ctx, s.DB())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	if err := ledger.Grant(ctx, "u1", consent.PurposeChatStorage, consent.RequestContext{}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	snap, err := asm.Assemble(ctx, "u1", "2026-07-31T00:00:00Z")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(snap.Chats) != 1 || len(snap.Chats[0].Messages) != 1 {
		t.Fatalf("unexpected chats: %+v", snap.Chats)
	}
	if snap.Chats[0].Messages[0].Content != "hello counsel" {
		t.Errorf("expected decrypted message, got %q", snap.Chats[0].Messages[0].Content)
	}
	if len(snap.Consents) != 1 {
		t.Errorf("expected 1 consent record, got %d", len(snap.Consents))
	}
	if snap.Metadata.IntegrityHash == "" {
		t.Error("expected non-empty integrity hash")
	}
}

func TestAssemble_IntegrityHashIsReproducible(t *testing.T) {
	asm, s, km, cipher := newTestAssembler(t)
	ctx := context.Background()
	seedChat(t, s, km, cipher, "u1", "chat-1", []string{"one", "two"})

	snap, err := asm.Assemble(ctx, "u1", "2026-07-31T00:00:00Z")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(snap.Metadata.IntegrityHash) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(snap.Metadata.IntegrityHash))
	}
	if !Verify(snap) {
		t.Error("expected freshly assembled snapshot to verify")
	}

	snap.SubjectID = "tampered"
	if Verify(snap) {
		t.Error("expected tampered snapshot to fail verification")
	}
}

func TestAssemble_SettingsAbsentByDefault(t *testing.T) {
	asm, _, _, _ := newTestAssembler(t)
	snap, err := asm.Assemble(context.Background(), "nobody", "2026-07-31T00:00:00Z")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if snap.Settings.Present {
		t.Error("expected no settings for a subject with none recorded")
	}
}
