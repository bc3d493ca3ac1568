package cryptutil

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestCipher_SealOpenRoundTrip(t *testing.T) {
	c := NewCipher()
	key := testKey()
	plaintext := []byte("sensitive legal conversation about Case #12345")

	env, err := c.Seal(key, plaintext, "subject-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if env.SubjectID != "subject-1" || env.Version != EnvelopeVersion {
		t.Errorf("unexpected envelope metadata: %+v", env)
	}

	got, err := c.Open(key, env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("got %q, want %q", got, plaintext)
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	c := NewCipher()
	key := testKey()
	wrongKey := make([]byte, 32)
	copy(wrongKey, key)
	wrongKey[0] ^= 0xFF

	env, err := c.Seal(key, []byte("secret"), "s1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := c.Open(wrongKey, env); err == nil {
		t.Error("expected Open with wrong key to fail")
	}
}

func TestCipher_TamperedCiphertextFails(t *testing.T) {
	c := NewCipher()
	key := testKey()
	env, err := c.Seal(key, []byte("important message"), "s1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(env.Ciphertext) == 0 {
		t.Fatal("expected non-empty ciphertext")
	}
	env.Ciphertext[0] ^= 0xFF
	if _, err := c.Open(key, env); err == nil {
		t.Error("expected tampered ciphertext to fail authentication")
	}
}

func TestCipher_DifferentNoncesEachSeal(t *testing.T) {
	c := NewCipher()
	key := testKey()
	e1, _ := c.Seal(key, []byte("same message"), "s1")
	e2, _ := c.Seal(key, []byte("same message"), "s1")
	if bytes.Equal(e1.Nonce, e2.Nonce) {
		t.Error("expected distinct nonces across Seal calls")
	}
	if bytes.Equal(e1.Ciphertext, e2.Ciphertext) {
		t.Error("expected distinct ciphertexts across Seal calls")
	}
}

func TestCipher_RejectsWrongKeyLength(t *testing.T) {
	c := NewCipher()
	if _, err := c.Seal([]byte("too-short"), []byte("data"), "s1"); err == nil {
		t.Error("expected error for non-32-byte key")
	}
}

func TestCipher_EmptyAndUnicodePlaintext(t *testing.T) {
	c := NewCipher()
	key := testKey()
	for _, s := range []string{"", "legal case 法律案件 дело 🏛️⚖️"} {
		env, err := c.SealString(key, s, "s1")
		if err != nil {
			t.Fatalf("SealString(%q): %v", s, err)
		}
		got, err := c.OpenString(key, env)
		if err != nil {
			t.Fatalf("OpenString(%q): %v", s, err)
		}
		if got != s {
			t.Errorf("got %q, want %q", got, s)
		}
	}
}

func TestEnvelope_MarshalUnmarshalRoundTrip(t *testing.T) {
	c := NewCipher()
	key := testKey()
	env, _ := c.Seal(key, []byte("payload"), "s1")

	data, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatalf("MarshalEnvelope: %v", err)
	}
	back, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if back.SubjectID != env.SubjectID || !bytes.Equal(back.Nonce, env.Nonce) {
		t.Errorf("round trip mismatch: got %+v, want %+v", back, env)
	}

	pt, err := c.Open(key, back)
	if err != nil {
		t.Fatalf("Open after round trip: %v", err)
	}
	if string(pt) != "payload" {
		t.Errorf("got %q, want %q", pt, "payload")
	}
}
