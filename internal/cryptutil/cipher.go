// Package cryptutil implements the Encrypted Persistence Core's
// cryptographic primitives: per-subject key derivation (C5, Key Manager)
// and the authenticated message envelope stored alongside application data
// (C6, Message Cipher).
//
// Every sensitive value is encrypted before it reaches the store; the store
// itself never sees plaintext and the cipher package never touches SQL.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"legalcore/internal/errs"
)

// EnvelopeVersion identifies the wire format of an Envelope. It is bumped
// whenever the encryption scheme itself changes (not on every key
// rotation — see SubjectSalt for that).
const EnvelopeVersion = 1

// Envelope is the authenticated-encryption wrapper stored for every
// sensitive value. It round-trips through JSON so it can sit directly in a
// TEXT/BLOB column without a second serialization layer.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Version    int    `json:"version"`
	SubjectID  string `json:"subjectId"`
}

// Cipher performs AES-256-GCM authenticated encryption. It holds no key
// material itself — every call takes the already-derived per-subject key,
// so a single Cipher value is safe to share across subjects and goroutines.
type Cipher struct{}

// NewCipher returns a ready-to-use Cipher.
func NewCipher() *Cipher { return &Cipher{} }

// Seal encrypts plaintext under key (must be 32 bytes, i.e. AES-256) and
// returns an Envelope tagged with subjectID. A fresh random nonce is drawn
// for every call, so sealing the same plaintext twice never yields the
// same ciphertext.
func (c *Cipher) Seal(key, plaintext []byte, subjectID string) (*Envelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(errs.Fatal, "generate nonce", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	return &Envelope{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Version:    EnvelopeVersion,
		SubjectID:  subjectID,
	}, nil
}

// Open decrypts env under key, verifying its authentication tag. A wrong
// key, a wrong subject's envelope, or any tampering with the ciphertext
// produces an errs.Integrity error, never a silent garbage plaintext.
func (c *Cipher) Open(key []byte, env *Envelope) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, errs.New(errs.Integrity, "envelope nonce has unexpected length")
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Integrity, "decrypt envelope: authentication failed", err)
	}
	return plaintext, nil
}

// SealString is a convenience wrapper for encrypting text values.
func (c *Cipher) SealString(key []byte, plaintext, subjectID string) (*Envelope, error) {
	return c.Seal(key, []byte(plaintext), subjectID)
}

// OpenString is a convenience wrapper for decrypting text values.
func (c *Cipher) OpenString(key []byte, env *Envelope) (string, error) {
	pt, err := c.Open(key, env)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// MarshalEnvelope serializes env for storage in a single TEXT/BLOB column.
func MarshalEnvelope(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "marshal envelope", err)
	}
	return data, nil
}

// UnmarshalEnvelope is the inverse of MarshalEnvelope.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.Wrap(errs.Integrity, "unmarshal envelope", err)
	}
	return &env, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, errs.New(errs.Validation, fmt.Sprintf("invalid key length: expected 32 bytes, got %d", len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "construct AES cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "construct GCM AEAD", err)
	}
	return aead, nil
}
