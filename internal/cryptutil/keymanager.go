package cryptutil

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/99designs/keyring"
	"golang.org/x/crypto/argon2"

	"legalcore/internal/errs"
)

// masterKeyringKey is the single keyring item holding the installation's
// master key. One installation, one master key; every subject's storage
// key is derived from it plus that subject's persisted salt.
const masterKeyringKey = "legalcore-master-key"

const masterKeySize = 32 // AES-256

// Argon2id cost parameters for per-subject key derivation. This is an
// unconditional floor: nothing in configuration, including the Encrypted
// Store's cipher preset, can push derivation below it. 64 MiB / 3
// iterations / 4 lanes matches the floor a memory-hard KDF needs to resist
// hardware-accelerated brute force on a leaked database.
const (
	argon2MemoryKiB uint32 = 64 * 1024
	argon2Time      uint32 = 3
	argon2Threads   uint8  = 4
)

// SaltStore persists the one salt-per-subject table (SubjectSalt) that
// keeps per-subject key derivation from reusing a predictable salt (an
// explicitly flagged weakness in key derivation schemes that salt by
// subject identifier alone). Implemented by the store package; defined
// here to avoid an import cycle.
type SaltStore interface {
	GetSalt(subjectID string) ([]byte, bool, error)
	PutSalt(subjectID string, salt []byte) error
}

// KeyManager is the Key Manager (C5): it owns the installation master key
// (held in the OS credential store) and derives per-subject AES-256 keys
// from it via Argon2id, using a persisted random salt unique to each
// subject.
type KeyManager struct {
	mu     sync.Mutex
	ring   keyring.Keyring
	salts  SaltStore
	cached []byte // master key, loaded lazily and cached for process lifetime
}

// KeyManagerConfig configures keyring backend selection. FileDir and
// FilePasswordFunc are only consulted when the OS-native backends
// (Keychain, Secret Service, Windows Credential Manager) are unavailable.
type KeyManagerConfig struct {
	ServiceName      string
	FileDir          string
	FilePasswordFunc keyring.PromptFunc
	Salts            SaltStore
}

// NewKeyManager opens the configured keyring backend. It does not touch
// the master key itself until first use (GetSubjectKey or RotateSalt),
// so construction never prompts for OS credential access.
func NewKeyManager(cfg KeyManagerConfig) (*KeyManager, error) {
	kr, err := keyring.Open(keyring.Config{
		ServiceName: cfg.ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.FileBackend,
		},
		FileDir:          cfg.FileDir,
		FilePasswordFunc: cfg.FilePasswordFunc,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Availability, "open credential store", err)
	}
	return &KeyManager{ring: kr, salts: cfg.Salts}, nil
}

// masterKey returns the installation master key, generating and persisting
// one to the keyring on first use.
func (km *KeyManager) masterKey() ([]byte, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.cached != nil {
		return km.cached, nil
	}

	item, err := km.ring.Get(masterKeyringKey)
	switch err {
	case nil:
		if len(item.Data) != masterKeySize {
			return nil, errs.New(errs.Integrity, "stored master key has unexpected length")
		}
		km.cached = item.Data
		return km.cached, nil
	case keyring.ErrKeyNotFound:
		key := make([]byte, masterKeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, errs.Wrap(errs.Fatal, "generate master key", err)
		}
		if err := km.ring.Set(keyring.Item{
			Key:  masterKeyringKey,
			Data: key,
		}); err != nil {
			return nil, errs.Wrap(errs.Availability, "persist master key", err)
		}
		km.cached = key
		return km.cached, nil
	default:
		return nil, errs.Wrap(errs.Availability, "read master key", err)
	}
}

// GetSubjectKey derives subjectID's AES-256 storage key from the master
// key and subjectID's persisted salt, generating and persisting a new
// random salt on first use. The same subjectID always yields the same key
// until RotateSalt is called for it.
func (km *KeyManager) GetSubjectKey(subjectID string) ([]byte, error) {
	master, err := km.masterKey()
	if err != nil {
		return nil, err
	}

	salt, found, err := km.salts.GetSalt(subjectID)
	if err != nil {
		return nil, errs.Wrap(errs.Availability, "load subject salt", err)
	}
	if !found {
		salt, err = km.newSalt()
		if err != nil {
			return nil, err
		}
		if err := km.salts.PutSalt(subjectID, salt); err != nil {
			return nil, errs.Wrap(errs.Availability, "persist subject salt", err)
		}
	}

	return km.derive(master, salt), nil
}

// RotateSalt replaces subjectID's persisted salt with a fresh random one,
// which changes every key subsequently derived for that subject. Rotation
// is never automatic: callers must re-encrypt any data protected under the
// old key (the store package's Rekey operation does this) before or as
// part of calling RotateSalt, or existing ciphertext becomes unreadable.
func (km *KeyManager) RotateSalt(subjectID string) ([]byte, error) {
	salt, err := km.newSalt()
	if err != nil {
		return nil, err
	}
	if err := km.salts.PutSalt(subjectID, salt); err != nil {
		return nil, errs.Wrap(errs.Availability, "persist rotated subject salt", err)
	}
	master, err := km.masterKey()
	if err != nil {
		return nil, err
	}
	return km.derive(master, salt), nil
}

func (km *KeyManager) newSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errs.Wrap(errs.Fatal, "generate subject salt", err)
	}
	return salt, nil
}

func (km *KeyManager) derive(master, salt []byte) []byte {
	return argon2.IDKey(master, salt, argon2Time, argon2MemoryKiB, argon2Threads, masterKeySize)
}
