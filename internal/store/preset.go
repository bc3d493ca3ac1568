package store

// CipherPreset selects the Encrypted Store's at-rest configuration: KDF
// iteration count, page size, and HMAC algorithm. Named and cost-ordered
// to match SQLCipher's own balanced/high-security/performance presets,
// even though the encryption itself is an application-level AEAD envelope
// (internal/cryptutil) layered around sensitive columns rather than a
// compiled-in page cipher. This preset is a Store-only concern: it has no
// bearing on the Key Manager's Argon2id subject-key derivation, which
// enforces its own floor unconditionally.
type CipherPreset string

const (
	PresetPerformance  CipherPreset = "performance"
	PresetBalanced     CipherPreset = "balanced"
	PresetHighSecurity CipherPreset = "high_security"
)

// presetParams are the concrete knobs a CipherPreset realizes against the
// connection: KDF iteration count (recorded in _encryption_meta as the
// at-rest posture, since the envelope layer does its own key derivation
// via the Key Manager), page size (set via PRAGMA page_size before the
// schema is first created), and the HMAC algorithm used for page
// integrity in a true page-cipher database.
type presetParams struct {
	kdfIterations int
	pageSize      int
	hmacAlgorithm string
}

var cipherPresetParams = map[CipherPreset]presetParams{
	PresetPerformance:  {kdfIterations: 64_000, pageSize: 8192, hmacAlgorithm: "HMAC-SHA256"},
	PresetBalanced:     {kdfIterations: 256_000, pageSize: 4096, hmacAlgorithm: "HMAC-SHA512"},
	PresetHighSecurity: {kdfIterations: 500_000, pageSize: 4096, hmacAlgorithm: "HMAC-SHA512"},
}

// ParseCipherPreset validates a configured preset name, falling back to
// PresetBalanced for anything unrecognized so a typo in configuration
// degrades to a safe default rather than failing store setup outright.
func ParseCipherPreset(s string) CipherPreset {
	switch CipherPreset(s) {
	case PresetPerformance, PresetBalanced, PresetHighSecurity:
		return CipherPreset(s)
	default:
		return PresetBalanced
	}
}
