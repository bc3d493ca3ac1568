// Package config loads and holds all LegalCore configuration.
// Settings are layered: defaults → legalcore-config.json → environment
// variables (env vars win).
package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the full LegalCore configuration.
type Config struct {
	DataDir         string `json:"dataDir"`
	DBFile          string `json:"dbFile"`
	ManagementPort  int    `json:"managementPort"`
	ManagementToken string `json:"managementToken"`
	LogLevel        string `json:"logLevel"`

	// CipherPreset selects the Encrypted Store's at-rest parameter bundle
	// (KDF iteration count, page size, HMAC algorithm): "balanced",
	// "high_security", or "performance". It has no bearing on the Key
	// Manager's Argon2id subject-key derivation, which enforces its own
	// floor unconditionally.
	CipherPreset string `json:"cipherPreset"`

	// ConsentStrictMode selects the default Consent Guard enforcement
	// mode: strict (expired consent blocks) or lenient (only missing
	// consent blocks).
	ConsentStrictMode bool `json:"consentStrictMode"`

	// UseLocalNER enables the L2 local NER detection layer.
	UseLocalNER bool `json:"useLocalNER"`
	// UseExternalAnalyzer enables the L3 external-analyzer subprocess layer.
	UseExternalAnalyzer bool `json:"useExternalAnalyzer"`
	// ExternalAnalyzerPath is the executable invoked for L3 detection.
	ExternalAnalyzerPath string `json:"externalAnalyzerPath"`
	// ExternalAnalyzerTimeoutMS bounds how long L3 is allowed to run.
	ExternalAnalyzerTimeoutMS int `json:"externalAnalyzerTimeoutMS"`

	// PiiConfidenceThreshold is the Span Reconciler's confidence floor:
	// candidates scoring below it are dropped before clustering.
	PiiConfidenceThreshold float64 `json:"piiConfidenceThreshold"`

	// ExclusionOverrideDir, if non-empty, is scanned for *.json exclusion
	// region files that take precedence over the embedded defaults.
	ExclusionOverrideDir string `json:"exclusionOverrideDir"`

	// DetectionCacheFile is the bbolt file backing the L3 detection
	// cache; empty means in-memory only.
	DetectionCacheFile string `json:"detectionCacheFile"`

	// ExportDir is where Data Export Assembler output is written.
	ExportDir string `json:"exportDir"`
}

// Load returns config with defaults overridden by legalcore-config.json
// and environment variables.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "legalcore-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		DataDir:                   dataDir,
		DBFile:                    filepath.Join(dataDir, "legalcore.db"),
		ManagementPort:            8793,
		LogLevel:                  "info",
		CipherPreset:              "balanced",
		ConsentStrictMode:         true,
		UseLocalNER:               false,
		UseExternalAnalyzer:       false,
		ExternalAnalyzerPath:      "",
		ExternalAnalyzerTimeoutMS: 5000,
		PiiConfidenceThreshold:    0.5,
		ExclusionOverrideDir:      filepath.Join(dataDir, "exclusions"),
		DetectionCacheFile:        filepath.Join(dataDir, "detection-cache.db"),
		ExportDir:                 filepath.Join(dataDir, "exports"),
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "legalcore")
	}
	return ".legalcore"
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G703: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("LEGALCORE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LEGALCORE_DB_FILE"); v != "" {
		cfg.DBFile = v
	}
	if v := os.Getenv("MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CIPHER_PRESET"); v != "" {
		cfg.CipherPreset = v
	}
	if v := os.Getenv("CONSENT_STRICT_MODE"); v == "false" {
		cfg.ConsentStrictMode = false
	}
	if v := os.Getenv("USE_LOCAL_NER"); v == "true" {
		cfg.UseLocalNER = true
	}
	if v := os.Getenv("USE_EXTERNAL_ANALYZER"); v == "true" {
		cfg.UseExternalAnalyzer = true
	}
	if v := os.Getenv("EXTERNAL_ANALYZER_PATH"); v != "" {
		cfg.ExternalAnalyzerPath = v
	}
	if v := os.Getenv("EXTERNAL_ANALYZER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExternalAnalyzerTimeoutMS = n
		}
	}
	if v := os.Getenv("PII_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.PiiConfidenceThreshold = f
		}
	}
	if v := os.Getenv("EXCLUSION_OVERRIDE_DIR"); v != "" {
		cfg.ExclusionOverrideDir = v
	}
	if v := os.Getenv("DETECTION_CACHE_FILE"); v != "" {
		cfg.DetectionCacheFile = v
	}
	if v := os.Getenv("EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}
}
