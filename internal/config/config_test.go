package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.ManagementPort != 8793 {
		t.Errorf("ManagementPort: got %d, want 8793", cfg.ManagementPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %s", cfg.LogLevel)
	}
	if cfg.CipherPreset != "balanced" {
		t.Errorf("CipherPreset: got %s, want balanced", cfg.CipherPreset)
	}
	if !cfg.ConsentStrictMode {
		t.Error("ConsentStrictMode should default to true")
	}
	if cfg.UseLocalNER {
		t.Error("UseLocalNER should default to false")
	}
	if cfg.UseExternalAnalyzer {
		t.Error("UseExternalAnalyzer should default to false")
	}
	if cfg.ExternalAnalyzerTimeoutMS != 5000 {
		t.Errorf("ExternalAnalyzerTimeoutMS: got %d, want 5000", cfg.ExternalAnalyzerTimeoutMS)
	}
	if cfg.DBFile == "" {
		t.Error("DBFile should not be empty")
	}
	if cfg.ExclusionOverrideDir == "" {
		t.Error("ExclusionOverrideDir should not be empty")
	}
	if cfg.ExportDir == "" {
		t.Error("ExportDir should not be empty")
	}
	if cfg.PiiConfidenceThreshold != 0.5 {
		t.Errorf("PiiConfidenceThreshold: got %f, want 0.5", cfg.PiiConfidenceThreshold)
	}
}

func TestLoadEnv_PiiConfidenceThreshold(t *testing.T) {
	t.Setenv("PII_CONFIDENCE_THRESHOLD", "0.8")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.PiiConfidenceThreshold != 0.8 {
		t.Errorf("PiiConfidenceThreshold: got %f, want 0.8", cfg.PiiConfidenceThreshold)
	}
}

func TestLoadEnv_PiiConfidenceThreshold_OutOfRangeIgnored(t *testing.T) {
	t.Setenv("PII_CONFIDENCE_THRESHOLD", "1.5")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.PiiConfidenceThreshold != 0.5 {
		t.Errorf("PiiConfidenceThreshold: got %f, want 0.5 (out-of-range should be ignored)", cfg.PiiConfidenceThreshold)
	}
}

func TestLoadEnv_ManagementPort(t *testing.T) {
	t.Setenv("MANAGEMENT_PORT", "9091")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ManagementPort != 9091 {
		t.Errorf("ManagementPort: got %d, want 9091", cfg.ManagementPort)
	}
}

func TestLoadEnv_CipherPreset(t *testing.T) {
	t.Setenv("CIPHER_PRESET", "high_security")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.CipherPreset != "high_security" {
		t.Errorf("CipherPreset: got %s", cfg.CipherPreset)
	}
}

func TestLoadEnv_DisableConsentStrictMode(t *testing.T) {
	t.Setenv("CONSENT_STRICT_MODE", "false")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ConsentStrictMode {
		t.Error("ConsentStrictMode should be false")
	}
}

func TestLoadEnv_EnableLocalNER(t *testing.T) {
	t.Setenv("USE_LOCAL_NER", "true")
	cfg := defaults()
	loadEnv(cfg)
	if !cfg.UseLocalNER {
		t.Error("UseLocalNER should be true")
	}
}

func TestLoadEnv_ExternalAnalyzerTimeout(t *testing.T) {
	t.Setenv("EXTERNAL_ANALYZER_TIMEOUT_MS", "9000")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ExternalAnalyzerTimeoutMS != 9000 {
		t.Errorf("ExternalAnalyzerTimeoutMS: got %d, want 9000", cfg.ExternalAnalyzerTimeoutMS)
	}
}

func TestLoadEnv_ExternalAnalyzerTimeout_ZeroIgnored(t *testing.T) {
	t.Setenv("EXTERNAL_ANALYZER_TIMEOUT_MS", "0")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ExternalAnalyzerTimeoutMS != 5000 {
		t.Errorf("ExternalAnalyzerTimeoutMS: got %d, want 5000 (zero should be ignored)", cfg.ExternalAnalyzerTimeoutMS)
	}
}

func TestLoadEnv_LogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %s", cfg.LogLevel)
	}
}

func TestLoadEnv_ManagementToken(t *testing.T) {
	t.Setenv("MANAGEMENT_TOKEN", "secret-token")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ManagementToken != "secret-token" {
		t.Errorf("ManagementToken: got %s", cfg.ManagementToken)
	}
}

func TestLoadEnv_InvalidPort_Ignored(t *testing.T) {
	t.Setenv("MANAGEMENT_PORT", "not-a-number")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ManagementPort != 8793 {
		t.Errorf("ManagementPort: got %d, want 8793 (invalid env should be ignored)", cfg.ManagementPort)
	}
}

func TestLoadFile_ValidJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatal(err)
	}

	data, marshalErr := json.Marshal(map[string]any{
		"managementPort": 9999,
		"cipherPreset":   "performance",
		"useLocalNER":    true,
	})
	if marshalErr != nil {
		t.Fatal(marshalErr)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, f.Name())

	if cfg.ManagementPort != 9999 {
		t.Errorf("ManagementPort: got %d, want 9999", cfg.ManagementPort)
	}
	if cfg.CipherPreset != "performance" {
		t.Errorf("CipherPreset: got %s", cfg.CipherPreset)
	}
	if !cfg.UseLocalNER {
		t.Error("UseLocalNER should be true after file load")
	}
}

func TestLoadFile_Missing_IsNoOp(t *testing.T) {
	cfg := defaults()
	loadFile(cfg, "/nonexistent/path/config.json")
	if cfg.ManagementPort != 8793 {
		t.Errorf("ManagementPort changed unexpectedly: %d", cfg.ManagementPort)
	}
}

func TestLoadFile_InvalidJSON_PreservesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-bad-*.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{this is not json}"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, f.Name())
	if cfg.ManagementPort != 8793 {
		t.Errorf("ManagementPort changed on bad JSON: %d", cfg.ManagementPort)
	}
}

func TestLoad_ReturnsNonNil(t *testing.T) {
	cfg := Load()
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
	if cfg.ManagementPort <= 0 {
		t.Errorf("ManagementPort should be positive, got %d", cfg.ManagementPort)
	}
}
