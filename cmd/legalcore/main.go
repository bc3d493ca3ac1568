// Command legalcore runs the LegalCore local assistant core: PII
// detection/redaction, encrypted local storage, and the consent and
// compliance surfaces that sit in front of both.
//
// It exposes no network surface beyond the loopback-only management API
// (status, consent, export, audit) — there is no proxy, no remote model
// endpoint, and no listener bound to anything but 127.0.0.1.
//
// Usage:
//
//	./legalcore
//
//	# Custom management port / token
//	MANAGEMENT_PORT=9000 MANAGEMENT_TOKEN=secret ./legalcore
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/99designs/keyring"

	"legalcore/internal/audit"
	"legalcore/internal/config"
	"legalcore/internal/consent"
	"legalcore/internal/cryptutil"
	"legalcore/internal/export"
	"legalcore/internal/logger"
	"legalcore/internal/management"
	"legalcore/internal/metrics"
	"legalcore/internal/pii"
	"legalcore/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New("CORE", cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatalf("startup", "create data dir %s: %v", cfg.DataDir, err)
	}
	printBanner(cfg)

	m := metrics.New()

	st, err := store.Connect(cfg.DBFile, log)
	if err != nil {
		st, err = store.CreateNew(cfg.DBFile, store.ParseCipherPreset(cfg.CipherPreset), log)
	}
	if err != nil {
		log.Fatalf("startup", "open encrypted store: %v", err)
	}
	defer st.Close()

	km, err := cryptutil.NewKeyManager(cryptutil.KeyManagerConfig{
		ServiceName: "legalcore",
		FileDir:     cfg.DataDir,
		FilePasswordFunc: keyring.PromptFunc(func(string) (string, error) {
			if pw := os.Getenv("LEGALCORE_KEYRING_PASSWORD"); pw != "" {
				return pw, nil
			}
			return "", fmt.Errorf("LEGALCORE_KEYRING_PASSWORD not set and no OS keychain available")
		}),
		Salts: st,
	})
	if err != nil {
		log.Fatalf("startup", "open key manager: %v", err)
	}
	cipher := cryptutil.NewCipher()

	ctx, cancelBootstrap := context.WithTimeout(context.Background(), 30*time.Second)
	ledger, err := consent.NewLedger(ctx, st.DB())
	cancelBootstrap()
	if err != nil {
		log.Fatalf("startup", "open consent ledger: %v", err)
	}
	guardMode := consent.Lenient
	if cfg.ConsentStrictMode {
		guardMode = consent.Strict
	}
	guard := consent.NewGuard(ledger, guardMode)
	auditLog := audit.New(st.DB())
	assembler := export.New(st.DB(), ledger, km, cipher)

	exclusions := pii.NewExclusionRegistry()
	if err := exclusions.Load(cfg.ExclusionOverrideDir); err != nil {
		log.Warnf("startup", "load exclusion overrides: %v", err)
	}

	pipelineOpts := []pii.PipelineOption{pii.WithConfidenceThreshold(cfg.PiiConfidenceThreshold)}
	if cfg.UseLocalNER {
		pipelineOpts = append(pipelineOpts, pii.WithLocalNER(nil))
	}
	if cfg.UseExternalAnalyzer && cfg.ExternalAnalyzerPath != "" {
		timeout := time.Duration(cfg.ExternalAnalyzerTimeoutMS) * time.Millisecond
		layer := pii.NewExternalAnalyzerLayer(cfg.ExternalAnalyzerPath, timeout, cfg.DetectionCacheFile)
		pipelineOpts = append(pipelineOpts, pii.WithExternalAnalyzer(layer))
		defer layer.Close()
	}
	pipeline := pii.NewPipeline(exclusions, "default", m, log, pipelineOpts...)
	defer pipeline.Close()

	mgmt := management.New(cfg, st, ledger, guard, auditLog, assembler, m, logger.New("MANAGEMENT", cfg.LogLevel))
	go func() {
		if err := mgmt.ListenAndServe(); err != nil {
			log.Fatalf("management", "listen: %v", err)
		}
	}()

	log.Info("ready", "LegalCore is up")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown", "signal received, shutting down")
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║                    LegalCore                         ║
╚══════════════════════════════════════════════════════╝
  Data dir         : %s
  Database         : %s
  Cipher preset    : %s
  Consent mode     : %s
  Management port  : %d

  Check status:
    curl http://localhost:%d/status
`, cfg.DataDir, filepath.Base(cfg.DBFile), cfg.CipherPreset,
		consentModeLabel(cfg.ConsentStrictMode), cfg.ManagementPort, cfg.ManagementPort)
}

func consentModeLabel(strict bool) string {
	if strict {
		return "strict"
	}
	return "lenient"
}
