// Package management provides a local HTTP API for inspecting and
// operating a running LegalCore instance.
//
// Endpoints:
//
//	GET  /status            - uptime, encryption preset, consent mode
//	GET  /metrics            - runtime counters (see internal/metrics)
//	POST /consent/grant      - {"subjectId":"...","purpose":"..."}
//	POST /consent/revoke     - {"subjectId":"...","purpose":"...","reason":"..."}
//	GET  /consent/check      - ?subjectId=...&purpose=...
//	POST /export             - {"subjectId":"...","formats":["json","pdf"]}
//	GET  /audit/tail         - ?n=50
package management

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"legalcore/internal/audit"
	"legalcore/internal/config"
	"legalcore/internal/consent"
	"legalcore/internal/export"
	"legalcore/internal/logger"
	"legalcore/internal/metrics"
	"legalcore/internal/store"
)

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	token     string // bearer token for auth; empty = no auth

	store     *store.Store
	ledger    *consent.Ledger
	guard     *consent.Guard
	auditLog  *audit.Log
	assembler *export.Assembler
	metrics   *metrics.Metrics // nil = no metrics
	log       *logger.Logger
}

// New creates a management server wired to the running core's components.
func New(cfg *config.Config, st *store.Store, ledger *consent.Ledger, guard *consent.Guard, auditLog *audit.Log, assembler *export.Assembler, m *metrics.Metrics, log *logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		token:     cfg.ManagementToken,
		store:     st,
		ledger:    ledger,
		guard:     guard,
		auditLog:  auditLog,
		assembler: assembler,
		metrics:   m,
		log:       log,
	}
	if s.token != "" {
		s.log.Info("auth_enabled", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/consent/grant", s.handleConsentGrant)
	mux.HandleFunc("/consent/revoke", s.handleConsentRevoke)
	mux.HandleFunc("/consent/check", s.handleConsentCheck)
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/audit/tail", s.handleAuditTail)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("unauthorized", "rejected request from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status            string `json:"status"`
		Uptime            string `json:"uptime"`
		ManagementPort    int    `json:"managementPort"`
		CipherPreset      string `json:"cipherPreset"`
		ConsentStrictMode bool   `json:"consentStrictMode"`
		StoreHealthy      bool   `json:"storeHealthy"`
	}

	resp := response{
		Status:            "running",
		Uptime:            time.Since(s.startTime).Round(time.Second).String(),
		ManagementPort:    s.cfg.ManagementPort,
		CipherPreset:      s.cfg.CipherPreset,
		ConsentStrictMode: s.cfg.ConsentStrictMode,
	}
	if s.store != nil {
		report, err := s.store.HealthCheck(r.Context())
		resp.StoreHealthy = err == nil && report.OK
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

type consentRequest struct {
	SubjectID string `json:"subjectId"`
	Purpose   string `json:"purpose"`
	Reason    string `json:"reason"`
}

func (s *Server) handleConsentGrant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeConsentRequest(w, r)
	if !ok {
		return
	}
	purpose := consent.ParsePurpose(req.Purpose)
	if purpose == consent.PurposeUnknown {
		http.Error(w, "unrecognized purpose", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Grant(r.Context(), req.SubjectID, purpose, consent.RequestContext{
		NetworkAddress: r.RemoteAddr,
		ClientUA:       r.UserAgent(),
	}); err != nil {
		s.log.Errorf("consent_grant_failed", "subject=%s purpose=%s: %v", req.SubjectID, purpose, err)
		http.Error(w, "grant failed", http.StatusInternalServerError)
		return
	}
	if s.metrics != nil {
		s.metrics.ConsentGrants.Add(1)
	}
	writeJSON(w, http.StatusOK, map[string]string{"granted": string(purpose)})
}

func (s *Server) handleConsentRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeConsentRequest(w, r)
	if !ok {
		return
	}
	purpose := consent.ParsePurpose(req.Purpose)
	if purpose == consent.PurposeUnknown {
		http.Error(w, "unrecognized purpose", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Revoke(r.Context(), req.SubjectID, purpose, req.Reason, consent.RequestContext{
		NetworkAddress: r.RemoteAddr,
		ClientUA:       r.UserAgent(),
	}); err != nil {
		s.log.Errorf("consent_revoke_failed", "subject=%s purpose=%s: %v", req.SubjectID, purpose, err)
		http.Error(w, "revoke failed", http.StatusInternalServerError)
		return
	}
	if s.metrics != nil {
		s.metrics.ConsentRevokes.Add(1)
	}
	writeJSON(w, http.StatusOK, map[string]string{"revoked": string(purpose)})
}

func (s *Server) handleConsentCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	subjectID := r.URL.Query().Get("subjectId")
	purpose := consent.ParsePurpose(r.URL.Query().Get("purpose"))
	if subjectID == "" || purpose == consent.PurposeUnknown {
		http.Error(w, "need subjectId and a recognized purpose", http.StatusBadRequest)
		return
	}
	result, err := s.guard.Check(r.Context(), subjectID, purpose)
	if err != nil {
		http.Error(w, "check failed", http.StatusInternalServerError)
		return
	}
	if !result.Allowed && s.metrics != nil {
		s.metrics.ConsentDenials.Add(1)
	}
	writeJSON(w, http.StatusOK, result)
}

type exportRequest struct {
	SubjectID string   `json:"subjectId"`
	Formats   []string `json:"formats"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubjectID == "" || len(req.Formats) == 0 {
		http.Error(w, `invalid request: need {"subjectId":"...","formats":["json",...]}`, http.StatusBadRequest)
		return
	}

	snap, err := s.assembler.Assemble(r.Context(), req.SubjectID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if s.metrics != nil {
			s.metrics.ExportsFailed.Add(1)
		}
		s.log.Errorf("export_assemble_failed", "subject=%s: %v", req.SubjectID, err)
		http.Error(w, "export assembly failed", http.StatusInternalServerError)
		return
	}

	paths, err := export.WriteFiles(snap, s.cfg.ExportDir, req.Formats)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ExportsFailed.Add(1)
		}
		s.log.Errorf("export_write_failed", "subject=%s: %v", req.SubjectID, err)
		http.Error(w, "export write failed", http.StatusInternalServerError)
		return
	}

	if s.auditLog != nil {
		_ = s.auditLog.Record(r.Context(), audit.EventDataAccess, req.SubjectID, "export", "",
			map[string]any{"formats": req.Formats}, true, "")
	}
	if s.metrics != nil {
		s.metrics.ExportsCompleted.Add(1)
	}
	writeJSON(w, http.StatusOK, map[string]any{"written": paths, "integrityHash": snap.Metadata.IntegrityHash})
}

func (s *Server) handleAuditTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	entries, err := s.auditLog.Tail(r.Context(), n)
	if err != nil {
		http.Error(w, "audit tail failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func decodeConsentRequest(w http.ResponseWriter, r *http.Request) (consentRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 2048)
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubjectID == "" || req.Purpose == "" {
		http.Error(w, `invalid request: need {"subjectId":"...","purpose":"..."}`, http.StatusBadRequest)
		return consentRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe starts the management HTTP server, bound to localhost
// only: this API is never meant to be reachable off-box.
func (s *Server) ListenAndServe() error {
	addr := "127.0.0.1:" + strconv.Itoa(s.cfg.ManagementPort)
	s.log.Infof("listen", "management API listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
