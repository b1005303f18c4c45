package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/debashishroy00/wpa-sub002/advisor"
	"github.com/debashishroy00/wpa-sub002/knowledge"
)

const (
	healthCacheTTL     = 15 * time.Second
	healthCheckTimeout = 2 * time.Second
)

// HealthCheck is a named dependency probe. Checks run on /healthz with a
// short timeout and the combined result is cached.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server exposes the advisory HTTP API. All dependencies are constructed
// once at startup; session state lives for the life of the process.
type Server struct {
	advisor  *advisor.Service
	kb       *knowledge.Index
	ingestor *knowledge.Ingestor
	kbDir    string
	checks   []HealthCheck
	logger   *log.Logger
	handler  http.Handler

	healthMu   sync.Mutex
	healthAt   time.Time
	healthCode int
	healthLast healthStatus
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthStatus struct {
	Status    string            `json:"status"`
	Documents int               `json:"documents"`
	Checks    map[string]string `json:"checks,omitempty"`
}

type queryRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Mode      string `json:"mode"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

type ingestResponse struct {
	Message   string `json:"message"`
	Documents int    `json:"documents"`
}

type clearRequest struct {
	UserID  string `json:"user_id"`
	Confirm bool   `json:"confirm"`
}

type clearResponse struct {
	Message string `json:"message"`
	Removed int    `json:"removed"`
}

// New constructs a Server around an already-wired advisor. The ingestor may
// be nil, in which case /v1/ingest reports the capability as unavailable.
func New(adv *advisor.Service, kb *knowledge.Index, ingestor *knowledge.Ingestor, kbDir string, checks []HealthCheck, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		advisor:  adv,
		kb:       kb,
		ingestor: ingestor,
		kbDir:    kbDir,
		checks:   checks,
		logger:   logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/query", s.handleQuery)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/clear", s.handleClear)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	if time.Since(s.healthAt) < healthCacheTTL {
		s.writeJSON(w, s.healthCode, s.healthLast)
		return
	}

	status := healthStatus{Status: "ok"}
	if s.kb != nil {
		status.Documents = s.kb.Len()
	}
	code := http.StatusOK

	if len(s.checks) > 0 {
		status.Checks = make(map[string]string, len(s.checks))
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		for _, check := range s.checks {
			if err := check.Check(ctx); err != nil {
				status.Checks[check.Name] = err.Error()
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status.Checks[check.Name] = "ok"
		}
	}

	s.healthAt = time.Now()
	s.healthCode = code
	s.healthLast = status
	s.writeJSON(w, code, status)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}

	answer, err := s.advisor.HandleQuery(r.Context(), advisor.Query{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Mode:      req.Mode,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.ingestor == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.kbDir
	}

	count, err := s.ingestor.LoadDirectory(r.Context(), dir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion failed: %w", err))
		return
	}

	s.logger.Printf("knowledge base loaded from %s: %d documents", dir, count)
	s.invalidateHealth()
	s.writeJSON(w, http.StatusOK, ingestResponse{Message: "ingestion complete", Documents: count})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear session data"))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}

	removed := s.advisor.Sessions().ClearUser(req.UserID)
	s.logger.Printf("cleared %d calculation records for user %s", removed, req.UserID)
	s.writeJSON(w, http.StatusOK, clearResponse{Message: "session data cleared", Removed: removed})
}

// invalidateHealth forces the next /healthz to re-check, so the document
// count reflects a just-finished ingest.
func (s *Server) invalidateHealth() {
	s.healthMu.Lock()
	s.healthAt = time.Time{}
	s.healthMu.Unlock()
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
