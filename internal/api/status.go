// Package api provides REST API endpoints for pipeline status and
// violation summaries.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fleetsync/internal/journal"
	"fleetsync/internal/timefmt"
)

// StatusStore is the read-only database surface the status API serves.
type StatusStore interface {
	LastHeartbeat(ctx context.Context) (*time.Time, error)
	ViolationSummary(ctx context.Context, date string) (map[string]int, error)
	JoinViewCount(ctx context.Context) (int, error)
}

// RunLister lists recent pipeline runs from the local journal.
type RunLister interface {
	LastRuns(n int) ([]journal.Run, error)
}

// StatusServer serves pipeline health and violation summaries.
type StatusServer struct {
	store       StatusStore
	runs        RunLister
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
}

// Config holds configuration for the status API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
}

// NewStatusServer creates a new status API server. runs may be nil when
// no local journal is configured.
func NewStatusServer(store StatusStore, runs RunLister, cfg Config) *StatusServer {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	return &StatusServer{
		store:       store,
		runs:        runs,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run starts the HTTP server.
func (s *StatusServer) Run() error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Mount("/api/v1", s.Router())

	addr := ":" + strconv.Itoa(s.port)
	log.Printf("Status API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding in other servers.
func (s *StatusServer) Router() chi.Router {
	r := chi.NewRouter()

	// Health stays reachable without a key.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.authEnabled {
			r.Use(s.authMiddleware)
		}
		r.Get("/heartbeat", s.handleHeartbeat)
		r.Get("/violations/summary", s.handleViolationSummary)
		r.Get("/runs", s.handleRuns)
	})

	return r
}

// authMiddleware validates API key authentication.
func (s *StatusServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// HeartbeatResponse reports the pipeline's last completed sync.
type HeartbeatResponse struct {
	LastExecution string `json:"last_execution,omitempty"`
	AgeSeconds    int64  `json:"age_seconds,omitempty"`
	Stale         bool   `json:"stale"`
	ViewRows      int    `json:"view_rows"`
}

// staleAfter is how long without a heartbeat before the pipeline is
// reported stale.
const staleAfter = 30 * time.Minute

func (s *StatusServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	last, err := s.store.LastHeartbeat(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	viewRows, err := s.store.JoinViewCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := HeartbeatResponse{Stale: true, ViewRows: viewRows}
	if last != nil {
		age := time.Since(*last)
		resp.LastExecution = last.UTC().Format(time.RFC3339)
		resp.AgeSeconds = int64(age.Seconds())
		resp.Stale = age > staleAfter
	}

	writeJSON(w, http.StatusOK, resp)
}

// SummaryResponse is the per-date violation breakdown.
type SummaryResponse struct {
	Date         string         `json:"date"`
	Total        int            `json:"total"`
	ByType       map[string]int `json:"by_type"`
	Unclassified int            `json:"unclassified"`
}

func (s *StatusServer) handleViolationSummary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = timefmt.Today().Format(timefmt.DateOnlyLayout)
	} else if _, err := time.Parse(timefmt.DateOnlyLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)")
		return
	}

	counts, err := s.store.ViolationSummary(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := SummaryResponse{Date: date, ByType: make(map[string]int)}
	for k, n := range counts {
		resp.Total += n
		if k == "" {
			resp.Unclassified = n
			continue
		}
		resp.ByType[k] = n
	}

	writeJSON(w, http.StatusOK, resp)
}

// RunResponse is one journaled pipeline run.
type RunResponse struct {
	Stage     string `json:"stage"`
	StartedAt string `json:"started_at"`
	Finished  string `json:"finished_at"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Note      string `json:"note,omitempty"`
}

func (s *StatusServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "Run journal not configured")
		return
	}

	n := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			n = v
		}
	}

	runs, err := s.runs.LastRuns(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunResponse{
			Stage:     run.Stage,
			StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
			Finished:  run.Finished.UTC().Format(time.RFC3339),
			Succeeded: run.Succeeded,
			Failed:    run.Failed,
			Note:      run.Note,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
