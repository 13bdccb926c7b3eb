// Package api exposes the HTTP surface of the dynwatch server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dynwatch/dynwatch/internal/scheduler"
)

// Server is the HTTP API server
type Server struct {
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger
	server    *http.Server
}

// NewServer creates a new API server
func NewServer(sched *scheduler.Scheduler, gatherer prometheus.Gatherer, addr string, logger zerolog.Logger) *Server {
	s := &Server{
		scheduler: sched,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestLogger)

	// Health endpoints
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	// Check definition endpoints
	r.Get("/v1/checks", s.handleCheckList)
	r.Get("/v1/checks/{id}", s.handleCheckGet)
	r.Post("/v1/checks/{id}/run", s.handleRunNow)

	// Run state endpoints
	r.Get("/v1/status", s.handleStatusList)
	r.Get("/v1/status/{id}", s.handleStatusGet)

	// Prometheus metrics
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the route handler backing the server
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady handles GET /readyz
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	entries := s.scheduler.Entries()
	cacheSize := s.scheduler.GetCache().Size()

	ready := len(entries) > 0 && cacheSize > 0
	reasons := []string{}

	if len(entries) == 0 {
		reasons = append(reasons, "no check definitions loaded")
	}

	if cacheSize == 0 {
		reasons = append(reasons, "no runs recorded yet")
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:        ready,
		ChecksLoaded: len(entries),
		Reasons:      reasons,
	})
}

// handleCheckList handles GET /v1/checks
func (s *Server) handleCheckList(w http.ResponseWriter, r *http.Request) {
	entries := s.scheduler.Entries()

	summaries := make([]CheckSummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, checkSummary(e))
	}

	respondJSON(w, http.StatusOK, CheckListResponse{Checks: summaries})
}

// handleCheckGet handles GET /v1/checks/{id}
func (s *Server) handleCheckGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, e := range s.scheduler.Entries() {
		if e.Def.Metadata.ID == id {
			respondJSON(w, http.StatusOK, checkDetail(e))
			return
		}
	}

	respondError(w, http.StatusNotFound, fmt.Sprintf("check not found: %s", id))
}

// handleStatusList handles GET /v1/status
func (s *Server) handleStatusList(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	cache := s.scheduler.GetCache()

	statuses := make([]StatusResponse, 0)
	for _, e := range s.scheduler.Entries() {
		id := e.Def.Metadata.ID
		if state, ok := cache.Get(id); ok {
			statuses = append(statuses, statusResponse(id, state, now))
		}
	}

	respondJSON(w, http.StatusOK, StatusListResponse{Statuses: statuses})
}

// handleStatusGet handles GET /v1/status/{id}
func (s *Server) handleStatusGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, ok := s.scheduler.GetCache().Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no run recorded for check: %s", id))
		return
	}

	respondJSON(w, http.StatusOK, statusResponse(id, state, time.Now()))
}

// handleRunNow handles POST /v1/checks/{id}/run
func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found := false
	for _, e := range s.scheduler.Entries() {
		if e.Def.Metadata.ID == id {
			found = true
			break
		}
	}
	if !found {
		respondError(w, http.StatusNotFound, fmt.Sprintf("check not found: %s", id))
		return
	}

	if err := s.scheduler.RunNow(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("run failed: %v", err))
		return
	}

	state, ok := s.scheduler.GetCache().Get(id)
	if !ok {
		respondError(w, http.StatusInternalServerError, "run produced no state")
		return
	}

	respondJSON(w, http.StatusOK, statusResponse(id, state, time.Now()))
}

// Helper functions

func checkSummary(e scheduler.Entry) CheckSummary {
	summary := CheckSummary{
		ID:          e.Def.Metadata.ID,
		Description: e.Def.Metadata.Description,
		Customer:    e.Def.Spec.Customer,
		Period:      e.Def.Spec.Period,
		Warning:     e.Def.Spec.Thresholds.Warning,
		Critical:    e.Def.Spec.Thresholds.Critical,
	}
	if d, err := e.Def.Spec.EffectiveInterval(); err == nil {
		summary.Interval = d.String()
	}
	return summary
}

func checkDetail(e scheduler.Entry) CheckDetail {
	detail := CheckDetail{
		ID:                 e.Def.Metadata.ID,
		Description:        e.Def.Metadata.Description,
		Endpoint:           e.Def.Spec.Endpoint,
		Customer:           e.Def.Spec.Customer,
		Username:           e.Def.Spec.Username,
		PasswordEnv:        e.Def.Spec.PasswordEnv,
		Period:             e.Def.Spec.Period,
		Warning:            e.Def.Spec.Thresholds.Warning,
		Critical:           e.Def.Spec.Thresholds.Critical,
		MaxRetries:         e.Def.Spec.EffectiveMaxRetries(),
		Timeout:            e.Def.Spec.Timeout,
		InsecureSkipVerify: e.Def.Spec.InsecureSkipVerify,
	}
	if d, err := e.Def.Spec.EffectiveRetryDelay(); err == nil {
		detail.RetryDelay = d.String()
	}
	if d, err := e.Def.Spec.EffectiveInterval(); err == nil {
		detail.Interval = d.String()
	}
	return detail
}

func statusResponse(id string, state *scheduler.CheckState, now time.Time) StatusResponse {
	resp := StatusResponse{
		CheckID:   id,
		Status:    string(state.Status),
		Message:   state.Message,
		UpdatedAt: state.UpdatedAt,
		Stale:     state.IsStale(now),
	}
	if state.Result != nil {
		resp.P95 = state.Result.P95
		resp.Samples = state.Result.Samples
		resp.RunID = state.Result.RunID
		resp.WindowStart = state.Result.Window.Start
		resp.WindowEnd = state.Result.Window.End
	}
	return resp
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}
