// Package httpapi exposes the control plane as a JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hupe1980/runmesh/artifact"
	"github.com/hupe1980/runmesh/controlplane"
	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/logging"
)

// Config wires dependencies for the HTTP handler.
type Config struct {
	ControlPlane *controlplane.ControlPlane
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	// RateLimit bounds run creation in requests per second. Zero disables it.
	RateLimit float64
	RateBurst int
	Logger    logging.Logger
}

type handler struct {
	cp      *controlplane.ControlPlane
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewHandler builds the HTTP handler.
func NewHandler(cfg Config) http.Handler {
	h := &handler{
		cp:     cfg.ControlPlane,
		logger: logging.OrNoOp(cfg.Logger),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /repos", h.handleRegisterRepo)
	mux.HandleFunc("POST /sessions", h.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/runs", h.handleCreateRun)
	mux.HandleFunc("GET /sessions/{id}/runs", h.handleListRuns)
	mux.HandleFunc("GET /sessions/{id}/events", h.handleEvents)
	mux.HandleFunc("GET /runs/{id}", h.handleGetRun)
	mux.HandleFunc("POST /runs/{id}/cancel", h.handleCancelRun)
	mux.HandleFunc("GET /runs/{id}/artifacts", h.handleListArtifacts)
	mux.HandleFunc("GET /runs/{id}/artifacts/{artifact}", h.handleGetArtifact)
	mux.HandleFunc("GET /runs/{id}/evaluation", h.handleEvaluation)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, cfg.Metrics)
	}

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

type repoRequest struct {
	URL string `json:"url"`
}

type sessionRequest struct {
	RepoID string `json:"repo_id"`
}

type runRequest struct {
	Prompt string `json:"prompt"`
}

type eventsResponse struct {
	Events []core.Event `json:"events"`
}

type runsResponse struct {
	Runs []core.Run `json:"runs"`
}

type artifactsResponse struct {
	Artifacts []string `json:"artifacts"`
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cp.Health())
}

func (h *handler) handleRegisterRepo(w http.ResponseWriter, r *http.Request) {
	var req repoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	writeJSON(w, http.StatusCreated, h.cp.RegisterRepo(req.URL))
}

func (h *handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RepoID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	writeJSON(w, http.StatusCreated, h.cp.CreateSession(req.RepoID))
}

func (h *handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	run, err := h.cp.CreateRun(r.Context(), r.PathValue("id"), req.Prompt)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.cp.ListRuns(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.cp.StreamEvents(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.cp.GetRun(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.cp.CancelRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.cp.ListArtifacts(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifactsResponse{Artifacts: ids})
}

func (h *handler) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	data, err := h.cp.GetArtifact(r.PathValue("id"), r.PathValue("artifact"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	res, err := h.cp.EvaluateRun(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownSession),
		errors.Is(err, core.ErrUnknownRun),
		errors.Is(err, core.ErrUnknownRepo),
		errors.Is(err, artifact.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, core.ErrRunTerminal), errors.Is(err, core.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "conflict")
	default:
		h.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
