package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/product-scraper/internal/metrics"
)

type Handlers struct {
	acquirer  Acquirer
	jobs      *JobManager
	collector *metrics.Collector
	logger    *slog.Logger
}

func NewHandlers(acquirer Acquirer, jobs *JobManager, collector *metrics.Collector, logger *slog.Logger) *Handlers {
	return &Handlers{
		acquirer:  acquirer,
		jobs:      jobs,
		collector: collector,
		logger:    logger,
	}
}

// ScrapeRequest asks for a single product to be acquired synchronously.
type ScrapeRequest struct {
	URL string `json:"url"`
}

// Scrape handles synchronous acquisition requests. The response carries the
// full result, failed acquisitions included; only malformed requests are
// HTTP errors.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validURL(req.URL) {
		h.respondError(w, http.StatusBadRequest, "url must be a valid http(s) URL")
		return
	}

	result, err := h.acquirer.Acquire(r.Context(), req.URL)
	if err != nil {
		h.logger.Warn("acquisition failed", "url", req.URL, "error", err)
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetMetrics returns the acquisition counters as JSON.
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.collector.Snapshot())
}

// CreateJobRequest asks for a background acquisition.
type CreateJobRequest struct {
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// CreateJob enqueues a background acquisition job.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validURL(req.URL) {
		h.respondError(w, http.StatusBadRequest, "url must be a valid http(s) URL")
		return
	}

	record, err := h.jobs.CreateJob(req.URL, req.Priority)
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, record)
}

// GetJob returns the status and result of one job.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	record, err := h.jobs.GetJob(jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, record)
}

// ListJobs returns all known jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
