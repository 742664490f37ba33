package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newsworthy/news-agent/internal/config"
	"github.com/newsworthy/news-agent/internal/export"
	"github.com/newsworthy/news-agent/internal/metrics"
	"github.com/newsworthy/news-agent/internal/news"
	"github.com/newsworthy/news-agent/internal/registry"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 50
	requestTimeout  = 60 * time.Second
)

// Submitter starts a new search job and returns its id.
type Submitter interface {
	Submit(ctx context.Context, params news.SearchParams) (string, error)
}

// Server wires HTTP handlers to the orchestrator, registry, and result
// store.
type Server struct {
	router   chi.Router
	orch     Submitter
	registry *registry.Registry
	results  news.ResultStore
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The registry
// backs both /metrics and the request collectors; pass an isolated one in
// tests.
func NewServer(
	orch Submitter,
	reg *registry.Registry,
	results news.ResultStore,
	cfg config.Config,
	promReg *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}
	s := &Server{
		orch:     orch,
		registry: reg,
		results:  results,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if httpMetrics, err := metrics.NewHTTP(promReg); err == nil {
		r.Use(httpMetrics.Middleware)
	} else {
		logger.Warn("http metrics disabled", zap.Error(err))
	}
	r.Use(timeoutMiddleware(requestTimeout))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.submitSearch)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/result", s.getJobResult)
				r.Get("/export", s.exportJob)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Topic       string `json:"topic"`
	Language    string `json:"language"`
	Country     string `json:"country"`
	Category    string `json:"category"`
	ExtraTopics string `json:"extra_topics"`
}

func (s *Server) submitSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobID, err := s.orch.Submit(r.Context(), news.SearchParams{
		Topic:       req.Topic,
		Language:    req.Language,
		Country:     req.Country,
		Category:    req.Category,
		ExtraTopics: req.ExtraTopics,
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(news.JobStatusPending),
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxJobLimit {
		limit = maxJobLimit
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs": s.registry.List(limit),
	})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.registry.Get(chi.URLParam(r, "job_id"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.completedJob(w, r)
	if !ok {
		return
	}
	agg, err := s.results.Retrieve(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("retrieve result failed", zap.String("job_id", job.ID), zap.Error(err))
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) exportJob(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	job, ok := s.completedJob(w, r)
	if !ok {
		return
	}
	agg, err := s.results.Retrieve(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("retrieve result failed", zap.String("job_id", job.ID), zap.Error(err))
		writeKindError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", format.Filename(job.ID)))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, format, agg); err != nil {
		s.logger.Error("write export failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// completedJob loads the job and enforces that results exist: a missing job
// is 404, a non-completed job is 409 carrying its current state.
func (s *Server) completedJob(w http.ResponseWriter, r *http.Request) (news.Job, bool) {
	job, err := s.registry.Get(chi.URLParam(r, "job_id"))
	if err != nil {
		writeKindError(w, err)
		return news.Job{}, false
	}
	if job.Status != news.JobStatusCompleted {
		payload := map[string]any{
			"error":  "result not available",
			"job_id": job.ID,
			"status": string(job.Status),
		}
		if job.Status == news.JobStatusFailed {
			payload["error_kind"] = string(job.ErrorKind)
			payload["detail"] = job.ErrorDetail
		}
		writeJSON(w, http.StatusConflict, payload)
		return news.Job{}, false
	}
	return job, true
}

// kindStatus maps classified errors onto HTTP status codes.
func kindStatus(kind news.ErrorKind) int {
	switch kind {
	case news.KindValidation:
		return http.StatusBadRequest
	case news.KindNotFound:
		return http.StatusNotFound
	case news.KindAuth:
		return http.StatusBadGateway
	case news.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeKindError(w http.ResponseWriter, err error) {
	writeJSON(w, kindStatus(news.KindOf(err)), map[string]string{
		"error": news.Detail(err),
		"kind":  string(news.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
