package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/config"
	ids "github.com/JakeFAU/meeting-crawler/internal/id/uuid"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/metrics"
	"github.com/JakeFAU/meeting-crawler/internal/resolver"
	"github.com/JakeFAU/meeting-crawler/internal/store"
	"github.com/JakeFAU/meeting-crawler/internal/worker"
)

const (
	maxBodyBytes    = 1 << 20
	maxResolveBatch = 500
	enqueueTimeout  = 5 * time.Second
)

// Enqueuer accepts runs for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, job worker.Job) error
}

// Canceler stops running runs. It reports false when the run was not
// running; the run is then refused once dequeued.
type Canceler interface {
	Cancel(runID string) bool
}

// BatchResolver resolves media URLs.
type BatchResolver interface {
	BatchResolve(ctx context.Context, reqs []resolver.Request) []string
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router   chi.Router
	runs     store.RunRepository
	enqueuer Enqueuer
	canceler Canceler
	resolver BatchResolver
	idGen    meeting.IDGenerator
	clock    meeting.Clock
	checks   []ReadinessCheck
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. resolver may be
// nil, in which case /v1/resolve is not mounted.
func NewServer(
	runs store.RunRepository,
	enqueuer Enqueuer,
	canceler Canceler,
	batch BatchResolver,
	idGen meeting.IDGenerator,
	clock meeting.Clock,
	cfg config.Config,
	logger *zap.Logger,
	checks ...ReadinessCheck,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:     runs,
		enqueuer: enqueuer,
		canceler: canceler,
		resolver: batch,
		idGen:    idGen,
		clock:    clock,
		checks:   checks,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(60 * time.Second))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/sites", s.getRunSites)
				r.Get("/result", s.getRunResult)
				r.Post("/cancel", s.cancelRun)
			})
		})
		if batch != nil {
			r.Post("/resolve", s.resolve)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.checks {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type runRequest struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	BaseURLs  []string `json:"base_urls"`
	Mode      string   `json:"mode"`
}

func (req runRequest) validate() (meeting.Input, store.Mode, error) {
	mode := store.Mode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if mode == "" {
		mode = store.ModeScrape
	}
	if !mode.Valid() {
		return meeting.Input{}, "", fmt.Errorf("mode must be %q or %q", store.ModeScrape, store.ModeUniversal)
	}
	in := meeting.Input{StartDate: req.StartDate, EndDate: req.EndDate}
	for _, raw := range req.BaseURLs {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			in.BaseURLs = append(in.BaseURLs, trimmed)
		}
	}
	if len(in.BaseURLs) == 0 {
		return meeting.Input{}, "", errors.New("base_urls required")
	}
	for _, u := range in.BaseURLs {
		if !meeting.ValidURL(u) {
			return meeting.Input{}, "", fmt.Errorf("invalid base url %q", u)
		}
	}
	if _, err := in.Window(); err != nil {
		return meeting.Input{}, "", fmt.Errorf("invalid dates: %w", err)
	}
	return in, mode, nil
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	in, mode, err := req.validate()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID, err := s.enqueueRun(r.Context(), in, mode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("submit run failed", zap.Error(err))
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": string(store.RunQueued)})
}

func (s *Server) enqueueRun(ctx context.Context, in meeting.Input, mode store.Mode) (string, error) {
	runID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	run := store.Run{
		ID:          runID,
		Mode:        mode,
		Status:      store.RunQueued,
		Input:       in,
		SubmittedAt: s.clock.Now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := s.enqueuer.Enqueue(queueCtx, worker.Job{RunID: runID, Mode: mode, Input: in}); err != nil {
		if completeErr := s.runs.CompleteRun(
			context.WithoutCancel(ctx), runID, s.clock.Now(), store.RunError, "queue unavailable", nil,
		); completeErr != nil {
			s.logger.Error("mark unqueued run failed", zap.String("run_id", runID), zap.Error(completeErr))
		}
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	return runID, nil
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (store.Run, bool) {
	runID := chi.URLParam(r, "run_id")
	if !ids.Valid(runID) {
		s.writeError(w, http.StatusBadRequest, "invalid run id")
		return store.Run{}, false
	}
	run, err := s.runs.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return store.Run{}, false
	}
	if err != nil {
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return store.Run{}, false
	}
	return run, true
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) getRunSites(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	sites, err := s.runs.ListSites(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("list sites failed", zap.String("run_id", run.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load sites")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":          run.ID,
		"status":          run.Status,
		"sites_completed": len(sites),
		"total_sites":     len(run.Input.BaseURLs),
		"results":         sites,
	})
}

func (s *Server) getRunResult(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if !run.Status.Terminal() {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "run not finished", "status": string(run.Status)})
		return
	}
	sites, err := s.runs.ListSites(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("list sites failed", zap.String("run_id", run.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load sites")
		return
	}
	if run.Mode != store.ModeUniversal {
		s.writeJSON(w, http.StatusOK, sites)
		return
	}
	report := meeting.Report{Results: sites}
	if run.Statistics != nil {
		report.Statistics = *run.Statistics
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if run.Status.Terminal() {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "run already finished", "status": string(run.Status)})
		return
	}
	if s.canceler.Cancel(run.ID) {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": "canceling"})
		return
	}
	if err := s.runs.CompleteRun(r.Context(), run.ID, s.clock.Now(), store.RunCanceled, "canceled via API", nil); err != nil {
		s.logger.Error("cancel run failed", zap.String("run_id", run.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"run_id": run.ID, "status": string(store.RunCanceled)})
}

type resolveRequest struct {
	Requests []resolver.Request `json:"requests"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Requests) == 0 {
		s.writeError(w, http.StatusBadRequest, "requests required")
		return
	}
	if len(req.Requests) > maxResolveBatch {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d requests per batch", maxResolveBatch))
		return
	}
	for _, item := range req.Requests {
		if item.Type != "" && item.Type != resolver.Video && item.Type != resolver.Document {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown type %q", item.Type))
			return
		}
	}
	resolved := s.resolver.BatchResolve(r.Context(), req.Requests)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"requested": len(req.Requests),
		"resolved":  resolved,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
