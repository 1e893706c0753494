package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
	"github.com/JakeFAU/crawl-webhooks/internal/metrics"
	"github.com/JakeFAU/crawl-webhooks/internal/notify"
)

const maxEventBytes = 10 << 20

// EventHandler processes one job event.
type EventHandler interface {
	Handle(ctx context.Context, ev notify.JobEvent) (notify.Outcome, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options configures the server.
type Options struct {
	APIKey         string
	RequestTimeout time.Duration
	Ready          []ReadinessCheck
}

// Server wires HTTP handlers to the notifier and audit queue.
type Server struct {
	router  chi.Router
	events  EventHandler
	queue   audit.Queue
	metrics *metrics.Metrics
	logger  *zap.Logger
	ready   []ReadinessCheck
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	events EventHandler,
	queue audit.Queue,
	m *metrics.Metrics,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		events:  events,
		queue:   queue,
		metrics: m,
		logger:  logger,
		ready:   opts.Ready,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(m.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", m.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/jobs/{job_id}/events", s.postJobEvent)
		r.Get("/webhooks/queue", s.queueLength)
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
	for _, check := range s.ready {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type eventResponse struct {
	Status     string `json:"status"`
	Success    *bool  `json:"success,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) postJobEvent(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	var ev notify.JobEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err := dec.Decode(&ev); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if ev.JobID != "" && ev.JobID != jobID {
		s.writeError(w, http.StatusBadRequest, "job_id does not match path")
		return
	}
	ev.JobID = jobID

	out, err := s.events.Handle(r.Context(), ev)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, notify.ErrInvalidEvent) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}
	switch {
	case out.Skipped:
		s.writeJSON(w, http.StatusOK, eventResponse{Status: "skipped"})
	case out.Awaited:
		status := "delivered"
		if !out.Result.Success {
			status = "failed"
		}
		s.writeJSON(w, http.StatusOK, eventResponse{
			Status:     status,
			Success:    &out.Result.Success,
			StatusCode: out.Result.StatusCode,
			Error:      out.Result.Error,
		})
	default:
		s.writeJSON(w, http.StatusAccepted, eventResponse{Status: "dispatched"})
	}
}

func (s *Server) queueLength(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.Len(r.Context())
	if err != nil {
		s.logger.Error("read webhook log queue length", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	s.metrics.SetQueueLength(n)
	s.writeJSON(w, http.StatusOK, map[string]int64{"length": n})
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

// RequestID returns the id assigned by the request middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
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
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(zap.NewNop(), w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeError(s.logger, w, status, msg)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
