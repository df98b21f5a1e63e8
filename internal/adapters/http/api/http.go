// Package api exposes the resonance service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/okian/resonance/internal/adapters/feed"
	"github.com/okian/resonance/internal/adapters/http/swagger"
	"github.com/okian/resonance/internal/adapters/mq/worker"
	"github.com/okian/resonance/internal/adapters/poller"
	service "github.com/okian/resonance/internal/app"
	"github.com/okian/resonance/internal/domain/convergence"
	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/internal/domain/registry"
	"github.com/okian/resonance/pkg/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. *service.Service implements it.
type Dependencies interface {
	StatsProvider

	Register(ctx context.Context, intentText, owner string, opts model.RegisterOptions) (model.Fingerprint, error)
	Archive(ctx context.Context, id string) (bool, error)
	Fingerprint(ctx context.Context, id string) (model.Fingerprint, error)
	Fingerprints(ctx context.Context, f model.Filter) ([]model.Fingerprint, error)

	Record(ctx context.Context, text string, meta model.RecordMeta) (model.Comparison, error)
	Comparison(ctx context.Context, id string) (model.Comparison, error)
	ConvergenceDefaults() convergence.Criteria
	Convergences(ctx context.Context, c convergence.Criteria) ([]model.Comparison, error)

	Push(text, sourceLabel string, publishedAt time.Time) error
	StartScheduler(ctx context.Context) error
	StopScheduler() error
	SchedulerStatus() (poller.Status, error)
	Tick(ctx context.Context) (poller.TickResult, error)

	Subscribe(name string, buffer int) (*worker.ChannelSink, func())
	Started() bool
}

// Server wires HTTP routes for the business API.
type Server struct {
	router chi.Router
	deps   Dependencies
	logger logger.Logger

	heartbeat time.Duration
	streamBuf int
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// NewServer creates a new API server with all routes registered.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		logger:    logger.Named("api"),
		heartbeat: 30 * time.Second,
		streamBuf: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(s.requestLogger)
	s.router.Use(MetricsMiddleware)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/metrics", s.handleMetrics)
	s.router.Get("/stats", s.handleStats)
	swagger.Register(s.router)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/fingerprints", s.handleRegister)
		r.Get("/fingerprints", s.handleListFingerprints)
		r.Get("/fingerprints/{id}", s.handleGetFingerprint)
		r.Delete("/fingerprints/{id}", s.handleArchive)

		r.Post("/pulses", s.handleRecord)
		r.Get("/pulses/{id}", s.handleGetPulse)

		r.Get("/convergences", s.handleConvergences)

		r.Post("/inbox", s.handleInbox)

		r.Get("/scheduler", s.handleSchedulerStatus)
		r.Post("/scheduler/start", s.handleSchedulerStart)
		r.Post("/scheduler/stop", s.handleSchedulerStop)
		r.Post("/scheduler/tick", s.handleSchedulerTick)

		r.Get("/events", s.handleEvents)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// partialResponse reports an error for a comparison that was stored anyway.
type partialResponse struct {
	errorResponse
	Comparison model.Comparison `json:"comparison"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps upstream errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := domainStatus(err)
	writeError(w, status, code, err)
}

func domainStatus(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest), errors.Is(err, feed.ErrEmptyItem):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, feed.ErrInboxFull), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, service.ErrNoInbox):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// parseTime accepts RFC3339 timestamps; blank input is the zero time.
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid timestamp; must be RFC3339")
	}
	return t.UTC(), nil
}
