// Package server exposes the guardian engine over HTTP and pushes live
// verdicts to WebSocket clients.
package server

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/engine"
	"github.com/hammamikhairi/guardian/internal/library"
	"github.com/hammamikhairi/guardian/internal/logger"
	"github.com/hammamikhairi/guardian/internal/metrics"
)

// Engine is the slice of the classification engine the server drives.
type Engine interface {
	Predict(ctx context.Context, clip domain.AudioClip, sourceID string) (engine.Result, error)
	Escalate(ctx context.Context, sourceID string, probability float64, message string) (*domain.EscalationOutcome, error)
	GenerateLullaby(ctx context.Context, topic string) ([]byte, string, error)
}

// Library manages stored lullabies.
type Library interface {
	Save(ctx context.Context, up library.Upload) (*domain.LullabyRecord, error)
	Generate(ctx context.Context, req library.GenerateRequest) (*domain.LullabyRecord, error)
	List(ctx context.Context, filter domain.RecordFilter) ([]*domain.LullabyRecord, error)
	Content(ctx context.Context, id string) (*domain.LullabyRecord, []byte, error)
	Delete(ctx context.Context, id string) error
}

// History returns recent escalation outcomes, newest first.
type History interface {
	Recent(n int) []domain.EscalationOutcome
}

var (
	_ Engine  = (*engine.Engine)(nil)
	_ Library = (*library.Library)(nil)
)

// DefaultMaxUpload caps request bodies that carry audio.
const DefaultMaxUpload = 10 << 20

// Option configures the server.
type Option func(*Server)

// WithHub enables the /ws live feed.
func WithHub(h *Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithHistory enables GET /escalations.
func WithHistory(h History) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithMetrics exposes the registry on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCORSOrigins sets the allowed browser origins. "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithMaxUpload sets the body size limit in bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithRateLimit limits uploads and generation per client address. A
// non-positive rate disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = newIPLimiter(rps, burst)
	}
}

// Server holds the HTTP surface. It is stateless apart from the rate
// limiter and the hub's client set.
type Server struct {
	engine    Engine
	library   Library
	history   History
	hub       *Hub
	metrics   *metrics.Metrics
	origins   []string
	maxUpload int64
	limiter   *ipLimiter
	log       *logger.Logger
}

// New creates a server. lib may be nil, in which case the /lullabies
// routes answer 503.
func New(eng Engine, lib Library, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		engine:    eng,
		library:   lib,
		maxUpload: DefaultMaxUpload,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the root handler with all routes wired.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /predict", s.limited(s.handlePredict))
	api.HandleFunc("POST /escalate", s.handleEscalate)
	api.HandleFunc("POST /generate-lullaby", s.limited(s.handleGenerateLullaby))
	api.HandleFunc("GET /lullabies", s.handleListLullabies)
	api.HandleFunc("POST /lullabies", s.limited(s.handleUploadLullaby))
	api.HandleFunc("POST /lullabies/generate", s.limited(s.handleCreateLullaby))
	api.HandleFunc("GET /lullabies/{id}/audio", s.handleLullabyAudio)
	api.HandleFunc("DELETE /lullabies/{id}", s.handleDeleteLullaby)
	api.HandleFunc("GET /escalations", s.handleEscalations)
	api.HandleFunc("GET /healthz", s.handleHealth)

	root := http.NewServeMux()
	// The upgrade path and the scrape endpoint stay outside tracing.
	if s.hub != nil {
		root.Handle("GET /ws", s.hub)
	}
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics.Handler())
	}
	root.Handle("/", otelhttp.NewHandler(api, "guardian",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))

	return corsMiddleware(s.origins, root)
}
