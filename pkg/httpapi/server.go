// Package httpapi exposes the identity service over HTTP/JSON.
//
// Routes:
//
//	GET  /                      liveness text
//	GET  /datetime              current UTC time
//	GET  /healthz               store health
//	GET  /readyz                readiness of every daemon component
//	GET  /auth/check-username   ?username=
//	GET  /auth/check-email      ?email=
//	POST /auth/signup           local registration
//	POST /auth/login            local sign-in
//	POST /auth/upa              external provider sign-in
//	GET  /users/me              requires a session bearer token
//	GET  /metrics               Prometheus exposition
//
// Every error response is a JSON {"code","message"} object whose status is
// derived from the error code.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/session"
	"github.com/StricklySoft/stricklysoft-identity/pkg/identity"
	"github.com/StricklySoft/stricklysoft-identity/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 64 << 10

// Service is the subset of [*identity.Service] used by the handlers.
type Service interface {
	Signup(ctx context.Context, req identity.SignupRequest) (models.User, error)
	Login(ctx context.Context, identifier, password string) (identity.AuthResult, error)
	ExternalLogin(ctx context.Context, rawToken string) (identity.AuthResult, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	User(ctx context.Context, id int64) (models.User, error)
	Health(ctx context.Context) error
}

var _ Service = (*identity.Service)(nil)

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records per-route request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithReadiness sets the check behind /readyz. Without it /readyz reports
// store health like /healthz.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithClock overrides the time source used by /datetime.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server routes HTTP requests to the identity service.
type Server struct {
	svc      Service
	verifier session.TokenVerifier
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	ready    func(context.Context) error
	now      func() time.Time
}

// New creates a Server. verifier authenticates /users/me.
func New(svc Service, verifier session.TokenVerifier, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		verifier: verifier,
		validate: newValidator(),
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ready == nil {
		s.ready = svc.Health
	}
	return s
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /datetime", s.handleDatetime)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /auth/check-username", s.handleCheckUsername)
	mux.HandleFunc("GET /auth/check-email", s.handleCheckEmail)
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/upa", s.handleExternalLogin)
	mux.Handle("GET /users/me", session.HTTPMiddleware(s.verifier)(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(s.instrument(mux), "identity.http")
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Body = http.MaxBytesReader(rec, r.Body, MaxBodyBytes)
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := s.now().Sub(start)
		s.metrics.HTTPRequest(route, strconv.Itoa(rec.status), elapsed)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}
