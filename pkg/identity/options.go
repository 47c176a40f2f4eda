package identity

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-identity/pkg/metrics"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/identity"

// DefaultMaxProvisionAttempts bounds how often provisioning re-probes for
// a free username after losing a race.
const DefaultMaxProvisionAttempts = 5

// Option customizes a Linker or Service.
type Option func(*options)

type options struct {
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	maxAttempts int
	randomID    func() string
}

// WithClock overrides the time source for created and last-used stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(tracerName) }
}

// WithMaxProvisionAttempts overrides [DefaultMaxProvisionAttempts].
func WithMaxProvisionAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithRandomID replaces the source of the 8 hex characters used for
// usernames of identities without an email.
func WithRandomID(fn func() string) Option {
	return func(o *options) { o.randomID = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		now:         time.Now,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		maxAttempts: DefaultMaxProvisionAttempts,
		randomID:    randomHex8,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// randomHex8 returns the first 8 hex characters of a random UUID.
func randomHex8() string {
	return uuid.NewString()[:8]
}
