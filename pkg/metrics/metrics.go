// Package metrics defines the Prometheus collectors of the identity service.
//
// Collectors are registered on a caller-supplied registerer, so tests can
// use a fresh prometheus.NewRegistry. All recording methods accept a nil
// *Metrics and do nothing, which lets components run without metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "identity"

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
	OutcomeStale    = "stale"
)

// Method labels for authentication attempts.
const (
	MethodPassword = "password"
	MethodExternal = "external"
	MethodSignup   = "signup"
)

// Metrics holds the service collectors.
type Metrics struct {
	authAttempts *prometheus.CounterVec
	jwksFetches  *prometheus.CounterVec
	provisions   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. Collectors that are
// already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		jwksFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_fetches_total",
			Help:      "Upstream JWKS fetches by outcome.",
		}, []string{"outcome"}),
		provisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_provisions_total",
			Help:      "Accounts provisioned from external identities by outcome.",
		}, []string{"provider", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	var err error
	if m.authAttempts, err = registerCounterVec(reg, m.authAttempts); err != nil {
		return nil, err
	}
	if m.jwksFetches, err = registerCounterVec(reg, m.jwksFetches); err != nil {
		return nil, err
	}
	if m.provisions, err = registerCounterVec(reg, m.provisions); err != nil {
		return nil, err
	}
	if m.httpRequests, err = registerCounterVec(reg, m.httpRequests); err != nil {
		return nil, err
	}
	if err := reg.Register(m.httpDuration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		m.httpDuration = existing
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// AuthAttempt records an authentication attempt.
func (m *Metrics) AuthAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(method, outcome).Inc()
}

// JWKSFetch records an upstream JWKS fetch.
func (m *Metrics) JWKSFetch(outcome string) {
	if m == nil {
		return
	}
	m.jwksFetches.WithLabelValues(outcome).Inc()
}

// Provision records an external account provisioning attempt.
func (m *Metrics) Provision(provider, outcome string) {
	if m == nil {
		return
	}
	m.provisions.WithLabelValues(provider, outcome).Inc()
}

// HTTPRequest records a served HTTP request.
func (m *Metrics) HTTPRequest(route, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
