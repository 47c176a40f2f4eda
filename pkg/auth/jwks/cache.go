// Package jwks fetches and caches the public signing keys that external
// identity providers publish as JSON Web Key Sets.
//
// A [Cache] holds one entry per JWKS URL. Fresh entries are served from
// memory; a missing or expired entry is refetched, and concurrent callers
// for the same URL share a single upstream request. When a refetch fails
// and an older entry exists, the older keys keep being served, so that a
// provider outage does not invalidate tokens signed with keys that were
// valid a moment ago. Only when no entry exists at all does the caller see
// a key fetch error.
//
// The cache never refetches on an unknown key id. Provider key rotation is
// picked up when the entry expires.
//
// An optional [SnapshotStore] shares the last good document between
// replicas and across restarts.
package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/metrics"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/auth/jwks"

// Defaults for [Config].
const (
	DefaultTTL            = 12 * time.Hour
	DefaultFetchTimeout   = 5 * time.Second
	DefaultRefreshBackoff = 30 * time.Second
	DefaultMaxBodyBytes   = 1 << 20
)

// HTTPClient is the subset of *http.Client used to fetch key sets.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config controls cache freshness and upstream requests.
type Config struct {
	// TTL is how long fetched keys stay fresh. Defaults to 12h.
	TTL time.Duration `json:"ttl" yaml:"ttl" env:"JWKS_CACHE_TTL" envDefault:"12h"`

	// FetchTimeout bounds one upstream request. Defaults to 5s.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" env:"JWKS_FETCH_TIMEOUT" envDefault:"5s"`

	// RefreshBackoff is how long stale keys are served without I/O after
	// a failed refetch. Defaults to 30s.
	RefreshBackoff time.Duration `json:"refresh_backoff" yaml:"refresh_backoff" env:"JWKS_REFRESH_BACKOFF" envDefault:"30s"`

	// MaxBodyBytes limits the size of a JWKS document. Defaults to 1 MiB.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" env:"JWKS_MAX_BODY_BYTES" envDefault:"1048576"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:            DefaultTTL,
		FetchTimeout:   DefaultFetchTimeout,
		RefreshBackoff: DefaultRefreshBackoff,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.RefreshBackoff < 0 {
		c.RefreshBackoff = 0
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	return c
}

// Option customizes a Cache.
type Option func(*Cache)

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Cache) { c.client = client }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Cache) { c.tracer = tp.Tracer(tracerName) }
}

type entry struct {
	set *KeySet

	// retryAt suppresses upstream requests after a failed refetch.
	retryAt time.Time
}

// Cache is a process-wide JWKS cache. It is safe for concurrent use and is
// meant to be shared by every validator in the process.
type Cache struct {
	cfg     Config
	client  HTTPClient
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	shared  SnapshotStore

	mu      sync.RWMutex
	entries map[string]*entry
	flights singleflight.Group
}

// New creates an empty Cache.
func New(cfg Config, opts ...Option) *Cache {
	cfg = cfg.withDefaults()
	c := &Cache{
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return c
}

// SigningKeys returns the key set published at url.
//
// A fresh entry is returned without I/O. Otherwise one upstream request is
// made per URL, shared by all concurrent callers. If it fails, stale keys
// are returned when present; if not, every waiting caller receives the same
// [sserr.CodeUnavailableKeySet] error. Nothing is retried.
//
// The upstream request is detached from ctx so that one caller giving up
// does not fail the others; it is bounded by the configured fetch timeout.
// A caller whose ctx ends while waiting gets stale keys or ctx's error.
func (c *Cache) SigningKeys(ctx context.Context, url string) (*KeySet, error) {
	if url == "" {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "jwks: url is empty")
	}

	cached := c.lookup(url)
	if cached != nil && c.usable(cached) {
		return cached.set, nil
	}

	ch := c.flights.DoChan(url, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	case <-ctx.Done():
		if cached != nil {
			return cached.set, nil
		}
		return nil, sserr.KeyFetch(ctx.Err(), url)
	}
}

func (c *Cache) lookup(url string) *entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[url]
}

func (c *Cache) usable(e *entry) bool {
	now := c.now()
	return now.Before(e.set.expiresAt) || now.Before(e.retryAt)
}

// refresh runs inside the single flight for url.
func (c *Cache) refresh(ctx context.Context, url string) (*KeySet, error) {
	// A flight that finished just before this one started may already
	// have stored fresh keys.
	if e := c.lookup(url); e != nil && c.usable(e) {
		return e.set, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	fetchedAt := c.now()
	keys, body, err := c.fetch(ctx, url)
	if err != nil {
		stale := c.lookup(url)
		if stale == nil {
			if set := c.loadSnapshot(ctx, url); set != nil {
				stale = &entry{set: set}
			}
		}
		if stale != nil {
			// Entries are never mutated; readers hold them without the lock.
			c.mu.Lock()
			c.entries[url] = &entry{set: stale.set, retryAt: c.now().Add(c.cfg.RefreshBackoff)}
			c.mu.Unlock()

			c.metrics.JWKSFetch(metrics.OutcomeStale)
			c.logger.WarnContext(ctx, "jwks: refresh failed, serving stale keys",
				"url", url,
				"error", err,
				"fetched_at", stale.set.fetchedAt,
			)
			return stale.set, nil
		}
		c.metrics.JWKSFetch(metrics.OutcomeError)
		c.logger.ErrorContext(ctx, "jwks: fetch failed", "url", url, "error", err)
		return nil, sserr.KeyFetch(err, url)
	}

	set := newKeySet(url, keys, fetchedAt, c.cfg.TTL)
	c.mu.Lock()
	c.entries[url] = &entry{set: set}
	c.mu.Unlock()

	c.saveSnapshot(ctx, url, fetchedAt, body)

	c.metrics.JWKSFetch(metrics.OutcomeSuccess)
	c.logger.InfoContext(ctx, "jwks: fetched signing keys",
		"url", url,
		"keys", set.Len(),
		"expires_at", set.expiresAt,
	)
	return set, nil
}

func (c *Cache) fetch(ctx context.Context, url string) (keys []jose.JSONWebKey, body []byte, err error) {
	ctx, span := c.tracer.Start(ctx, "jwks.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("jwks.keys", len(keys)))
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("jwks: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("jwks: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("jwks: endpoint returned status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("jwks: failed to read response: %w", err)
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, nil, fmt.Errorf("jwks: document exceeds %d bytes", c.cfg.MaxBodyBytes)
	}

	keys, skipped, err := parse(body)
	if err != nil {
		return nil, nil, err
	}
	if skipped > 0 {
		c.logger.DebugContext(ctx, "jwks: skipped unusable keys", "url", url, "skipped", skipped)
	}
	if len(keys) == 0 {
		return nil, nil, fmt.Errorf("jwks: document contains no usable signing keys")
	}
	return keys, body, nil
}

// parse decodes a JWKS document and keeps public signature keys. Keys that
// fail to decode are skipped rather than failing the whole document.
func parse(body []byte) (keys []jose.JSONWebKey, skipped int, err error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, 0, fmt.Errorf("jwks: failed to parse document: %w", err)
	}

	for _, raw := range doc.Keys {
		var k jose.JSONWebKey
		if err := k.UnmarshalJSON(raw); err != nil {
			skipped++
			continue
		}
		if !k.IsPublic() || (k.Use != "" && k.Use != "sig") {
			skipped++
			continue
		}
		keys = append(keys, k)
	}
	return keys, skipped, nil
}
