package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/external"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/jwks"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/password"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/session"
	redisclient "github.com/StricklySoft/stricklysoft-identity/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/httpapi"
	"github.com/StricklySoft/stricklysoft-identity/pkg/identity"
	"github.com/StricklySoft/stricklysoft-identity/pkg/lifecycle"
	"github.com/StricklySoft/stricklysoft-identity/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store/memory"
	pgstore "github.com/StricklySoft/stricklysoft-identity/pkg/store/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store/sqlite"
)

const readHeaderTimeout = 10 * time.Second

// app owns the daemon's components. Fields set by start hooks are only
// read after the runner reaches the running state.
type app struct {
	cfg      Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	runner   *lifecycle.Runner

	redis    *redisclient.Client
	store    store.Store
	server   *http.Server
	addr     net.Addr
	serveErr chan error
}

func newApp(cfg Config, logger *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  m,
		serveErr: make(chan error, 1),
	}
	opts := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.OnStateChange(func(old, new lifecycle.State) {
			logger.Debug("lifecycle transition", "from", old.String(), "to", new.String())
		}),
	}
	// Redis has no health hook; readiness never depends on the snapshot
	// cache.
	if cfg.Redis.Enabled() {
		opts = append(opts, lifecycle.WithComponent(lifecycle.Component{
			Name:  "redis",
			Start: a.connectRedis,
			Stop:  func(context.Context) error { return a.redis.Close() },
		}))
	}
	opts = append(opts,
		lifecycle.WithComponent(lifecycle.Component{
			Name:   "store",
			Start:  a.openStore,
			Stop:   func(context.Context) error { return a.store.Close() },
			Health: func(ctx context.Context) error { return a.store.Health(ctx) },
		}),
		lifecycle.WithComponent(lifecycle.Component{
			Name:  "http",
			Start: a.startHTTP,
			Stop:  a.stopHTTP,
		}),
	)
	a.runner, err = lifecycle.New("identityd", version, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) connectRedis(ctx context.Context) error {
	client, err := redisclient.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	a.redis = client
	a.logger.InfoContext(ctx, "redis connected", "db", a.cfg.Redis.DB)
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	var err error
	switch a.cfg.StoreDriver {
	case DriverPostgres:
		a.store, err = pgstore.Open(ctx, a.cfg.Postgres)
	case DriverSQLite:
		a.store, err = sqlite.Open(ctx, a.cfg.SQLitePath)
	case DriverMemory:
		a.logger.Warn("using the in-memory store; accounts are lost on restart")
		a.store = memory.New()
	default:
		err = sserr.Newf(sserr.CodeInternalConfiguration, "unknown store driver %q", a.cfg.StoreDriver)
	}
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "store opened", "driver", a.cfg.StoreDriver)
	return nil
}

// handler wires the credential, token and linking components over the
// opened store.
func (a *app) handler() (http.Handler, error) {
	hasher := password.NewHasher()
	issuer, err := session.NewIssuer(a.cfg.JWT)
	if err != nil {
		return nil, err
	}
	verifier, err := session.NewVerifier(a.cfg.JWT)
	if err != nil {
		return nil, err
	}
	cacheOpts := []jwks.Option{
		jwks.WithLogger(a.logger),
		jwks.WithMetrics(a.metrics),
	}
	if a.redis != nil {
		cacheOpts = append(cacheOpts, jwks.WithSnapshots(redisclient.NewKeySetSnapshots(a.redis)))
	}
	keys := jwks.New(a.cfg.JWKS, cacheOpts...)
	validator, err := external.NewValidator(a.cfg.UPA, keys, external.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	svc, err := identity.NewService(a.store, hasher, issuer, validator,
		identity.WithLogger(a.logger),
		identity.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	return httpapi.New(svc, verifier,
		httpapi.WithLogger(a.logger),
		httpapi.WithMetrics(a.metrics),
		httpapi.WithGatherer(a.registry),
		httpapi.WithReadiness(a.runner.Health),
	).Handler(), nil
}

func (a *app) startHTTP(ctx context.Context) error {
	h, err := a.handler()
	if err != nil {
		return err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.cfg.HTTPAddr)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailable, "listen on %s", a.cfg.HTTPAddr)
	}
	a.addr = ln.Addr()
	a.server = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serveErr <- err
		}
	}()
	a.logger.InfoContext(ctx, "http server listening", "addr", a.addr.String())
	return nil
}

func (a *app) stopHTTP(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// run starts the components, blocks until ctx is canceled or the server
// fails, then stops everything within the shutdown timeout.
func (a *app) run(ctx context.Context) error {
	if err := a.runner.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case serveErr = <-a.serveErr:
		a.logger.Error("http server failed", "error", serveErr)
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, a.runner.Stop(stopCtx))
}
