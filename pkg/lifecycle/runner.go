package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/lifecycle"

// Hook is a start or stop function of a component.
type Hook func(ctx context.Context) error

// StateChangeHandler observes transitions. Handlers run synchronously under
// the runner's lock and must not call back into the runner.
type StateChangeHandler func(old, new State)

// Component is a named unit with optional start, stop and health hooks.
type Component struct {
	Name   string
	Start  Hook
	Stop   Hook
	Health Hook
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTracerProvider sets the tracer provider. The default is the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) { r.tracer = tp.Tracer(tracerName) }
}

// WithComponent registers a component. Components start in the order they
// are registered.
func WithComponent(c Component) Option {
	return func(r *Runner) { r.components = append(r.components, c) }
}

// OnStateChange registers a transition observer.
func OnStateChange(h StateChangeHandler) Option {
	return func(r *Runner) { r.handlers = append(r.handlers, h) }
}

// Info is a point-in-time snapshot of a runner.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Runner drives a set of components through the lifecycle. It is safe for
// concurrent use.
type Runner struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time
	started   int

	components []Component
	handlers   []StateChangeHandler
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New returns a Runner in [StateUnknown].
func New(name, version string, opts ...Option) (*Runner, error) {
	if name == "" {
		return nil, sserr.Required("name")
	}
	r := &Runner{
		name:    name,
		version: version,
		state:   StateUnknown,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	for i, c := range r.components {
		if c.Name == "" {
			return nil, sserr.Newf(sserr.CodeValidationRequired, "lifecycle: component %d has no name", i)
		}
	}
	return r, nil
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Info returns a snapshot of the runner.
func (r *Runner) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info := Info{Name: r.name, Version: r.version, State: r.state}
	if r.startedAt != nil && r.state == StateRunning {
		t := *r.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health returns [sserr.CodeUnavailable] unless the runner is running and
// every component health hook succeeds.
func (r *Runner) Health(ctx context.Context) error {
	if state := r.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable, "lifecycle: %s is %s", r.name, state)
	}
	for _, c := range r.components {
		if c.Health == nil {
			continue
		}
		if err := c.Health(ctx); err != nil {
			return sserr.Wrapf(err, sserr.CodeUnavailableDependency, "lifecycle: %s is unhealthy", c.Name)
		}
	}
	return nil
}

func (r *Runner) setState(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.state
	if !ValidTransition(from, to) {
		return sserr.Newf(sserr.CodeConflict, "lifecycle: invalid state transition from %q to %q", from, to)
	}
	r.state = to
	for _, h := range r.handlers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("lifecycle: state change handler panicked",
						"panic", p,
						"old_state", string(from),
						"new_state", string(to),
					)
				}
			}()
			h(from, to)
		}()
	}
	return nil
}

// Start runs each component's start hook in order and moves to
// [StateRunning]. When a hook fails, components that already started are
// stopped in reverse order and the runner moves to [StateFailed].
func (r *Runner) Start(ctx context.Context) (err error) {
	ctx, span := r.startSpan(ctx, "lifecycle.Start")
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution")
	}
	if err := r.setState(StateStarting); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "lifecycle: starting", "name", r.name, "version", r.version)

	for i, c := range r.components {
		if c.Start != nil {
			if err := c.Start(ctx); err != nil {
				r.logger.ErrorContext(ctx, "lifecycle: component failed to start", "component", c.Name, "error", err)
				_ = r.stopComponents(ctx, i)
				_ = r.setState(StateFailed)
				return sserr.Wrapf(err, sserr.CodeInternal, "lifecycle: %s failed to start", c.Name)
			}
		}
		r.mu.Lock()
		r.started = i + 1
		r.mu.Unlock()
	}

	if err := r.setState(StateRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.mu.Lock()
	r.startedAt = &now
	r.mu.Unlock()
	r.logger.InfoContext(ctx, "lifecycle: running", "name", r.name, "components", len(r.components))
	return nil
}

// Stop runs the stop hooks of started components in reverse order. It is a
// no-op in a terminal state, so it can be deferred. Every stop hook runs
// even when an earlier one fails; the errors are joined.
func (r *Runner) Stop(ctx context.Context) (err error) {
	if r.State().IsTerminal() {
		return nil
	}
	ctx, span := r.startSpan(ctx, "lifecycle.Stop")
	defer func() { endSpan(span, err) }()

	if err := r.setState(StateStopping); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "lifecycle: stopping", "name", r.name)

	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()

	if err := r.stopComponents(ctx, started); err != nil {
		_ = r.setState(StateFailed)
		return sserr.Wrap(err, sserr.CodeInternal, "lifecycle: stop failed")
	}
	if err := r.setState(StateStopped); err != nil {
		return err
	}
	r.mu.Lock()
	r.startedAt = nil
	r.mu.Unlock()
	r.logger.InfoContext(ctx, "lifecycle: stopped", "name", r.name)
	return nil
}

// stopComponents stops components[0:n] in reverse order.
func (r *Runner) stopComponents(ctx context.Context, n int) error {
	var errs []error
	for i := n - 1; i >= 0; i-- {
		c := r.components[i]
		if c.Stop == nil {
			continue
		}
		if err := c.Stop(ctx); err != nil {
			r.logger.ErrorContext(ctx, "lifecycle: component failed to stop", "component", c.Name, "error", err)
			errs = append(errs, err)
		}
	}
	r.mu.Lock()
	r.started = 0
	r.mu.Unlock()
	return errors.Join(errs...)
}

func (r *Runner) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", r.name),
			attribute.String("service.version", r.version),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
