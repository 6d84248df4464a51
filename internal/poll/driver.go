// Package poll runs the fixed-cadence fetch loops that keep the console's
// view of the platform current. Each Driver owns one goroutine, so fetch,
// apply and publish are serialized per loop.
package poll

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/tracing"
)

const (
	DefaultCallsInterval = 5 * time.Second
	DefaultUnitsInterval = 15 * time.Second
	DefaultRetryBudget   = 3
)

// Health describes how current a driver's data is.
type Health string

const (
	HealthPending      Health = "pending"
	HealthLive         Health = "live"
	HealthStale        Health = "stale"
	HealthDegraded     Health = "degraded"
	HealthAuthRequired Health = "auth required"
)

// Status is published whenever a cycle changes a driver's health.
type Status struct {
	Name        string
	Health      Health
	Failures    int
	LastSuccess time.Time
	Err         error
}

// Fetch retrieves one cycle's worth of data.
type Fetch[T any] func(ctx context.Context) (T, error)

// Apply consumes a successful fetch. It runs on the driver goroutine.
type Apply[T any] func(ctx context.Context, value T) error

// Config configures a Driver.
type Config struct {
	Name        string
	Interval    time.Duration
	RetryBudget int
}

// Option configures a Driver.
type Option func(*options)

type options struct {
	tracer trace.Tracer
}

// WithTracer records a span per cycle.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Driver fetches on an interval and on demand.
type Driver[T any] struct {
	cfg     Config
	fetch   Fetch[T]
	apply   Apply[T]
	tracer  trace.Tracer
	refresh chan struct{}

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc

	updates  *pubsub.Broker[T]
	statuses *pubsub.Broker[Status]
}

// New returns a driver. apply may be nil when subscribers only need the
// published value.
func New[T any](cfg Config, fetch Fetch[T], apply Apply[T], opts ...Option) *Driver[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCallsInterval
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = DefaultRetryBudget
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Driver[T]{
		cfg:      cfg,
		fetch:    fetch,
		apply:    apply,
		tracer:   o.tracer,
		refresh:  make(chan struct{}, 1),
		status:   Status{Name: cfg.Name, Health: HealthPending},
		updates:  pubsub.NewBroker[T](),
		statuses: pubsub.NewBroker[Status](),
	}
}

// Updates publishes each successfully applied value.
func (d *Driver[T]) Updates() *pubsub.Broker[T] { return d.updates }

// Statuses publishes health changes.
func (d *Driver[T]) Statuses() *pubsub.Broker[Status] { return d.statuses }

// Status returns the driver's current health.
func (d *Driver[T]) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Refresh asks for an immediate cycle. Requests made while one is already
// pending coalesce; it never blocks.
func (d *Driver[T]) Refresh() {
	select {
	case d.refresh <- struct{}{}:
	default:
	}
}

// Run cycles once immediately, then on every tick or Refresh, until ctx is
// cancelled or Stop is called.
func (d *Driver[T]) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Debug(log.CatPoll, "poll loop stopped", "name", d.cfg.Name)
			return nil
		case <-ticker.C:
			d.Cycle(ctx)
		case <-d.refresh:
			d.Cycle(ctx)
			ticker.Reset(d.cfg.Interval)
		}
	}
}

// Stop cancels a running loop.
func (d *Driver[T]) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close releases subscribers. Call after Run returns.
func (d *Driver[T]) Close() {
	d.updates.Close()
	d.statuses.Close()
}

// Cycle runs one fetch and apply. Run calls it; tests and one-shot
// commands may call it directly.
func (d *Driver[T]) Cycle(ctx context.Context) {
	ctx, span := tracing.Start(ctx, d.tracer, tracing.SpanPollCycle,
		attribute.String(tracing.AttrPollName, d.cfg.Name))

	value, err := d.fetch(ctx)
	if err == nil && d.apply != nil {
		err = d.apply(ctx, value)
	}
	if ctx.Err() != nil {
		tracing.Finish(span, nil, "")
		return
	}

	if err != nil {
		tracing.Finish(span, err, errorKind(err))
		d.fail(err)
		return
	}
	tracing.Finish(span, nil, "")
	d.succeed()
	d.updates.Publish(pubsub.UpdatedEvent, value)
}

func (d *Driver[T]) succeed() {
	d.mu.Lock()
	prev := d.status
	d.status = Status{Name: d.cfg.Name, Health: HealthLive, LastSuccess: time.Now()}
	next := d.status
	d.mu.Unlock()

	if prev.Health != HealthLive {
		log.Info(log.CatPoll, "poll live", "name", d.cfg.Name, "after_failures", prev.Failures)
		d.statuses.Publish(pubsub.StatusEvent, next)
	}
}

func (d *Driver[T]) fail(err error) {
	d.mu.Lock()
	prev := d.status
	next := Status{
		Name:        d.cfg.Name,
		Failures:    prev.Failures + 1,
		LastSuccess: prev.LastSuccess,
		Err:         err,
	}
	switch {
	case dispatch.IsAuth(err):
		next.Health = HealthAuthRequired
	case next.Failures >= d.cfg.RetryBudget:
		next.Health = HealthDegraded
	default:
		next.Health = HealthStale
	}
	d.status = next
	d.mu.Unlock()

	log.WarnErr(log.CatPoll, "poll cycle failed", err, "name", d.cfg.Name, "failures", next.Failures)
	d.statuses.Publish(pubsub.StatusEvent, next)
}

func errorKind(err error) string {
	switch {
	case dispatch.IsAuth(err):
		return "auth"
	case dispatch.IsRejected(err):
		return "rejected"
	default:
		return "transient"
	}
}
