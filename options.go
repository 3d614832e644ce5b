package cascade

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cascade/engine"
	"github.com/xraph/cascade/executor"
	"github.com/xraph/cascade/failure"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/observability"
	"github.com/xraph/cascade/registry"
	"github.com/xraph/cascade/scheduler"
	"github.com/xraph/cascade/store"
)

// Cascade is the root automation engine: it owns the service registry, the
// execution engine, and the scheduler fleet.
type Cascade struct {
	config     Config
	store      store.Store
	registry   *registry.Registry
	validator  *registry.Validator
	executors  *executor.Registry
	mappingSvc *mapping.Service
	failureSvc *failure.Service
	resolver   *mapping.Resolver
	engine     *engine.Engine
	pollers    []scheduler.Poller
	schedulers []*scheduler.Scheduler
	clock      runner
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger
}

// runner is the shared lifecycle of the engine and every scheduler.
type runner interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
}

// Option configures a Cascade instance.
type Option func(*Cascade) error

// New creates a new Cascade with the given options.
func New(opts ...Option) (*Cascade, error) {
	c := &Cascade{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.store == nil {
		return nil, ErrNoStore
	}
	c.wireServices()
	return c, nil
}

// WithStore sets the persistence backend for the Cascade instance.
func WithStore(s store.Store) Option {
	return func(c *Cascade) error {
		c.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Cascade instance.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cascade) error {
		c.logger = logger
		return nil
	}
}

// WithPollInterval sets how often the execution engine checks for received events.
func WithPollInterval(d time.Duration) Option {
	return func(c *Cascade) error {
		c.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of events claimed per poll cycle.
func WithBatchSize(n int) Option {
	return func(c *Cascade) error {
		c.config.BatchSize = n
		return nil
	}
}

// WithMaxAttempts sets the total number of execution attempts per reaction.
func WithMaxAttempts(n int) Option {
	return func(c *Cascade) error {
		c.config.MaxAttempts = n
		return nil
	}
}

// WithRetrySchedule sets the delays between reaction attempts.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(c *Cascade) error {
		c.config.RetrySchedule = schedule
		return nil
	}
}

// WithSchedulerInterval sets the tick period for registered pollers.
func WithSchedulerInterval(d time.Duration) Option {
	return func(c *Cascade) error {
		c.config.SchedulerInterval = d
		return nil
	}
}

// WithSchedulerConcurrency bounds concurrent per-user polls per scheduler.
func WithSchedulerConcurrency(n int) Option {
	return func(c *Cascade) error {
		c.config.SchedulerConcurrency = n
		return nil
	}
}

// WithUserCacheTTL sets how long scheduler user discovery is cached.
func WithUserCacheTTL(d time.Duration) Option {
	return func(c *Cascade) error {
		c.config.UserCacheTTL = d
		return nil
	}
}

// WithPoller registers a per-user poller to run under the scheduler framework.
func WithPoller(p scheduler.Poller) Option {
	return func(c *Cascade) error {
		c.pollers = append(c.pollers, p)
		return nil
	}
}

// WithMetrics sets the metrics collectors recorded by the engine and schedulers.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cascade) error {
		c.metrics = m
		return nil
	}
}

// WithTracer sets the tracer used for event and reaction spans.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Cascade) error {
		c.tracer = t
		return nil
	}
}
