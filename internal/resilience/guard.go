package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	Name string

	// MaxRetries after the first attempt.
	// Default: 2
	MaxRetries uint64

	// InitialInterval between attempts.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff.
	// Default: 2 seconds
	MaxInterval time.Duration

	// Breaker defaults to DefaultBreakerConfig(Name).
	Breaker *BreakerConfig

	// Registry, when set, receives the guard and its outcomes.
	Registry *Registry
}

// Guard runs an operation with bounded retries behind a circuit breaker.
type Guard struct {
	cfg      GuardConfig
	breaker  *gobreaker.CircuitBreaker[struct{}]
	registry *Registry
}

// NewGuard creates a guard.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	bc := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		bc = *cfg.Breaker
	}

	g := &Guard{
		cfg:      cfg,
		breaker:  NewBreaker[struct{}](bc),
		registry: cfg.Registry,
	}
	if g.registry != nil {
		g.registry.Register(cfg.Name, g)
	}
	return g
}

// Name returns the guard's name.
func (g *Guard) Name() string { return g.cfg.Name }

// State returns the breaker state.
func (g *Guard) State() gobreaker.State { return g.breaker.State() }

// Counts returns the breaker counts.
func (g *Guard) Counts() gobreaker.Counts { return g.breaker.Counts() }

// Do runs op until it succeeds, retries are exhausted, ctx ends or the
// breaker opens. Errors marked with backoff.Permanent are not retried.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.InitialInterval
	bo.MaxInterval = g.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, g.cfg.MaxRetries), ctx)

	attempt := func() error {
		_, err := g.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, op(ctx)
		})
		if breakerRejected(err) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		return err
	}

	err := backoff.Retry(attempt, policy)
	switch {
	case err == nil:
		g.record(nil)
		return nil
	case errors.Is(err, ErrCircuitOpen):
		g.record(err)
		return err
	case ctx.Err() != nil:
		g.record(err)
		return err
	default:
		g.record(err)
		return errors.Join(ErrMaxRetriesExceeded, err)
	}
}

func (g *Guard) record(err error) {
	if g.registry == nil {
		return
	}
	if err == nil {
		g.registry.RecordSuccess(g.cfg.Name)
		return
	}
	g.registry.RecordFailure(g.cfg.Name, err)
}
