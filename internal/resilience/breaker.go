// Package resilience wraps fallible dependencies (the observation store
// backend, the admin HTTP client) with retries and circuit breakers.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Predefined errors for guarded operations.
var (
	// ErrCircuitOpen is returned when the breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when every attempt failed.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in logs and the ops endpoint.
	Name string

	// MaxRequests allowed while half-open.
	// Default: 1
	MaxRequests uint32

	// Interval clears counts while closed; 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open.
	// Default: 30 seconds
	Timeout time.Duration

	// ReadyToTrip decides when to open. Default: TripOnConsecutive(5).
	ReadyToTrip func(counts gobreaker.Counts) bool

	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultBreakerConfig returns the defaults used for storage backends.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: TripOnConsecutive(5),
	}
}

// TripOnConsecutive opens the breaker after n consecutive failures.
func TripOnConsecutive(n uint32) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		return c.ConsecutiveFailures >= n
	}
}

// TripOnRatio opens the breaker once at least minRequests were made and the
// failure ratio reaches ratio.
func TripOnRatio(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		if c.Requests < minRequests {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) >= ratio
	}
}

// NewBreaker creates a circuit breaker from cfg.
func NewBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = TripOnConsecutive(5)
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
