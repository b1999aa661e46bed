package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ClientConfig configures the retrying HTTP client.
type ClientConfig struct {
	Name string

	// Timeout per attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries after the first attempt.
	// Default: 3
	MaxRetries uint64

	// InitialInterval between attempts.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff.
	// Default: 5 seconds
	MaxInterval time.Duration

	// Breaker defaults to a ratio based breaker (50% of at least 5 calls).
	Breaker *BreakerConfig

	// Transport overrides the default transport.
	Transport http.RoundTripper

	// Registry, when set, tracks the client's breaker.
	Registry *Registry
}

// DefaultClientConfig returns the defaults for talking to a statusboard API.
func DefaultClientConfig(name string) ClientConfig {
	bc := DefaultBreakerConfig(name)
	bc.ReadyToTrip = TripOnRatio(5, 0.5)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         &bc,
	}
}

// Client is an HTTP client that retries network errors and 5xx responses
// behind a circuit breaker.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	cfg        ClientConfig
}

// NewClient creates a client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	bc := DefaultBreakerConfig(cfg.Name)
	bc.ReadyToTrip = TripOnRatio(5, 0.5)
	if cfg.Breaker != nil {
		bc = *cfg.Breaker
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		breaker:    NewBreaker[*http.Response](bc), //nolint:bodyclose // type param, not response
		cfg:        cfg,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the client's name.
func (c *Client) Name() string { return c.cfg.Name }

// State returns the breaker state.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

// Counts returns the breaker counts.
func (c *Client) Counts() gobreaker.Counts { return c.breaker.Counts() }

// Do sends req. A 5xx response that survives every retry is returned as the
// response, not as an error. Requests must have a replayable body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var last *http.Response
	attempt := func() error {
		if last != nil {
			last.Body.Close()
			last = nil
		}
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by caller or next attempt
			attemptReq := req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, backoff.Permanent(err)
				}
				attemptReq.Body = body
			}
			r, err := c.httpClient.Do(attemptReq)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if breakerRejected(err) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if resp != nil {
			last = resp
		}
		return err
	}

	err := backoff.Retry(attempt, policy)
	c.record(err)
	if err != nil {
		var serverErr *ServerError
		if last != nil && errors.As(err, &serverErr) {
			return last, nil
		}
		if last != nil {
			last.Body.Close()
		}
		return nil, err
	}
	return last, nil
}

func (c *Client) record(err error) {
	if c.cfg.Registry == nil {
		return
	}
	if err == nil {
		c.cfg.Registry.RecordSuccess(c.cfg.Name)
		return
	}
	c.cfg.Registry.RecordFailure(c.cfg.Name, err)
}

// ServerError represents an HTTP 5xx response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// Get is a convenience wrapper for a GET with optional headers.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	return c.Do(req)
}
