// Package resilience hardens outbound routing-provider calls. Every provider
// gets retries with exponential backoff, a circuit breaker, and an entry in
// the provider registry that the ops endpoints report on.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while a provider's circuit breaker is open.
// Callers should fall back or surface the outage instead of retrying.
var ErrCircuitOpen = errors.New("provider circuit open")

// StatusError marks a 5xx provider answer. It trips the circuit breaker and
// is retried like a network failure.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d %s", e.Code, http.StatusText(e.Code))
}

// ClientConfig configures one provider's hardened HTTP client.
type ClientConfig struct {
	// Name identifies the provider in logs, breaker state and the registry.
	Name string

	// Timeout bounds a single HTTP attempt. Default 10s.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first.
	// Default 3.
	MaxRetries uint64

	// InitialInterval and MaxInterval bound the backoff between attempts.
	// Defaults 100ms and 5s.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// BreakerTimeout is how long the circuit stays open before a trial
	// request is let through. Default 60s.
	BreakerTimeout time.Duration

	// Registry, when set, tracks this provider's health. NewClient registers
	// the client under Name.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the defaults used for routing providers.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		BreakerTimeout:  60 * time.Second,
	}
}

// Client is an HTTP client for one routing provider. It retries transient
// failures, opens its circuit after repeated ones, and reports every outcome
// to the registry.
type Client struct {
	name            string
	http            *http.Client
	breaker         *gobreaker.CircuitBreaker[*http.Response]
	registry        *Registry
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          zerolog.Logger
}

// NewClient creates the hardened client and, when a registry is configured,
// registers it there.
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
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}

	logger := cfg.Logger.With().Str("provider", cfg.Name).Logger()
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit state changed")
		},
	})

	c := &Client{
		name:            cfg.Name,
		http:            &http.Client{Timeout: cfg.Timeout},
		breaker:         breaker,
		registry:        cfg.Registry,
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		logger:          logger,
	}
	if cfg.Registry != nil {
		cfg.Registry.register(cfg.Name, c)
	}
	return c
}

// Do executes the request with retries and circuit breaking. The caller owns
// the returned response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext is Do with an explicit context bounding all attempts.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxInterval = c.maxInterval
	bo.MaxElapsedTime = 0

	var last *http.Response
	attempt := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // handed to the caller
			r, err := c.http.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &StatusError{Code: r.StatusCode}
			}
			return r, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.record(ErrCircuitOpen)
			return backoff.Permanent(ErrCircuitOpen)
		}
		if err != nil {
			if resp != nil {
				last = resp
			}
			c.record(err)
			return err
		}

		last = resp
		c.record(nil)
		return nil
	}

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		// Exhausted retries on 5xx answers: hand the caller the last one so
		// it can map the provider's error body.
		if last != nil {
			return last, nil
		}
		c.logger.Debug().Err(err).Msg("provider request failed")
		return nil, err
	}
	return last, nil
}

// State exposes the circuit breaker state for health reporting.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts exposes the circuit breaker statistics for health reporting.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

func (c *Client) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.recordFailure(c.name, err)
	} else {
		c.registry.recordSuccess(c.name)
	}
}
