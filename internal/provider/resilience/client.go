package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned without contacting the upstream while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig configures a Client. Zero values take the defaults noted.
type ClientConfig struct {
	// Name labels the breaker and the registry entry.
	Name string

	// Timeout bounds a single attempt. Default 10s.
	Timeout time.Duration

	// MaxRetries counts attempts after the first. Default 3.
	MaxRetries uint64

	// InitialInterval and MaxInterval shape exponential backoff.
	// Defaults 100ms and 5s.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxRetryAfter caps how long an upstream Retry-After may delay a retry.
	// Default 30s.
	MaxRetryAfter time.Duration

	// CircuitBreaker defaults to DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// RequestsPerSecond caps outgoing attempts, retries included. Zero is unlimited.
	RequestsPerSecond float64
	Burst             int

	// UserAgent is set on requests that do not carry one.
	UserAgent string

	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Registry, if set, receives the client under Name.
	Registry *Registry
}

// DefaultClientConfig returns the defaults used for weather providers.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxRetryAfter:   30 * time.Second,
		CircuitBreaker:  &breaker,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig(c.Name)
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxRetryAfter <= 0 {
		c.MaxRetryAfter = d.MaxRetryAfter
	}
	if c.CircuitBreaker == nil {
		c.CircuitBreaker = d.CircuitBreaker
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Client is an http.Client wrapper adding retries, a circuit breaker and
// an optional outgoing rate limit.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	limiter        *rate.Limiter
	config         ClientConfig
}

// NewClient creates a Client and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()

	c := &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		circuitBreaker: NewCircuitBreaker[*http.Response](*cfg.CircuitBreaker), //nolint:bodyclose // type param, not response
		config:         cfg,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the provider name the client was configured with.
func (c *Client) Name() string {
	return c.config.Name
}

// Do sends req, retrying network errors, 5xx and 429 with exponential
// backoff. A Retry-After from the upstream stretches the next wait.
// When retries run out on an error status, the last response is returned
// with a nil error so callers can inspect it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext is Do with an explicit context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.config.InitialInterval
	exp.MaxInterval = c.config.MaxInterval
	exp.MaxElapsedTime = 0

	hinted := &hintedBackOff{BackOff: exp}
	policy := backoff.WithContext(backoff.WithMaxRetries(hinted, c.config.MaxRetries), ctx)

	var last *http.Response
	keep := func(resp *http.Response) {
		if last != nil {
			last.Body.Close()
		}
		last = resp
	}

	attempt := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			return c.send(ctx, req)
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case err != nil:
			var serverErr *ServerError
			if errors.As(err, &serverErr) {
				hinted.hint = min(serverErr.RetryAfter, c.config.MaxRetryAfter)
			}
			if resp != nil {
				keep(resp)
			}
			return err
		}
		keep(resp)
		return nil
	}

	if err := backoff.Retry(attempt, policy); err != nil {
		if last != nil {
			return last, nil
		}
		return nil, err
	}
	return last, nil
}

func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	if c.config.UserAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.config.UserAgent)
	}
	resp, err := c.httpClient.Do(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return resp, &ServerError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp, nil
}

// ServerError is a 5xx or 429 response. It counts as a breaker failure.
type ServerError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// parseRetryAfter reads the delay-seconds form. HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// hintedBackOff waits at least hint before the next retry, once.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	hint := b.hint
	b.hint = 0
	return max(next, hint)
}

// CircuitBreakerState returns the breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the breaker counts for the current generation.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
