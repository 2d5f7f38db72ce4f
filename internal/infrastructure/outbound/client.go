// Package outbound wraps calls to third-party HTTP APIs with a timeout,
// bounded exponential retries and a circuit breaker per upstream.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

const maxBody = 1 << 20

// StatusError is a non-2xx reply from the upstream.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Code)
}

// Transient reports whether repeating the call may succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ErrUnavailable is returned while the breaker for an upstream is open.
var ErrUnavailable = errors.New("upstream temporarily unavailable")

type Config struct {
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	OpenFor          time.Duration
}

type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	cfg     Config
}

func New(name string, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    name,
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// client errors say nothing about upstream health
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Transient()
			}
			return err == nil
		},
	})
	return &Client{
		name:    name,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: cb,
		cfg:     cfg,
	}
}

// Name is the upstream label used in logs and errors.
func (c *Client) Name() string { return c.name }

// Do sends the request built by newReq and returns the response body.
// newReq is called once per attempt so bodies can be replayed. When retry
// is false the call is attempted exactly once.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error), retry bool) ([]byte, error) {
	var retries uint64
	if retry {
		retries = c.cfg.MaxRetries
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, retries), ctx)

	return backoff.RetryWithData(func() ([]byte, error) {
		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.attempt(ctx, newReq)
		})
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", c.name, ErrUnavailable))
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Transient() {
			return nil, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, policy)
}

func (c *Client) attempt(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := newReq(actx)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%s: build request: %w", c.name, err))
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.name, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Service: c.name, Code: res.StatusCode, Body: string(body)}
	}
	return body, nil
}
