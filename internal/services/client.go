package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/relisten/internal/cache"
	"github.com/desertthunder/relisten/internal/shared"
	"golang.org/x/time/rate"
)

// ClientOpts contains configuration for a rate-limited API client.
type ClientOpts struct {
	HTTPClient         *http.Client
	Cache              *cache.ResponseCache // nil disables caching
	Limiter            *rate.Limiter        // share one limiter per provider
	Logger             *log.Logger
	RatePerSecond      float64       // used when Limiter is nil
	MaxRetries         uint64        // transient-failure retries (default 3)
	RetryAfterFallback time.Duration // 429 wait when no Retry-After header
}

// Client issues serial, throttled GET requests to one provider, retrying
// transient failures with exponential backoff and honoring 429 responses.
// Successfully parsed bodies are the only thing ever written to the cache.
//
// Calls are issued serially by the caller; the limiter enforces the
// provider's minimum interval between them, it is not a token bucket
// shared across flows.
type Client struct {
	http               *http.Client
	limiter            *rate.Limiter
	cache              *cache.ResponseCache
	logger             *log.Logger
	maxRetries         uint64
	retryAfterFallback time.Duration
}

// NewClient creates a Client from opts, filling defaults where unset.
func NewClient(opts ClientOpts) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Limiter == nil {
		if opts.RatePerSecond <= 0 {
			opts.RatePerSecond = 4.0
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryAfterFallback <= 0 {
		opts.RetryAfterFallback = 5 * time.Second
	}

	return &Client{
		http:               opts.HTTPClient,
		limiter:            opts.Limiter,
		cache:              opts.Cache,
		logger:             opts.Logger,
		maxRetries:         opts.MaxRetries,
		retryAfterFallback: opts.RetryAfterFallback,
	}
}

// Limiter exposes the client's limiter so sibling clients for the same
// provider can share it.
func (c *Client) Limiter() *rate.Limiter {
	return c.limiter
}

// Get issues a GET to rawURL with the given query parameters and returns
// the response body. The cache is consulted first; on a miss the call
// waits out the provider's minimum interval before going to the network.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(params); ok {
			return body, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("interrupted waiting for rate limit: %w", err)
	}

	fullURL := rawURL + "?" + params.Encode()

	op := func() ([]byte, error) {
		return c.fetch(ctx, fullURL)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries),
		ctx,
	)

	body, err := backoff.RetryWithData(op, bo)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Put(params, body)
	}

	return body, nil
}

// fetch performs one request attempt. Network failures are returned as
// retryable errors; a 429 blocks for the mandated delay and re-issues the
// request once before giving up.
func (c *Client) fetch(ctx context.Context, fullURL string) ([]byte, error) {
	body, status, retryAfter, err := c.do(ctx, fullURL)
	if err != nil {
		return nil, err
	}

	if status == http.StatusTooManyRequests {
		wait := c.retryAfterFallback
		if retryAfter > 0 {
			wait = retryAfter
		}
		if c.logger != nil {
			c.logger.Warnf("rate limited, waiting %s before retry", wait)
		}
		if err := sleepContext(ctx, wait); err != nil {
			return nil, backoff.Permanent(err)
		}

		body, status, _, err = c.do(ctx, fullURL)
		if err != nil {
			return nil, err
		}
		if status == http.StatusTooManyRequests {
			return nil, backoff.Permanent(fmt.Errorf("%w: still throttled after mandated delay", shared.ErrRateLimited))
		}
	}

	switch {
	case status == http.StatusNotFound:
		return nil, backoff.Permanent(shared.ErrNotFound)
	case status >= 500:
		return nil, fmt.Errorf("%w: status %d", shared.ErrAPIRequest, status)
	case status < 200 || status >= 300:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", shared.ErrAPIRequest, status))
	}

	return body, nil
}

// do executes a single HTTP GET, reads the body, and reports the parsed
// Retry-After header when the provider sent one.
func (c *Client) do(ctx context.Context, fullURL string) ([]byte, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, 0, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, 0, backoff.Permanent(err)
		}
		return nil, 0, 0, fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	var retryAfter time.Duration
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, perr := strconv.Atoi(s); perr == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: failed to read response: %v", shared.ErrNetwork, err)
	}

	return body, resp.StatusCode, retryAfter, nil
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
