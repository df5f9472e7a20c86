package services

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/desertthunder/relisten/internal/cache"
	"github.com/desertthunder/relisten/internal/shared"
	tu "github.com/desertthunder/relisten/internal/testing"
	"golang.org/x/time/rate"
)

// fastClient builds a Client whose limiter and retry waits are effectively
// instant so tests never sleep.
func fastClient(transport http.RoundTripper, c *cache.ResponseCache) *Client {
	return NewClient(ClientOpts{
		HTTPClient:         &http.Client{Transport: transport},
		Cache:              c,
		Limiter:            rate.NewLimiter(rate.Inf, 1),
		MaxRetries:         2,
		RetryAfterFallback: time.Millisecond,
	})
}

func TestClientGet(t *testing.T) {
	params := url.Values{}
	params.Set("method", "artist.getinfo")
	params.Set("artist", "Radiohead")

	t.Run("Returns Body On Success", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper([]*http.Response{
			tu.JSONResponse(200, `{"ok":true}`),
		}, nil)

		body, err := fastClient(rt, nil).Get(context.Background(), "http://example.test", params)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if string(body) != `{"ok":true}` {
			t.Errorf("unexpected body %s", body)
		}
	})

	t.Run("Serves From Cache Without Network", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper([]*http.Response{
			tu.JSONResponse(200, `{"ok":true}`),
		}, nil)
		respCache := cache.New(time.Hour, "", nil)
		client := fastClient(rt, respCache)

		if _, err := client.Get(context.Background(), "http://example.test", params); err != nil {
			t.Fatalf("first request failed: %v", err)
		}
		if _, err := client.Get(context.Background(), "http://example.test", params); err != nil {
			t.Fatalf("second request failed: %v", err)
		}

		if rt.Calls() != 1 {
			t.Errorf("expected 1 network call, got %d", rt.Calls())
		}
	})

	t.Run("Error Responses Never Reach Cache", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper([]*http.Response{
			tu.JSONResponse(404, `{"message":"missing"}`),
		}, nil)
		respCache := cache.New(time.Hour, "", nil)

		_, err := fastClient(rt, respCache).Get(context.Background(), "http://example.test", params)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if respCache.Len() != 0 {
			t.Errorf("expected empty cache, got %d entries", respCache.Len())
		}
	})

	t.Run("Retries Once After 429", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper([]*http.Response{
			tu.JSONResponse(429, `{}`),
			tu.JSONResponse(200, `{"ok":true}`),
		}, nil)

		body, err := fastClient(rt, nil).Get(context.Background(), "http://example.test", params)
		if err != nil {
			t.Fatalf("expected recovery after throttle, got %v", err)
		}
		if string(body) != `{"ok":true}` {
			t.Errorf("unexpected body %s", body)
		}
		if rt.Calls() != 2 {
			t.Errorf("expected 2 network calls, got %d", rt.Calls())
		}
	})

	t.Run("Gives Up When Still Throttled", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper([]*http.Response{
			tu.JSONResponse(429, `{}`),
			tu.JSONResponse(429, `{}`),
		}, nil)

		_, err := fastClient(rt, nil).Get(context.Background(), "http://example.test", params)
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if rt.Calls() != 2 {
			t.Errorf("expected exactly 2 network calls, got %d", rt.Calls())
		}
	})

	t.Run("Retries Server Errors With Backoff", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper([]*http.Response{
			tu.JSONResponse(500, `{}`),
			tu.JSONResponse(200, `{"ok":true}`),
		}, nil)

		body, err := fastClient(rt, nil).Get(context.Background(), "http://example.test", params)
		if err != nil {
			t.Fatalf("expected recovery after server error, got %v", err)
		}
		if string(body) != `{"ok":true}` {
			t.Errorf("unexpected body %s", body)
		}
	})

	t.Run("Fails Fast On Client Errors", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper([]*http.Response{
			tu.JSONResponse(400, `{}`),
		}, nil)

		_, err := fastClient(rt, nil).Get(context.Background(), "http://example.test", params)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if rt.Calls() != 1 {
			t.Errorf("expected no retries for 400, got %d calls", rt.Calls())
		}
	})

	t.Run("Caches Successful Bodies", func(t *testing.T) {
		rt := tu.NewSequenceRoundTripper([]*http.Response{
			tu.JSONResponse(200, `{"ok":true}`),
		}, nil)
		respCache := cache.New(time.Hour, "", nil)

		if _, err := fastClient(rt, respCache).Get(context.Background(), "http://example.test", params); err != nil {
			t.Fatalf("request failed: %v", err)
		}

		stored, ok := respCache.Get(params)
		if !ok {
			t.Fatal("expected body in cache")
		}
		if string(stored) != `{"ok":true}` {
			t.Errorf("unexpected cached body %s", stored)
		}
	})
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(ClientOpts{})

	if client.http == nil {
		t.Error("expected default http client")
	}
	if client.limiter == nil {
		t.Error("expected default limiter")
	}
	if client.maxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", client.maxRetries)
	}
	if client.retryAfterFallback != 5*time.Second {
		t.Errorf("expected 5s fallback, got %s", client.retryAfterFallback)
	}
}

func TestSharedLimiter(t *testing.T) {
	feed := NewClient(ClientOpts{RatePerSecond: 2})
	ref := NewClient(ClientOpts{Limiter: feed.Limiter()})

	if feed.Limiter() != ref.Limiter() {
		t.Error("expected both clients to share one limiter")
	}
}
