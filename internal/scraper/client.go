// Package scraper implements the image ingestion pipeline: site-profile
// driven URL extraction, an API-backed search path, concurrent downloads
// with rate limiting, and idempotent persistence into the content store.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	maxAttempts = 3

	// Jittered wait between retries of a failed request.
	backoffMin = 1 * time.Second
	backoffMax = 3 * time.Second

	// HTTP 429 is an explicit rate-limit signal, not a generic failure;
	// it gets a much longer wait before the retry.
	rateLimitWaitMin = 30 * time.Second
	rateLimitWaitMax = 60 * time.Second
)

// Response carries the parts of an HTTP response the pipeline needs.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	FinalURL   string
}

// Client performs HTTP GETs with a bounded retry budget. Transport errors,
// 5xx responses and 429 responses are retried; any other status is returned
// to the caller to classify. Exhausting the budget surfaces an error the
// caller treats as "skip this page/URL".
type Client struct {
	hc        *http.Client
	userAgent string

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a fetch client with the given User-Agent and per-request
// timeout.
func NewClient(userAgent string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		hc: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		sleep:     sleepCtx,
	}
}

// Get fetches the URL, retrying transient failures up to the retry budget.
// A non-nil Response with a non-2xx status is not an error here; callers
// decide whether that is fatal for their unit of work.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.doGet(ctx, url)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) by %s", url)
			if attempt < maxAttempts {
				wait := jitter(rateLimitWaitMin, rateLimitWaitMax)
				slog.Warn("Rate limited, backing off", "url", url, "wait", wait)
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
			}
			continue
		} else if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error %d from %s", resp.StatusCode, url)
		} else {
			return resp, nil
		}

		if attempt < maxAttempts {
			wait := jitter(backoffMin, backoffMax)
			slog.Debug("Retrying fetch", "url", url, "attempt", attempt, "wait", wait, "error", lastErr)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("fetch failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) doGet(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,image/*;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.hc.CloseIdleConnections()
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
