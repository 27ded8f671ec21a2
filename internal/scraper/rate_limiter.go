package scraper

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum inter-request delay per domain, computed
// from a requests-per-minute budget.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	delay    time.Duration
}

// NewRateLimiter creates a limiter for the given requests-per-minute budget.
// An rpm of 0 or less disables waiting.
func NewRateLimiter(rpm int) *RateLimiter {
	var delay time.Duration
	if rpm > 0 {
		delay = time.Duration(float64(time.Minute) / float64(rpm))
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

// Delay returns the computed minimum inter-request delay.
func (r *RateLimiter) Delay() time.Duration {
	return r.delay
}

// Wait blocks until a request to the URL's domain is permitted.
func (r *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if r.delay <= 0 {
		return nil
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	return r.getLimiter(parsedURL.Host).Wait(ctx)
}

// getLimiter gets or creates the limiter for a domain.
func (r *RateLimiter) getLimiter(domain string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[domain]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again in case another goroutine created it
	if limiter, exists := r.limiters[domain]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Every(r.delay), 1)
	r.limiters[domain] = limiter

	return limiter
}
