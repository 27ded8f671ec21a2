package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultAPIBaseURL = "https://api.unsplash.com"
	maxPerPage        = 30
)

// APIExtractor queries a paginated JSON photo-search endpoint and maps the
// structured results to image URLs. It tracks the standard rate-limit
// response headers and blocks until the declared reset time once the quota
// is exhausted.
type APIExtractor struct {
	client    *Client
	baseURL   string
	accessKey string

	remaining int
	resetAt   time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAPIExtractor creates an API extractor backed by the shared fetch client.
func NewAPIExtractor(client *Client, accessKey string) *APIExtractor {
	return &APIExtractor{
		client:    client,
		baseURL:   defaultAPIBaseURL,
		accessKey: accessKey,
		remaining: -1, // unknown until the first response
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// BaseURL returns the search endpoint root, used for rate-limit pacing.
func (a *APIExtractor) BaseURL() string {
	return a.baseURL
}

type searchResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
			Full    string `json:"full"`
		} `json:"urls"`
	} `json:"results"`
}

// SearchPhotos fetches one page of search results and returns the candidate
// image URLs, preferring the pre-rendered "regular" size over "full". A
// non-200 response is a page-level failure: the caller logs and moves on.
func (a *APIExtractor) SearchPhotos(ctx context.Context, query string, page, perPage int, orderBy string) ([]string, error) {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	if err := a.waitForQuota(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("order_by", orderBy)
	params.Set("client_id", a.accessKey)

	searchURL := fmt.Sprintf("%s/search/photos?%s", a.baseURL, params.Encode())

	resp, err := a.client.Get(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	a.trackRateLimits(resp.Headers)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d for page %d", resp.StatusCode, page)
	}

	var parsed searchResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	urls := make([]string, 0, len(parsed.Results))
	for _, photo := range parsed.Results {
		switch {
		case photo.URLs.Regular != "":
			urls = append(urls, photo.URLs.Regular)
		case photo.URLs.Full != "":
			urls = append(urls, photo.URLs.Full)
		}
	}

	return urls, nil
}

// waitForQuota blocks until the server-declared reset time when the tracked
// quota is exhausted, instead of spinning into guaranteed 429s.
func (a *APIExtractor) waitForQuota(ctx context.Context) error {
	if a.remaining != 0 || a.resetAt.IsZero() {
		return nil
	}

	wait := a.resetAt.Sub(a.now())
	if wait <= 0 {
		return nil
	}

	slog.Info("API quota exhausted, waiting for reset", "wait", wait)
	if err := a.sleep(ctx, wait); err != nil {
		return err
	}
	a.remaining = -1
	return nil
}

func (a *APIExtractor) trackRateLimits(headers http.Header) {
	if v := headers.Get("X-Ratelimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			a.remaining = n
		}
	}
	if v := headers.Get("X-Ratelimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			a.resetAt = time.Unix(epoch, 0)
		}
	}
}
