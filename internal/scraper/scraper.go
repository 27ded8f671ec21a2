package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tarum/picdataset/internal/config"
)

// Scraper drives the ingestion pipeline for a set of requested sites:
// paginate, extract candidates, download in bounded parallel batches, and
// upsert each success into the content store. Per-item failures never abort
// a site's run; they are counted and skipped.
type Scraper struct {
	cfg        *config.ScrapeConfig
	store      Store
	client     *Client
	limiter    *RateLimiter
	downloader *Downloader
	api        *APIExtractor

	// seen avoids redundant downloads within a single run. The store's
	// upsert already makes repeats harmless across runs.
	seen   map[string]struct{}
	seenMu sync.Mutex

	stats   Stats
	statsMu sync.Mutex

	newIDs   []int64
	newIDsMu sync.Mutex
}

// RunResult reports what one scraping run accomplished.
type RunResult struct {
	Stats  Stats
	NewIDs []int64 // IDs of records ingested or refreshed during this run
}

// New creates a scraper for the given configuration and store.
func New(cfg *config.ScrapeConfig, store Store) *Scraper {
	client := NewClient(cfg.UserAgent, cfg.RequestTimeout)

	return &Scraper{
		cfg:        cfg,
		store:      store,
		client:     client,
		limiter:    NewRateLimiter(cfg.RatePerMinute),
		downloader: NewDownloader(client, cfg.RawDir, cfg.MinImageSize),
		api:        NewAPIExtractor(client, cfg.UnsplashAccessKey),
		seen:       make(map[string]struct{}),
		stats:      Stats{StartTime: time.Now()},
	}
}

// Run executes the pipeline for every configured site, then for the generic
// URL list. It terminates each site at its target or page limit, and the
// whole run cooperatively on context cancellation.
func (s *Scraper) Run(ctx context.Context) (*RunResult, error) {
	for _, site := range s.cfg.Sites {
		if ctx.Err() != nil {
			break
		}
		switch site {
		case SourceAPI:
			s.runAPISite(ctx)
		default:
			s.runProfileSite(ctx, site)
		}
	}

	if ctx.Err() == nil && len(s.cfg.GenericURLs) > 0 {
		s.runGenericURLs(ctx)
	}

	s.statsMu.Lock()
	s.stats.Duration = time.Since(s.stats.StartTime)
	stats := s.stats
	s.statsMu.Unlock()

	slog.Info("Scraping run complete",
		"discovered", stats.Discovered,
		"downloaded", stats.Downloaded,
		"skipped", stats.Skipped,
		"pages", stats.Pages,
		"duration", stats.Duration)

	return &RunResult{Stats: stats, NewIDs: s.collectedIDs()}, ctx.Err()
}

// Close releases the scraper's HTTP resources.
func (s *Scraper) Close() {
	s.client.Close()
}

// runProfileSite paginates one HTML-scraped site until the per-site target
// or the page limit is reached. A page that fails to fetch or yields zero
// candidates is skipped, not fatal.
func (s *Scraper) runProfileSite(ctx context.Context, site string) {
	profile, ok := LookupProfile(site)
	if !ok {
		slog.Warn("No profile for site, skipping", "site", site)
		return
	}

	slog.Info("Scraping site", "site", site, "query", s.cfg.Query, "target", s.cfg.TargetPerSite)

	ingested := 0
	for page := 1; page <= s.cfg.MaxPages && ingested < s.cfg.TargetPerSite; page++ {
		if ctx.Err() != nil {
			return
		}

		pageURL := profile.SearchURL(s.cfg.Query, page)
		if err := s.limiter.Wait(ctx, pageURL); err != nil {
			return
		}

		resp, err := s.client.Get(ctx, pageURL)
		if err != nil {
			slog.Warn("Page fetch failed, skipping", "site", site, "page", page, "error", err)
			continue
		}
		s.countPage()
		if resp.StatusCode != 200 {
			slog.Warn("Page returned non-200, skipping", "site", site, "page", page, "status", resp.StatusCode)
			continue
		}

		candidates, err := ExtractCandidates(resp.Body, profile)
		if err != nil {
			slog.Warn("Extraction failed, skipping page", "site", site, "page", page, "error", err)
			continue
		}
		s.countDiscovered(len(candidates))

		if remaining := s.cfg.TargetPerSite - ingested; len(candidates) > remaining {
			candidates = candidates[:remaining]
		}

		ingested += s.ingestBatch(ctx, candidates, site)
		slog.Info("Page done", "site", site, "page", page, "ingested", ingested)
	}
}

// runAPISite paginates the API-backed search path.
func (s *Scraper) runAPISite(ctx context.Context) {
	slog.Info("Scraping via API", "source", SourceAPI, "query", s.cfg.Query, "target", s.cfg.TargetPerSite)

	ingested := 0
	for page := 1; page <= s.cfg.MaxPages && ingested < s.cfg.TargetPerSite; page++ {
		if ctx.Err() != nil {
			return
		}

		if err := s.limiter.Wait(ctx, s.api.BaseURL()); err != nil {
			return
		}

		urls, err := s.api.SearchPhotos(ctx, s.cfg.Query, page, maxPerPage, "relevant")
		s.countPage()
		if err != nil {
			slog.Warn("API page failed, skipping", "page", page, "error", err)
			continue
		}
		s.countDiscovered(len(urls))

		if remaining := s.cfg.TargetPerSite - ingested; len(urls) > remaining {
			urls = urls[:remaining]
		}

		ingested += s.ingestBatch(ctx, urls, SourceAPI)
		slog.Info("API page done", "page", page, "ingested", ingested)
	}
}

// runGenericURLs ingests caller-supplied page URLs as the "generic" source,
// one page each, no pagination.
func (s *Scraper) runGenericURLs(ctx context.Context) {
	profile := GenericProfile()

	for _, pageURL := range s.cfg.GenericURLs {
		if ctx.Err() != nil {
			return
		}
		if err := s.limiter.Wait(ctx, pageURL); err != nil {
			return
		}

		resp, err := s.client.Get(ctx, pageURL)
		if err != nil {
			slog.Warn("Generic page fetch failed, skipping", "url", pageURL, "error", err)
			continue
		}
		s.countPage()
		if resp.StatusCode != 200 {
			slog.Warn("Generic page returned non-200, skipping", "url", pageURL, "status", resp.StatusCode)
			continue
		}

		candidates, err := ExtractCandidates(resp.Body, profile)
		if err != nil {
			slog.Warn("Generic extraction failed, skipping", "url", pageURL, "error", err)
			continue
		}
		s.countDiscovered(len(candidates))
		s.ingestBatch(ctx, candidates, SourceGeneric)
	}
}

// ingestBatch downloads one page's candidates on a bounded task group and
// upserts each success. All tasks are joined before returning so the caller
// can decide whether the per-site target has been reached. Individual
// failures become skipped items, never a group abort.
func (s *Scraper) ingestBatch(ctx context.Context, candidates []string, source string) int {
	ingested := 0
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)

	for _, candidate := range candidates {
		if !s.markSeen(candidate) {
			s.countSkip(SkipSeen, candidate)
			continue
		}

		url := candidate
		g.Go(func() error {
			outcome := s.ingestOne(gctx, url, source)
			if outcome.Ingested() {
				mu.Lock()
				ingested++
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return ingested
}

// ingestOne runs the full download-validate-persist path for one candidate.
func (s *Scraper) ingestOne(ctx context.Context, url, source string) Outcome {
	// Per-domain pacing applies to individual image fetches too, so a
	// worker batch cannot hammer one host past the configured budget.
	if err := s.limiter.Wait(ctx, url); err != nil {
		return s.skipped(SkipFetchFailed, url)
	}

	info, err := s.downloader.Download(ctx, url)
	if err != nil {
		slog.Debug("Download failed", "url", url, "error", err)
		return s.skipped(SkipFetchFailed, url)
	}
	if info == nil {
		return s.skipped(SkipNotAnImage, url)
	}

	id, err := s.store.UpsertImage(&ImageRecord{
		Source:    source,
		Query:     s.cfg.Query,
		URL:       url,
		LocalPath: info.LocalPath,
		Width:     info.Width,
		Height:    info.Height,
		Format:    info.Format,
	})
	if err != nil {
		slog.Error("Image not ingested: store write failed", "url", url, "error", err)
		return s.skipped(SkipStoreError, url)
	}

	s.statsMu.Lock()
	s.stats.Downloaded++
	s.statsMu.Unlock()

	s.newIDsMu.Lock()
	s.newIDs = append(s.newIDs, id)
	s.newIDsMu.Unlock()

	return Outcome{ID: id}
}

// markSeen records the URL for this run; false means it was already seen.
func (s *Scraper) markSeen(url string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, dup := s.seen[url]; dup {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

func (s *Scraper) skipped(reason SkipReason, url string) Outcome {
	s.countSkip(reason, url)
	return Outcome{Skip: reason}
}

func (s *Scraper) countSkip(reason SkipReason, url string) {
	slog.Debug("Candidate skipped", "reason", reason, "url", url)
	s.statsMu.Lock()
	s.stats.Skipped++
	s.statsMu.Unlock()
}

func (s *Scraper) countDiscovered(n int) {
	s.statsMu.Lock()
	s.stats.Discovered += n
	s.statsMu.Unlock()
}

func (s *Scraper) countPage() {
	s.statsMu.Lock()
	s.stats.Pages++
	s.statsMu.Unlock()
}

func (s *Scraper) collectedIDs() []int64 {
	s.newIDsMu.Lock()
	defer s.newIDsMu.Unlock()
	ids := make([]int64, len(s.newIDs))
	copy(ids, s.newIDs)
	return ids
}
