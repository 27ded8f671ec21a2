package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tarum/picdataset/internal/config"
)

// fakeStore keeps upserted records in memory, keyed by URL like the real
// store's UNIQUE constraint.
type fakeStore struct {
	mu      sync.Mutex
	byURL   map[string]int64
	records []*ImageRecord
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{byURL: make(map[string]int64)}
}

func (f *fakeStore) UpsertImage(rec *ImageRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byURL[rec.URL]; ok {
		return id, nil
	}
	f.nextID++
	f.byURL[rec.URL] = f.nextID
	f.records = append(f.records, rec)
	return f.nextID, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeStore) sources() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, rec := range f.records {
		out[rec.Source]++
	}
	return out
}

// testSite serves search pages listing image candidates and the images
// themselves from one httptest server, counting page fetches.
type testSite struct {
	server     *httptest.Server
	imageBytes []byte
	pageHits   atomic.Int64
	perPage    int
}

func newTestSite(t *testing.T, perPage int) *testSite {
	t.Helper()
	site := &testSite{imageBytes: encodePNG(t, 640, 640), perPage: perPage}

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		site.pageHits.Add(1)
		page := r.URL.Query().Get("page")
		var b strings.Builder
		b.WriteString("<html><body>")
		for i := 0; i < site.perPage; i++ {
			fmt.Fprintf(&b, `<img src="%s/img/p%s-%d.png">`, site.server.URL, page, i)
		}
		b.WriteString("</body></html>")
		w.Write([]byte(b.String()))
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(site.imageBytes)
	})

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

// installProfile registers a temporary site profile pointed at the test
// server and removes it when the test finishes.
func installProfile(t *testing.T, name string, site *testSite) {
	t.Helper()
	profiles[name] = &Profile{
		Name: name,
		SearchURL: func(q string, page int) string {
			return fmt.Sprintf("%s/search?q=%s&page=%d", site.server.URL, q, page)
		},
		Selectors:       []string{"img"},
		MinQualityScore: 0,
	}
	t.Cleanup(func() { delete(profiles, name) })
}

func testConfig(t *testing.T) *config.ScrapeConfig {
	t.Helper()
	return &config.ScrapeConfig{
		Query:          "sunset",
		TargetPerSite:  5,
		MaxPages:       3,
		RatePerMinute:  0, // no pacing in tests
		RequestTimeout: 5 * time.Second,
		MinImageSize:   100,
		MaxWorkers:     2,
		UserAgent:      "test-agent",
		RawDir:         t.TempDir(),
	}
}

func TestScraperRun(t *testing.T) {
	t.Run("StopsAtTargetMidPage", func(t *testing.T) {
		site := newTestSite(t, 10)
		installProfile(t, "siteone", site)

		cfg := testConfig(t)
		cfg.Sites = []string{"siteone"}

		store := newFakeStore()
		s := New(cfg, store)
		defer s.Close()

		result, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if store.count() != 5 {
			t.Errorf("Expected exactly 5 ingested records, got %d", store.count())
		}
		if hits := site.pageHits.Load(); hits != 1 {
			t.Errorf("Target met on page 1, expected no further page fetches, got %d", hits)
		}
		if result.Stats.Downloaded != 5 {
			t.Errorf("Stats.Downloaded = %d, want 5", result.Stats.Downloaded)
		}
		if len(result.NewIDs) != 5 {
			t.Errorf("Expected 5 new IDs, got %v", result.NewIDs)
		}
	})

	t.Run("PaginatesUntilTarget", func(t *testing.T) {
		site := newTestSite(t, 2)
		installProfile(t, "siteone", site)

		cfg := testConfig(t)
		cfg.Sites = []string{"siteone"}
		cfg.TargetPerSite = 5

		store := newFakeStore()
		s := New(cfg, store)
		defer s.Close()

		if _, err := s.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		// 2 candidates per page, 3 page budget: all pages visited, 6 unique
		// URLs but the third page is capped to the remaining 1.
		if hits := site.pageHits.Load(); hits != 3 {
			t.Errorf("Expected all 3 pages fetched, got %d", hits)
		}
		if store.count() != 5 {
			t.Errorf("Expected 5 ingested records, got %d", store.count())
		}
	})

	t.Run("UnknownSiteSkipped", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Sites = []string{"nosuchsite"}

		store := newFakeStore()
		s := New(cfg, store)
		defer s.Close()

		result, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if store.count() != 0 || result.Stats.Pages != 0 {
			t.Errorf("Unknown site should produce no work, got %d records, %d pages",
				store.count(), result.Stats.Pages)
		}
	})

	t.Run("RepeatedURLsSkippedWithinRun", func(t *testing.T) {
		// Search pages that always list the same candidate URLs.
		var server *httptest.Server
		var pageHits atomic.Int64
		imageBytes := encodePNG(t, 640, 640)
		mux := http.NewServeMux()
		mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
			pageHits.Add(1)
			var b strings.Builder
			b.WriteString("<html><body>")
			for i := 0; i < 3; i++ {
				fmt.Fprintf(&b, `<img src="%s/img/same-%d.png">`, server.URL, i)
			}
			b.WriteString("</body></html>")
			w.Write([]byte(b.String()))
		})
		mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
			w.Write(imageBytes)
		})
		server = httptest.NewServer(mux)
		t.Cleanup(server.Close)

		profiles["repeater"] = &Profile{
			Name: "repeater",
			SearchURL: func(q string, page int) string {
				return fmt.Sprintf("%s/search?page=%d", server.URL, page)
			},
			Selectors:       []string{"img"},
			MinQualityScore: 0,
		}
		t.Cleanup(func() { delete(profiles, "repeater") })

		cfg := testConfig(t)
		cfg.Sites = []string{"repeater"}
		cfg.TargetPerSite = 10

		store := newFakeStore()
		s := New(cfg, store)
		defer s.Close()

		result, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		// Every page repeats the same 3 URLs; only the first sighting of
		// each is downloaded.
		if store.count() != 3 {
			t.Errorf("Expected 3 unique ingested records, got %d", store.count())
		}
		if result.Stats.Skipped == 0 {
			t.Error("Expected repeat candidates to be counted as skipped")
		}
	})

	t.Run("GenericURLs", func(t *testing.T) {
		site := newTestSite(t, 4)

		cfg := testConfig(t)
		cfg.Sites = nil
		cfg.GenericURLs = []string{site.server.URL + "/search?page=1"}

		store := newFakeStore()
		s := New(cfg, store)
		defer s.Close()

		if _, err := s.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if store.count() != 4 {
			t.Errorf("Expected 4 ingested records, got %d", store.count())
		}
		if got := store.sources(); got[SourceGeneric] != 4 {
			t.Errorf("Expected all records tagged %q, got %v", SourceGeneric, got)
		}
	})

	t.Run("FailedPageNotFatal", func(t *testing.T) {
		imageBytes := encodePNG(t, 640, 640)
		var server *httptest.Server
		mux := http.NewServeMux()
		mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "1" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `<html><body><img src="%s/img/late.png"></body></html>`, server.URL)
		})
		mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
			w.Write(imageBytes)
		})
		server = httptest.NewServer(mux)
		t.Cleanup(server.Close)

		profiles["flaky"] = &Profile{
			Name: "flaky",
			SearchURL: func(q string, page int) string {
				return fmt.Sprintf("%s/search?page=%d", server.URL, page)
			},
			Selectors:       []string{"img"},
			MinQualityScore: 0,
		}
		t.Cleanup(func() { delete(profiles, "flaky") })

		cfg := testConfig(t)
		cfg.Sites = []string{"flaky"}
		cfg.TargetPerSite = 1
		cfg.MaxPages = 2

		store := newFakeStore()
		s := New(cfg, store)
		defer s.Close()

		if _, err := s.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if store.count() != 1 {
			t.Errorf("Expected the second page to succeed, got %d records", store.count())
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		site := newTestSite(t, 5)
		installProfile(t, "siteone", site)

		cfg := testConfig(t)
		cfg.Sites = []string{"siteone"}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		store := newFakeStore()
		s := New(cfg, store)
		defer s.Close()

		if _, err := s.Run(ctx); err == nil {
			t.Error("Expected context error from cancelled run")
		}
		if store.count() != 0 {
			t.Errorf("Cancelled run should ingest nothing, got %d", store.count())
		}
	})
}
