package storage

import (
	"path/filepath"
	"testing"

	"github.com/tarum/picdataset/internal/scraper"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertImage(t *testing.T) {
	store := newTestStore(t)

	t.Run("IdempotentByURL", func(t *testing.T) {
		first, err := store.UpsertImage(&scraper.ImageRecord{
			Source: "unsplash", Query: "mountain", URL: "http://x/a.jpg",
			LocalPath: "/raw/a.jpg", Width: 100, Height: 100, Format: "JPEG",
		})
		if err != nil {
			t.Fatalf("First upsert failed: %v", err)
		}

		second, err := store.UpsertImage(&scraper.ImageRecord{
			Source: "unsplash", Query: "mountain", URL: "http://x/a.jpg",
			LocalPath: "/raw/a.jpg", Width: 200, Height: 150, Format: "JPEG",
		})
		if err != nil {
			t.Fatalf("Second upsert failed: %v", err)
		}

		if first != second {
			t.Errorf("Expected same id for same URL, got %d then %d", first, second)
		}

		records, err := store.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("Expected exactly one row, got %d", len(records))
		}
		if records[0].Width != 200 {
			t.Errorf("Expected updated width 200, got %d", records[0].Width)
		}
	})

	t.Run("PreservesDerivedFields", func(t *testing.T) {
		id, err := store.UpsertImage(&scraper.ImageRecord{
			Source: "pexels", URL: "http://x/b.jpg", LocalPath: "/raw/b.jpg",
			Width: 640, Height: 480, Format: "JPEG",
		})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		if err := store.UpdateDerived(id, "/processed/b.png", "PNG", 1024, 1024, "a:00ff00ff00ff00ff"); err != nil {
			t.Fatalf("UpdateDerived failed: %v", err)
		}
		if err := store.UpdateType(id, "photograph"); err != nil {
			t.Fatalf("UpdateType failed: %v", err)
		}
		if err := store.UpdatePrompt(id, "a photo of a lake"); err != nil {
			t.Fatalf("UpdatePrompt failed: %v", err)
		}

		// Re-ingesting the same URL must not clobber processing results.
		if _, err := store.UpsertImage(&scraper.ImageRecord{
			Source: "pexels", URL: "http://x/b.jpg", LocalPath: "/raw/b.jpg",
			Width: 640, Height: 480, Format: "JPEG",
		}); err != nil {
			t.Fatalf("Re-upsert failed: %v", err)
		}

		records, err := store.GetByIDs([]int64{id})
		if err != nil {
			t.Fatalf("GetByIDs failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("Expected one record, got %d", len(records))
		}
		rec := records[0]
		if rec.ProcessedPath != "/processed/b.png" {
			t.Errorf("processed_path clobbered by re-ingest: %q", rec.ProcessedPath)
		}
		if rec.Hash != "a:00ff00ff00ff00ff" {
			t.Errorf("hash clobbered by re-ingest: %q", rec.Hash)
		}
		if rec.Type != "photograph" {
			t.Errorf("type clobbered by re-ingest: %q", rec.Type)
		}
		if rec.Prompt != "a photo of a lake" {
			t.Errorf("prompt clobbered by re-ingest: %q", rec.Prompt)
		}
	})

	t.Run("RejectsEmptyURL", func(t *testing.T) {
		if _, err := store.UpsertImage(&scraper.ImageRecord{Source: "pexels"}); err == nil {
			t.Error("Expected error for record without URL")
		}
	})
}

func TestListImages(t *testing.T) {
	store := newTestStore(t)

	seed := []scraper.ImageRecord{
		{Source: "unsplash", Query: "mountain", URL: "http://u/1.jpg", LocalPath: "/r/1.jpg"},
		{Source: "pexels", Query: "mountain", URL: "http://p/2.jpg", LocalPath: "/r/2.jpg"},
		{Source: "generic", Query: "ocean", URL: "http://g/3.jpg", LocalPath: "/r/3.jpg"},
	}
	for i := range seed {
		if _, err := store.UpsertImage(&seed[i]); err != nil {
			t.Fatalf("Seed upsert failed: %v", err)
		}
	}

	t.Run("FilterBySource", func(t *testing.T) {
		records, err := store.ListImages("pexels", 100)
		if err != nil {
			t.Fatalf("ListImages failed: %v", err)
		}
		if len(records) != 1 || records[0].URL != "http://p/2.jpg" {
			t.Errorf("Expected only the pexels record, got %v", records)
		}
	})

	t.Run("FilterByQuery", func(t *testing.T) {
		records, err := store.ListImages("ocean", 100)
		if err != nil {
			t.Fatalf("ListImages failed: %v", err)
		}
		if len(records) != 1 || records[0].Source != "generic" {
			t.Errorf("Expected only the ocean record, got %v", records)
		}
	})

	t.Run("NewestFirst", func(t *testing.T) {
		records, err := store.ListImages("", 100)
		if err != nil {
			t.Fatalf("ListImages failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(records))
		}
		if records[0].URL != "http://g/3.jpg" {
			t.Errorf("Expected newest record first, got %s", records[0].URL)
		}
	})
}

func TestMissingPromptsAndCounts(t *testing.T) {
	store := newTestStore(t)

	idA, _ := store.UpsertImage(&scraper.ImageRecord{URL: "http://x/a.jpg", LocalPath: "/r/a.jpg"})
	idB, _ := store.UpsertImage(&scraper.ImageRecord{URL: "http://x/b.jpg", LocalPath: "/r/b.jpg"})
	idC, _ := store.UpsertImage(&scraper.ImageRecord{URL: "http://x/c.jpg", LocalPath: "/r/c.jpg"})

	// A and B processed, only A captioned; C unprocessed.
	if err := store.UpdateDerived(idA, "/p/a.jpg", "JPEG", 512, 512, "a:01"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateDerived(idB, "/p/b.jpg", "JPEG", 512, 512, "a:02"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdatePrompt(idA, "caption"); err != nil {
		t.Fatal(err)
	}

	missing, err := store.ListMissingPrompts()
	if err != nil {
		t.Fatalf("ListMissingPrompts failed: %v", err)
	}
	if len(missing) != 1 || missing[0] != idB {
		t.Errorf("Expected only %d missing a prompt, got %v", idB, missing)
	}

	if err := store.UpdateType(idA, "photograph"); err != nil {
		t.Fatal(err)
	}
	counts, err := store.CountByType()
	if err != nil {
		t.Fatalf("CountByType failed: %v", err)
	}
	got := map[string]int{}
	for _, tc := range counts {
		got[tc.Type] = tc.Count
	}
	if got["photograph"] != 1 || got["unknown"] != 2 {
		t.Errorf("Unexpected type counts: %v", got)
	}
	_ = idC
}

func TestAllHashes(t *testing.T) {
	store := newTestStore(t)

	idA, _ := store.UpsertImage(&scraper.ImageRecord{URL: "http://x/a.jpg"})
	idB, _ := store.UpsertImage(&scraper.ImageRecord{URL: "http://x/b.jpg"})
	if _, err := store.UpsertImage(&scraper.ImageRecord{URL: "http://x/c.jpg"}); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateDerived(idA, "/p/a.jpg", "JPEG", 10, 10, "h1"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateDerived(idB, "/p/b.jpg", "JPEG", 10, 10, "h1"); err != nil {
		t.Fatal(err)
	}

	hashes, err := store.AllHashes()
	if err != nil {
		t.Fatalf("AllHashes failed: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("Expected 2 hashed records, got %d", len(hashes))
	}
	for _, ih := range hashes {
		if ih.Hash != "h1" {
			t.Errorf("Unexpected hash %q", ih.Hash)
		}
	}
}

func TestUpdateFlags(t *testing.T) {
	store := newTestStore(t)

	id, err := store.UpsertImage(&scraper.ImageRecord{URL: "http://x/a.jpg"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := store.UpdateFlags(id, "watermark_suspected"); err != nil {
		t.Fatalf("UpdateFlags failed: %v", err)
	}

	records, err := store.GetByIDs([]int64{id})
	if err != nil {
		t.Fatalf("GetByIDs failed: %v", err)
	}
	if len(records) != 1 || records[0].Flags != "watermark_suspected" {
		t.Errorf("Expected flags persisted, got %+v", records)
	}
}
