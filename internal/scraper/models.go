package scraper

import "time"

// ImageRecord represents one row in the images table, keyed by source URL.
type ImageRecord struct {
	ID            int64     // Surrogate key, assigned on first insert
	Source        string    // Site identifier or "generic"
	Query         string    // Search term that produced this image
	URL           string    // Canonical source URL (unique, never mutated)
	LocalPath     string    // Path to the originally downloaded file ("" until downloaded)
	ProcessedPath string    // Path to the derived image ("" until preprocessed)
	Width         int       // Pixel width of the most recently written file
	Height        int       // Pixel height of the most recently written file
	Format        string    // Encoding of the most recently written file (JPEG, PNG)
	Hash          string    // Perceptual hash, set only by preprocessing
	Type          string    // Classifier label ("" until classified)
	Prompt        string    // Generated caption ("" until captioned)
	Flags         string    // Free-form annotation
	CreatedAt     time.Time // Insertion timestamp
}

// ImageInfo describes a successfully downloaded and re-encoded image.
type ImageInfo struct {
	LocalPath string
	Width     int
	Height    int
	Format    string
}

// SkipReason classifies why a candidate URL was not ingested.
type SkipReason string

const (
	SkipFetchFailed SkipReason = "fetch_failed"
	SkipNotAnImage  SkipReason = "not_an_image"
	SkipTooSmall    SkipReason = "too_small"
	SkipSeen        SkipReason = "already_seen"
	SkipStoreError  SkipReason = "store_error"
)

// Outcome is the per-candidate result: either an ingested record ID or a
// skip reason. Exactly one of the two is meaningful.
type Outcome struct {
	ID   int64
	Skip SkipReason
}

// Ingested reports whether the candidate produced a stored record.
func (o Outcome) Ingested() bool { return o.Skip == "" }

// Stats aggregates per-run counters across all requested sites.
type Stats struct {
	Discovered int // Candidate URLs found by the extractors
	Downloaded int // Images fetched, validated and upserted
	Skipped    int // Candidates dropped (fetch/decode/size/dup)
	Pages      int // Search pages fetched
	StartTime  time.Time
	Duration   time.Duration
}
