package scraper

// Store is the persistence surface the ingestion pipeline writes through.
// Upserts are keyed by URL: re-ingesting a known URL updates the existing
// row and returns its original ID.
type Store interface {
	UpsertImage(rec *ImageRecord) (int64, error)
}
