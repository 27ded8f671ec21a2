// Package pipeline holds the post-ingestion stages: preprocessing,
// classification, captioning, and duplicate detection. Every stage reads
// and writes records through the content store and treats per-item failures
// as skips, mirroring the ingestion pipeline's error policy.
package pipeline

import (
	"github.com/tarum/picdataset/internal/scraper"
	"github.com/tarum/picdataset/internal/storage"
)

// Store is the content-store surface the pipeline stages depend on.
// *storage.SQLiteStore satisfies it.
type Store interface {
	GetByIDs(ids []int64) ([]scraper.ImageRecord, error)
	UpdateDerived(id int64, processedPath, format string, width, height int, hash string) error
	UpdateType(id int64, label string) error
	UpdatePrompt(id int64, prompt string) error
	AllHashes() ([]storage.IDHash, error)
}

// authoritativePath returns the processed file when one exists, otherwise
// the raw download.
func authoritativePath(rec *scraper.ImageRecord) string {
	if rec.ProcessedPath != "" {
		return rec.ProcessedPath
	}
	return rec.LocalPath
}
