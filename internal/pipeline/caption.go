package pipeline

import (
	"context"
	"log/slog"
)

// Captioner generates one caption per image file, in order. Like the
// classifier it is a black-box collaborator.
type Captioner interface {
	Caption(ctx context.Context, imagePaths []string) ([]string, error)
}

// CaptionImages generates captions for the selected records in batches of
// batchSize and writes each caption back as the record's prompt. A failed
// batch is skipped whole; its records keep their empty prompt and can be
// retried on a later run. Returns the IDs that were captioned.
func CaptionImages(ctx context.Context, store Store, ids []int64, batchSize int, captioner Captioner) ([]int64, error) {
	if batchSize <= 0 {
		batchSize = 8
	}

	records, err := store.GetByIDs(ids)
	if err != nil {
		return nil, err
	}

	// Only records with a file on disk participate.
	var batchIDs []int64
	var batchPaths []string
	var updated []int64

	flush := func() {
		if len(batchIDs) == 0 {
			return
		}
		captions, err := captioner.Caption(ctx, batchPaths)
		if err != nil || len(captions) != len(batchIDs) {
			slog.Warn("Caption batch failed, skipping", "size", len(batchIDs), "error", err)
		} else {
			for i, id := range batchIDs {
				if err := store.UpdatePrompt(id, captions[i]); err != nil {
					slog.Error("Failed to save prompt", "id", id, "error", err)
					continue
				}
				updated = append(updated, id)
			}
		}
		batchIDs = batchIDs[:0]
		batchPaths = batchPaths[:0]
	}

	for i := range records {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}

		rec := &records[i]
		path := authoritativePath(rec)
		if path == "" {
			continue
		}

		batchIDs = append(batchIDs, rec.ID)
		batchPaths = append(batchPaths, path)
		if len(batchIDs) >= batchSize {
			flush()
		}
	}
	flush()

	return updated, nil
}
