package pipeline

import (
	"context"
	"log/slog"
)

// Classifier maps an image file to a type label. The implementation is a
// black box to the pipeline; see HTTPInference for the shipped one.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) (string, error)
}

// ClassifyImages runs the classifier over the selected records and writes
// each label back. A record with no file on disk or a failed inference call
// is skipped. Returns the IDs that were labeled.
func ClassifyImages(ctx context.Context, store Store, ids []int64, clf Classifier) ([]int64, error) {
	records, err := store.GetByIDs(ids)
	if err != nil {
		return nil, err
	}

	var updated []int64
	for i := range records {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}

		rec := &records[i]
		path := authoritativePath(rec)
		if path == "" {
			continue
		}

		label, err := clf.Classify(ctx, path)
		if err != nil {
			slog.Warn("Classification failed, skipping", "id", rec.ID, "error", err)
			continue
		}

		if err := store.UpdateType(rec.ID, label); err != nil {
			slog.Error("Failed to save label", "id", rec.ID, "error", err)
			continue
		}
		updated = append(updated, rec.ID)
	}

	return updated, nil
}
