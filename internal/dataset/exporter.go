// Package dataset serializes the content store's full snapshot into
// interchange files for downstream training.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tarum/picdataset/internal/scraper"
)

// Row is one exported record: the authoritative image path plus its
// annotations, with stable defaults for missing fields.
type Row struct {
	ImagePath string `json:"image_path"`
	Prompt    string `json:"prompt"`
	Type      string `json:"type"`
}

// Snapshotter is the read side of the content store used by export.
type Snapshotter interface {
	Snapshot() ([]scraper.ImageRecord, error)
}

// Export serializes the full store snapshot into the requested formats
// ("csv", "json") under outDir and returns the written paths per format.
func Export(store Snapshotter, outDir string, formats []string) (map[string]string, error) {
	records, err := store.Snapshot()
	if err != nil {
		return nil, err
	}

	rows := collectRows(records)

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	outPaths := make(map[string]string)
	for _, format := range formats {
		switch format {
		case "csv":
			p := filepath.Join(outDir, "dataset.csv")
			if err := writeCSV(p, rows); err != nil {
				return nil, err
			}
			outPaths["csv"] = p
		case "json":
			p := filepath.Join(outDir, "dataset.json")
			if err := writeJSON(p, rows); err != nil {
				return nil, err
			}
			outPaths["json"] = p
		default:
			return nil, fmt.Errorf("unsupported export format %q", format)
		}
	}

	return outPaths, nil
}

func collectRows(records []scraper.ImageRecord) []Row {
	rows := make([]Row, 0, len(records))
	for i := range records {
		rec := &records[i]

		path := rec.ProcessedPath
		if path == "" {
			path = rec.LocalPath
		}

		imgType := rec.Type
		if imgType == "" {
			imgType = "unknown"
		}

		rows = append(rows, Row{
			ImagePath: path,
			Prompt:    rec.Prompt,
			Type:      imgType,
		})
	}
	return rows
}

func writeCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"image_path", "prompt", "type"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write([]string{row.ImagePath, row.Prompt, row.Type}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, rows []Row) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}
