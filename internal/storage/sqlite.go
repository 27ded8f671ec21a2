// Package storage provides data persistence for the dataset builder.
// It implements the SQLite-backed content store that every other component
// reads and writes through.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"

	"github.com/tarum/picdataset/internal/scraper"
)

// SQLiteStore implements the content store on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// TypeCount is one row of the per-label record tally.
type TypeCount struct {
	Type  string
	Count int
}

// IDHash pairs a record ID with its perceptual hash, for duplicate grouping.
type IDHash struct {
	ID   int64
	Hash string
}

// NewSQLiteStore opens (or creates) the database at dbPath and initializes
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection serializes writes and prevents lock conflicts; the
	// unique constraint on url then collapses any concurrent upserts of the
	// same URL into one resulting row.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000", // 30 second timeout for locks
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertImage inserts a record or, if the URL already exists, updates the
// ingestion-owned fields of the existing row. Derived fields written by
// later pipeline stages (processed_path, hash, type, prompt, flags) are
// never touched here, so re-ingesting a URL cannot clobber processing work.
// Returns the row's ID in either case.
func (s *SQLiteStore) UpsertImage(rec *scraper.ImageRecord) (int64, error) {
	if rec.URL == "" {
		return 0, fmt.Errorf("cannot upsert image without a URL")
	}

	var id int64
	err := s.db.QueryRow(`
		INSERT INTO images (source, query, url, local_path, width, height, format)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, 0), NULLIF(?, 0), NULLIF(?, ''))
		ON CONFLICT(url) DO UPDATE SET
			source = excluded.source,
			query = excluded.query,
			local_path = excluded.local_path,
			width = excluded.width,
			height = excluded.height,
			format = excluded.format
		RETURNING id
	`, rec.Source, rec.Query, rec.URL, rec.LocalPath, rec.Width, rec.Height, rec.Format).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("failed to upsert image %s: %w", rec.URL, err)
	}
	return id, nil
}

// UpdateDerived writes the preprocessing results for one record in a single
// statement, so dimensions and format can never describe a different file
// than processed_path does.
func (s *SQLiteStore) UpdateDerived(id int64, processedPath, format string, width, height int, hash string) error {
	_, err := s.db.Exec(`
		UPDATE images SET
			processed_path = ?,
			format = ?,
			width = ?,
			height = ?,
			hash = ?
		WHERE id = ?
	`, processedPath, format, width, height, hash, id)

	if err != nil {
		return fmt.Errorf("failed to update derived fields for image %d: %w", id, err)
	}
	return nil
}

// UpdateType sets the classifier label for one record.
func (s *SQLiteStore) UpdateType(id int64, label string) error {
	if _, err := s.db.Exec("UPDATE images SET type = ? WHERE id = ?", label, id); err != nil {
		return fmt.Errorf("failed to update type for image %d: %w", id, err)
	}
	return nil
}

// UpdatePrompt sets the generated caption for one record.
func (s *SQLiteStore) UpdatePrompt(id int64, prompt string) error {
	if _, err := s.db.Exec("UPDATE images SET prompt = ? WHERE id = ?", prompt, id); err != nil {
		return fmt.Errorf("failed to update prompt for image %d: %w", id, err)
	}
	return nil
}

// UpdateFlags sets the free-form annotation for one record.
func (s *SQLiteStore) UpdateFlags(id int64, flags string) error {
	if _, err := s.db.Exec("UPDATE images SET flags = ? WHERE id = ?", flags, id); err != nil {
		return fmt.Errorf("failed to update flags for image %d: %w", id, err)
	}
	return nil
}

const recordColumns = "id, source, query, url, local_path, processed_path, width, height, format, hash, type, prompt, flags, created_at"

// GetByIDs returns the records for the given IDs, in ID order.
func (s *SQLiteStore) GetByIDs(ids []int64) ([]scraper.ImageRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM images WHERE id IN (%s) ORDER BY id", recordColumns, placeholders)
	return s.queryRecords(query, args...)
}

// ListImages returns up to limit records, newest first, optionally filtered
// by a substring match on source or query.
func (s *SQLiteStore) ListImages(filter string, limit int) ([]scraper.ImageRecord, error) {
	where := ""
	args := []any{}
	if filter != "" {
		where = "WHERE (source LIKE ? OR query LIKE ?)"
		pattern := "%" + filter + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	query := fmt.Sprintf("SELECT %s FROM images %s ORDER BY id DESC LIMIT ?", recordColumns, where)
	return s.queryRecords(query, args...)
}

// Snapshot returns every record, in ID order. Export reads through this.
func (s *SQLiteStore) Snapshot() ([]scraper.ImageRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM images ORDER BY id", recordColumns)
	return s.queryRecords(query)
}

// ListMissingPrompts returns IDs of processed records that have no caption
// yet, newest first.
func (s *SQLiteStore) ListMissingPrompts() ([]int64, error) {
	rows, err := s.db.Query(`
		SELECT id FROM images
		WHERE processed_path IS NOT NULL AND (prompt IS NULL OR prompt = '')
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records missing prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByType tallies records per classifier label. Unclassified records
// count under "unknown".
func (s *SQLiteStore) CountByType() ([]TypeCount, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(type, 'unknown') AS type, COUNT(*) AS n
		FROM images
		GROUP BY COALESCE(type, 'unknown')
		ORDER BY n DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by type: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

// AllHashes returns every record with a non-null perceptual hash.
func (s *SQLiteStore) AllHashes() ([]IDHash, error) {
	rows, err := s.db.Query("SELECT id, hash FROM images WHERE hash IS NOT NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hashes []IDHash
	for rows.Next() {
		var ih IDHash
		if err := rows.Scan(&ih.ID, &ih.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		hashes = append(hashes, ih)
	}
	return hashes, rows.Err()
}

func (s *SQLiteStore) queryRecords(query string, args ...any) ([]scraper.ImageRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []scraper.ImageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (scraper.ImageRecord, error) {
	var rec scraper.ImageRecord
	var source, query, localPath, processedPath, format, hash, imgType, prompt, flags sql.NullString
	var width, height sql.NullInt64
	var createdAt sql.NullString

	err := rows.Scan(
		&rec.ID, &source, &query, &rec.URL,
		&localPath, &processedPath, &width, &height,
		&format, &hash, &imgType, &prompt, &flags,
		&createdAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan image record: %w", err)
	}

	rec.CreatedAt = parseTimestamp(createdAt.String)

	rec.Source = source.String
	rec.Query = query.String
	rec.LocalPath = localPath.String
	rec.ProcessedPath = processedPath.String
	rec.Width = int(width.Int64)
	rec.Height = int(height.Int64)
	rec.Format = format.String
	rec.Hash = hash.String
	rec.Type = imgType.String
	rec.Prompt = prompt.String
	rec.Flags = flags.String
	return rec, nil
}

// parseTimestamp handles the layouts SQLite emits for DATETIME defaults.
func parseTimestamp(v string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
