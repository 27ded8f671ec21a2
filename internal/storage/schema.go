package storage

const schemaSQL = `
-- One row per distinct source URL. The url column is the natural key:
-- re-ingesting an existing URL updates the row instead of inserting.
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT,
    query TEXT,
    url TEXT UNIQUE NOT NULL,
    local_path TEXT,
    processed_path TEXT,
    width INTEGER,
    height INTEGER,
    format TEXT,
    hash TEXT,
    type TEXT,
    prompt TEXT,
    flags TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_images_type ON images(type);
CREATE INDEX IF NOT EXISTS idx_images_hash ON images(hash);
CREATE INDEX IF NOT EXISTS idx_images_processed ON images(processed_path);
`
