// Package config provides configuration management for the dataset builder.
// It defines the scraping parameters, their defaults, and range validation.
package config

import (
	"fmt"
	"time"
)

// ScrapeConfig holds the caller-supplied parameters for one ingestion run.
type ScrapeConfig struct {
	// Ingestion parameters
	Sites          []string      `mapstructure:"sites" yaml:"sites"`                     // Site identifiers to scrape
	Query          string        `mapstructure:"query" yaml:"query"`                     // Search term
	TargetPerSite  int           `mapstructure:"target_per_site" yaml:"target_per_site"` // Images to ingest per site (10-5000)
	MaxPages       int           `mapstructure:"max_pages" yaml:"max_pages"`             // Search pages per site (1-50)
	RatePerMinute  int           `mapstructure:"rate_per_minute" yaml:"rate_per_minute"` // Requests-per-minute budget (10-600)
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"` // HTTP timeout (5s-60s)
	MinImageSize   int           `mapstructure:"min_image_size" yaml:"min_image_size"`   // Minimum accepted dimension in pixels
	MaxWorkers     int           `mapstructure:"max_workers" yaml:"max_workers"`         // Concurrent download workers
	GenericURLs    []string      `mapstructure:"generic_urls" yaml:"generic_urls"`       // Extra page URLs for the "generic" source
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`           // HTTP User-Agent header

	// API-backed source
	UnsplashAccessKey string `mapstructure:"unsplash_access_key" yaml:"unsplash_access_key"` // Access key for the search API

	// Local layout
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // Path to SQLite database file
	RawDir       string `mapstructure:"raw_dir" yaml:"raw_dir"`             // Directory for originally downloaded files
	ProcessedDir string `mapstructure:"processed_dir" yaml:"processed_dir"` // Directory for derived images
	DatasetDir   string `mapstructure:"dataset_dir" yaml:"dataset_dir"`     // Directory for exported datasets
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *ScrapeConfig {
	return &ScrapeConfig{
		Sites:          []string{"unsplash", "pexels", "pixabay"},
		TargetPerSite:  100,
		MaxPages:       5,
		RatePerMinute:  120,
		RequestTimeout: 15 * time.Second,
		MinImageSize:   512,
		MaxWorkers:     4,
		UserAgent:      "PicDataset/1.0",
		DatabasePath:   "./data/metadata.db",
		RawDir:         "./data/raw",
		ProcessedDir:   "./data/processed",
		DatasetDir:     "./data/final",
	}
}

// Validate checks that all parameters are inside their accepted ranges.
// Configuration errors are the only errors reported before a run starts;
// everything after that is per-item skip-and-continue.
func (c *ScrapeConfig) Validate() error {
	if len(c.Sites) == 0 && len(c.GenericURLs) == 0 {
		return ErrNoSites
	}
	if c.TargetPerSite < 10 || c.TargetPerSite > 5000 {
		return fmt.Errorf("%w: got %d", ErrTargetOutOfRange, c.TargetPerSite)
	}
	if c.MaxPages < 1 || c.MaxPages > 50 {
		return fmt.Errorf("%w: got %d", ErrPagesOutOfRange, c.MaxPages)
	}
	if c.RatePerMinute < 10 || c.RatePerMinute > 600 {
		return fmt.Errorf("%w: got %d", ErrRateOutOfRange, c.RatePerMinute)
	}
	if c.RequestTimeout < 5*time.Second || c.RequestTimeout > 60*time.Second {
		return fmt.Errorf("%w: got %s", ErrTimeoutOutOfRange, c.RequestTimeout)
	}
	if c.MinImageSize < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMinSize, c.MinImageSize)
	}
	if c.MaxWorkers <= 0 {
		return ErrInvalidWorkers
	}
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}
	return nil
}
