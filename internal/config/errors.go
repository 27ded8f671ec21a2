package config

import "errors"

var (
	// ErrNoSites is returned when neither sites nor generic URLs are configured
	ErrNoSites = errors.New("no sites selected and no generic URLs provided")
	// ErrTargetOutOfRange is returned when target_per_site is outside 10-5000
	ErrTargetOutOfRange = errors.New("target_per_site must be between 10 and 5000")
	// ErrPagesOutOfRange is returned when max_pages is outside 1-50
	ErrPagesOutOfRange = errors.New("max_pages must be between 1 and 50")
	// ErrRateOutOfRange is returned when rate_per_minute is outside 10-600
	ErrRateOutOfRange = errors.New("rate_per_minute must be between 10 and 600")
	// ErrTimeoutOutOfRange is returned when request_timeout is outside 5s-60s
	ErrTimeoutOutOfRange = errors.New("request_timeout must be between 5s and 60s")
	// ErrInvalidMinSize is returned when min_image_size is negative
	ErrInvalidMinSize = errors.New("min_image_size must not be negative")
	// ErrInvalidWorkers is returned when max_workers is not greater than 0
	ErrInvalidWorkers = errors.New("max_workers must be greater than 0")
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
)
