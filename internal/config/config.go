// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package config loads Bookshelf configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Data      DataConfig      `koanf:"data"`
	Recommend RecommendConfig `koanf:"recommend"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment" validate:"oneof=development staging production"`
}

// StoreConfig selects and tunes the document store backend.
//
// Environment Variables:
//   - STORE_BACKEND: badger or duckdb (default: badger)
//   - STORE_PATH: directory (badger) or file (duckdb) holding the data
//   - STORE_IN_MEMORY: keep everything in memory, nothing survives a restart
type StoreConfig struct {
	Backend  string `koanf:"backend" validate:"oneof=badger duckdb"`
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// Breaker settings for the circuit breaker around the store.
	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gte=0,lte=1"`
}

// DataConfig points at the raw Book-Crossing style CSV exports.
type DataConfig struct {
	BooksPath     string `koanf:"books_path"`
	UsersPath     string `koanf:"users_path"`
	RatingsPath   string `koanf:"ratings_path"`
	SeedOnStartup bool   `koanf:"seed_on_startup"`
}

// RecommendConfig holds pipeline thresholds and model settings.
type RecommendConfig struct {
	NeighborCount       int           `koanf:"neighbor_count" validate:"min=2"`
	ResultLimit         int           `koanf:"result_limit" validate:"min=1"`
	Metric              string        `koanf:"metric" validate:"oneof=cosine"`
	ActiveUserThreshold int           `koanf:"active_user_threshold" validate:"min=0"`
	MinItemRatings      int           `koanf:"min_item_ratings" validate:"min=0"`
	TrainOnStartup      bool          `koanf:"train_on_startup"`
	TrainInterval       time.Duration `koanf:"train_interval"`
	TrainTimeout        time.Duration `koanf:"train_timeout"`
	QueueSize           int           `koanf:"queue_size" validate:"min=1"`
	ModelCacheSize      int           `koanf:"model_cache_size" validate:"min=1"`
}

// SecurityConfig holds CORS, rate limit and upload limits.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	MaxUploadBytes    int64         `koanf:"max_upload_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load loads configuration using the layered koanf loader.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
