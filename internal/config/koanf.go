// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bookshelf/config.yaml",
	"/etc/bookshelf/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8000,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Store: StoreConfig{
			Backend:             "badger",
			Path:                "/data/bookshelf",
			InMemory:            false,
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      30 * time.Second,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
		},
		Data: DataConfig{
			BooksPath:     "data/Books.csv",
			UsersPath:     "data/Users.csv",
			RatingsPath:   "data/Ratings.csv",
			SeedOnStartup: false,
		},
		Recommend: RecommendConfig{
			NeighborCount:       6,
			ResultLimit:         5,
			Metric:              "cosine",
			ActiveUserThreshold: 200,
			MinItemRatings:      50,
			TrainOnStartup:      false,
			TrainInterval:       0,
			TrainTimeout:        30 * time.Minute,
			QueueSize:           1,
			ModelCacheSize:      2,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"http://localhost:3000"},
			MaxUploadBytes:    64 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration in three layers: defaults, an optional
// YAML file, then environment variables. Later layers win.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
// Values that arrived as lists from YAML are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Anything not listed is ignored so unrelated variables never leak into config.
var envMappings = map[string]string{
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	"store_backend":               "store.backend",
	"store_path":                  "store.path",
	"store_in_memory":             "store.in_memory",
	"store_breaker_max_requests":  "store.breaker_max_requests",
	"store_breaker_interval":      "store.breaker_interval",
	"store_breaker_timeout":       "store.breaker_timeout",
	"store_breaker_min_requests":  "store.breaker_min_requests",
	"store_breaker_failure_ratio": "store.breaker_failure_ratio",

	"books_csv":       "data.books_path",
	"users_csv":       "data.users_path",
	"ratings_csv":     "data.ratings_path",
	"seed_on_startup": "data.seed_on_startup",

	"recommend_neighbor_count":        "recommend.neighbor_count",
	"recommend_result_limit":          "recommend.result_limit",
	"recommend_metric":                "recommend.metric",
	"recommend_active_user_threshold": "recommend.active_user_threshold",
	"recommend_min_item_ratings":      "recommend.min_item_ratings",
	"recommend_train_on_startup":      "recommend.train_on_startup",
	"recommend_train_interval":        "recommend.train_interval",
	"recommend_train_timeout":         "recommend.train_timeout",
	"recommend_queue_size":            "recommend.queue_size",
	"recommend_model_cache_size":      "recommend.model_cache_size",

	"rate_limit_reqs":    "security.rate_limit_reqs",
	"rate_limit_window":  "security.rate_limit_window",
	"disable_rate_limit": "security.rate_limit_disabled",
	"cors_origins":       "security.cors_origins",
	"max_upload_bytes":   "security.max_upload_bytes",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path,
// e.g. HTTP_PORT -> server.port, STORE_BACKEND -> store.backend.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
