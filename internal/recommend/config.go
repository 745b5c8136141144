// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package recommend

import (
	"fmt"
	"time"

	"github.com/tomtom215/bookshelf/internal/config"
	"github.com/tomtom215/bookshelf/internal/recommend/algorithms"
)

// Config contains the model and serving settings of the recommender.
type Config struct {
	// NeighborCount is the number of neighbors the model is built for,
	// the query row included.
	NeighborCount int `json:"neighbor_count"`

	// ResultLimit is the maximum number of recommendations returned.
	ResultLimit int `json:"result_limit"`

	// Metric is the distance metric. Only "cosine" is supported.
	Metric string `json:"metric"`

	// ModelCacheSize bounds the number of decoded models kept in memory,
	// keyed by checksum.
	ModelCacheSize int `json:"model_cache_size"`

	// ResponseCacheSize bounds cached enriched responses. Zero disables
	// the response cache.
	ResponseCacheSize int           `json:"response_cache_size"`
	ResponseCacheTTL  time.Duration `json:"response_cache_ttl"`

	// KNN tunes the neighbor index.
	KNN algorithms.KNNConfig `json:"-"`
}

// DefaultConfig returns the default configuration: six neighbors, five
// results, cosine distance.
func DefaultConfig() *Config {
	return &Config{
		NeighborCount:     6,
		ResultLimit:       5,
		Metric:            algorithms.MetricCosine,
		ModelCacheSize:    2,
		ResponseCacheSize: 1024,
		ResponseCacheTTL:  10 * time.Minute,
		KNN:               algorithms.DefaultKNNConfig(),
	}
}

// ConfigFrom maps the application configuration onto a Config.
func ConfigFrom(cfg *config.RecommendConfig) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.NeighborCount = cfg.NeighborCount
	c.ResultLimit = cfg.ResultLimit
	c.Metric = cfg.Metric
	c.ModelCacheSize = cfg.ModelCacheSize
	c.KNN.Metric = cfg.Metric
	return c
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.NeighborCount < 2 {
		return fmt.Errorf("neighbor_count must be at least 2, got %d", c.NeighborCount)
	}
	if c.ResultLimit < 1 {
		return fmt.Errorf("result_limit must be positive, got %d", c.ResultLimit)
	}
	if c.Metric != algorithms.MetricCosine {
		return fmt.Errorf("metric must be %q, got %q", algorithms.MetricCosine, c.Metric)
	}
	if c.ModelCacheSize < 1 {
		return fmt.Errorf("model_cache_size must be positive, got %d", c.ModelCacheSize)
	}
	if c.ResponseCacheSize < 0 {
		return fmt.Errorf("response_cache_size must be non-negative, got %d", c.ResponseCacheSize)
	}
	return nil
}
