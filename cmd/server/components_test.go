// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/bookshelf/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8000, Host: "127.0.0.1", Timeout: 5 * time.Second, Environment: "development"},
		Store:  config.StoreConfig{Backend: "badger", InMemory: true},
		Recommend: config.RecommendConfig{
			NeighborCount:       6,
			ResultLimit:         5,
			Metric:              "cosine",
			ActiveUserThreshold: 200,
			MinItemRatings:      50,
			QueueSize:           4,
			ModelCacheSize:      2,
		},
		Security: config.SecurityConfig{RateLimitDisabled: true},
	}
}

func TestBuildComponents(t *testing.T) {
	c, err := buildComponents(testConfig())
	if err != nil {
		t.Fatalf("buildComponents() error = %v", err)
	}
	defer func() { _ = c.close() }()

	if c.server.Addr != "127.0.0.1:8000" {
		t.Errorf("Addr = %q, want 127.0.0.1:8000", c.server.Addr)
	}

	rec := httptest.NewRecorder()
	c.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recommend/Dune", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("recommend without a model = %d, want 503", rec.Code)
	}
}

func TestBuildComponentsInvalidRecommendConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Recommend.NeighborCount = 1
	if _, err := buildComponents(cfg); err == nil {
		t.Error("buildComponents() error = nil, want invalid config")
	}
}
