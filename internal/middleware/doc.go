// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

/*
Package middleware provides HTTP middleware shared by the API router.

All middleware uses the chi signature func(http.Handler) http.Handler:

  - RequestID: reuses or generates X-Request-ID and seeds the logging
    context with request and correlation ids
  - PrometheusMetrics: records request count, latency and in-flight
    requests, labeled by chi route pattern

The router installs them as:

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Labeling by route pattern ("/api/v1/recommend/{title}") keeps series
cardinality independent of the titles clients ask for.
*/
package middleware
