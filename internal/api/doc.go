// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

/*
Package api serves the HTTP API using the chi router.

Endpoints, all under /api/v1 except /metrics:

	POST /upload                 merge an uploaded fact-row CSV, queue a retrain
	GET  /recommend/{title}      five similar titles with stored metadata
	GET  /training-status        stored model info and retrain queue state
	POST /train                  queue a retrain job
	GET  /debug/store            collections and fact-row count
	GET  /health/live            liveness probe
	GET  /health/ready           readiness probe (store reachable)
	GET  /metrics                Prometheus exposition

Every JSON response uses the models.APIResponse envelope. Domain errors
are mapped to status codes in one place (statusForError), so handlers only
decide what to call, not how failures look on the wire.

Middleware order: request id, real IP, panic recovery, CORS, then for
/api/v1 rate limiting by IP and Prometheus instrumentation.
*/
package api
