// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

/*
Package services adapts long-running components to suture's
context-aware Serve pattern.

	type Service interface {
	    Serve(ctx context.Context) error
	}

HTTPServerService translates ListenAndServe/Shutdown into Serve, and
RetrainScheduler submits retrain jobs on startup and on a fixed interval.
The event bus and the retrain worker implement Serve themselves and are
added to the tree directly.

Services return ctx.Err() when stopped by the supervisor so suture does
not count the exit as a failure.
*/
package services
