// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package recommend

import "errors"

// Error kinds shared by the pipeline, training and serving. Callers wrap them
// with context and test with errors.Is; none of them is retried.
var (
	// ErrDataFormat: an input table lacks an expected column or a value
	// cannot be parsed.
	ErrDataFormat = errors.New("data format error")

	// ErrNotFound: the queried title is not in the model's labels.
	ErrNotFound = errors.New("title not found")

	// ErrModelUnavailable: no trained model has been persisted yet.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrStorage: the artifact store failed to read or write.
	ErrStorage = errors.New("storage error")

	// ErrTraining: the persisted matrix cannot be fitted.
	ErrTraining = errors.New("training error")
)
