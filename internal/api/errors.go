// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/bookshelf/internal/recommend"
	"github.com/tomtom215/bookshelf/internal/retrain"
)

// Error codes for API responses.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeModelUnavailable   = "MODEL_UNAVAILABLE"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	ErrCodeStorageError       = "STORAGE_ERROR"
	ErrCodeTrainingError      = "TRAINING_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// statusForError maps domain errors to an HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, recommend.ErrDataFormat):
		return http.StatusUnprocessableEntity, ErrCodeValidationFailed
	case errors.Is(err, recommend.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, recommend.ErrModelUnavailable):
		return http.StatusServiceUnavailable, ErrCodeModelUnavailable
	case errors.Is(err, retrain.ErrQueueFull):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, retrain.ErrStopped):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	case errors.Is(err, recommend.ErrStorage):
		return http.StatusInternalServerError, ErrCodeStorageError
	case errors.Is(err, recommend.ErrTraining):
		return http.StatusInternalServerError, ErrCodeTrainingError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// publicMessage is the client-facing message for err. Internal failures
// are not echoed back.
func publicMessage(status int, err error) string {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return http.StatusText(status)
	}
	return err.Error()
}

// storeError classifies a raw document store failure as ErrStorage.
func storeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%v: %w", err, recommend.ErrStorage)
}
