// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Document store
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookshelf_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation", "collection"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_store_operation_errors_total",
			Help: "Total number of failed document store operations",
		},
		[]string{"backend", "operation", "collection"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookshelf_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookshelf_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Pipeline and training
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"result"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookshelf_pipeline_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"},
	)

	MatrixShape = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookshelf_rating_matrix_size",
			Help: "Dimensions of the last persisted rating matrix",
		},
		[]string{"dimension"},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_training_runs_total",
			Help: "Total number of model training runs by outcome",
		},
		[]string{"result"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookshelf_training_duration_seconds",
			Help:    "Duration of model training",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	ModelLastTrained = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookshelf_model_last_trained_timestamp_seconds",
			Help: "Unix time of the last successful training",
		},
	)

	RetrainQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookshelf_retrain_queue_depth",
			Help: "Number of retrain jobs waiting to run",
		},
	)

	// Serving
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_recommendations_total",
			Help: "Total number of recommendation queries by outcome",
		},
		[]string{"result"},
	)

	ModelCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookshelf_model_cache_hits_total",
			Help: "Total number of decoded-model cache hits",
		},
	)

	ModelCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookshelf_model_cache_misses_total",
			Help: "Total number of decoded-model cache misses",
		},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookshelf_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_events_published_total",
			Help: "Total number of internal events published",
		},
		[]string{"topic"},
	)
)

// RecordStoreOperation records one document store call.
func RecordStoreOperation(backend, operation, collection string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation, collection).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(backend, operation, collection).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordPipelineStage records how long a pipeline stage took.
func RecordPipelineStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPipelineRun records a finished pipeline run and, on success, the matrix shape.
func RecordPipelineRun(rows, cols int, err error) {
	if err != nil {
		PipelineRuns.WithLabelValues("failure").Inc()
		return
	}
	PipelineRuns.WithLabelValues("success").Inc()
	MatrixShape.WithLabelValues("items").Set(float64(rows))
	MatrixShape.WithLabelValues("users").Set(float64(cols))
}

// RecordTraining records a finished training run.
func RecordTraining(duration time.Duration, err error) {
	TrainingDuration.Observe(duration.Seconds())
	if err != nil {
		TrainingRuns.WithLabelValues("failure").Inc()
		return
	}
	TrainingRuns.WithLabelValues("success").Inc()
	ModelLastTrained.Set(float64(time.Now().Unix()))
}

// RecordRecommendation records a recommendation query outcome:
// "success", "not_found", "unavailable" or "error".
func RecordRecommendation(result string) {
	Recommendations.WithLabelValues(result).Inc()
}

// RecordModelCache records a decoded-model cache lookup.
func RecordModelCache(hit bool) {
	if hit {
		ModelCacheHits.Inc()
	} else {
		ModelCacheMisses.Inc()
	}
}

// RecordBreakerTransition records a circuit breaker state change.
// States are encoded 0=closed, 1=half-open, 2=open.
func RecordBreakerTransition(name, from, to string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordBreakerRequest records a request outcome through a breaker:
// "success", "failure" or "rejected".
func RecordBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// StatusLabel formats an HTTP status code as a label value.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}
