// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// question-answering pipeline.
//
// # Description
//
// This package implements Prometheus metrics for monitoring search
// requests. Metrics include:
//   - Request counters (by strategy and status)
//   - Stage latency histograms
//   - Reasoning step outcomes (completed, degraded)
//   - Decomposition fallbacks and single-shot fallbacks
//   - Answer cache hits and misses
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for pipeline metrics
const pipelineSubsystem = "query_pipeline"

// PipelineMetrics holds all Prometheus metrics for search execution.
//
// Initialize once at startup via InitMetrics().
type PipelineMetrics struct {
	// RequestsTotal counts search requests.
	// Labels: strategy (single_shot, iterative, ...), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// StageDurationSeconds measures per-stage latency.
	// Labels: stage (enhance, retrieve, rerank, reason, generate)
	StageDurationSeconds *prometheus.HistogramVec

	// ReasoningStepsTotal counts reasoning step outcomes.
	// Labels: outcome (completed, degraded)
	ReasoningStepsTotal *prometheus.CounterVec

	// FallbacksTotal counts degradation events.
	// Labels: kind (decomposition, single_shot, partial_synthesis)
	FallbacksTotal *prometheus.CounterVec

	// CacheLookupsTotal counts answer cache lookups.
	// Labels: result (hit, miss)
	CacheLookupsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures end-to-end request latency.
	// Labels: strategy, status
	RequestDurationSeconds *prometheus.HistogramVec
}

// DefaultMetrics is the singleton instance of PipelineMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *PipelineMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once at
// application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "requests_total",
				Help:      "Total search requests by strategy and status",
			},
			[]string{"strategy", "status"},
		),

		StageDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Per-stage latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"stage"},
		),

		ReasoningStepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "reasoning_steps_total",
				Help:      "Reasoning step outcomes",
			},
			[]string{"outcome"},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "fallbacks_total",
				Help:      "Degradation events by kind",
			},
			[]string{"kind"},
		),

		CacheLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "cache_lookups_total",
				Help:      "Answer cache lookups by result",
			},
			[]string{"result"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"strategy", "status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Label Values
// =============================================================================

// Stage names for StageDurationSeconds.
const (
	StageEnhance  = "enhance"
	StageRetrieve = "retrieve"
	StageRerank   = "rerank"
	StageReason   = "reason"
	StageGenerate = "generate"
)

// FallbackKind categorizes a degradation event.
type FallbackKind string

const (
	// FallbackDecomposition is a decomposer falling back to a single-step plan.
	FallbackDecomposition FallbackKind = "decomposition"

	// FallbackSingleShot is a reasoning stage falling back to single-shot
	// generation.
	FallbackSingleShot FallbackKind = "single_shot"

	// FallbackPartialSynthesis is a deadline forcing synthesis from a
	// partial chain.
	FallbackPartialSynthesis FallbackKind = "partial_synthesis"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed search request.
func (m *PipelineMetrics) RecordRequest(strategy string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(strategy, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(strategy, status).Observe(seconds)
}

// RecordStage records one stage's latency.
func (m *PipelineMetrics) RecordStage(stage string, seconds float64) {
	m.StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordStep records one reasoning step outcome.
func (m *PipelineMetrics) RecordStep(degraded bool) {
	outcome := "completed"
	if degraded {
		outcome = "degraded"
	}
	m.ReasoningStepsTotal.WithLabelValues(outcome).Inc()
}

// RecordFallback records a degradation event.
func (m *PipelineMetrics) RecordFallback(kind FallbackKind) {
	m.FallbacksTotal.WithLabelValues(string(kind)).Inc()
}

// RecordCacheLookup records an answer cache lookup.
func (m *PipelineMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}
