// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the RAG service.
//
// # Description
//
// Metrics cover request counts and latencies per endpoint, pipeline error
// categories, search provider usage and indexing volume. They are exposed
// on /metrics for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ragbot"

// RequestMetrics holds all Prometheus metrics for the chat pipeline.
// Initialize once at startup via InitMetrics().
type RequestMetrics struct {
	// RequestsTotal counts requests by endpoint and status.
	// Labels: endpoint (chat, search, index, ...), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures end-to-end request latency.
	// Labels: endpoint
	RequestDurationSeconds *prometheus.HistogramVec

	// ErrorsTotal counts pipeline errors by endpoint and category.
	// Labels: endpoint, error_code (validation, llm_error, internal, ...)
	ErrorsTotal *prometheus.CounterVec

	// WebSearchesTotal counts web searches by winning provider.
	// Labels: provider (google, duckduckgo, stub)
	WebSearchesTotal *prometheus.CounterVec

	// EvidenceDocuments observes how many documents each retrieval
	// round produced per tier.
	// Labels: tier (short_term, long_term, web)
	EvidenceDocuments *prometheus.HistogramVec

	// DocumentsIndexedTotal counts URLs successfully indexed.
	DocumentsIndexedTotal prometheus.Counter

	// ActiveConversations tracks conversations live in memory.
	ActiveConversations prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *RequestMetrics

// InitMetrics creates and registers all metrics. Call once at startup;
// duplicate registration panics.
func InitMetrics() *RequestMetrics {
	DefaultMetrics = &RequestMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "errors_total",
				Help:      "Total pipeline errors by endpoint and category",
			},
			[]string{"endpoint", "error_code"},
		),

		WebSearchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "web_searches_total",
				Help:      "Web searches by winning provider",
			},
			[]string{"provider"},
		),

		EvidenceDocuments: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "evidence_documents",
				Help:      "Evidence documents returned per retrieval round by tier",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
			},
			[]string{"tier"},
		),

		DocumentsIndexedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "documents_indexed_total",
				Help:      "URLs successfully fetched, chunked and indexed",
			},
		),

		ActiveConversations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_conversations",
				Help:      "Conversations currently held in memory",
			},
		),
	}

	return DefaultMetrics
}

// ErrorCode categorizes an error for metrics labeling.
type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation"
	ErrorCodeLLMError   ErrorCode = "llm_error"
	ErrorCodeRAGError   ErrorCode = "rag_error"
	ErrorCodeInternal   ErrorCode = "internal"
)

// RecordRequest records a completed request with its latency.
func (m *RequestMetrics) RecordRequest(endpoint string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// RecordError records a categorized pipeline error.
func (m *RequestMetrics) RecordError(endpoint string, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(endpoint, string(code)).Inc()
}

// RecordEvidence records per-tier evidence counts for one retrieval round.
func (m *RequestMetrics) RecordEvidence(shortTerm, longTerm, web int) {
	m.EvidenceDocuments.WithLabelValues("short_term").Observe(float64(shortTerm))
	m.EvidenceDocuments.WithLabelValues("long_term").Observe(float64(longTerm))
	m.EvidenceDocuments.WithLabelValues("web").Observe(float64(web))
}

// RecordIndexed adds successfully indexed URLs to the counter.
func (m *RequestMetrics) RecordIndexed(count int) {
	m.DocumentsIndexedTotal.Add(float64(count))
}

// SetActiveConversations updates the live-conversation gauge.
func (m *RequestMetrics) SetActiveConversations(count int) {
	m.ActiveConversations.Set(float64(count))
}
