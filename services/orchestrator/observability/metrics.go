// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover the streaming chat pipeline:
//   - Request counters by terminal status (ok, cache_hit, blocked, error)
//   - Output token counters
//   - Time-to-first-token and total duration histograms
//   - Active stream gauge
//   - Semantic cache lookup counters (hit/miss)
//
// Exposed via the /metrics endpoint; use with Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "haru"

const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for the chat pipeline.
// Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type ChatMetrics struct {
	// RequestsTotal counts chat requests by terminal status.
	// Labels: status (ok, cache_hit, blocked, error)
	RequestsTotal *prometheus.CounterVec

	// OutputTokensTotal counts streamed output tokens.
	OutputTokensTotal prometheus.Counter

	// TimeToFirstTokenSeconds measures latency to the first streamed token.
	TimeToFirstTokenSeconds prometheus.Histogram

	// StreamDurationSeconds measures total request duration by status.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open streaming connections.
	ActiveStreams prometheus.Gauge

	// CacheLookupsTotal counts semantic cache lookups.
	// Labels: result (hit, miss)
	CacheLookupsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts heartbeat comments sent on open streams.
	KeepAlivesTotal prometheus.Counter

	// ClientDisconnectsTotal counts clients that dropped mid-stream.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, set by InitMetrics(). The
// package-level helpers are no-ops while it is nil, so library code can
// record unconditionally and tests need no registry.
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total chat requests by terminal status",
			},
			[]string{"status"},
		),

		OutputTokensTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "output_tokens_total",
				Help:      "Total streamed output tokens",
			},
		),

		TimeToFirstTokenSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first streamed token in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total chat request duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open streaming connections",
			},
		),

		CacheLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "cache_lookups_total",
				Help:      "Semantic cache lookups by result",
			},
			[]string{"result"},
		),

		KeepAlivesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "keepalives_total",
				Help:      "Total heartbeat comments sent on open streams",
			},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helpers
// =============================================================================

// ObserveChatRequest records one finished request: status counter plus
// duration histogram.
func ObserveChatRequest(status string, d time.Duration) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.RequestsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.StreamDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveTimeToFirstToken records latency to the first streamed token.
func ObserveTimeToFirstToken(d time.Duration) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.TimeToFirstTokenSeconds.Observe(d.Seconds())
}

// RecordTokens adds n to the output token counter.
func RecordTokens(n int) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.OutputTokensTotal.Add(float64(n))
}

// RecordCacheHit records a semantic cache hit.
func RecordCacheHit() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a semantic cache miss.
func RecordCacheMiss() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// StreamStarted increments the active stream gauge.
func StreamStarted() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ActiveStreams.Inc()
}

// StreamEnded decrements the active stream gauge.
func StreamEnded() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ActiveStreams.Dec()
}

// RecordKeepAlive records one heartbeat comment.
func RecordKeepAlive() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.KeepAlivesTotal.Inc()
}

// RecordClientDisconnect records a client dropping mid-stream.
func RecordClientDisconnect() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ClientDisconnectsTotal.Inc()
}
