// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for generation sessions.
//
// # Description
//
// Metrics follow the naming convention aleutian_codegen_<name>. All
// recording methods are safe on a nil *SessionMetrics so components can run
// without metrics in tests and short-lived CLI invocations.
//
// # Thread Safety
//
// Prometheus collectors are safe for concurrent use.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "aleutian"

const codegenSubsystem = "codegen"

// SessionMetrics contains all Prometheus metrics for generation sessions.
type SessionMetrics struct {
	// SessionsStarted counts opened sessions.
	// Labels: generation_type (create, update)
	SessionsStarted *prometheus.CounterVec

	// SessionsEnded counts finished sessions by how they ended.
	// Labels: generation_type, termination (completed, cancelled, server_error, abnormal)
	SessionsEnded *prometheus.CounterVec

	// EventsTotal counts decoded inbound events.
	// Labels: kind (chunk, status, setCode, ...)
	EventsTotal *prometheus.CounterVec

	// DroppedEventsTotal counts inbound frames that were discarded.
	// Labels: reason (malformed, unknown_kind, missing_index, after_termination)
	DroppedEventsTotal *prometheus.CounterVec

	// ActiveSessions tracks currently open sessions.
	ActiveSessions prometheus.Gauge

	// TimeToFirstChunkSeconds measures latency from open to the first chunk.
	TimeToFirstChunkSeconds prometheus.Histogram

	// SessionDurationSeconds measures total session duration.
	// Labels: termination
	SessionDurationSeconds *prometheus.HistogramVec
}

// DropReason labels DroppedEventsTotal.
type DropReason string

const (
	DropMalformed        DropReason = "malformed"
	DropUnknownKind      DropReason = "unknown_kind"
	DropMissingIndex     DropReason = "missing_index"
	DropAfterTermination DropReason = "after_termination"
	DropNonTextFrame     DropReason = "non_text_frame"
)

// DefaultMetrics is registered on the default Prometheus registry by InitMetrics.
var DefaultMetrics *SessionMetrics

// InitMetrics registers the metrics on the default registry.
//
// # Description
//
// Call once at process startup. Calling twice panics on duplicate
// registration, as with any promauto collector.
func InitMetrics() *SessionMetrics {
	DefaultMetrics = NewSessionMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewSessionMetrics registers the metrics on reg.
//
// # Inputs
//
//   - reg: Registerer to use. Tests pass prometheus.NewRegistry().
//
// # Examples
//
//	reg := prometheus.NewRegistry()
//	m := observability.NewSessionMetrics(reg)
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	factory := promauto.With(reg)
	return &SessionMetrics{
		SessionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: codegenSubsystem,
				Name:      "sessions_started_total",
				Help:      "Total number of generation sessions opened",
			},
			[]string{"generation_type"},
		),

		SessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: codegenSubsystem,
				Name:      "sessions_ended_total",
				Help:      "Total number of generation sessions ended by termination class",
			},
			[]string{"generation_type", "termination"},
		),

		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: codegenSubsystem,
				Name:      "events_total",
				Help:      "Total inbound events applied by kind",
			},
			[]string{"kind"},
		),

		DroppedEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: codegenSubsystem,
				Name:      "dropped_events_total",
				Help:      "Total inbound frames discarded by reason",
			},
			[]string{"reason"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: codegenSubsystem,
				Name:      "active_sessions",
				Help:      "Number of currently open generation sessions",
			},
		),

		TimeToFirstChunkSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: codegenSubsystem,
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from session open to first chunk in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		SessionDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: codegenSubsystem,
				Name:      "session_duration_seconds",
				Help:      "Total session duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"termination"},
		),
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// SessionStarted records an opened session.
func (m *SessionMetrics) SessionStarted(generationType string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(generationType).Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records a finished session and its duration.
func (m *SessionMetrics) SessionEnded(generationType, termination string, seconds float64) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(generationType, termination).Inc()
	m.SessionDurationSeconds.WithLabelValues(termination).Observe(seconds)
	m.ActiveSessions.Dec()
}

// RecordEvent counts an applied event.
func (m *SessionMetrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// RecordDropped counts a discarded frame.
func (m *SessionMetrics) RecordDropped(reason DropReason) {
	if m == nil {
		return
	}
	m.DroppedEventsTotal.WithLabelValues(string(reason)).Inc()
}

// RecordTimeToFirstChunk observes first-chunk latency.
func (m *SessionMetrics) RecordTimeToFirstChunk(seconds float64) {
	if m == nil {
		return
	}
	m.TimeToFirstChunkSeconds.Observe(seconds)
}
