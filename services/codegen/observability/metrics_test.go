// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*SessionMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewSessionMetrics(reg), reg
}

func TestSessionLifecycle(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SessionStarted("create")
	m.SessionStarted("update")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsStarted.WithLabelValues("create")))

	m.SessionEnded("create", "completed", 3.2)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsEnded.WithLabelValues("create", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SessionDurationSeconds))
}

func TestRecordEventAndDropped(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordEvent("chunk")
	m.RecordEvent("chunk")
	m.RecordEvent("variantComplete")
	m.RecordDropped(DropMissingIndex)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsTotal.WithLabelValues("chunk")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsTotal.WithLabelValues("variantComplete")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DroppedEventsTotal.WithLabelValues("missing_index")))
}

func TestRecordTimeToFirstChunk(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordTimeToFirstChunk(0.4)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "aleutian_codegen_time_to_first_chunk_seconds" {
			found = true
			assert.Equal(t, uint64(1), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SessionMetrics
	assert.NotPanics(t, func() {
		m.SessionStarted("create")
		m.SessionEnded("create", "abnormal", 1)
		m.RecordEvent("chunk")
		m.RecordDropped(DropMalformed)
		m.RecordTimeToFirstChunk(1)
	})
}

func TestNewSessionMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewSessionMetrics(prometheus.NewRegistry())
		NewSessionMetrics(prometheus.NewRegistry())
	})
}
