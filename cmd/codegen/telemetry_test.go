// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/config"
)

func restoreTracerProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestInitTracing_Stdout(t *testing.T) {
	restoreTracerProvider(t)
	var buf syncBuffer

	shutdown, err := initTracing(context.Background(), config.TelemetryConfig{Exporter: config.ExporterStdout}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "codegen.Test")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "codegen.Test")
	assert.Contains(t, buf.String(), serviceName)
}

func TestInitTracing_OTLP(t *testing.T) {
	restoreTracerProvider(t)
	cfg := config.DefaultConfig().Telemetry
	cfg.Exporter = config.ExporterOTLP
	cfg.OTLPEndpoint = "127.0.0.1:4317"

	// The gRPC client connects lazily, so no collector is needed until a
	// span is exported.
	shutdown, err := initTracing(context.Background(), cfg, &syncBuffer{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	restoreTracerProvider(t)
	_, err := initTracing(context.Background(), config.TelemetryConfig{Exporter: "zipkin"}, &syncBuffer{})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
