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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/config"
)

const serviceName = "codegen"

// ErrUnknownExporter is returned for an unsupported telemetry.exporter.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// shutdownFunc releases a telemetry component.
type shutdownFunc func(context.Context) error

// initTracing installs the global tracer provider.
//
// # Description
//
// The "otlp" exporter ships spans over gRPC to cfg.OTLPEndpoint (Jaeger
// accepts OTLP natively). "stdout", or an empty exporter, pretty-prints
// finished spans to w.
//
// # Outputs
//
//   - shutdownFunc: Flushes pending spans and stops the exporter.
//   - error: ErrUnknownExporter, or the exporter's construction error.
func initTracing(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (shutdownFunc, error) {
	var exporter trace.SpanExporter
	var err error

	switch cfg.Exporter {
	case config.ExporterOTLP:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)

	case config.ExporterStdout, "":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", serviceName),
	)
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// serveMetrics exposes gatherer on addr at /metrics until shutdown.
//
// The listener is bound before returning so a busy port fails the command
// instead of a background goroutine.
func serveMetrics(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) (shutdownFunc, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", ln.Addr().String())
	return srv.Shutdown, nil
}
