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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCodegen/pkg/logging"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/config"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/observability"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/orchestrator"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/registry"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/snapshot"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/stream"
)

// registryTimeout bounds the /models lookup made before a generation.
const registryTimeout = 5 * time.Second

// =============================================================================
// Runtime
// =============================================================================

// runtime is the process-wide plumbing shared by every command: config,
// logging and telemetry.
type runtime struct {
	cfg     config.Config
	logger  *logging.Logger
	log     *slog.Logger
	metrics *observability.SessionMetrics
	out     io.Writer
	errOut  io.Writer
	debug   bool

	shutdown []shutdownFunc
}

// newRuntime loads the config and starts logging and telemetry. Unless
// verbose or --debug, logs only go to the log file.
func newRuntime(cmd *cobra.Command, opts *rootOptions, verbose bool) (*runtime, error) {
	cfg, created, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	lc, err := cfg.LoggerConfig(serviceName)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		lc.Level = logging.LevelDebug
	}
	lc.Quiet = !opts.debug && !verbose
	lc.Output = cmd.ErrOrStderr()
	logger := logging.New(lc)

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		log:    logger.Slog(),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		debug:  opts.debug,
	}
	if created {
		fmt.Fprintln(rt.errOut, "Created a default config file; edit it to point at your backend.")
	}

	if cfg.Telemetry.Tracing {
		shutdown, err := initTracing(cmd.Context(), cfg.Telemetry, rt.errOut)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.shutdown = append(rt.shutdown, shutdown)
	}

	reg := prometheus.NewRegistry()
	rt.metrics = observability.NewSessionMetrics(reg)
	if cfg.Telemetry.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.Telemetry.MetricsAddr, reg, rt.log)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.shutdown = append(rt.shutdown, shutdown)
	}
	return rt, nil
}

// close stops telemetry and flushes the log file.
func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(rt.shutdown) - 1; i >= 0; i-- {
		if err := rt.shutdown[i](ctx); err != nil {
			rt.log.Warn("telemetry shutdown failed", "error", err)
		}
	}
	rt.shutdown = nil
	_ = rt.logger.Close()
}

func (rt *runtime) registryClient() *registry.Client {
	return registry.NewClient(rt.cfg.Backend.HTTPURL, registryTimeout, rt.log)
}

// =============================================================================
// Project Session
// =============================================================================

// app is a runtime plus one open project.
type app struct {
	*runtime
	name     string
	projects *snapshot.Store
	orch     *orchestrator.Orchestrator
}

// openApp loads the config and the named project. A project that was never
// saved starts empty.
func openApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	rt, err := newRuntime(cmd, opts, false)
	if err != nil {
		return nil, err
	}

	dbCfg := snapshot.DefaultConfig(rt.cfg.StoragePath())
	if rt.debug {
		dbCfg.Logger = rt.log
	}
	projects, err := snapshot.Open(dbCfg, rt.log)
	if err != nil {
		rt.close()
		return nil, err
	}

	dialer := stream.NewDialer(rt.cfg.StreamConfig(), rt.log, rt.metrics)
	orch := orchestrator.New(
		rt.cfg.OrchestratorConfig(),
		commits.NewStore(rt.log),
		dialer,
		&cliNotifier{w: rt.errOut},
		rt.log,
	)
	a := &app{runtime: rt, name: opts.project, projects: projects, orch: orch}

	state, err := projects.Load(cmd.Context(), opts.project)
	switch {
	case errors.Is(err, snapshot.ErrProjectNotFound):
		rt.log.Debug("starting new project", "project", opts.project)
	case err != nil:
		a.close()
		return nil, err
	default:
		if err := orch.Restore(state); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// save writes the project back to the database.
func (a *app) save(ctx context.Context) error {
	return a.projects.Save(ctx, a.name, a.orch.Export())
}

func (a *app) close() {
	if err := a.projects.Close(); err != nil {
		a.log.Warn("closing project database failed", "error", err)
	}
	a.runtime.close()
}

// reconcileSettings drops a configured stack or model the backend no longer
// offers. An unreachable registry leaves the settings alone.
func (a *app) reconcileSettings(ctx context.Context) {
	catalog, err := a.registryClient().Fetch(ctx)
	if err != nil {
		a.log.Debug("skipping settings check", "error", err)
		return
	}
	current := a.orch.Settings()
	next, changed := catalog.Reconcile(current)
	if len(changed) == 0 {
		return
	}
	for _, key := range changed {
		fmt.Fprintf(a.errOut, "Backend does not offer the configured %s; using its default.\n", key)
	}
	a.orch.SetSettings(next)
}
