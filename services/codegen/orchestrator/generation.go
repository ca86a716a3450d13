// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/stream"
)

type generationKind int

const (
	genCreate generationKind = iota
	genEdit
	genAddVariant
)

func (k generationKind) String() string {
	switch k {
	case genCreate:
		return "create"
	case genEdit:
		return "edit"
	case genAddVariant:
		return "add_variant"
	default:
		return "unknown"
	}
}

// generation is one session's view of the orchestrator. It implements
// stream.Callbacks; every callback is a no-op once the generation is no
// longer live.
type generation struct {
	o      *Orchestrator
	kind   generationKind
	commit commits.Hash
	parent commits.Hash

	// target is the only variant an add-variant generation writes to.
	target int

	// session is set once Open returns; guarded by o.mu.
	session *stream.Session

	span   trace.Span
	once   sync.Once
	result stream.Result
	done   chan struct{}
}

var _ stream.Callbacks = (*generation)(nil)

func (g *generation) startSpan(ctx context.Context, req protocol.Request) context.Context {
	ctx, span := tracer.Start(ctx, "codegen.Generate",
		trace.WithAttributes(
			attribute.String("codegen.kind", g.kind.String()),
			attribute.String("codegen.commit", g.commit.Short()),
			attribute.String("codegen.input_mode", string(req.InputMode)),
			attribute.String("codegen.stack", req.GeneratedCodeConfig),
			attribute.String("codegen.model", req.CodeGenerationModel),
			attribute.Int("codegen.history", len(req.History)),
		),
	)
	g.span = span
	return ctx
}

// finish records the result and releases Wait. Only the first call counts.
func (g *generation) finish(r stream.Result) {
	g.once.Do(func() {
		g.result = r
		if g.span != nil {
			g.span.AddEvent("terminated", trace.WithAttributes(
				attribute.String("codegen.termination", r.Termination.String()),
				attribute.Int("codegen.close_code", r.Code),
				attribute.Bool("codegen.local", r.Local),
			))
			if err := r.Err(); err != nil {
				g.span.RecordError(err)
				g.span.SetStatus(codes.Error, r.Termination.String())
			} else {
				g.span.SetStatus(codes.Ok, "")
			}
			g.span.End()
		}
		close(g.done)
	})
}

// abandon ends a superseded generation without running any policy.
func (g *generation) abandon() {
	if g == nil {
		return
	}
	g.o.mu.Lock()
	sess := g.session
	g.o.mu.Unlock()
	if sess != nil {
		sess.Detach()
		sess.Cancel()
	}
	g.finish(cancelledResult())
}

// apply runs fn under the orchestrator lock if g is still live.
func (g *generation) apply(fn func(store *commits.Store)) bool {
	g.o.mu.Lock()
	defer g.o.mu.Unlock()
	if g.o.live != g {
		return false
	}
	fn(g.o.store)
	return true
}

// route maps a backend variant index to the variant to mutate.
func (g *generation) route(index int) int {
	if g.kind == genAddVariant {
		return g.target
	}
	return index
}

// ===== protocol.Handler =====

func (g *generation) HandleChunk(ev protocol.Chunk) {
	g.apply(func(store *commits.Store) {
		store.AppendCommitCode(g.commit, g.route(ev.VariantIndex), ev.Text)
	})
}

func (g *generation) HandleStatus(ev protocol.Status) {
	g.apply(func(store *commits.Store) {
		index := g.route(ev.VariantIndex)
		if n, ok := store.VariantCount(g.commit); !ok || index < 0 || index >= n {
			g.o.logger.Warn("ignoring status for unknown variant", "commit", g.commit.Short(), "variant", index)
			return
		}
		g.o.console.Append(index, ev.Text)
		store.MarkGenerating(g.commit, index)
	})
}

func (g *generation) HandleSetCode(ev protocol.SetCode) {
	g.apply(func(store *commits.Store) {
		store.SetCommitCode(g.commit, g.route(ev.VariantIndex), ev.Code)
	})
}

func (g *generation) HandleVariantComplete(ev protocol.VariantComplete) {
	g.apply(func(store *commits.Store) {
		index := g.route(ev.VariantIndex)
		if err := store.UpdateVariantStatus(g.commit, index, commits.StatusComplete, ""); err != nil {
			g.o.logger.Warn("ignoring variantComplete", "commit", g.commit.Short(), "variant", index, "error", err)
		}
	})
}

func (g *generation) HandleVariantError(ev protocol.VariantError) {
	var failed bool
	g.apply(func(store *commits.Store) {
		index := g.route(ev.VariantIndex)
		if err := store.UpdateVariantStatus(g.commit, index, commits.StatusError, ev.Message); err != nil {
			g.o.logger.Warn("ignoring variantError", "commit", g.commit.Short(), "variant", index, "error", err)
			return
		}
		failed = true
		g.o.logger.Warn("variant failed", "commit", g.commit.Short(), "variant", index, "message", ev.Message)
	})
	if failed {
		g.o.notifier.Error(ev.Message)
	}
}

func (g *generation) HandleVariantCount(ev protocol.VariantCount) {
	if g.kind == genAddVariant {
		return
	}
	g.apply(func(store *commits.Store) {
		if err := store.ResizeVariants(g.commit, ev.Count); err != nil {
			g.o.logger.Warn("ignoring variantCount", "commit", g.commit.Short(), "count", ev.Count, "error", err)
		}
	})
}

func (g *generation) HandleError(ev protocol.SessionError) {
	if g.apply(func(*commits.Store) {
		g.o.logger.Warn("backend reported an error", "commit", g.commit.Short(), "message", ev.Message)
	}) {
		g.o.notifier.Error(ev.Message)
	}
}

// ===== stream.Callbacks =====

// OnTerminate reconciles the tree with how the session ended.
func (g *generation) OnTerminate(r stream.Result) {
	o := g.o
	var notice func()

	o.mu.Lock()
	if o.live == g {
		o.live = nil
		switch r.Termination {
		case protocol.TerminationCompleted:
			o.state = StateCodeReady
		case protocol.TerminationCancelled:
			o.rollbackLocked(g)
			notice = func() { o.notifier.Success(protocol.CancelMessage) }
		case protocol.TerminationServerError:
			o.rollbackLocked(g)
		default:
			o.rollbackLocked(g)
			notice = func() { o.notifier.Error(protocol.ErrorMessage) }
		}
		o.logger.Info("generation finished",
			"kind", g.kind.String(),
			"commit", g.commit.Short(),
			"termination", r.Termination.String(),
			"code", r.Code)
	}
	o.mu.Unlock()

	if notice != nil {
		notice()
	}
	g.finish(r)
}
