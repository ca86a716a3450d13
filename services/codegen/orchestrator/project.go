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
	"fmt"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
)

// ProjectState is everything needed to resume a project in a later run.
// Requests never carry credentials.
type ProjectState struct {
	Tree     commits.Snapshot                  `json:"tree"`
	Requests map[commits.Hash]protocol.Request `json:"requests"`
	Inputs   Inputs                            `json:"inputs"`
	Stack    string                            `json:"stack,omitempty"`
}

// Export captures the project. A live generation's commit is included as
// it stands.
func (o *Orchestrator) Export() ProjectState {
	o.mu.Lock()
	defer o.mu.Unlock()
	requests := make(map[commits.Hash]protocol.Request, len(o.requests))
	for h, req := range o.requests {
		req = req.Clone()
		req.Settings = req.Settings.WithoutCredentials()
		requests[h] = req
	}
	return ProjectState{
		Tree:     o.store.Export(),
		Requests: requests,
		Inputs:   o.inputs.clone(),
		Stack:    o.settings.GeneratedCodeConfig,
	}
}

// Restore replaces the project with a previously exported one.
//
// # Description
//
// Fails with ErrGenerationInProgress while a generation is live. When the
// tree is rejected the orchestrator is left unchanged. Requests for
// commits not in the tree are dropped.
func (o *Orchestrator) Restore(ps ProjectState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.live != nil {
		return ErrGenerationInProgress
	}
	if err := o.store.Restore(ps.Tree); err != nil {
		return fmt.Errorf("restoring project: %w", err)
	}

	o.requests = make(map[commits.Hash]protocol.Request, len(ps.Requests))
	for h, req := range ps.Requests {
		if _, ok := o.store.Commit(h); ok {
			o.requests[h] = req.Clone()
		}
	}
	o.inputs = ps.Inputs.clone()
	if o.inputs.Mode == "" {
		o.inputs.Mode = protocol.InputImage
	}
	if ps.Stack != "" {
		o.settings.GeneratedCodeConfig = ps.Stack
	}
	o.console.Reset()
	if _, ok := o.store.Head(); ok {
		o.state = StateCodeReady
	} else {
		o.state = StateInitial
	}
	return nil
}
