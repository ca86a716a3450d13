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
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/mockbackend"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/registry"
)

func runModels(cmd *cobra.Command, opts *rootOptions) error {
	rt, err := newRuntime(cmd, opts, false)
	if err != nil {
		return err
	}
	defer rt.close()

	catalog, err := rt.registryClient().Fetch(cmd.Context())
	if err != nil {
		return err
	}
	return renderCatalog(rt.out, catalog)
}

// renderCatalog prints models, stacks and the backend defaults.
func renderCatalog(w io.Writer, c *registry.Catalog) error {
	recommended := make(map[string]bool)
	for _, id := range c.RecommendedCodeModels() {
		recommended[id] = true
	}

	models := plainTable("MODEL", "NAME", "PROVIDER", "INPUTS")
	for _, m := range c.Models {
		name := m.Name
		if recommended[m.ID] {
			name += " (recommended)"
		}
		models.Row(m.ID, name, string(m.Provider), strings.Join(m.SupportsInputModes, ","))
	}
	if err := renderTable(w, models); err != nil {
		return err
	}
	fmt.Fprintln(w)

	stacks := plainTable("STACK", "LABEL", "COMPONENTS")
	for _, s := range c.Stacks {
		label := s.Label
		if s.InBeta {
			label += " (beta)"
		}
		stacks.Row(s.ID, label, strings.Join(s.Components, ", "))
	}
	if err := renderTable(w, stacks); err != nil {
		return err
	}

	if len(c.Defaults) > 0 {
		keys := make([]string, 0, len(c.Defaults))
		for k := range c.Defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w)
		for _, k := range keys {
			fmt.Fprintf(w, "default %s: %s\n", k, c.Defaults[k])
		}
	}
	return nil
}

func runMockBackend(cmd *cobra.Command, opts *rootOptions) error {
	addr, _ := cmd.Flags().GetString("addr")
	variants, _ := cmd.Flags().GetInt("variants")
	rate, _ := cmd.Flags().GetFloat64("rate")

	rt, err := newRuntime(cmd, opts, true)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := mockbackend.DefaultConfig()
	cfg.Variants = variants
	cfg.ChunksPerSecond = rate
	cfg.Debug = opts.debug

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mockbackend.New(cfg, rt.log).Run(ctx, addr)
}
