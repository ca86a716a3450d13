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
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/orchestrator"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/snapshot"
)

func runImport(cmd *cobra.Command, opts *rootOptions, path string) error {
	stack, _ := cmd.Flags().GetString("stack")
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.orch.Import(string(code), stack); err != nil {
		return err
	}
	if err := a.save(cmd.Context()); err != nil {
		return err
	}
	head, _ := a.orch.Store().Head()
	fmt.Fprintf(a.out, "Imported %s as version %s\n", path, head.Short())
	return nil
}

func runHistory(cmd *cobra.Command, opts *rootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()
	return renderHistory(a.out, a.orch.Store())
}

func runLog(cmd *cobra.Command, opts *rootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()
	renderLog(a.out, a.orch.Store())
	return nil
}

func runShow(cmd *cobra.Command, opts *rootOptions, args []string) error {
	option, _ := cmd.Flags().GetInt("option")
	out, _ := cmd.Flags().GetString("out")

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	store := a.orch.Store()
	var c *commits.Commit
	if len(args) == 0 {
		head, ok := store.HeadCommit()
		if !ok {
			return orchestrator.ErrNoHead
		}
		c = head
	} else {
		h, err := resolveCommit(store, args[0])
		if err != nil {
			return err
		}
		c, _ = store.Commit(h)
	}

	v := c.SelectedVariant()
	if option != 0 {
		if option < 1 || option > len(c.Variants) {
			return fmt.Errorf("%w: option %d of %d", commits.ErrIndexOutOfRange, option, len(c.Variants))
		}
		v = c.Variants[option-1]
	}
	if v.Status == commits.StatusError {
		fmt.Fprintf(a.errOut, "This option failed: %s\n", v.ErrorMessage)
	}
	return writeCode(a.out, out, v.Code)
}

func runSelect(cmd *cobra.Command, opts *rootOptions, arg string) error {
	option, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("option must be a number: %q", arg)
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.orch.SelectVariant(option - 1); err != nil {
		return err
	}
	if err := a.save(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Selected option %d\n", option)
	return nil
}

func runCheckout(cmd *cobra.Command, opts *rootOptions, ref string) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := resolveCommit(a.orch.Store(), ref)
	if err != nil {
		return err
	}
	if err := a.orch.Checkout(h); err != nil {
		return err
	}
	if err := a.save(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Now at version %s\n", h.Short())
	return nil
}

func runReset(cmd *cobra.Command, opts *rootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	a.orch.Reset()
	if err := a.save(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Project %s reset\n", a.name)
	return nil
}

// =============================================================================
// Saved Projects
// =============================================================================

// withProjects opens the project database without loading a project.
func withProjects(cmd *cobra.Command, opts *rootOptions, fn func(rt *runtime, projects *snapshot.Store) error) error {
	rt, err := newRuntime(cmd, opts, false)
	if err != nil {
		return err
	}
	defer rt.close()

	projects, err := snapshot.Open(snapshot.DefaultConfig(rt.cfg.StoragePath()), rt.log)
	if err != nil {
		return err
	}
	defer projects.Close()
	return fn(rt, projects)
}

func runProjectsList(cmd *cobra.Command, opts *rootOptions) error {
	return withProjects(cmd, opts, func(rt *runtime, projects *snapshot.Store) error {
		summaries, err := projects.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Fprintln(rt.out, "No saved projects.")
			return nil
		}
		t := plainTable("NAME", "VERSIONS", "HEAD", "SAVED")
		for _, s := range summaries {
			head := s.Head.Short()
			if head == "" {
				head = "-"
			}
			t.Row(s.Name, strconv.Itoa(s.Commits), head, s.SavedAt.Local().Format(time.DateTime))
		}
		return renderTable(rt.out, t)
	})
}

func runProjectsDelete(cmd *cobra.Command, opts *rootOptions, name string) error {
	return withProjects(cmd, opts, func(rt *runtime, projects *snapshot.Store) error {
		if err := projects.Delete(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Fprintf(rt.out, "Deleted project %s\n", name)
		return nil
	})
}
