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
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/orchestrator"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
)

func runCreate(cmd *cobra.Command, opts *rootOptions, args []string) error {
	text, _ := cmd.Flags().GetString("text")
	video, _ := cmd.Flags().GetBool("video")
	text = strings.TrimSpace(text)

	switch {
	case text == "" && len(args) == 0:
		return errors.New("pass an image or video, or describe the UI with --text")
	case text != "" && len(args) > 0:
		return errors.New("--text cannot be combined with image arguments")
	case text != "" && video:
		return errors.New("--video needs a video file, not --text")
	}

	var assets []string
	if text == "" {
		var err error
		if assets, err = loadAssets(args); err != nil {
			return err
		}
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	return a.generate(cmd, func(ctx context.Context) error {
		if text != "" {
			return a.orch.CreateFromText(ctx, text)
		}
		mode := protocol.InputImage
		if video {
			mode = protocol.InputVideo
		}
		return a.orch.Create(ctx, assets, mode)
	})
}

func runEdit(cmd *cobra.Command, opts *rootOptions, args []string) error {
	imageArgs, _ := cmd.Flags().GetStringSlice("image")
	element, _ := cmd.Flags().GetString("element")

	images, err := loadAssets(imageArgs)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	return a.generate(cmd, func(ctx context.Context) error {
		return a.orch.Edit(ctx, orchestrator.EditParams{
			Instruction:     strings.Join(args, " "),
			Images:          images,
			SelectedElement: element,
		})
	})
}

func runRegenerate(cmd *cobra.Command, opts *rootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	return a.generate(cmd, a.orch.Regenerate)
}

func runAddOption(cmd *cobra.Command, opts *rootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	return a.generate(cmd, a.orch.AddVariant)
}

// generate runs one generation to its end and saves the project.
//
// # Description
//
// Ctrl+C cancels the generation through the context passed to start; the
// orchestrator rolls the tree back and the rolled-back project is saved.
// A completed generation prints the selected option's code.
//
// # Outputs
//
//   - error: start's error, the save error, or the session's CloseError
//     for server errors and abnormal endings. A user cancel is not an
//     error.
func (a *app) generate(cmd *cobra.Command, start func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.reconcileSettings(ctx)

	p := newProgress(a.orch.Store(), a.errOut)
	unsubscribe := a.orch.Store().Subscribe(p.listen)
	defer unsubscribe()

	if err := start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.errOut, "Generating (Ctrl+C to cancel)...")

	// The result must be collected even after an interrupt.
	res, err := a.orch.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	if err := a.save(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	switch res.Termination {
	case protocol.TerminationCompleted:
		return a.writeHead(cmd)
	case protocol.TerminationCancelled:
		return nil
	default:
		return res.Err()
	}
}

// writeHead prints a summary of the head commit and its selected code.
func (a *app) writeHead(cmd *cobra.Command) error {
	head, ok := a.orch.Store().HeadCommit()
	if !ok {
		return orchestrator.ErrNoHead
	}
	fmt.Fprintln(a.errOut, describeCommit(head))

	out, _ := cmd.Flags().GetString("out")
	return writeCode(a.out, out, head.SelectedVariant().Code)
}

// writeCode writes code to path, or to w when path is empty.
func writeCode(w io.Writer, path, code string) error {
	if path == "" {
		_, err := fmt.Fprintln(w, code)
		return err
	}
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
