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
	"github.com/spf13/cobra"
)

// defaultProject is used when --project is not given.
const defaultProject = "default"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	project    string
	debug      bool
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "codegen",
		Short: "Turn screenshots, videos or text into front-end code",
		Long: `codegen streams code from a screenshot-to-code backend and keeps every
attempt in a version tree, so you can edit, add options and go back to
earlier versions across runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.aleutian/codegen.yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.project, "project", "p", defaultProject, "project name")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log at debug level")

	// --- Generation ---
	createCmd := &cobra.Command{
		Use:   "create [image-or-video...]",
		Short: "Generate code from reference images, a video, or --text",
		Long: `Starts a new project. Files are sent as data URLs; http(s) and data:
URLs are passed through. Only the first asset is sent to the backend.
Press Ctrl+C to cancel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, opts, args)
		},
	}
	createCmd.Flags().String("text", "", "describe the UI instead of passing images")
	createCmd.Flags().Bool("video", false, "treat the asset as a video")
	createCmd.Flags().String("out", "", "write the selected code to this file instead of stdout")

	editCmd := &cobra.Command{
		Use:   "edit [instruction]",
		Short: "Ask for a change to the current version",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, opts, args)
		},
	}
	editCmd.Flags().StringSlice("image", nil, "reference image for the edit (repeatable)")
	editCmd.Flags().String("element", "", "HTML of the element the instruction refers to")
	editCmd.Flags().String("out", "", "write the selected code to this file instead of stdout")

	regenerateCmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Run the original create again from the saved inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegenerate(cmd, opts)
		},
	}
	regenerateCmd.Flags().String("out", "", "write the selected code to this file instead of stdout")

	addOptionCmd := &cobra.Command{
		Use:     "add-option",
		Aliases: []string{"another"},
		Short:   "Generate one more option for the current version",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddOption(cmd, opts)
		},
	}
	addOptionCmd.Flags().String("out", "", "write the selected code to this file instead of stdout")

	// --- Project ---
	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Start a project from existing code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}
	importCmd.Flags().String("stack", "", "stack the code is written in")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print the instructions that led to the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Print the version tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, opts)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show [commit]",
		Short: "Print the code of a version (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, opts, args)
		},
	}
	showCmd.Flags().Int("option", 0, "option to print, 1-based (default: the selected one)")
	showCmd.Flags().String("out", "", "write the code to this file instead of stdout")

	selectCmd := &cobra.Command{
		Use:   "select [option]",
		Short: "Select an option of the current version (1-based)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd, opts, args[0])
		},
	}

	checkoutCmd := &cobra.Command{
		Use:   "checkout [commit]",
		Short: "Make an earlier version current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckout(cmd, opts, args[0])
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard every version of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, opts)
		},
	}

	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage saved projects",
	}
	projectsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectsList(cmd, opts)
		},
	}
	projectsDeleteCmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a saved project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectsDelete(cmd, opts, args[0])
		},
	}
	projectsCmd.AddCommand(projectsListCmd, projectsDeleteCmd)

	// --- Backend ---
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the models and stacks the backend offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, opts)
		},
	}

	mockBackendCmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve a mock generation backend for local testing",
		Long: `Serves /generate-code and /models. Prompts containing "fail" make every
variant error; "session-error" sends a session error; "stall" stops
streaming; "drop" closes the connection without a close frame.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockBackend(cmd, opts)
		},
	}
	mockBackendCmd.Flags().String("addr", "127.0.0.1:7001", "listen address")
	mockBackendCmd.Flags().Int("variants", 2, "variants per request (1-4)")
	mockBackendCmd.Flags().Float64("rate", 200, "chunks per second per variant (0 = unpaced)")

	rootCmd.AddCommand(
		createCmd, editCmd, regenerateCmd, addOptionCmd,
		importCmd, historyCmd, logCmd, showCmd, selectCmd, checkoutCmd, resetCmd,
		projectsCmd, modelsCmd, mockBackendCmd,
	)
	return rootCmd
}
