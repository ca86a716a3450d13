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
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
)

// ErrAmbiguousCommit is returned when a short hash matches several commits.
var ErrAmbiguousCommit = errors.New("ambiguous commit reference")

// snippetWidth bounds instruction text shown in one line.
const snippetWidth = 60

// =============================================================================
// Tables
// =============================================================================

// cellStyle separates columns by two spaces.
var cellStyle = lipgloss.NewStyle().PaddingRight(2)

// plainTable is a borderless table that reads well when piped.
func plainTable(headers ...string) *table.Table {
	return table.New().
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Headers(headers...)
}

// renderTable writes t with trailing cell padding trimmed.
func renderTable(w io.Writer, t *table.Table) error {
	for _, line := range strings.Split(t.Render(), "\n") {
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Assets
// =============================================================================

// loadAssets turns file paths into data URLs. Remote and data URLs pass
// through unchanged.
func loadAssets(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if isURL(arg) {
			out = append(out, arg)
			continue
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		out = append(out, dataURL(arg, data))
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "data:") ||
		strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://")
}

// dataURL encodes data, taking the media type from the extension and
// falling back to content sniffing.
func dataURL(name string, data []byte) string {
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// =============================================================================
// Commits
// =============================================================================

// resolveCommit finds a commit by full hash, or by a unique prefix or
// suffix (commits print their last eight characters).
func resolveCommit(store *commits.Store, ref string) (commits.Hash, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return commits.NoHash, fmt.Errorf("%w: empty reference", commits.ErrUnknownCommit)
	}
	if _, ok := store.Commit(commits.Hash(ref)); ok {
		return commits.Hash(ref), nil
	}
	var matches []commits.Hash
	for h := range store.Commits() {
		s := h.String()
		if strings.HasSuffix(s, ref) || strings.HasPrefix(s, ref) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return commits.NoHash, fmt.Errorf("%w: %s", commits.ErrUnknownCommit, ref)
	case 1:
		return matches[0], nil
	default:
		return commits.NoHash, fmt.Errorf("%w: %s matches %d commits", ErrAmbiguousCommit, ref, len(matches))
	}
}

// describeCommit is the one-line summary printed after a generation.
func describeCommit(c *commits.Commit) string {
	var complete, failed int
	for _, v := range c.Variants {
		switch v.Status {
		case commits.StatusComplete:
			complete++
		case commits.StatusError:
			failed++
		}
	}
	line := fmt.Sprintf("Version %s: %d of %d options complete, option %d selected",
		c.Hash.Short(), complete, len(c.Variants), c.SelectedVariantIndex+1)
	if failed > 0 {
		line += fmt.Sprintf(" (%d failed)", failed)
	}
	return line
}

// promptSnippet is a one-line label for a commit's inputs.
func promptSnippet(c *commits.Commit) string {
	if c.Type == commits.TypeImport {
		return "(imported code)"
	}
	if c.Inputs == nil {
		return ""
	}
	return contentSnippet(*c.Inputs)
}

func contentSnippet(p commits.PromptContent) string {
	text := strings.Join(strings.Fields(p.Text), " ")
	if len(text) > snippetWidth {
		text = text[:snippetWidth-3] + "..."
	}
	switch {
	case text == "" && len(p.Images) > 0:
		return fmt.Sprintf("(%d image(s))", len(p.Images))
	case len(p.Images) > 0:
		return fmt.Sprintf("%q + %d image(s)", text, len(p.Images))
	default:
		return fmt.Sprintf("%q", text)
	}
}

// renderLog prints the version tree, roots oldest first, children
// indented under their parent. The head is marked with '*'.
//
//	* 4f2a9c1e create  2 options  "a login page"
//	    7bd01e33 edit  1 option   "make the button blue"
func renderLog(w io.Writer, store *commits.Store) {
	all := store.Commits()
	if len(all) == 0 {
		fmt.Fprintln(w, "No versions yet.")
		return
	}
	head, _ := store.Head()

	var roots []*commits.Commit
	for _, c := range all {
		if c.ParentHash == commits.NoHash {
			roots = append(roots, c)
		}
	}
	sortByCreation(roots)

	var walk func(c *commits.Commit, depth int)
	walk = func(c *commits.Commit, depth int) {
		marker := " "
		if c.Hash == head {
			marker = "*"
		}
		options := "options"
		if len(c.Variants) == 1 {
			options = "option"
		}
		fmt.Fprintf(w, "%s %s%s %-6s %d %-7s %s\n",
			marker, strings.Repeat("  ", depth), c.Hash.Short(), c.Type,
			len(c.Variants), options, promptSnippet(c))

		var children []*commits.Commit
		for _, h := range store.Children(c.Hash) {
			if child, ok := all[h]; ok {
				children = append(children, child)
			}
		}
		sortByCreation(children)
		for _, child := range children {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
}

func sortByCreation(cs []*commits.Commit) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].Hash < cs[j].Hash
		}
		return cs[i].CreatedAt.Before(cs[j].CreatedAt)
	})
}

// renderHistory prints the linear history of the head, oldest first.
func renderHistory(w io.Writer, store *commits.Store) error {
	head, ok := store.HeadCommit()
	if !ok {
		fmt.Fprintln(w, "No versions yet.")
		return nil
	}
	history, err := store.History()
	if err != nil {
		return err
	}
	for i, entry := range history {
		label := contentSnippet(entry)
		if i == 0 && isImportRoot(store, head) {
			label = "(imported code)"
		}
		fmt.Fprintf(w, "%d. %s\n", i+1, label)
	}
	return nil
}

// isImportRoot reports whether c's tree starts from imported code.
func isImportRoot(store *commits.Store, c *commits.Commit) bool {
	for steps := 0; c != nil && steps <= store.Len(); steps++ {
		if c.ParentHash == commits.NoHash {
			return c.Type == commits.TypeImport
		}
		next, ok := store.Commit(c.ParentHash)
		if !ok {
			return false
		}
		c = next
	}
	return false
}
