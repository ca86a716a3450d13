// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists projects between runs in an embedded BadgerDB.
//
// # Description
//
// Each project is one key, "project/<name>", holding a versioned JSON
// envelope around orchestrator.ProjectState. Saves overwrite.
//
// # Thread Safety
//
// A Store is safe for concurrent use. Badger allows one process per
// directory, so two CLI invocations cannot share a database at once.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/orchestrator"
)

var (
	// ErrProjectNotFound is returned when no project has the given name.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidName is returned for empty names or names containing '/'.
	ErrInvalidName = errors.New("invalid project name")

	// ErrUnsupportedVersion is returned for envelopes written by a newer
	// format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

const (
	keyPrefix     = "project/"
	formatVersion = 1
)

// envelope is the stored value.
type envelope struct {
	Version int                       `json:"version"`
	SavedAt time.Time                 `json:"savedAt"`
	State   orchestrator.ProjectState `json:"state"`
}

// Summary describes a saved project.
type Summary struct {
	Name    string       `json:"name"`
	SavedAt time.Time    `json:"savedAt"`
	Commits int          `json:"commits"`
	Head    commits.Hash `json:"head,omitempty"`
}

// Store saves and loads projects.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens the project database.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger.With("component", "snapshot")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func projectKey(name string) ([]byte, error) {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return []byte(keyPrefix + name), nil
}

// Save writes a project under name, replacing any previous save.
func (s *Store) Save(ctx context.Context, name string, state orchestrator.ProjectState) error {
	key, err := projectKey(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{
		Version: formatVersion,
		SavedAt: time.Now().UTC(),
		State:   state,
	})
	if err != nil {
		return fmt.Errorf("encoding project %s: %w", name, err)
	}
	err = withTxn(ctx, s.db, func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("saving project %s: %w", name, err)
	}
	s.logger.Debug("project saved", "project", name, "commits", len(state.Tree.Commits), "bytes", len(data))
	return nil
}

// Load reads a project.
func (s *Store) Load(ctx context.Context, name string) (orchestrator.ProjectState, error) {
	key, err := projectKey(name)
	if err != nil {
		return orchestrator.ProjectState{}, err
	}
	var env envelope
	err = withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decode(val, &env)
		})
	})
	if err != nil {
		return orchestrator.ProjectState{}, err
	}
	return env.State, nil
}

// List returns every saved project sorted by name.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), keyPrefix)
			var env envelope
			if err := item.Value(func(val []byte) error { return decode(val, &env) }); err != nil {
				s.logger.Warn("skipping unreadable project", "project", name, "error", err)
				continue
			}
			out = append(out, Summary{
				Name:    name,
				SavedAt: env.SavedAt,
				Commits: len(env.State.Tree.Commits),
				Head:    env.State.Tree.Head,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a project. Deleting a missing project returns
// ErrProjectNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	key, err := projectKey(name)
	if err != nil {
		return err
	}
	return withTxn(ctx, s.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

func decode(val []byte, env *envelope) error {
	if err := json.Unmarshal(val, env); err != nil {
		return fmt.Errorf("decoding project: %w", err)
	}
	if env.Version > formatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	return nil
}
