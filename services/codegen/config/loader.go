// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns ~/.aleutian/codegen.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "codegen.yaml"), nil
}

// Load reads the config at path, writing the defaults there first when the
// file does not exist. An empty path means DefaultPath. Keys missing from
// the file keep their default values.
//
// created reports whether this call wrote the file.
func Load(path string) (cfg Config, created bool, err error) {
	if path == "" {
		if path, err = DefaultPath(); err != nil {
			return Config{}, false, err
		}
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return Config{}, false, err
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, created, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg = DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, created, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, created, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, created, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	// Credentials may be written here later, so keep it private.
	return os.WriteFile(path, data, 0600)
}
