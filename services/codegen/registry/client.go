// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrRegistryUnavailable is returned when GET /models fails.
var ErrRegistryUnavailable = errors.New("backend registry unavailable")

// maxCatalogBytes bounds the /models response body.
const maxCatalogBytes = 1 << 20

// Client fetches the catalog from a backend's HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for baseURL (e.g. http://127.0.0.1:7001).
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "registry"),
	}
}

// Fetch loads the catalog.
//
// # Outputs
//
//   - *Catalog: Decoded catalog. Nil maps are replaced by empty ones.
//   - error: ErrRegistryUnavailable wrapping the transport, status or
//     decode failure.
func (c *Client) Fetch(ctx context.Context) (*Catalog, error) {
	url := c.baseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRegistryUnavailable, resp.StatusCode)
	}

	var catalog Catalog
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCatalogBytes)).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("%w: decoding catalog: %v", ErrRegistryUnavailable, err)
	}
	if catalog.Defaults == nil {
		catalog.Defaults = map[string]string{}
	}
	if catalog.Recommended == nil {
		catalog.Recommended = map[string][]string{}
	}
	c.logger.Debug("loaded backend registry", "models", len(catalog.Models), "stacks", len(catalog.Stacks))
	return &catalog, nil
}
