// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package ratings implements the client for the optional community ratings
// collaborator. Ratings are presentation data: a failed or disabled
// collaborator degrades every venue to unrated, it never fails a search.
package ratings

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/models"
)

// Client queries the ratings collaborator. A nil *Client is valid and
// reports no ratings, covering the disabled configuration.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a ratings client, or nil when no base URL is configured.
func NewClient(cfg *config.RatingsConfig) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
	}
}

type summariesRequest struct {
	VenueIDs []string `json:"venue_ids"`
}

type summariesResponse struct {
	Summaries map[string]models.RatingSummary `json:"summaries"`
}

// FetchSummaries returns per-venue rating summaries keyed by venue ID. IDs
// unknown to the collaborator are simply absent from the map.
func (c *Client) FetchSummaries(ctx context.Context, venueIDs []string) (map[string]models.RatingSummary, error) {
	if c == nil || len(venueIDs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(summariesRequest{VenueIDs: venueIDs})
	if err != nil {
		return nil, fmt.Errorf("encoding summaries request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/summaries", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building summaries request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying ratings collaborator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ratings collaborator returned status %d", resp.StatusCode)
	}

	var out summariesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding summaries response: %w", err)
	}
	return out.Summaries, nil
}
