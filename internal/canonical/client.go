// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package canonical implements the client for the authoritative venue store.
// The store is the source of truth for venue existence and official closure
// status: a failed fetch is fatal to its reconciliation pass and is
// propagated, never swallowed.
package canonical

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/models"
)

// ErrStoreUnavailable marks transport-level or server-side failures of the
// canonical store. The orchestrator retains it as the pass error.
var ErrStoreUnavailable = errors.New("canonical store unavailable")

// ErrVenueNotFound is returned by GetVenue for unknown IDs.
var ErrVenueNotFound = errors.New("venue not found")

// Client queries the canonical store REST API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	resultLimit int
}

// NewClient creates a canonical store client from configuration.
func NewClient(cfg *config.CanonicalConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		resultLimit: cfg.ResultLimit,
	}
}

// storeVenue is the store's wire representation of a venue.
type storeVenue struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	CountryCode string   `json:"country_code"`
	CountryName string   `json:"country_name"`
	IsClosed    bool     `json:"is_closed"`
	Submitter   string   `json:"submitter,omitempty"`
}

type venuesResponse struct {
	Venues []storeVenue `json:"venues"`
}

type overridesResponse struct {
	ClosedIDs         []string          `json:"closed_ids"`
	ClosedExternalIDs []string          `json:"closed_external_ids"`
	NameOverrides     map[string]string `json:"name_overrides"`
}

// FindVenuesInRadius fetches venues within radiusMeters of center, capped at
// the configured result limit. The store's radius argument is integral, so
// the value is rounded up; over-fetch is corrected by the exact distance
// filter during reconciliation.
func (c *Client) FindVenuesInRadius(ctx context.Context, center models.Coordinate, radiusMeters float64) ([]models.Venue, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(center.Lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(center.Lon, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(int(math.Ceil(radiusMeters))))
	q.Set("limit", strconv.Itoa(c.resultLimit))

	var resp venuesResponse
	if err := c.get(ctx, "/v1/venues", q, &resp); err != nil {
		return nil, err
	}

	venues := make([]models.Venue, 0, len(resp.Venues))
	for _, sv := range resp.Venues {
		v, ok := convertStoreVenue(sv)
		if !ok {
			logging.Debug().Str("id", sv.ID).Msg("skipping canonical venue without coordinate")
			continue
		}
		venues = append(venues, v)
	}
	return venues, nil
}

// GetVenue fetches a single venue by its namespaced ID, for post-moderation
// refresh without a full reconciliation pass.
func (c *Client) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	storeID, ok := stripNamespace(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a canonical id", ErrVenueNotFound, id)
	}

	var sv storeVenue
	if err := c.get(ctx, "/v1/venues/"+url.PathEscape(storeID), nil, &sv); err != nil {
		return nil, err
	}

	v, okCoord := convertStoreVenue(sv)
	if !okCoord {
		return nil, fmt.Errorf("%w: %s has no coordinate", ErrVenueNotFound, id)
	}
	return &v, nil
}

// ListClosureOverrides fetches the moderation side-tables. They are loaded
// independently of any single search and applied during every pass.
func (c *Client) ListClosureOverrides(ctx context.Context) (*models.OverrideTables, error) {
	var resp overridesResponse
	if err := c.get(ctx, "/v1/overrides", nil, &resp); err != nil {
		return nil, err
	}

	tables := models.EmptyOverrideTables()
	for _, id := range resp.ClosedIDs {
		tables.ClosedCanonicalIDs[id] = struct{}{}
	}
	for _, id := range resp.ClosedExternalIDs {
		tables.ClosedExternalIDs[id] = struct{}{}
	}
	for id, name := range resp.NameOverrides {
		tables.NameOverrides[id] = name
	}
	return tables, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrVenueNotFound
	default:
		return fmt.Errorf("%w: status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// convertStoreVenue maps a wire venue onto the engine model. Venues without
// a coordinate are never included.
func convertStoreVenue(sv storeVenue) (models.Venue, bool) {
	if sv.Lat == nil || sv.Lng == nil || sv.Name == "" {
		return models.Venue{}, false
	}

	prefix := models.CanonicalIDPrefix
	source := models.SourceCanonical
	if sv.Submitter != "" {
		prefix = models.UserIDPrefix
		source = models.SourceUser
	}

	return models.Venue{
		ID:          prefix + sv.ID,
		Name:        sv.Name,
		Address:     sv.Address,
		Location:    models.Coordinate{Lat: *sv.Lat, Lon: *sv.Lng},
		CountryCode: sv.CountryCode,
		CountryName: sv.CountryName,
		IsClosed:    sv.IsClosed,
		Source:      source,
	}, true
}

func stripNamespace(id string) (string, bool) {
	for _, prefix := range []string{models.CanonicalIDPrefix, models.UserIDPrefix} {
		if len(id) > len(prefix) && id[:len(prefix)] == prefix {
			return id[len(prefix):], true
		}
	}
	return "", false
}
