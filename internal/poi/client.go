// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package poi implements the client for the third-party place-search
// provider. One query is issued per category term, all concurrently; a
// failed category degrades to zero results rather than failing the search.
package poi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/geo"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/metrics"
	"github.com/pubcompass/pubcompass/internal/models"
)

// Result is the outcome of one multi-category provider search.
type Result struct {
	// Venues is flattened and de-duplicated by provider ID.
	Venues []models.Venue

	// Truncated is set when any category query returned exactly the result
	// cap, meaning the provider likely dropped records. Callers should warn
	// the user that the area is too dense.
	Truncated bool

	// FailedCategories lists the category terms whose queries failed and so
	// contributed zero results.
	FailedCategories []string
}

// AllFailed reports whether every category query failed, which is the only
// degradation worth surfacing to the user.
func (r *Result) AllFailed(totalCategories int) bool {
	return totalCategories > 0 && len(r.FailedCategories) == totalCategories
}

// Client queries the POI provider. Each HTTP call runs through a shared
// circuit breaker so a struggling provider is backed off across categories.
type Client struct {
	httpClient *http.Client
	baseURL    string
	categories []string
	limit      int
	breaker    *gobreaker.CircuitBreaker[[]rawPlace]
}

// NewClient creates a POI search client from configuration.
func NewClient(cfg *config.POIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	const breakerName = "poi-search"
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[[]rawPlace](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		categories: cfg.Categories,
		limit:      cfg.PerCategoryLimit,
		breaker:    breaker,
	}
}

// Categories returns the configured category terms.
func (c *Client) Categories() []string {
	return c.categories
}

// rawPlace is the provider-native record shape.
type rawPlace struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Address struct {
		HouseNumber string `json:"house_number"`
		Street      string `json:"street"`
		City        string `json:"city"`
		Postcode    string `json:"postcode"`
	} `json:"address"`
}

type searchResponse struct {
	Places []rawPlace `json:"places"`
}

// Search queries every configured category for the bounding box
// concurrently, then flattens and de-duplicates the results by provider ID.
// Individual category failures are non-fatal; Search itself only errors on
// programmer mistakes (no categories configured).
func (c *Client) Search(ctx context.Context, box geo.BoundingBox) (*Result, error) {
	if len(c.categories) == 0 {
		return nil, fmt.Errorf("no POI categories configured")
	}

	type categoryResult struct {
		category  string
		places    []rawPlace
		truncated bool
		err       error
	}

	results := make([]categoryResult, len(c.categories))
	var wg sync.WaitGroup
	for i, category := range c.categories {
		wg.Add(1)
		go func(i int, category string) {
			defer wg.Done()
			places, err := c.searchCategory(ctx, box, category)
			results[i] = categoryResult{
				category:  category,
				places:    places,
				truncated: len(places) >= c.limit,
				err:       err,
			}
		}(i, category)
	}
	wg.Wait()

	out := &Result{}
	seen := make(map[int64]struct{})
	for _, cr := range results {
		if cr.err != nil {
			logging.Warn().Err(cr.err).Str("category", cr.category).Msg("POI category query failed")
			metrics.POICategoryErrors.WithLabelValues(cr.category).Inc()
			out.FailedCategories = append(out.FailedCategories, cr.category)
			continue
		}
		if cr.truncated {
			out.Truncated = true
			metrics.POITruncations.Inc()
		}
		for _, p := range cr.places {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			v, ok := convertPlace(p)
			if !ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out.Venues = append(out.Venues, v)
		}
	}

	sort.Strings(out.FailedCategories)
	return out, nil
}

func (c *Client) searchCategory(ctx context.Context, box geo.BoundingBox, category string) ([]rawPlace, error) {
	return c.breaker.Execute(func() ([]rawPlace, error) {
		q := url.Values{}
		q.Set("category", category)
		q.Set("south", strconv.FormatFloat(box.South, 'f', 6, 64))
		q.Set("west", strconv.FormatFloat(box.West, 'f', 6, 64))
		q.Set("north", strconv.FormatFloat(box.North, 'f', 6, 64))
		q.Set("east", strconv.FormatFloat(box.East, 'f', 6, 64))
		q.Set("limit", strconv.Itoa(c.limit))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to query POI provider: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("POI provider returned status %d", resp.StatusCode)
		}

		var decoded searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("failed to decode POI response: %w", err)
		}
		return decoded.Places, nil
	})
}

// convertPlace normalizes a provider record. Records missing a name or a
// coordinate are discarded.
func convertPlace(p rawPlace) (models.Venue, bool) {
	if p.Name == "" || p.Lat == nil || p.Lon == nil {
		return models.Venue{}, false
	}

	return models.Venue{
		ID:       models.ExternalIDPrefix + strconv.FormatInt(p.ID, 10),
		Name:     p.Name,
		Address:  composeAddress(p),
		Location: models.Coordinate{Lat: *p.Lat, Lon: *p.Lon},
		Source:   models.SourceExternal,
	}, true
}

func composeAddress(p rawPlace) string {
	var parts []string
	if p.Address.Street != "" {
		street := p.Address.Street
		if p.Address.HouseNumber != "" {
			street = p.Address.HouseNumber + " " + street
		}
		parts = append(parts, street)
	}
	if p.Address.City != "" {
		parts = append(parts, p.Address.City)
	}
	if p.Address.Postcode != "" {
		parts = append(parts, p.Address.Postcode)
	}
	return strings.Join(parts, ", ")
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
