// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package geocode implements best-effort reverse geocoding for venue
// enrichment. Lookups are rate limited to honor the provider's usage policy
// and cached persistently so repeated passes over the same area do not
// re-query the provider.
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/metrics"
)

// Result is a resolved reverse-geocode lookup.
type Result struct {
	Address     string `json:"address"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
}

// Provider resolves a coordinate to an address. A (nil, nil) return means
// the provider had no usable answer for the coordinate; that is not an
// error and is never retried within a pass.
type Provider interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*Result, error)
	Name() string
}

// HTTPProvider queries a Nominatim-compatible /reverse endpoint.
type HTTPProvider struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*Result]
}

// NewHTTPProvider creates a reverse-geocode provider from configuration.
func NewHTTPProvider(cfg *config.GeocodeConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	const breakerName = "reverse-geocode"
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
		},
	})

	return &HTTPProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker:    breaker,
	}
}

// Name returns the provider name for logging.
func (p *HTTPProvider) Name() string {
	return "nominatim"
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		CountryCode string `json:"country_code"`
		Country     string `json:"country"`
	} `json:"address"`
}

// ReverseGeocode resolves a coordinate, waiting on the rate limiter first.
// The enrichment scheduler already staggers calls; the limiter is a second
// line of defense shared by single-venue refreshes.
func (p *HTTPProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	return p.breaker.Execute(func() (*Result, error) {
		return p.query(ctx, lat, lon)
	})
}

func (p *HTTPProvider) query(ctx context.Context, lat, lon float64) (*Result, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("format", "jsonv2")
	q.Set("zoom", "18")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/reverse?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var decoded reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode geocoder response: %w", err)
	}

	// Nominatim reports "Unable to geocode" as a 200 with an error field.
	if decoded.Error != "" || decoded.DisplayName == "" {
		return nil, nil
	}

	return &Result{
		Address:     decoded.DisplayName,
		CountryCode: strings.ToUpper(decoded.Address.CountryCode),
		CountryName: decoded.Address.Country,
	}, nil
}
