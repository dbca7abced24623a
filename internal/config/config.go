// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package config loads layered application configuration with koanf v2:
// struct defaults, then an optional YAML file, then PUBCOMPASS_* environment
// variables, highest priority last.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Canonical CanonicalConfig `koanf:"canonical"`
	POI       POIConfig       `koanf:"poi"`
	Geocode   GeocodeConfig   `koanf:"geocode"`
	Ratings   RatingsConfig   `koanf:"ratings"`
	Search    SearchConfig    `koanf:"search"`
	Enrich    EnrichConfig    `koanf:"enrich"`
	Rank      RankConfig      `koanf:"rank"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitPerMin int           `koanf:"rate_limit_per_min" validate:"min=1"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// CanonicalConfig configures the canonical store client. The store is the
// source of truth; a missing base URL fails validation.
type CanonicalConfig struct {
	BaseURL     string        `koanf:"base_url" validate:"required,url"`
	APIKey      string        `koanf:"api_key"`
	ResultLimit int           `koanf:"result_limit" validate:"min=1,max=5000"`
	Timeout     time.Duration `koanf:"timeout"`
}

// POIConfig configures the external POI search client.
type POIConfig struct {
	BaseURL          string        `koanf:"base_url" validate:"required,url"`
	Categories       []string      `koanf:"categories" validate:"min=1"`
	PerCategoryLimit int           `koanf:"per_category_limit" validate:"min=1,max=1000"`
	Timeout          time.Duration `koanf:"timeout"`
}

// GeocodeConfig configures the reverse-geocode provider and its cache.
type GeocodeConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// UserAgent identifies us to the provider; Nominatim's usage policy
	// requires a real contact address in it.
	UserAgent string `koanf:"user_agent" validate:"required"`

	// RequestsPerSecond caps outbound lookups; burst is always 1.
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Timeout           time.Duration `koanf:"timeout"`

	// CacheDir is the Badger directory for cached results. Empty selects an
	// in-memory cache (used by tests).
	CacheDir string        `koanf:"cache_dir"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// RatingsConfig configures the optional ratings collaborator. When BaseURL
// is empty, venues carry no ratings or scores.
type RatingsConfig struct {
	BaseURL string        `koanf:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout"`
}

// SearchConfig holds orchestrator tunables.
type SearchConfig struct {
	// Default search origin used before any client supplies one.
	DefaultLat float64 `koanf:"default_lat" validate:"min=-90,max=90"`
	DefaultLon float64 `koanf:"default_lon" validate:"min=-180,max=180"`

	DefaultRadiusMeters float64 `koanf:"default_radius_meters" validate:"gt=0"`
	MaxRadiusMeters     float64 `koanf:"max_radius_meters" validate:"gt=0"`

	// DebounceInterval coalesces rapid radius changes into one search.
	DebounceInterval time.Duration `koanf:"debounce_interval"`

	// DuplicateRadiusMeters is the spatial-duplicate distance threshold.
	DuplicateRadiusMeters float64 `koanf:"duplicate_radius_meters" validate:"gt=0"`

	// MapMoveFraction of the radius that a map drag must exceed before the
	// "search this area" affordance is offered.
	MapMoveFraction float64 `koanf:"map_move_fraction" validate:"gt=0,lte=1"`
}

// EnrichConfig holds enrichment scheduler tunables.
type EnrichConfig struct {
	// StaggerInterval is the minimum spacing between reverse-geocode
	// dispatches.
	StaggerInterval time.Duration `koanf:"stagger_interval"`
}

// RankConfig holds the price-proxy band tables. Index i of a band slice is
// the representative price for an (i+1)-star price average.
type RankConfig struct {
	PriceBands []float64 `koanf:"price_bands" validate:"len=5"`

	// DynamicPricingAreas lists address substrings (case-insensitive) that
	// mark high-cost metro areas using DynamicPriceBands instead.
	DynamicPricingAreas []string  `koanf:"dynamic_pricing_areas"`
	DynamicPriceBands   []float64 `koanf:"dynamic_price_bands" validate:"len=5"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// layered first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8457,
			CORSOrigins:     []string{"*"},
			RateLimitPerMin: 300,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Canonical: CanonicalConfig{
			BaseURL:     "http://localhost:8080",
			ResultLimit: 500,
			Timeout:     10 * time.Second,
		},
		POI: POIConfig{
			BaseURL:          "https://overpass.kumi.systems/api",
			Categories:       []string{"pub", "bar", "brewery"},
			PerCategoryLimit: 200,
			Timeout:          15 * time.Second,
		},
		Geocode: GeocodeConfig{
			BaseURL:           "https://nominatim.openstreetmap.org",
			UserAgent:         "pubcompass/1.0 (ops@pubcompass.dev)",
			RequestsPerSecond: 1,
			Timeout:           10 * time.Second,
			CacheDir:          "/data/geocode-cache",
			CacheTTL:          30 * 24 * time.Hour,
		},
		Ratings: RatingsConfig{
			Timeout: 5 * time.Second,
		},
		Search: SearchConfig{
			DefaultLat:            51.5074,
			DefaultLon:            -0.1278,
			DefaultRadiusMeters:   2000,
			MaxRadiusMeters:       25000,
			DebounceInterval:      500 * time.Millisecond,
			DuplicateRadiusMeters: 50,
			MapMoveFraction:       0.25,
		},
		Enrich: EnrichConfig{
			StaggerInterval: 200 * time.Millisecond,
		},
		Rank: RankConfig{
			PriceBands:          []float64{3.20, 3.90, 4.60, 5.40, 6.30},
			DynamicPricingAreas: []string{"london", "edinburgh", "dublin"},
			DynamicPriceBands:   []float64{4.20, 5.10, 6.00, 7.00, 8.20},
		},
	}
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.Search.DefaultRadiusMeters > c.Search.MaxRadiusMeters {
		return fmt.Errorf("search.default_radius_meters (%f) exceeds max_radius_meters (%f)",
			c.Search.DefaultRadiusMeters, c.Search.MaxRadiusMeters)
	}
	return nil
}
