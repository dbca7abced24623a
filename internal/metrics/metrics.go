// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package metrics defines the Prometheus instrumentation for the engine:
// reconciliation passes, source fetches, enrichment and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation pass metrics

	SearchPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubcompass_search_passes_total",
			Help: "Total reconciliation passes by outcome",
		},
		[]string{"outcome"}, // "success", "error", "stale"
	)

	SearchPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pubcompass_search_pass_duration_seconds",
			Help:    "Duration of complete reconciliation passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	SearchTriggersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubcompass_search_triggers_dropped_total",
			Help: "Search triggers dropped because a pass was already in flight",
		},
	)

	WorkingSetSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pubcompass_working_set_venues",
			Help: "Venues in the current working set",
		},
	)

	DuplicatesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubcompass_duplicates_suppressed_total",
			Help: "External venues discarded as spatial duplicates of canonical venues",
		},
	)

	// Source fetch metrics

	CanonicalFetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubcompass_canonical_fetch_errors_total",
			Help: "Canonical store fetch failures (fatal to their pass)",
		},
	)

	POICategoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubcompass_poi_category_errors_total",
			Help: "Failed POI category queries (non-fatal, category yields zero results)",
		},
		[]string{"category"},
	)

	POITruncations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubcompass_poi_truncations_total",
			Help: "POI queries that hit the provider result cap",
		},
	)

	// Enrichment metrics

	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubcompass_geocode_requests_total",
			Help: "Reverse-geocode requests by outcome",
		},
		[]string{"outcome"}, // "success", "empty", "error"
	)

	GeocodeCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubcompass_geocode_cache_hits_total",
			Help: "Reverse-geocode results served from the Badger cache",
		},
	)

	GeocodeCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubcompass_geocode_cache_misses_total",
			Help: "Reverse-geocode cache misses that went to the provider",
		},
	)

	EnrichmentPatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubcompass_enrichment_patches_total",
			Help: "Addresses patched into the working set by the enrichment scheduler",
		},
	)

	EnrichmentStalePatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pubcompass_enrichment_stale_patches_total",
			Help: "Enrichment results discarded because the working-set generation moved on",
		},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pubcompass_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	// HTTP surface metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pubcompass_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pubcompass_websocket_clients",
			Help: "Connected WebSocket result-stream clients",
		},
	)
)
