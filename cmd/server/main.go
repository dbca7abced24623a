// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package main is the entry point for the Pubcompass server.
//
// Pubcompass merges a curated community venue store with third-party place
// search into one ranked, deduplicated pub directory around a map location.
// The server owns a single working set of venues, rebuilt by reconciliation
// passes and served over REST and a WebSocket result stream.
//
// Components start in this order:
//
//  1. Configuration: koanf v2 layering of defaults, config.yaml and
//     PUBCOMPASS_* environment variables
//  2. Reverse-geocode provider with its Badger cache
//  3. Upstream clients: canonical store, POI search, optional ratings
//  4. Search orchestrator and enrichment scheduler
//  5. WebSocket hub and in-process event bus
//  6. Supervisor tree: enrichment, messaging and HTTP layers under suture
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the HTTP
// listener drains in-flight requests, the hub closes its clients, and the
// geocode cache is flushed to disk.
//
// Example usage:
//
//	export PUBCOMPASS_CANONICAL_BASE_URL=http://pubstore:8080
//	export PUBCOMPASS_GEOCODE_USER_AGENT="pubcompass/1.0 (you@example.com)"
//	./pubcompass
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/pubcompass/pubcompass/internal/api"
	"github.com/pubcompass/pubcompass/internal/canonical"
	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/enrich"
	"github.com/pubcompass/pubcompass/internal/geocode"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/models"
	"github.com/pubcompass/pubcompass/internal/poi"
	"github.com/pubcompass/pubcompass/internal/rank"
	"github.com/pubcompass/pubcompass/internal/ratings"
	"github.com/pubcompass/pubcompass/internal/search"
	"github.com/pubcompass/pubcompass/internal/supervisor"
	"github.com/pubcompass/pubcompass/internal/supervisor/services"
	ws "github.com/pubcompass/pubcompass/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("canonical_url", cfg.Canonical.BaseURL).
		Str("poi_url", cfg.POI.BaseURL).
		Strs("categories", cfg.POI.Categories).
		Bool("ratings_enabled", cfg.Ratings.BaseURL != "").
		Msg("configuration loaded")

	// Reverse-geocode provider behind its persistent cache. Cached answers
	// never cost a provider request, which is what keeps lazy enrichment
	// inside the provider's rate limit across restarts.
	geocoder, err := geocode.NewCachedProvider(
		geocode.NewHTTPProvider(&cfg.Geocode),
		cfg.Geocode.CacheDir,
		cfg.Geocode.CacheTTL,
	)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open geocode cache")
	}
	defer func() {
		if err := geocoder.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing geocode cache")
		}
	}()

	store := canonical.NewClient(&cfg.Canonical)
	poiClient := poi.NewClient(&cfg.POI)

	var ratingsSource search.RatingsSource
	if rc := ratings.NewClient(&cfg.Ratings); rc != nil {
		ratingsSource = rc
	}

	bus := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event bus")
		}
	}()

	orchestrator := search.NewOrchestrator(cfg.Search, store, poiClient, ratingsSource, nil, bus)
	defer orchestrator.Close()

	// The scheduler patches addresses back through the orchestrator and the
	// orchestrator feeds the scheduler, so the enricher is attached second.
	scheduler := enrich.NewScheduler(geocoder, orchestrator, cfg.Enrich.StaggerInterval)
	orchestrator.SetEnricher(scheduler)

	hub := ws.NewHub()
	ranker := rank.New(&cfg.Rank)
	handler := api.NewHandler(cfg, orchestrator, ranker, hub)
	router := api.NewRouter(cfg, handler)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddEnrichmentService(scheduler)
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewResultRelayService(bus, search.TopicSearchResults, hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)

	// Run the first pass at the configured default origin so the map has
	// data before any client interaction.
	orchestrator.TriggerSearch(
		models.Coordinate{Lat: cfg.Search.DefaultLat, Lon: cfg.Search.DefaultLon},
		cfg.Search.DefaultRadiusMeters,
	)

	logging.Info().
		Str("addr", server.Addr).
		Msg("pubcompass started")

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor stopped with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree failed")
			os.Exit(1)
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", fmt.Sprintf("%v", svc.Service)).Msg("service did not stop in time")
		}
	}

	logging.Info().Msg("pubcompass stopped")
}
