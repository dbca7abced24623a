// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/middleware"
)

// NewRouter builds the full HTTP handler tree.
func NewRouter(cfg *config.Config, handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints get a permissive limit so monitors can poll freely.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.Server.RateLimitPerMin, time.Minute))
		r.Use(middleware.PrometheusMetrics)

		r.Get("/venues", handler.Venues)
		r.Post("/venues/{id}/refresh", handler.RefreshVenue)
		r.Post("/search", handler.Search)
		r.Put("/search/radius", handler.Radius)
		r.Get("/search/offer", handler.SearchOffer)
		r.Get("/ws", handler.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
