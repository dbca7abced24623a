// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package api provides the HTTP surface: venue listing with ranking and
// filtering, search triggering, single-venue refresh, the WebSocket result
// stream, and health endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"

	"github.com/pubcompass/pubcompass/internal/canonical"
	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/models"
	"github.com/pubcompass/pubcompass/internal/rank"
	"github.com/pubcompass/pubcompass/internal/search"
	"github.com/pubcompass/pubcompass/internal/websocket"
)

// SearchEngine is the slice of the orchestrator the handlers use.
type SearchEngine interface {
	TriggerSearch(origin models.Coordinate, radiusMeters float64) bool
	SetRadius(radiusMeters float64)
	CurrentVenues() []models.Venue
	CurrentState() search.State
	LastError() error
	RefreshVenue(ctx context.Context, id string) (*models.Venue, error)
	ShouldOfferSearchHere(pt models.Coordinate) bool
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	cfg       *config.Config
	engine    SearchEngine
	ranker    *rank.Ranker
	wsHub     *websocket.Hub
	startTime time.Time
}

// NewHandler creates the handler set.
func NewHandler(cfg *config.Config, engine SearchEngine, ranker *rank.Ranker, wsHub *websocket.Hub) *Handler {
	return &Handler{
		cfg:       cfg,
		engine:    engine,
		ranker:    ranker,
		wsHub:     wsHub,
		startTime: time.Now(),
	}
}

// venuesResponse is the payload of GET /api/v1/venues.
type venuesResponse struct {
	Venues []models.Venue `json:"venues"`
	State  search.State   `json:"state"`
}

// Venues returns the current working set, ranked and filtered per query
// parameters. Reads never block a running pass; they see the last committed
// set.
//
// Query parameters:
//   - sort: distance (default), quality, price, composite
//   - open_only: drop venues marked closed
//   - cask_only: keep venues whose cask confirmations outweigh denials
func (h *Handler) Venues(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	venues := h.engine.CurrentVenues()
	state := h.engine.CurrentState()

	if getBoolParam(r, "open_only", false) {
		venues = rank.FilterOpen(venues)
	}
	if getBoolParam(r, "cask_only", false) {
		venues = rank.FilterCask(venues)
	}

	criterion := rank.ParseCriterion(r.URL.Query().Get("sort"))
	venues = h.ranker.Sort(venues, state.Origin, criterion)

	respondData(w, r, &venuesResponse{Venues: venues, State: state}, start)
}

// searchRequest is the body of POST /api/v1/search.
type searchRequest struct {
	Lat          float64 `json:"lat" validate:"min=-90,max=90"`
	Lon          float64 `json:"lon" validate:"min=-180,max=180"`
	RadiusMeters float64 `json:"radius_meters" validate:"omitempty,gt=0"`
}

// searchResponse is the immediate acknowledgment of a search trigger; the
// result itself arrives over the WebSocket stream or a later venues read.
type searchResponse struct {
	Started    bool   `json:"started"`
	Generation uint64 `json:"generation"`
}

// Search triggers a reconciliation pass at the given origin. A trigger
// arriving while a pass is in flight is acknowledged with started=false.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status: "error",
			Metadata: models.Metadata{
				Timestamp: time.Now().UTC(),
			},
			Error: apiErr,
		})
		return
	}

	started := h.engine.TriggerSearch(models.Coordinate{Lat: req.Lat, Lon: req.Lon}, req.RadiusMeters)
	state := h.engine.CurrentState()
	respondData(w, r, &searchResponse{Started: started, Generation: state.Generation}, start)
}

// Radius handles PUT /api/v1/search/radius, debouncing rapid slider changes
// into one pass.
func (h *Handler) Radius(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req struct {
		RadiusMeters float64 `json:"radius_meters" validate:"gt=0"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", err)
		return
	}
	if req.RadiusMeters <= 0 {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "radius_meters must be positive", nil)
		return
	}

	h.engine.SetRadius(req.RadiusMeters)
	respondData(w, r, map[string]string{"status": "scheduled"}, start)
}

// offerResponse is the payload of GET /api/v1/search/offer.
type offerResponse struct {
	Offer bool `json:"offer"`
}

// SearchOffer reports whether the map viewport has moved far enough from the
// last search origin to make re-searching worthwhile.
func (h *Handler) SearchOffer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	lat := getFloatParam(r, "lat", 0)
	lon := getFloatParam(r, "lon", 0)
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "lat/lon out of range", nil)
		return
	}

	offer := h.engine.ShouldOfferSearchHere(models.Coordinate{Lat: lat, Lon: lon})
	respondData(w, r, &offerResponse{Offer: offer}, start)
}

// RefreshVenue re-fetches one canonical venue from the store and patches it
// into the working set, for showing fresh detail after a user edit.
func (h *Handler) RefreshVenue(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "venue id required", nil)
		return
	}

	venue, err := h.engine.RefreshVenue(r.Context(), id)
	switch {
	case errors.Is(err, canonical.ErrVenueNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "venue not found", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusBadGateway, "STORE_ERROR", "canonical store unavailable", err)
		return
	}

	respondData(w, r, venue, start)
}

// healthResponse is the payload of the health endpoints.
type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LastPassError string `json:"last_pass_error,omitempty"`
	VenueCount    int    `json:"venue_count"`
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, &healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}, time.Now())
}

// HealthReady reports readiness: the process is up and the last pass against
// the canonical store did not fail. A degraded POI provider does not affect
// readiness.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	state := h.engine.CurrentState()
	resp := &healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		VenueCount:    state.VenueCount,
	}
	status := http.StatusOK
	if state.LastError != "" {
		resp.Status = "degraded"
		resp.LastPassError = state.LastError
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   resp,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
	})
}

// WebSocket upgrades the connection and registers the client with the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "websocket service unavailable", nil)
		return
	}

	upgrader := gws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	client := websocket.NewClient(h.wsHub, conn)
	h.wsHub.Register <- client
	client.Start()
}

// checkWebSocketOrigin validates the Origin header against the configured
// CORS origins. Browsers always send Origin; its absence means a non-browser
// client and is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	if h.cfg == nil {
		return true
	}
	for _, allowed := range h.cfg.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}
