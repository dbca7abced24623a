// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/pubcompass/pubcompass/internal/canonical"
	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/models"
	"github.com/pubcompass/pubcompass/internal/rank"
	"github.com/pubcompass/pubcompass/internal/search"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type fakeEngine struct {
	venues       []models.Venue
	state        search.State
	lastErr      error
	triggered    []models.Coordinate
	triggerOK    bool
	radiusSet    float64
	refreshErr   error
	offer        bool
}

func (f *fakeEngine) TriggerSearch(origin models.Coordinate, _ float64) bool {
	f.triggered = append(f.triggered, origin)
	return f.triggerOK
}

func (f *fakeEngine) SetRadius(radiusMeters float64) { f.radiusSet = radiusMeters }

func (f *fakeEngine) CurrentVenues() []models.Venue {
	out := make([]models.Venue, len(f.venues))
	copy(out, f.venues)
	return out
}

func (f *fakeEngine) CurrentState() search.State { return f.state }

func (f *fakeEngine) LastError() error { return f.lastErr }

func (f *fakeEngine) RefreshVenue(_ context.Context, id string) (*models.Venue, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	for i := range f.venues {
		if f.venues[i].ID == id {
			v := f.venues[i].Clone()
			return &v, nil
		}
	}
	return nil, canonical.ErrVenueNotFound
}

func (f *fakeEngine) ShouldOfferSearchHere(_ models.Coordinate) bool { return f.offer }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			CORSOrigins:     []string{"*"},
			RateLimitPerMin: 1000,
		},
		Rank: config.RankConfig{
			PriceBands:        []float64{3.20, 3.90, 4.60, 5.40, 6.30},
			DynamicPriceBands: []float64{4.20, 5.10, 6.00, 7.00, 8.20},
		},
	}
}

func newTestServer(engine *fakeEngine) *httptest.Server {
	cfg := testConfig()
	handler := NewHandler(cfg, engine, rank.New(&cfg.Rank), nil)
	return httptest.NewServer(NewRouter(cfg, handler))
}

func decodeResponse(t *testing.T, resp *http.Response) *models.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding response envelope: %v", err)
	}
	return &envelope
}

func closedVenue(id string) models.Venue {
	v := models.Venue{ID: id, Name: "Closed Arms", IsClosed: true}
	return v
}

func TestVenuesReturnsWorkingSet(t *testing.T) {
	engine := &fakeEngine{
		venues: []models.Venue{
			{ID: "canonical:1", Name: "The Anchor", Location: models.Coordinate{Lat: 51.5, Lon: -0.1}},
			{ID: "osm:2", Name: "The Ship", Location: models.Coordinate{Lat: 51.51, Lon: -0.1}},
		},
		state: search.State{
			Origin:       models.Coordinate{Lat: 51.5, Lon: -0.1},
			RadiusMeters: 2000,
			Generation:   4,
			VenueCount:   2,
		},
	}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/venues")
	if err != nil {
		t.Fatalf("GET /venues: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)
	if envelope.Status != "success" {
		t.Fatalf("envelope status = %q", envelope.Status)
	}

	raw, _ := json.Marshal(envelope.Data)
	var payload venuesResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decoding venues payload: %v", err)
	}
	if len(payload.Venues) != 2 {
		t.Fatalf("venues = %d, want 2", len(payload.Venues))
	}
	// Default sort is by distance from the search origin.
	if payload.Venues[0].ID != "canonical:1" {
		t.Errorf("first venue = %s, want nearest canonical:1", payload.Venues[0].ID)
	}
	if payload.State.Generation != 4 {
		t.Errorf("state generation = %d, want 4", payload.State.Generation)
	}
}

func TestVenuesOpenOnlyFilters(t *testing.T) {
	engine := &fakeEngine{
		venues: []models.Venue{
			{ID: "canonical:1", Name: "The Anchor"},
			closedVenue("canonical:2"),
		},
	}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/venues?open_only=true")
	if err != nil {
		t.Fatalf("GET /venues: %v", err)
	}
	envelope := decodeResponse(t, resp)

	raw, _ := json.Marshal(envelope.Data)
	var payload venuesResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decoding venues payload: %v", err)
	}
	if len(payload.Venues) != 1 || payload.Venues[0].ID != "canonical:1" {
		t.Errorf("open_only returned %+v, want only canonical:1", payload.Venues)
	}
}

func TestSearchTriggersPass(t *testing.T) {
	engine := &fakeEngine{triggerOK: true, state: search.State{Generation: 7}}
	srv := newTestServer(engine)
	defer srv.Close()

	body := strings.NewReader(`{"lat": 51.5, "lon": -0.1, "radius_meters": 2500}`)
	resp, err := http.Post(srv.URL+"/api/v1/search", "application/json", body)
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)

	raw, _ := json.Marshal(envelope.Data)
	var payload searchResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decoding search payload: %v", err)
	}
	if !payload.Started {
		t.Error("started = false, want true")
	}
	if len(engine.triggered) != 1 || engine.triggered[0].Lat != 51.5 {
		t.Errorf("engine triggered with %+v", engine.triggered)
	}
}

func TestSearchRejectsBadCoordinates(t *testing.T) {
	engine := &fakeEngine{triggerOK: true}
	srv := newTestServer(engine)
	defer srv.Close()

	body := strings.NewReader(`{"lat": 123.0, "lon": -0.1}`)
	resp, err := http.Post(srv.URL+"/api/v1/search", "application/json", body)
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", envelope.Error)
	}
	if len(engine.triggered) != 0 {
		t.Error("engine triggered despite invalid coordinates")
	}
}

func TestSearchDroppedTriggerAcknowledged(t *testing.T) {
	engine := &fakeEngine{triggerOK: false}
	srv := newTestServer(engine)
	defer srv.Close()

	body := strings.NewReader(`{"lat": 51.5, "lon": -0.1}`)
	resp, err := http.Post(srv.URL+"/api/v1/search", "application/json", body)
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: dropped triggers are not errors", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)

	raw, _ := json.Marshal(envelope.Data)
	var payload searchResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decoding search payload: %v", err)
	}
	if payload.Started {
		t.Error("started = true for dropped trigger")
	}
}

func TestRadiusSchedulesDebouncedSearch(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(engine)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/search/radius",
		strings.NewReader(`{"radius_meters": 4200}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /search/radius: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	if engine.radiusSet != 4200 {
		t.Errorf("engine radius = %v, want 4200", engine.radiusSet)
	}
}

func TestRefreshVenueNotFound(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/venues/canonical:404/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /refresh: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshVenueReturnsFreshRecord(t *testing.T) {
	engine := &fakeEngine{venues: []models.Venue{
		{ID: "canonical:1", Name: "The Anchor", Address: "1 High St"},
	}}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/venues/canonical:1/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /refresh: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)

	raw, _ := json.Marshal(envelope.Data)
	var venue models.Venue
	if err := json.Unmarshal(raw, &venue); err != nil {
		t.Fatalf("decoding venue payload: %v", err)
	}
	if venue.ID != "canonical:1" || venue.Name != "The Anchor" {
		t.Errorf("refreshed venue = %+v", venue)
	}
}

func TestRefreshVenueStoreDown(t *testing.T) {
	engine := &fakeEngine{refreshErr: canonical.ErrStoreUnavailable}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/venues/canonical:1/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /refresh: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthReadyDegradedAfterPassFailure(t *testing.T) {
	engine := &fakeEngine{state: search.State{LastError: "canonical store unavailable", VenueCount: 3}}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health/ready")
	if err != nil {
		t.Fatalf("GET /health/ready: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)

	raw, _ := json.Marshal(envelope.Data)
	var payload healthResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decoding health payload: %v", err)
	}
	if payload.Status != "degraded" || payload.LastPassError == "" {
		t.Errorf("health payload = %+v, want degraded with error", payload)
	}
}

func TestHealthLive(t *testing.T) {
	srv := newTestServer(&fakeEngine{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health/live")
	if err != nil {
		t.Fatalf("GET /health/live: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSearchOffer(t *testing.T) {
	engine := &fakeEngine{offer: true}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/search/offer?lat=51.52&lon=-0.11")
	if err != nil {
		t.Fatalf("GET /search/offer: %v", err)
	}
	envelope := decodeResponse(t, resp)

	raw, _ := json.Marshal(envelope.Data)
	var payload offerResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decoding offer payload: %v", err)
	}
	if !payload.Offer {
		t.Error("offer = false, want true")
	}
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	srv := newTestServer(&fakeEngine{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/venues", nil)
	req.Header.Set("X-Request-ID", "upstream-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /venues: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "upstream-42" {
		t.Errorf("X-Request-ID = %q, want upstream-42", got)
	}
}
