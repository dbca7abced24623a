// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package search coordinates reconciliation passes over the canonical store
// and the POI provider, and owns the working set the HTTP surface reads.
//
// Concurrency model: at most one pass runs at a time. A trigger arriving
// while a pass is in flight is dropped, not queued; the map UI re-triggers
// on its next interaction, so queued passes would only replay stale
// viewports. Every state transition is guarded by one mutex, and each pass
// carries a generation token checked before any write to the working set so
// a slow pass can never clobber a newer one.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/geo"
	"github.com/pubcompass/pubcompass/internal/geocode"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/metrics"
	"github.com/pubcompass/pubcompass/internal/models"
	"github.com/pubcompass/pubcompass/internal/poi"
	"github.com/pubcompass/pubcompass/internal/reconcile"
)

// TopicSearchResults is the event-bus topic carrying one models.SearchResult
// per completed pass.
const TopicSearchResults = "search.results"

// passTimeout bounds one full reconciliation pass end to end.
const passTimeout = 45 * time.Second

// CanonicalStore is the slice of the canonical client the orchestrator uses.
type CanonicalStore interface {
	FindVenuesInRadius(ctx context.Context, center models.Coordinate, radiusMeters float64) ([]models.Venue, error)
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	ListClosureOverrides(ctx context.Context) (*models.OverrideTables, error)
}

// POISearcher is the slice of the POI client the orchestrator uses.
type POISearcher interface {
	Search(ctx context.Context, box geo.BoundingBox) (*poi.Result, error)
	Categories() []string
}

// RatingsSource supplies per-venue rating summaries. Implementations must
// tolerate being called with any ID set; a nil map is a valid answer.
type RatingsSource interface {
	FetchSummaries(ctx context.Context, venueIDs []string) (map[string]models.RatingSummary, error)
}

// Enricher receives the venues of a committed pass that still need
// addresses.
type Enricher interface {
	Schedule(generation uint64, venues []models.Venue) int
}

// State is a point-in-time snapshot of the orchestrator, for the status
// endpoint and handlers.
type State struct {
	Origin       models.Coordinate `json:"origin"`
	RadiusMeters float64           `json:"radius_meters"`
	Generation   uint64            `json:"generation"`
	InFlight     bool              `json:"in_flight"`
	VenueCount   int               `json:"venue_count"`
	LastError    string            `json:"last_error,omitempty"`
	LastPassAt   time.Time         `json:"last_pass_at"`
}

// Orchestrator runs reconciliation passes and owns the working set.
type Orchestrator struct {
	cfg       config.SearchConfig
	canonical CanonicalStore
	pois      POISearcher
	ratings   RatingsSource
	enricher  Enricher
	publisher message.Publisher

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	origin     models.Coordinate
	radius     float64
	workingSet []models.Venue
	overrides  *models.OverrideTables
	generation uint64
	inFlight   bool
	lastErr    error
	lastPassAt time.Time

	// debounce coalesces rapid radius changes into one trigger.
	debounceTimer *time.Timer
	pendingRadius float64
}

// NewOrchestrator wires an orchestrator. ratings and enricher may be nil.
func NewOrchestrator(cfg config.SearchConfig, store CanonicalStore, pois POISearcher,
	ratings RatingsSource, enricher Enricher, publisher message.Publisher) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:       cfg,
		canonical: store,
		pois:      pois,
		ratings:   ratings,
		enricher:  enricher,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
		origin:    models.Coordinate{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon},
		radius:    cfg.DefaultRadiusMeters,
	}
}

// SetEnricher attaches the enrichment scheduler after construction. The
// scheduler patches addresses back through the orchestrator, so the two are
// wired in two steps. Must be called before the first pass.
func (o *Orchestrator) SetEnricher(e Enricher) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enricher = e
}

// Close aborts any in-flight pass and stops pending debounce timers.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
		o.debounceTimer = nil
	}
	o.mu.Unlock()
	o.cancel()
}

// TriggerSearch starts a pass for the given origin and radius. It reports
// whether a pass was actually started: a trigger arriving while another pass
// is in flight is dropped. The radius is clamped to the configured maximum.
func (o *Orchestrator) TriggerSearch(origin models.Coordinate, radiusMeters float64) bool {
	if radiusMeters <= 0 {
		radiusMeters = o.cfg.DefaultRadiusMeters
	}
	if radiusMeters > o.cfg.MaxRadiusMeters {
		radiusMeters = o.cfg.MaxRadiusMeters
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		metrics.SearchTriggersDropped.Inc()
		logging.Debug().Msg("search trigger dropped, pass already in flight")
		return false
	}
	o.inFlight = true
	o.generation++
	gen := o.generation
	o.mu.Unlock()

	go o.runPass(gen, origin, radiusMeters)
	return true
}

// SetRadius records a radius change and schedules a search after the
// debounce interval, coalescing a burst of slider moves into one pass at the
// last requested value.
func (o *Orchestrator) SetRadius(radiusMeters float64) {
	if radiusMeters <= 0 {
		return
	}
	if radiusMeters > o.cfg.MaxRadiusMeters {
		radiusMeters = o.cfg.MaxRadiusMeters
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.pendingRadius = radiusMeters
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
	}
	o.debounceTimer = time.AfterFunc(o.cfg.DebounceInterval, func() {
		o.mu.Lock()
		radius := o.pendingRadius
		origin := o.origin
		o.debounceTimer = nil
		o.mu.Unlock()
		o.TriggerSearch(origin, radius)
	})
}

// ShouldOfferSearchHere reports whether the map has moved far enough from
// the current search origin that re-searching would change the results. The
// threshold is a fraction of the current radius.
func (o *Orchestrator) ShouldOfferSearchHere(pt models.Coordinate) bool {
	o.mu.Lock()
	origin := o.origin
	radius := o.radius
	o.mu.Unlock()
	return geo.DistanceMeters(origin, pt) > o.cfg.MapMoveFraction*radius
}

// CurrentVenues returns a copy of the working set. Callers may sort and
// filter it freely.
func (o *Orchestrator) CurrentVenues() []models.Venue {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Venue, len(o.workingSet))
	for i := range o.workingSet {
		out[i] = o.workingSet[i].Clone()
	}
	return out
}

// CurrentState returns a snapshot of orchestrator state.
func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := State{
		Origin:       o.origin,
		RadiusMeters: o.radius,
		Generation:   o.generation,
		InFlight:     o.inFlight,
		VenueCount:   len(o.workingSet),
		LastPassAt:   o.lastPassAt,
	}
	if o.lastErr != nil {
		s.LastError = o.lastErr.Error()
	}
	return s
}

// LastError returns the error of the most recent failed pass, or nil after a
// successful one.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// ApplyAddress patches a resolved address onto the working-set venue with
// the given ID. The patch is discarded when the working set has been
// replaced since the enrichment was scheduled, or when the venue has left
// the set. Implements the enrichment Patcher.
func (o *Orchestrator) ApplyAddress(generation uint64, venueID string, res *geocode.Result) bool {
	if res == nil || res.Address == "" {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if generation != o.generation {
		return false
	}
	for i := range o.workingSet {
		if o.workingSet[i].ID != venueID {
			continue
		}
		o.workingSet[i].Address = res.Address
		if res.CountryCode != "" {
			o.workingSet[i].CountryCode = res.CountryCode
			o.workingSet[i].CountryName = res.CountryName
		}
		return true
	}
	return false
}

// RefreshVenue re-fetches a single canonical venue and replaces it in the
// working set, re-applying the current moderation overrides. Only canonical
// venues can be refreshed; external venues change only through a full pass.
func (o *Orchestrator) RefreshVenue(ctx context.Context, id string) (*models.Venue, error) {
	o.mu.Lock()
	gen := o.generation
	overrides := o.overrides
	o.mu.Unlock()

	fresh, err := o.canonical.GetVenue(ctx, id)
	if err != nil {
		return nil, err
	}
	resolveCanonicalOverrides(fresh, overrides)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		// A pass completed while the fetch was in flight; its working set
		// already reflects the store. Return the fresh venue but leave the
		// newer set alone.
		return fresh, nil
	}
	for i := range o.workingSet {
		if o.workingSet[i].ID == fresh.ID {
			o.workingSet[i] = *fresh
			break
		}
	}
	return fresh, nil
}

// runPass executes one reconciliation pass and commits or reports it under
// the generation token it was started with.
func (o *Orchestrator) runPass(gen uint64, origin models.Coordinate, radiusMeters float64) {
	start := time.Now()
	passID := uuid.NewString()
	log := logging.With().
		Str("pass_id", passID).
		Uint64("generation", gen).
		Float64("radius_m", radiusMeters).
		Logger()

	ctx, cancel := context.WithTimeout(o.ctx, passTimeout)
	defer cancel()

	var (
		wg            sync.WaitGroup
		canonicalSet  []models.Venue
		canonicalErr  error
		overrides     *models.OverrideTables
		overridesErr  error
		poiResult     *poi.Result
		poiErr        error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		canonicalSet, canonicalErr = o.canonical.FindVenuesInRadius(ctx, origin, radiusMeters)
	}()
	go func() {
		defer wg.Done()
		overrides, overridesErr = o.canonical.ListClosureOverrides(ctx)
	}()
	go func() {
		defer wg.Done()
		box := geo.BoundingBoxAround(origin, radiusMeters)
		poiResult, poiErr = o.pois.Search(ctx, box)
	}()
	wg.Wait()

	// The canonical store is the source of truth: either fetch failing is
	// fatal to the pass. The previous working set stays untouched.
	if canonicalErr != nil {
		o.failPass(gen, passID, origin, radiusMeters, canonicalErr, start, log)
		return
	}
	if overridesErr != nil {
		o.failPass(gen, passID, origin, radiusMeters, overridesErr, start, log)
		return
	}

	// The POI provider degrades: a transport-level failure counts as every
	// category failing, and the pass proceeds canonical-only.
	var external []models.Venue
	var degraded []string
	truncated := false
	if poiErr != nil {
		log.Warn().Err(poiErr).Msg("poi search failed, continuing canonical-only")
		degraded = append(degraded, o.pois.Categories()...)
	} else {
		external = poiResult.Venues
		degraded = poiResult.FailedCategories
		truncated = poiResult.Truncated
	}

	merged := reconcile.Merge(reconcile.Input{
		Origin:       origin,
		RadiusMeters: radiusMeters,
		Canonical:    canonicalSet,
		External:     external,
		Overrides:    overrides,
		Ratings:      o.fetchRatings(ctx, canonicalSet, external, log),
	}, reconcile.Options{
		DuplicateRadiusMeters: o.cfg.DuplicateRadiusMeters,
	})

	committed := o.commitPass(gen, origin, radiusMeters, merged, overrides)
	if !committed {
		log.Warn().Msg("pass result discarded, generation moved on")
		metrics.SearchPassesTotal.WithLabelValues("stale").Inc()
		return
	}

	o.mu.Lock()
	enricher := o.enricher
	o.mu.Unlock()
	if enricher != nil {
		enricher.Schedule(gen, merged)
	}

	metrics.SearchPassesTotal.WithLabelValues("success").Inc()
	metrics.SearchPassDuration.Observe(time.Since(start).Seconds())
	metrics.WorkingSetSize.Set(float64(len(merged)))
	log.Info().
		Int("venues", len(merged)).
		Int("canonical", len(canonicalSet)).
		Int("external", len(external)).
		Bool("truncated", truncated).
		Strs("degraded", degraded).
		Dur("elapsed", time.Since(start)).
		Msg("reconciliation pass committed")

	o.publish(models.SearchResult{
		Generation:         gen,
		PassID:             passID,
		Origin:             origin,
		RadiusMeters:       radiusMeters,
		Venues:             merged,
		Truncated:          truncated,
		DegradedCategories: degraded,
		CompletedAt:        time.Now().UTC(),
	})
}

// fetchRatings joins the collaborator's summaries; any failure degrades to
// unrated venues.
func (o *Orchestrator) fetchRatings(ctx context.Context, canonicalSet, external []models.Venue, log zerolog.Logger) map[string]models.RatingSummary {
	if o.ratings == nil {
		return nil
	}
	ids := make([]string, 0, len(canonicalSet)+len(external))
	for i := range canonicalSet {
		ids = append(ids, canonicalSet[i].ID)
	}
	for i := range external {
		ids = append(ids, external[i].ID)
	}
	summaries, err := o.ratings.FetchSummaries(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("ratings fetch failed, venues will be unrated")
		return nil
	}
	return summaries
}

// commitPass installs the merged working set if the generation still
// matches, replacing the previous set atomically.
func (o *Orchestrator) commitPass(gen uint64, origin models.Coordinate, radiusMeters float64,
	merged []models.Venue, overrides *models.OverrideTables) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation {
		return false
	}
	o.origin = origin
	o.radius = radiusMeters
	o.workingSet = merged
	o.overrides = overrides
	o.lastErr = nil
	o.lastPassAt = time.Now()
	o.inFlight = false
	return true
}

// failPass records a pass failure, keeping the previous working set intact,
// and publishes the failure so clients can surface it.
func (o *Orchestrator) failPass(gen uint64, passID string, origin models.Coordinate,
	radiusMeters float64, err error, start time.Time, log zerolog.Logger) {
	metrics.CanonicalFetchErrors.Inc()
	metrics.SearchPassesTotal.WithLabelValues("error").Inc()
	metrics.SearchPassDuration.Observe(time.Since(start).Seconds())
	log.Error().Err(err).Msg("reconciliation pass failed")

	o.mu.Lock()
	if gen == o.generation {
		o.lastErr = err
		o.lastPassAt = time.Now()
		o.inFlight = false
	}
	o.mu.Unlock()

	o.publish(models.SearchResult{
		Generation:   gen,
		PassID:       passID,
		Origin:       origin,
		RadiusMeters: radiusMeters,
		Err:          err.Error(),
		CompletedAt:  time.Now().UTC(),
	})
}

// publish emits a pass result on the event bus. Publish failures are logged
// and dropped; the committed working set is already authoritative.
func (o *Orchestrator) publish(result models.SearchResult) {
	if o.publisher == nil {
		return
	}
	payload, err := json.Marshal(&result)
	if err != nil {
		logging.Error().Err(err).Msg("encoding search result for bus")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := o.publisher.Publish(TopicSearchResults, msg); err != nil {
		logging.Error().Err(err).Msg("publishing search result")
	}
}

// resolveCanonicalOverrides applies the moderation side-tables to a single
// canonical venue, mirroring what the merge does for full passes.
func resolveCanonicalOverrides(v *models.Venue, overrides *models.OverrideTables) {
	if v == nil {
		return
	}
	v.Name = overrides.NameFor(v.ID, v.Name)
	if overrides.CanonicalClosed(v.ID) {
		v.IsClosed = true
	}
}
