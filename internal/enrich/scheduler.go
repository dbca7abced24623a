// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package enrich backfills missing venue addresses via reverse geocoding.
// Lookups are staggered by a fixed interval to stay under the geocoding
// provider's rate limit; the spacing is a scheduling policy, not a
// correctness requirement. Failures are silent and never retried within the
// same pass.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/pubcompass/pubcompass/internal/geocode"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/metrics"
	"github.com/pubcompass/pubcompass/internal/models"
)

// Patcher applies a resolved address back onto the working set. The
// implementation must discard the patch when the working-set generation has
// moved on; ApplyAddress reports whether the patch landed.
type Patcher interface {
	ApplyAddress(generation uint64, venueID string, res *geocode.Result) bool
}

// task is one queued reverse-geocode lookup.
type task struct {
	generation uint64
	venueID    string
	location   models.Coordinate
}

// Scheduler is the staggered delay queue for enrichment lookups. It runs as
// a supervised service: Schedule enqueues work, Serve dispatches it with a
// minimum spacing between lookups.
type Scheduler struct {
	provider geocode.Provider
	patcher  Patcher
	stagger  time.Duration

	mu      sync.Mutex
	pending map[string]struct{}

	queue chan task
}

// NewScheduler creates a scheduler dispatching at most one lookup per
// stagger interval.
func NewScheduler(provider geocode.Provider, patcher Patcher, stagger time.Duration) *Scheduler {
	if stagger <= 0 {
		stagger = 200 * time.Millisecond
	}
	return &Scheduler{
		provider: provider,
		patcher:  patcher,
		stagger:  stagger,
		pending:  make(map[string]struct{}),
		queue:    make(chan task, 1024),
	}
}

// Schedule enqueues every venue missing a usable address, skipping venues
// already pending. Returns the number of lookups enqueued. A venue is never
// scheduled twice concurrently; its pending entry clears when the lookup
// completes, success or failure.
func (s *Scheduler) Schedule(generation uint64, venues []models.Venue) int {
	enqueued := 0
	for i := range venues {
		v := &venues[i]
		if !v.NeedsAddress() {
			continue
		}
		if !s.markPending(v.ID) {
			continue
		}

		select {
		case s.queue <- task{generation: generation, venueID: v.ID, location: v.Location}:
			enqueued++
		default:
			// Queue full: skip this venue for the pass rather than block the
			// orchestrator. A later pass will pick it up again.
			s.clearPending(v.ID)
			logging.Debug().Str("venue", v.ID).Msg("enrichment queue full, skipping venue")
		}
	}
	if enqueued > 0 {
		logging.Debug().Int("enqueued", enqueued).Msg("scheduled enrichment lookups")
	}
	return enqueued
}

// PendingCount returns the number of venues awaiting enrichment.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Serve implements suture.Service. It dispatches queued lookups one at a
// time, waiting the stagger interval between dispatches, until the context
// is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-s.queue:
			s.dispatch(ctx, t)

			// Minimum spacing between dispatches. The lookup itself only
			// lengthens the gap, never shortens it.
			timer.Reset(s.stagger)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Scheduler) String() string {
	return "enrichment-scheduler"
}

func (s *Scheduler) dispatch(ctx context.Context, t task) {
	defer s.clearPending(t.venueID)

	res, err := s.provider.ReverseGeocode(ctx, t.location.Lat, t.location.Lon)
	switch {
	case err != nil:
		// Silently dropped per venue; never surfaced, never retried within
		// the pass.
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		logging.Debug().Err(err).Str("venue", t.venueID).Msg("reverse geocode failed")
		return
	case res == nil || res.Address == "":
		metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return
	}
	metrics.GeocodeRequests.WithLabelValues("success").Inc()

	if s.patcher.ApplyAddress(t.generation, t.venueID, res) {
		metrics.EnrichmentPatches.Inc()
	} else {
		metrics.EnrichmentStalePatches.Inc()
	}
}

func (s *Scheduler) markPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[id]; exists {
		return false
	}
	s.pending[id] = struct{}{}
	return true
}

func (s *Scheduler) clearPending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}
