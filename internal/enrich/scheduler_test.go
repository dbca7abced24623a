// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package enrich

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pubcompass/pubcompass/internal/geocode"
	"github.com/pubcompass/pubcompass/internal/models"
)

type recordingProvider struct {
	mu    sync.Mutex
	calls []time.Time
	res   *geocode.Result
	err   error
}

func (p *recordingProvider) ReverseGeocode(_ context.Context, _, _ float64) (*geocode.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, time.Now())
	p.mu.Unlock()
	return p.res, p.err
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) callTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Time, len(p.calls))
	copy(out, p.calls)
	return out
}

type recordingPatcher struct {
	mu      sync.Mutex
	applied []string
	accept  bool
}

func (p *recordingPatcher) ApplyAddress(_ uint64, venueID string, _ *geocode.Result) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied = append(p.applied, venueID)
	return p.accept
}

func (p *recordingPatcher) appliedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.applied))
	copy(out, p.applied)
	return out
}

func pendingVenue(id string) models.Venue {
	return models.Venue{
		ID:       id,
		Name:     "Test Arms",
		Address:  models.AddressPending,
		Location: models.Coordinate{Lat: 51.5, Lon: -0.1},
		Source:   models.SourceExternal,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduleSkipsVenuesWithAddresses(t *testing.T) {
	s := NewScheduler(&recordingProvider{}, &recordingPatcher{}, time.Millisecond)
	venues := []models.Venue{
		pendingVenue("osm:1"),
		{ID: "canonical:2", Name: "The Crown", Address: "1 High St", Source: models.SourceCanonical},
		{ID: "osm:3", Name: "The Ship", Address: "2 Quay Rd", Source: models.SourceExternal},
	}
	if got := s.Schedule(7, venues); got != 1 {
		t.Fatalf("Schedule enqueued %d, want 1", got)
	}
}

func TestScheduleDeduplicatesPendingVenues(t *testing.T) {
	s := NewScheduler(&recordingProvider{}, &recordingPatcher{}, time.Millisecond)
	venues := []models.Venue{pendingVenue("osm:1")}
	if got := s.Schedule(1, venues); got != 1 {
		t.Fatalf("first Schedule enqueued %d, want 1", got)
	}
	if got := s.Schedule(2, venues); got != 0 {
		t.Fatalf("second Schedule enqueued %d, want 0 while still pending", got)
	}
	if got := s.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d, want 1", got)
	}
}

func TestServeStaggersDispatches(t *testing.T) {
	provider := &recordingProvider{res: &geocode.Result{Address: "3 Mill Ln"}}
	patcher := &recordingPatcher{accept: true}
	stagger := 50 * time.Millisecond
	s := NewScheduler(provider, patcher, stagger)

	venues := []models.Venue{pendingVenue("osm:1"), pendingVenue("osm:2"), pendingVenue("osm:3")}
	if got := s.Schedule(1, venues); got != 3 {
		t.Fatalf("Schedule enqueued %d, want 3", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Serve(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool { return len(provider.callTimes()) == 3 })
	cancel()
	<-done

	calls := provider.callTimes()
	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		// Allow a small tolerance for timer slop.
		if gap < stagger-5*time.Millisecond {
			t.Errorf("dispatch gap %d->%d = %v, want >= %v", i-1, i, gap, stagger)
		}
	}

	if got := s.PendingCount(); got != 0 {
		t.Errorf("PendingCount after completion = %d, want 0", got)
	}
	if got := patcher.appliedIDs(); len(got) != 3 {
		t.Errorf("patched %d venues, want 3", len(got))
	}
}

func TestDispatchFailureIsSilentAndClearsPending(t *testing.T) {
	provider := &recordingProvider{err: context.DeadlineExceeded}
	patcher := &recordingPatcher{accept: true}
	s := NewScheduler(provider, patcher, time.Millisecond)

	if got := s.Schedule(1, []models.Venue{pendingVenue("osm:1")}); got != 1 {
		t.Fatalf("Schedule enqueued %d, want 1", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	waitFor(t, time.Second, func() bool { return s.PendingCount() == 0 })

	if got := patcher.appliedIDs(); len(got) != 0 {
		t.Errorf("patched %d venues after provider failure, want 0", len(got))
	}

	// The venue is eligible for scheduling again on a later pass.
	if got := s.Schedule(2, []models.Venue{pendingVenue("osm:1")}); got != 1 {
		t.Errorf("re-Schedule enqueued %d, want 1", got)
	}
}

func TestDispatchNoResultSkipsPatch(t *testing.T) {
	provider := &recordingProvider{res: nil, err: nil}
	patcher := &recordingPatcher{accept: true}
	s := NewScheduler(provider, patcher, time.Millisecond)

	s.Schedule(1, []models.Venue{pendingVenue("osm:1")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	waitFor(t, time.Second, func() bool { return s.PendingCount() == 0 })

	if got := patcher.appliedIDs(); len(got) != 0 {
		t.Errorf("patched %d venues for empty geocode answer, want 0", len(got))
	}
}
