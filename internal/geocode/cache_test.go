// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package geocode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingProvider struct {
	mu     sync.Mutex
	calls  int
	result *Result
	err    error
}

func (p *countingProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result, p.err
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestCache(t *testing.T, inner Provider) *CachedProvider {
	t.Helper()
	cache, err := NewCachedProvider(inner, "", time.Hour)
	if err != nil {
		t.Fatalf("NewCachedProvider: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCachedProviderServesRepeatLookupsFromCache(t *testing.T) {
	inner := &countingProvider{result: &Result{Address: "1 Mill Lane", CountryCode: "GB"}}
	cache := newTestCache(t, inner)

	for range 3 {
		result, err := cache.ReverseGeocode(context.Background(), 51.5, -0.1)
		if err != nil {
			t.Fatalf("ReverseGeocode: %v", err)
		}
		if result == nil || result.Address != "1 Mill Lane" {
			t.Fatalf("result = %+v", result)
		}
	}

	if got := inner.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestCachedProviderDistinctCoordinatesMiss(t *testing.T) {
	inner := &countingProvider{result: &Result{Address: "somewhere"}}
	cache := newTestCache(t, inner)

	if _, err := cache.ReverseGeocode(context.Background(), 51.5, -0.1); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.ReverseGeocode(context.Background(), 51.6, -0.1); err != nil {
		t.Fatal(err)
	}

	if got := inner.callCount(); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
}

func TestCachedProviderCachesNoResultAnswers(t *testing.T) {
	inner := &countingProvider{result: nil}
	cache := newTestCache(t, inner)

	for range 2 {
		result, err := cache.ReverseGeocode(context.Background(), 0, 0)
		if err != nil {
			t.Fatalf("ReverseGeocode: %v", err)
		}
		if result != nil {
			t.Fatalf("result = %+v, want nil", result)
		}
	}

	if got := inner.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1: no-result answers must be cached", got)
	}
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{err: errors.New("provider down")}
	cache := newTestCache(t, inner)

	for range 2 {
		if _, err := cache.ReverseGeocode(context.Background(), 51.5, -0.1); err == nil {
			t.Fatal("expected provider error to surface")
		}
	}

	if got := inner.callCount(); got != 2 {
		t.Errorf("provider calls = %d, want 2: errors must not be cached", got)
	}
}

func TestCachedProviderName(t *testing.T) {
	cache := newTestCache(t, &countingProvider{})
	if cache.Name() != "counting" {
		t.Errorf("Name = %q", cache.Name())
	}
}
