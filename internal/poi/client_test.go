// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package poi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/geo"
)

func testBox() geo.BoundingBox {
	return geo.BoundingBox{North: 51.52, South: 51.48, East: -0.08, West: -0.12}
}

func placeJSON(id int64, name string, lat, lon float64) string {
	return fmt.Sprintf(`{"id": %d, "name": %q, "lat": %f, "lon": %f}`, id, name, lat, lon)
}

func TestSearchFansOutPerCategory(t *testing.T) {
	var mu sync.Mutex
	seenCategories := map[string]bool{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		mu.Lock()
		seenCategories[category] = true
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch category {
		case "pub":
			fmt.Fprintf(w, `{"places": [%s]}`, placeJSON(1, "The Anchor", 51.5, -0.1))
		case "bar":
			fmt.Fprintf(w, `{"places": [%s]}`, placeJSON(2, "Neon Bar", 51.51, -0.11))
		default:
			fmt.Fprint(w, `{"places": []}`)
		}
	}))
	defer srv.Close()

	client := NewClient(&config.POIConfig{
		BaseURL:          srv.URL,
		Categories:       []string{"pub", "bar", "brewery"},
		PerCategoryLimit: 200,
	})

	result, err := client.Search(context.Background(), testBox())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	for _, category := range []string{"pub", "bar", "brewery"} {
		if !seenCategories[category] {
			t.Errorf("category %q never queried", category)
		}
	}
	if len(result.Venues) != 2 {
		t.Fatalf("venues = %d, want 2", len(result.Venues))
	}
	if result.Truncated || len(result.FailedCategories) != 0 {
		t.Errorf("unexpected flags: truncated=%v failed=%v", result.Truncated, result.FailedCategories)
	}
	for _, v := range result.Venues {
		if v.ID != "osm:1" && v.ID != "osm:2" {
			t.Errorf("unexpected venue ID %s", v.ID)
		}
	}
}

func TestSearchOneCategoryFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("category") == "bar" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"places": [%s]}`, placeJSON(1, "The Anchor", 51.5, -0.1))
	}))
	defer srv.Close()

	client := NewClient(&config.POIConfig{
		BaseURL:          srv.URL,
		Categories:       []string{"pub", "bar"},
		PerCategoryLimit: 200,
	})

	result, err := client.Search(context.Background(), testBox())
	if err != nil {
		t.Fatalf("Search must not fail on a single category: %v", err)
	}
	if len(result.Venues) != 1 {
		t.Errorf("venues = %d, want 1 from the surviving category", len(result.Venues))
	}
	if !reflect.DeepEqual(result.FailedCategories, []string{"bar"}) {
		t.Errorf("FailedCategories = %v, want [bar]", result.FailedCategories)
	}
	if result.AllFailed(2) {
		t.Error("AllFailed reported true with one surviving category")
	}
}

func TestSearchAllCategoriesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(&config.POIConfig{
		BaseURL:          srv.URL,
		Categories:       []string{"pub", "bar"},
		PerCategoryLimit: 200,
	})

	result, err := client.Search(context.Background(), testBox())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !result.AllFailed(2) {
		t.Errorf("AllFailed = false, failed=%v", result.FailedCategories)
	}
	if len(result.Venues) != 0 {
		t.Errorf("venues = %d, want 0", len(result.Venues))
	}
}

func TestSearchDeduplicatesAcrossCategories(t *testing.T) {
	// The same provider record tagged both pub and bar must appear once.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"places": [%s]}`, placeJSON(7, "The Dual Tap", 51.5, -0.1))
	}))
	defer srv.Close()

	client := NewClient(&config.POIConfig{
		BaseURL:          srv.URL,
		Categories:       []string{"pub", "bar"},
		PerCategoryLimit: 200,
	})

	result, err := client.Search(context.Background(), testBox())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Venues) != 1 {
		t.Fatalf("venues = %d, want 1 after dedupe", len(result.Venues))
	}
	if result.Venues[0].ID != "osm:7" {
		t.Errorf("venue ID = %s", result.Venues[0].ID)
	}
}

func TestSearchSetsTruncatedAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"places": [%s, %s]}`,
			placeJSON(1, "One", 51.5, -0.1),
			placeJSON(2, "Two", 51.51, -0.11))
	}))
	defer srv.Close()

	client := NewClient(&config.POIConfig{
		BaseURL:          srv.URL,
		Categories:       []string{"pub"},
		PerCategoryLimit: 2,
	})

	result, err := client.Search(context.Background(), testBox())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !result.Truncated {
		t.Error("Truncated = false when category returned exactly the cap")
	}
}

func TestSearchDiscardsNamelessPlaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"places": [{"id": 1, "lat": 51.5, "lon": -0.1}, %s]}`,
			placeJSON(2, "The Named", 51.5, -0.1))
	}))
	defer srv.Close()

	client := NewClient(&config.POIConfig{
		BaseURL:          srv.URL,
		Categories:       []string{"pub"},
		PerCategoryLimit: 200,
	})

	result, err := client.Search(context.Background(), testBox())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Venues) != 1 || result.Venues[0].ID != "osm:2" {
		t.Errorf("venues = %+v, want only osm:2", result.Venues)
	}
}
