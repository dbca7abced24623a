// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package reconcile

import (
	"testing"

	"github.com/pubcompass/pubcompass/internal/models"
)

func TestVenueGrid_NearbyFindsCloseVenues(t *testing.T) {
	grid := newVenueGrid(50)

	close := &models.Venue{ID: "a", Location: models.Coordinate{Lat: 51.5000, Lon: -0.1000}}
	far := &models.Venue{ID: "b", Location: models.Coordinate{Lat: 51.5100, Lon: -0.1000}}
	grid.insert(close)
	grid.insert(far)

	got := grid.nearby(models.Coordinate{Lat: 51.5001, Lon: -0.1001}, 50)

	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("Expected only the close venue, got %+v", got)
	}
}

func TestVenueGrid_NearbyAcrossCellBoundary(t *testing.T) {
	grid := newVenueGrid(50)

	// Two points a few meters apart that straddle a cell boundary still
	// find each other via the neighborhood scan.
	a := &models.Venue{ID: "a", Location: models.Coordinate{Lat: 51.50002, Lon: -0.10}}
	grid.insert(a)

	got := grid.nearby(models.Coordinate{Lat: 51.49998, Lon: -0.10}, 50)
	if len(got) != 1 {
		t.Errorf("Expected neighbor across cell boundary, got %d", len(got))
	}
}

func TestVenueGrid_HighLatitude(t *testing.T) {
	grid := newVenueGrid(50)

	// At 70°N one longitude degree is only ~38km; the widened x scan must
	// still find a venue ~30m away.
	a := &models.Venue{ID: "a", Location: models.Coordinate{Lat: 70.0, Lon: 25.0005}}
	grid.insert(a)

	got := grid.nearby(models.Coordinate{Lat: 70.0, Lon: 25.0}, 50)
	if len(got) != 1 {
		t.Errorf("Expected high-latitude neighbor found, got %d", len(got))
	}
}
