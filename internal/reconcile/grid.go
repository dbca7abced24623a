// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package reconcile

import (
	"math"

	"github.com/pubcompass/pubcompass/internal/geo"
	"github.com/pubcompass/pubcompass/internal/models"
)

// metersPerDegree approximates one degree of latitude.
const metersPerDegree = 111320.0

// cellKey is a grid cell coordinate.
type cellKey struct {
	x, y int
}

// venueGrid buckets venues into cells sized to the duplicate radius so
// duplicate candidates are found by checking the 3x3 cell neighborhood
// instead of scanning every canonical venue.
type venueGrid struct {
	cells    map[cellKey][]*models.Venue
	cellSize float64 // degrees
}

// newVenueGrid creates a grid with cells at least cellMeters wide.
func newVenueGrid(cellMeters float64) *venueGrid {
	if cellMeters <= 0 {
		cellMeters = 50
	}
	return &venueGrid{
		cells:    make(map[cellKey][]*models.Venue),
		cellSize: cellMeters / metersPerDegree,
	}
}

func (g *venueGrid) keyFor(c models.Coordinate) cellKey {
	return cellKey{
		x: int(math.Floor(c.Lon / g.cellSize)),
		y: int(math.Floor(c.Lat / g.cellSize)),
	}
}

// insert adds a venue to its cell.
func (g *venueGrid) insert(v *models.Venue) {
	key := g.keyFor(v.Location)
	g.cells[key] = append(g.cells[key], v)
}

// nearby returns every inserted venue within radiusMeters of c. Cells are
// sized to the radius, so only the 3x3 neighborhood needs checking. The
// longitude cell width shrinks away from the equator; widening the x scan by
// the latitude correction keeps neighbors from being missed at high
// latitudes.
func (g *venueGrid) nearby(c models.Coordinate, radiusMeters float64) []*models.Venue {
	center := g.keyFor(c)

	xSpan := 1
	if cosLat := math.Cos(c.Lat * math.Pi / 180); cosLat > 1e-6 {
		xSpan = int(math.Ceil(1 / cosLat))
	} else {
		xSpan = 180 // polar degenerate case, scan broadly
	}

	var out []*models.Venue
	for dy := -1; dy <= 1; dy++ {
		for dx := -xSpan; dx <= xSpan; dx++ {
			key := cellKey{x: center.x + dx, y: center.y + dy}
			for _, v := range g.cells[key] {
				if geo.DistanceMeters(c, v.Location) < radiusMeters {
					out = append(out, v)
				}
			}
		}
	}
	return out
}
