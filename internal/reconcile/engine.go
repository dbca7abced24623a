// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package reconcile merges canonical-store and external-POI result sets into
// one deduplicated, radius-clipped venue list. The merge is a pure function
// over its inputs; it holds no state between passes.
package reconcile

import (
	"sort"

	"github.com/pubcompass/pubcompass/internal/geo"
	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/metrics"
	"github.com/pubcompass/pubcompass/internal/models"
)

// DefaultDuplicateRadiusMeters is the spatial-duplicate distance threshold.
const DefaultDuplicateRadiusMeters = 50.0

// Input carries everything one merge needs.
type Input struct {
	Origin       models.Coordinate
	RadiusMeters float64

	Canonical []models.Venue
	External  []models.Venue

	// Overrides are the moderation side-tables; nil behaves as empty.
	Overrides *models.OverrideTables

	// Ratings is the collaborator-supplied per-venue summary map, joined in
	// the final step. The engine never computes ratings itself.
	Ratings map[string]models.RatingSummary
}

// Options tunes a merge.
type Options struct {
	// DuplicateRadiusMeters overrides the spatial-duplicate threshold.
	// Zero selects the default.
	DuplicateRadiusMeters float64

	// RawCanonical bypasses deduplication and radius clipping and returns
	// the canonical list as-is, for diagnostics. Explicit opt-in, never the
	// default.
	RawCanonical bool
}

// Merge runs one reconciliation over the inputs and returns the new working
// set, sorted by ID so identical inputs always produce identical output.
//
// Canonical venues are always retained and always win duplicate conflicts,
// keeping their (override-resolved) name. External venues are kept only when
// no canonical venue sits within the duplicate radius under the same
// normalized name. Venues without a coordinate never reach this function;
// both clients discard them at the wire boundary.
func Merge(in Input, opts Options) []models.Venue {
	dupRadius := opts.DuplicateRadiusMeters
	if dupRadius <= 0 {
		dupRadius = DefaultDuplicateRadiusMeters
	}

	if opts.RawCanonical {
		return rawCanonical(in)
	}

	merged := make([]models.Venue, 0, len(in.Canonical)+len(in.External))
	grid := newVenueGrid(dupRadius)

	for _, cv := range in.Canonical {
		v := cv
		v.Name = in.Overrides.NameFor(v.ID, v.Name)
		v.IsClosed = v.IsClosed || in.Overrides.CanonicalClosed(v.ID)
		merged = append(merged, v)
	}
	// Index after override resolution so duplicate comparison sees final names.
	for i := range merged {
		grid.insert(&merged[i])
	}

	dropped := 0
	for _, ev := range in.External {
		v := ev
		v.Name = in.Overrides.NameFor(v.ID, v.Name)
		// External venues cannot be closed by the canonical is_closed
		// column, only by the closure lists.
		v.IsClosed = in.Overrides.ExternalClosed(v.ID)

		if isDuplicateOfCanonical(grid, &v, dupRadius) {
			dropped++
			continue
		}
		merged = append(merged, v)
	}
	if dropped > 0 {
		metrics.DuplicatesSuppressed.Add(float64(dropped))
		logging.Debug().Int("dropped", dropped).Msg("suppressed external duplicates of canonical venues")
	}

	// Exact distance clip; the bounding-box fetch may have over-fetched and
	// the store can return stale edge records beyond the radius.
	clipped := merged[:0]
	for _, v := range merged {
		if geo.DistanceMeters(v.Location, in.Origin) <= in.RadiusMeters {
			clipped = append(clipped, v)
		}
	}

	attachRatings(clipped, in.Ratings)

	sort.Slice(clipped, func(i, j int) bool { return clipped[i].ID < clipped[j].ID })
	return clipped
}

func rawCanonical(in Input) []models.Venue {
	out := make([]models.Venue, len(in.Canonical))
	copy(out, in.Canonical)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// isDuplicateOfCanonical applies the spatial-duplicate rule: closer than the
// duplicate radius to a canonical venue AND equal non-empty normalized
// names. Only external-vs-canonical pairs are ever suppressed.
func isDuplicateOfCanonical(grid *venueGrid, v *models.Venue, dupRadius float64) bool {
	name := geo.NormalizeName(v.Name)
	if name == "" {
		return false
	}
	for _, cv := range grid.nearby(v.Location, dupRadius) {
		if geo.NormalizeName(cv.Name) == name {
			return true
		}
	}
	return false
}

// attachRatings joins the collaborator-supplied summaries onto the venues.
func attachRatings(venues []models.Venue, ratings map[string]models.RatingSummary) {
	if len(ratings) == 0 {
		return
	}
	for i := range venues {
		if summary, ok := ratings[venues[i].ID]; ok {
			venues[i].Ratings = summary.Ratings
			venues[i].Score = summary.Score
		}
	}
}
