// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package rank produces ordered, optionally filtered views over a working
// set. It never mutates its input; callers get a fresh slice.
package rank

import (
	"sort"
	"strings"

	"github.com/pubcompass/pubcompass/internal/config"
	"github.com/pubcompass/pubcompass/internal/geo"
	"github.com/pubcompass/pubcompass/internal/models"
)

// Criterion selects the sort order.
type Criterion string

const (
	// ByDistance orders by distance from the search origin, nearest first.
	ByDistance Criterion = "distance"

	// ByQuality orders by mean quality rating, best first.
	ByQuality Criterion = "quality"

	// ByPrice orders by the price-proxy band, cheapest first.
	ByPrice Criterion = "price"

	// ByComposite orders by the injected aggregate score, falling back to
	// mean quality for unscored venues. Best first.
	ByComposite Criterion = "composite"
)

// ParseCriterion maps a query-string value onto a Criterion, defaulting to
// distance.
func ParseCriterion(s string) Criterion {
	switch Criterion(strings.ToLower(s)) {
	case ByQuality:
		return ByQuality
	case ByPrice:
		return ByPrice
	case ByComposite:
		return ByComposite
	default:
		return ByDistance
	}
}

// Ranker orders and filters venue lists using the configured price bands.
type Ranker struct {
	priceBands   []float64
	dynamicBands []float64
	dynamicAreas []string
}

// New creates a Ranker from configuration. Missing band tables fall back to
// built-in defaults.
func New(cfg *config.RankConfig) *Ranker {
	r := &Ranker{
		priceBands:   []float64{3.20, 3.90, 4.60, 5.40, 6.30},
		dynamicBands: []float64{4.20, 5.10, 6.00, 7.00, 8.20},
	}
	if cfg != nil {
		if len(cfg.PriceBands) == 5 {
			r.priceBands = cfg.PriceBands
		}
		if len(cfg.DynamicPriceBands) == 5 {
			r.dynamicBands = cfg.DynamicPriceBands
		}
		r.dynamicAreas = cfg.DynamicPricingAreas
	}
	return r
}

// Sort returns a new slice ordered by the criterion. Closed venues always
// sort after open venues regardless of criterion; ID breaks remaining ties
// so the order is stable across calls.
func (r *Ranker) Sort(venues []models.Venue, origin models.Coordinate, c Criterion) []models.Venue {
	out := make([]models.Venue, len(venues))
	copy(out, venues)

	less := r.lessFunc(origin, c)
	sort.Slice(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if a.IsClosed != b.IsClosed {
			return !a.IsClosed
		}
		if cmp := less(a, b); cmp != 0 {
			return cmp < 0
		}
		return a.ID < b.ID
	})
	return out
}

// FilterCask keeps only venues whose cask-ale confirmations outnumber
// denials. Applied before sorting when the caller requests it.
func FilterCask(venues []models.Venue) []models.Venue {
	out := make([]models.Venue, 0, len(venues))
	for _, v := range venues {
		confirms, denies := v.CaskVotes()
		if confirms > denies && confirms > 0 {
			out = append(out, v)
		}
	}
	return out
}

// FilterOpen drops closed venues.
func FilterOpen(venues []models.Venue) []models.Venue {
	out := make([]models.Venue, 0, len(venues))
	for _, v := range venues {
		if !v.IsClosed {
			out = append(out, v)
		}
	}
	return out
}

// PriceProxy maps a venue's 1-5 star price average into a representative
// numeric price. Venues in a dynamic pricing area use the metro band table.
// Unrated venues return 0, which sorts before rated ones under ByPrice;
// callers wanting the opposite can filter first.
func (r *Ranker) PriceProxy(v *models.Venue) float64 {
	stars := v.AvgPriceStars()
	if stars <= 0 {
		return 0
	}

	bands := r.priceBands
	if r.inDynamicArea(v) {
		bands = r.dynamicBands
	}

	idx := int(stars+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(bands) {
		idx = len(bands) - 1
	}
	return bands[idx]
}

func (r *Ranker) inDynamicArea(v *models.Venue) bool {
	if v.Address == "" {
		return false
	}
	addr := strings.ToLower(v.Address)
	for _, area := range r.dynamicAreas {
		if strings.Contains(addr, strings.ToLower(area)) {
			return true
		}
	}
	return false
}

// lessFunc returns a three-way comparator for the criterion.
func (r *Ranker) lessFunc(origin models.Coordinate, c Criterion) func(a, b *models.Venue) int {
	switch c {
	case ByQuality:
		return func(a, b *models.Venue) int {
			return compareDesc(a.AvgQuality(), b.AvgQuality())
		}
	case ByPrice:
		return func(a, b *models.Venue) int {
			return compareAsc(r.PriceProxy(a), r.PriceProxy(b))
		}
	case ByComposite:
		return func(a, b *models.Venue) int {
			return compareDesc(compositeScore(a), compositeScore(b))
		}
	default: // ByDistance
		return func(a, b *models.Venue) int {
			return compareAsc(geo.DistanceMeters(a.Location, origin), geo.DistanceMeters(b.Location, origin))
		}
	}
}

func compositeScore(v *models.Venue) float64 {
	if v.Score != nil {
		return *v.Score
	}
	return v.AvgQuality()
}

func compareAsc(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareDesc(a, b float64) int {
	return compareAsc(b, a)
}
