// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package geo provides pure geographic helper functions: great-circle
// distance, bounding-box construction and venue-name normalization for
// duplicate comparison. No package in here holds state.
package geo

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pubcompass/pubcompass/internal/models"
)

const (
	earthRadiusMeters = 6371000.0

	// metersPerDegreeLat is the approximate length of one degree of latitude.
	metersPerDegreeLat = 111320.0
)

// DistanceMeters calculates the great-circle distance between two points
// using the Haversine formula. Returns meters.
//
// Identical inputs return exactly 0 and antipodal points return a finite
// value; the intermediate term is clamped to [0,1] so the result is never
// NaN regardless of floating-point rounding.
func DistanceMeters(a, b models.Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := a.Lat * math.Pi / 180.0
	lon1 := a.Lon * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	lon2 := b.Lon * math.Pi / 180.0

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// Rounding can push h a hair outside [0,1] for near-antipodal points,
	// which would make Sqrt return NaN.
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}

	return earthRadiusMeters * 2 * math.Asin(math.Sqrt(h))
}

// BoundingBox is a north/south/east/west rectangle in degrees.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains reports whether the coordinate lies inside the box. Boxes that
// cross the antimeridian are handled by the wrapped longitude comparison.
func (b BoundingBox) Contains(c models.Coordinate) bool {
	if c.Lat > b.North || c.Lat < b.South {
		return false
	}
	if b.West <= b.East {
		return c.Lon >= b.West && c.Lon <= b.East
	}
	return c.Lon >= b.West || c.Lon <= b.East
}

// BoundingBoxAround returns a box fully containing the circle of
// radiusMeters around center. Over-fetch is acceptable, under-fetch is not,
// so the longitude span is computed at the widest latitude of the box and
// degenerates to the full [-180,180] range near the poles.
func BoundingBoxAround(center models.Coordinate, radiusMeters float64) BoundingBox {
	latDelta := radiusMeters / metersPerDegreeLat

	north := math.Min(center.Lat+latDelta, 90)
	south := math.Max(center.Lat-latDelta, -90)

	// Use the latitude closest to a pole so the box is widest where the
	// meridians converge.
	widestLat := math.Max(math.Abs(north), math.Abs(south))
	cosLat := math.Cos(widestLat * math.Pi / 180.0)

	var lonDelta float64
	if cosLat <= 1e-6 {
		lonDelta = 180
	} else {
		lonDelta = radiusMeters / (metersPerDegreeLat * cosLat)
		if lonDelta > 180 {
			lonDelta = 180
		}
	}

	return BoundingBox{
		North: north,
		South: south,
		East:  wrapLongitude(center.Lon + lonDelta),
		West:  wrapLongitude(center.Lon - lonDelta),
	}
}

func wrapLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// venueSuffixes are common venue-type words stripped from the end of a name
// before duplicate comparison, so "The Anchor" and "Anchor Pub" normalize
// to the same key.
var venueSuffixes = map[string]struct{}{
	"pub":        {},
	"bar":        {},
	"inn":        {},
	"tavern":     {},
	"brewery":    {},
	"brewhouse":  {},
	"taproom":    {},
	"alehouse":   {},
	"freehouse":  {},
	"micropub":   {},
	"beerhouse":  {},
}

// diacriticStripper removes combining marks after NFD decomposition, so
// "Brasserie Génévieve" compares equal to "brasserie genevieve".
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName produces the canonical comparison key for a venue name:
// lowercased, diacritics and punctuation stripped, a leading article and
// trailing venue-type suffixes removed, whitespace collapsed.
//
// The function is pure and deterministic; reconciliation correctness
// depends on both sides of a comparison using the same normalization.
func NormalizeName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if lowered == "" {
		return ""
	}

	if stripped, _, err := transform.String(diacriticStripper, lowered); err == nil {
		lowered = stripped
	}

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '/':
			b.WriteByte(' ')
		}
		// All other punctuation is dropped entirely ("O'Neill's" -> "oneills").
	}

	words := strings.Fields(b.String())
	if len(words) > 1 && (words[0] == "the" || words[0] == "ye") {
		words = words[1:]
	}
	for len(words) > 1 {
		if _, ok := venueSuffixes[words[len(words)-1]]; !ok {
			break
		}
		words = words[:len(words)-1]
	}

	return strings.Join(words, " ")
}
