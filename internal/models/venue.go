// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

// Package models defines the core data types shared across the engine:
// venues, coordinates, moderation override tables and API envelopes.
package models

import (
	"strings"
	"time"
)

// ID namespace prefixes. A venue ID is globally unique only within its
// source namespace; cross-namespace collisions are resolved during
// reconciliation, never assumed away.
const (
	// CanonicalIDPrefix marks venues originating from the canonical store.
	CanonicalIDPrefix = "canonical:"

	// ExternalIDPrefix marks venues discovered via the external POI provider.
	ExternalIDPrefix = "osm:"

	// UserIDPrefix marks user-submitted venues passed through the canonical store.
	UserIDPrefix = "user:"
)

// Source labels for Venue.Source. Informational; ID prefixes stay the
// authoritative provenance marker.
const (
	SourceCanonical = "canonical"
	SourceExternal  = "external"
	SourceUser      = "user"
)

// AddressPending is the placeholder the canonical store writes for venues
// created without an address. The enrichment scheduler treats it the same
// as an empty address.
const AddressPending = "Address pending"

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Rating is a single community rating attached to a venue after merge.
// Ratings are injected by the ratings collaborator; this engine never
// computes them.
type Rating struct {
	Author     string  `json:"author,omitempty"`
	Quality    float64 `json:"quality"`               // 0-5 stars
	PriceStars int     `json:"price_stars,omitempty"` // 1-5, 0 = not rated
	// HasCask records whether the rater confirmed (true) or denied (false)
	// that the venue serves cask ale. Nil means the rater did not say.
	HasCask   *bool     `json:"has_cask,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RatingSummary is the collaborator-supplied per-venue ratings bundle,
// joined onto the working set in the final reconciliation step.
type RatingSummary struct {
	Ratings []Rating `json:"ratings,omitempty"`
	Score   *float64 `json:"score,omitempty"`
}

// Venue is the unit entity of the engine.
type Venue struct {
	// ID is prefixed by source namespace (see CanonicalIDPrefix et al).
	ID   string `json:"id"`
	Name string `json:"name"`

	// Address may be empty or AddressPending until enrichment resolves it.
	Address string `json:"address,omitempty"`

	// Location is required and immutable once set.
	Location Coordinate `json:"location"`

	CountryCode string `json:"country_code,omitempty"`
	CountryName string `json:"country_name,omitempty"`

	// IsClosed is the logical OR of all closure signals for this venue.
	IsClosed bool `json:"is_closed"`

	// Ratings and Score are injected post-merge by the ratings collaborator.
	Ratings []Rating `json:"ratings,omitempty"`
	Score   *float64 `json:"score,omitempty"`

	// Source is a debugging aid; provenance is authoritative via the ID prefix.
	Source string `json:"source,omitempty"`
}

// IsCanonical reports whether the venue originates from the canonical store.
func (v *Venue) IsCanonical() bool {
	return strings.HasPrefix(v.ID, CanonicalIDPrefix) || strings.HasPrefix(v.ID, UserIDPrefix)
}

// IsExternal reports whether the venue was discovered via the POI provider.
func (v *Venue) IsExternal() bool {
	return strings.HasPrefix(v.ID, ExternalIDPrefix)
}

// NeedsAddress reports whether the venue should be queued for reverse-geocode
// enrichment.
func (v *Venue) NeedsAddress() bool {
	addr := strings.TrimSpace(v.Address)
	return addr == "" || addr == AddressPending
}

// AvgQuality returns the mean quality rating, or 0 when unrated.
func (v *Venue) AvgQuality() float64 {
	if len(v.Ratings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range v.Ratings {
		sum += r.Quality
	}
	return sum / float64(len(v.Ratings))
}

// AvgPriceStars returns the mean 1-5 price rating over ratings that carry
// one, or 0 when no rating does.
func (v *Venue) AvgPriceStars() float64 {
	var sum float64
	var n int
	for _, r := range v.Ratings {
		if r.PriceStars > 0 {
			sum += float64(r.PriceStars)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CaskVotes returns the number of cask-ale confirmations and denials.
func (v *Venue) CaskVotes() (confirms, denies int) {
	for _, r := range v.Ratings {
		if r.HasCask == nil {
			continue
		}
		if *r.HasCask {
			confirms++
		} else {
			denies++
		}
	}
	return confirms, denies
}

// Clone returns a deep copy of the venue. Working-set snapshots hand out
// clones so consumers can never observe in-place enrichment patches.
func (v *Venue) Clone() Venue {
	out := *v
	if v.Ratings != nil {
		out.Ratings = make([]Rating, len(v.Ratings))
		copy(out.Ratings, v.Ratings)
	}
	if v.Score != nil {
		s := *v.Score
		out.Score = &s
	}
	return out
}
