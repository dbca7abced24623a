// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package models

// OverrideTables holds the moderation side-tables loaded from the canonical
// store. They are read-only inputs applied during every reconciliation pass.
type OverrideTables struct {
	// ClosedCanonicalIDs lists canonical venue IDs flagged closed by an operator.
	ClosedCanonicalIDs map[string]struct{} `json:"closed_canonical_ids"`

	// ClosedExternalIDs lists external (POI) venue IDs flagged closed by the
	// community closure list.
	ClosedExternalIDs map[string]struct{} `json:"closed_external_ids"`

	// NameOverrides maps venue ID to a moderator-corrected display name.
	NameOverrides map[string]string `json:"name_overrides"`
}

// EmptyOverrideTables returns tables with all sets allocated and empty.
// Reconciliation treats nil and empty tables identically; an allocated value
// keeps call sites free of nil checks.
func EmptyOverrideTables() *OverrideTables {
	return &OverrideTables{
		ClosedCanonicalIDs: make(map[string]struct{}),
		ClosedExternalIDs:  make(map[string]struct{}),
		NameOverrides:      make(map[string]string),
	}
}

// CanonicalClosed reports whether the given canonical venue ID is on the
// operator closure list.
func (t *OverrideTables) CanonicalClosed(id string) bool {
	if t == nil {
		return false
	}
	_, ok := t.ClosedCanonicalIDs[id]
	return ok
}

// ExternalClosed reports whether the given external venue ID is on the
// community closure list.
func (t *OverrideTables) ExternalClosed(id string) bool {
	if t == nil {
		return false
	}
	_, ok := t.ClosedExternalIDs[id]
	return ok
}

// NameFor returns the override name for id, or the fallback when no
// override exists.
func (t *OverrideTables) NameFor(id, fallback string) string {
	if t == nil {
		return fallback
	}
	if name, ok := t.NameOverrides[id]; ok && name != "" {
		return name
	}
	return fallback
}
