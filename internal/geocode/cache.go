// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package geocode

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/metrics"
)

// CachedProvider wraps a Provider with a Badger-backed cache keyed by
// coordinate rounded to five decimal places (roughly one meter). Cache
// errors degrade to a provider call; they never fail a lookup.
//
// "No usable answer" results are cached too, so a coordinate the provider
// cannot resolve is not re-queried every pass.
type CachedProvider struct {
	inner Provider
	db    *badger.DB
	ttl   time.Duration
}

// cacheEntry is the stored representation. Miss marks a cached
// no-result answer.
type cacheEntry struct {
	Miss   bool    `json:"miss,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// NewCachedProvider opens (or creates) the cache at dir and wraps inner.
// An empty dir selects an in-memory cache, used by tests and ephemeral
// deployments.
func NewCachedProvider(inner Provider, dir string, ttl time.Duration) (*CachedProvider, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open geocode cache: %w", err)
	}

	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &CachedProvider{inner: inner, db: db, ttl: ttl}, nil
}

// Close releases the underlying Badger database.
func (c *CachedProvider) Close() error {
	return c.db.Close()
}

// Name returns the wrapped provider's name.
func (c *CachedProvider) Name() string {
	return c.inner.Name()
}

// ReverseGeocode serves from cache when possible, otherwise delegates to the
// wrapped provider and stores the answer.
func (c *CachedProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*Result, error) {
	key := cacheKey(lat, lon)

	if entry, ok := c.load(key); ok {
		metrics.GeocodeCacheHits.Inc()
		return entry.Result, nil
	}
	metrics.GeocodeCacheMisses.Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	c.store(key, cacheEntry{Miss: result == nil, Result: result})
	return result, nil
}

func (c *CachedProvider) load(key []byte) (cacheEntry, bool) {
	var entry cacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *CachedProvider) store(key []byte, entry cacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to marshal geocode cache entry")
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		logging.Warn().Err(err).Msg("failed to write geocode cache entry")
	}
}

func cacheKey(lat, lon float64) []byte {
	return []byte(fmt.Sprintf("rev:%.5f:%.5f", lat, lon))
}
