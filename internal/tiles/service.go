// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package tiles serves cluster sets for single Web Mercator tiles: cache
// lookup first, then on-demand clustering from the point store with the
// result written back under a 30-day TTL.
//
// Concurrent requests for the same missing tile are deduplicated within
// the process through singleflight; cross-process deduplication is the
// precomputer lease's job.
package tiles

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/parcelmap/internal/cache"
	"github.com/tomtom215/parcelmap/internal/cluster"
	"github.com/tomtom215/parcelmap/internal/geo"
	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/metrics"
	"github.com/tomtom215/parcelmap/internal/models"
	"github.com/tomtom215/parcelmap/internal/store"
)

// computeBudget is the soft per-tile compute budget. Exceeding it logs but
// the computation still completes.
const computeBudget = 2 * time.Second

// Zoom band served by the tile cache.
const (
	MinZoom = 6
	MaxZoom = 14
)

// Service computes and caches per-tile cluster sets.
type Service struct {
	store     *store.Store
	cache     cache.Cache
	clusterer *cluster.Clusterer
	flight    singleflight.Group
}

// New creates a tile service over the shared point store and cache client.
func New(st *store.Store, c cache.Cache, cl *cluster.Clusterer) *Service {
	return &Service{store: st, cache: c, clusterer: cl}
}

// Get returns the cluster set for tile (z, x, y): decoded from cache when
// present, otherwise computed from the point store and written back. An
// empty tile yields an empty slice and is not cached.
func (s *Service) Get(ctx context.Context, z, x, y int) ([]models.Cluster, error) {
	key := cache.TileKey(z, x, y)

	if raw, ok := s.cache.Get(ctx, key); ok {
		metrics.TileCacheHits.Inc()
		var clusters []models.Cluster
		if err := json.Unmarshal([]byte(raw), &clusters); err == nil {
			return clusters, nil
		}
		// A corrupt entry falls through to recompute; the SetEx below
		// overwrites it.
		logging.Warn().Str("key", key).Msg("Discarding undecodable tile cache entry")
	}
	metrics.TileCacheMisses.Inc()

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.compute(ctx, z, x, y, key)
	})
	if err != nil {
		return nil, err
	}
	clusters, _ := v.([]models.Cluster)
	return clusters, nil
}

// compute runs the full miss path for one tile. Only one caller per key
// executes this at a time.
func (s *Service) compute(ctx context.Context, z, x, y int, key string) ([]models.Cluster, error) {
	start := time.Now()

	bbox := geo.TileToBBox(x, y, z)
	view := s.store.FilterBBox(bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
	if view.IsEmpty() {
		return []models.Cluster{}, nil
	}

	metrics.ClusterInvocations.WithLabelValues(string(s.clusterer.Mode())).Inc()
	clusters := s.clusterer.Cluster(view, z, bbox)
	fillGridIndices(clusters, bbox)

	elapsed := time.Since(start)
	metrics.ClusterDuration.Observe(elapsed.Seconds())
	if elapsed > computeBudget {
		logging.Warn().
			Int("z", z).Int("x", x).Int("y", y).
			Dur("elapsed", elapsed).
			Msg("Tile compute exceeded soft budget")
	}

	if len(clusters) > 0 {
		encoded, err := json.Marshal(clusters)
		if err != nil {
			return nil, fmt.Errorf("encode tile %s: %w", key, err)
		}
		s.cache.SetEx(ctx, key, cache.TileTTL, string(encoded))
	}
	return clusters, nil
}

// fillGridIndices populates the lat_idx/lon_idx compatibility fields
// relative to the tile bounds for clusters that do not already carry them
// (grid mode assigns its own group indices).
func fillGridIndices(clusters []models.Cluster, bbox geo.BBox) {
	const eps = 1e-4
	latSpan := bbox.MaxLat - bbox.MinLat
	if latSpan < eps {
		latSpan = eps
	}
	lonSpan := bbox.MaxLon - bbox.MinLon
	if lonSpan < eps {
		lonSpan = eps
	}
	for i := range clusters {
		c := &clusters[i]
		if c.LatIdx != nil && c.LonIdx != nil {
			continue
		}
		latIdx := int((c.Latitude - bbox.MinLat) / latSpan)
		lonIdx := int((c.Longitude - bbox.MinLon) / lonSpan)
		c.LatIdx = &latIdx
		c.LonIdx = &lonIdx
	}
}
