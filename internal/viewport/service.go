// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package viewport answers map-viewport queries by composing the tile
// layer: a viewport-level result cache in front, an MGET over the covering
// tiles, and a bounded parallel fan-out to the tile service for misses.
package viewport

import (
	"context"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/parcelmap/internal/cache"
	"github.com/tomtom215/parcelmap/internal/geo"
	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/metrics"
	"github.com/tomtom215/parcelmap/internal/models"
	"github.com/tomtom215/parcelmap/internal/tiles"
)

// fanoutWorkers bounds concurrent tile computations per request.
const fanoutWorkers = 8

// Query is a validated viewport request. Validation rejects NaN and
// out-of-range coordinates (NaN fails every numeric comparison) and
// inverted rectangles.
type Query struct {
	MinLat float64 `validate:"gte=-90,lte=90"`
	MaxLat float64 `validate:"gte=-90,lte=90,gtefield=MinLat"`
	MinLon float64 `validate:"gte=-180,lte=180"`
	MaxLon float64 `validate:"gte=-180,lte=180,gtefield=MinLon"`
	Zoom   float64 `validate:"gte=0,lte=22"`
}

var validate = validator.New()

// Validate reports whether the query is well-formed.
func (q *Query) Validate() error {
	return validate.Struct(q)
}

// RequestZoom returns the tile zoom used for this query, clamped into the
// served band.
func (q *Query) RequestZoom() int {
	z := int(math.Floor(q.Zoom))
	if z < tiles.MinZoom {
		return tiles.MinZoom
	}
	if z > tiles.MaxZoom {
		return tiles.MaxZoom
	}
	return z
}

// Service merges per-tile cluster sets into viewport responses.
type Service struct {
	cache cache.Cache
	tiles *tiles.Service
}

// New creates a viewport service over the shared cache and tile service.
func New(c cache.Cache, ts *tiles.Service) *Service {
	return &Service{cache: c, tiles: ts}
}

// Markers returns the clusters for a viewport. The order of clusters
// across tiles carries no meaning; within one tile, clusterer output order
// is preserved. Failures below this layer degrade to recomputation or to
// empty tile contributions; Markers itself never fails a well-formed
// query.
func (s *Service) Markers(ctx context.Context, q Query) ([]models.Cluster, error) {
	reqZ := q.RequestZoom()
	vk := cache.ViewportKey(q.MinLat, q.MaxLat, q.MinLon, q.MaxLon, reqZ)

	if raw, ok := s.cache.Get(ctx, vk); ok {
		var clusters []models.Cluster
		if err := json.Unmarshal([]byte(raw), &clusters); err == nil {
			metrics.ViewportCacheHits.Inc()
			return clusters, nil
		}
		logging.Warn().Str("key", vk).Msg("Discarding undecodable viewport cache entry")
	}
	metrics.ViewportCacheMisses.Inc()

	cover := geo.BoundsToTiles(q.MinLat, q.MaxLat, q.MinLon, q.MaxLon, reqZ)
	keys := make([]string, len(cover))
	for i, t := range cover {
		keys[i] = cache.TileKey(reqZ, t.X, t.Y)
	}

	// One round trip for every covering tile. A failed MGET reports every
	// slot absent, which simply routes all tiles through the compute path.
	raw := s.cache.MGet(ctx, keys...)

	all := make([]models.Cluster, 0, 64)
	var misses []geo.Tile
	for i, v := range raw {
		if !v.Present {
			misses = append(misses, cover[i])
			continue
		}
		var clusters []models.Cluster
		if err := json.Unmarshal([]byte(v.Data), &clusters); err != nil {
			misses = append(misses, cover[i])
			continue
		}
		all = append(all, clusters...)
	}

	if len(misses) > 0 {
		computed := make([][]models.Cluster, len(misses))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fanoutWorkers)
		for i, t := range misses {
			g.Go(func() error {
				clusters, err := s.tiles.Get(gctx, reqZ, t.X, t.Y)
				if err != nil {
					// A single broken tile contributes nothing; the rest
					// of the viewport still renders.
					logging.Error().Err(err).
						Int("z", reqZ).Int("x", t.X).Int("y", t.Y).
						Msg("Tile compute failed")
					return nil
				}
				computed[i] = clusters
				return nil
			})
		}
		_ = g.Wait()
		for _, clusters := range computed {
			all = append(all, clusters...)
		}
	}

	// The viewport entry is only written for complete responses; a
	// canceled request must not poison the cache with partial results.
	if len(all) > 0 && ctx.Err() == nil {
		if encoded, err := json.Marshal(all); err == nil {
			s.cache.SetEx(ctx, vk, cache.ViewportTTL, string(encoded))
		}
	}
	return all, nil
}
