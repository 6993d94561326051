// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package precompute populates the tile cache ahead of traffic. A single
// process per deployment runs the full pass, guarded by a distributed
// lease in the remote cache; the others observe the held lease and exit.
//
// The pass projects every in-region point to its tile at each zoom level,
// clusters each non-empty tile and writes the results through a pipelined
// batch. A separate, much cheaper pre-warm pass runs synchronously at
// startup so the low-zoom viewport is hot before the full pass finishes.
package precompute

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/parcelmap/internal/cache"
	"github.com/tomtom215/parcelmap/internal/cluster"
	"github.com/tomtom215/parcelmap/internal/config"
	"github.com/tomtom215/parcelmap/internal/geo"
	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/metrics"
	"github.com/tomtom215/parcelmap/internal/models"
	"github.com/tomtom215/parcelmap/internal/store"
	"github.com/tomtom215/parcelmap/internal/tiles"
)

// Precomputer owns the background tile precompute and its status snapshot.
type Precomputer struct {
	store     *store.Store
	cache     cache.Cache
	clusterer *cluster.Clusterer
	tiles     *tiles.Service
	cfg       config.PrecomputeConfig

	mu     sync.Mutex
	status models.PrecomputeStatus
}

// New creates a precomputer. The tile service is used by the pre-warm
// pass so warmed tiles take the exact serving path.
func New(st *store.Store, c cache.Cache, cl *cluster.Clusterer, ts *tiles.Service, cfg config.PrecomputeConfig) *Precomputer {
	return &Precomputer{store: st, cache: c, clusterer: cl, tiles: ts, cfg: cfg}
}

// Status returns a snapshot of the precompute state for /api/status.
func (p *Precomputer) Status() models.PrecomputeStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Precomputer) setRunning(running bool) {
	p.mu.Lock()
	p.status.Running = running
	p.mu.Unlock()
}

func (p *Precomputer) finish(err error) {
	p.mu.Lock()
	p.status.Running = false
	if err != nil {
		p.status.Error = err.Error()
	} else {
		p.status.Completed = true
	}
	p.mu.Unlock()
}

// Run executes one full precompute pass. Returns nil without doing work
// when another process holds the lease. Context cancellation aborts the
// pass between tiles; the lease is released either way.
func (p *Precomputer) Run(ctx context.Context) error {
	lease := p.cache.Lease(ctx, cache.PrecomputeLockKey, cache.LeaseTTL)
	if lease == nil {
		logging.Info().Str("lease", cache.PrecomputeLockKey).
			Msg("Precompute lease held elsewhere, skipping")
		return nil
	}
	defer lease.Release(ctx)

	p.setRunning(true)
	start := time.Now()

	region := p.cfg.Region
	view := p.store.FilterBBox(region.MinLat, region.MaxLat, region.MinLon, region.MaxLon)
	logging.Info().
		Int("points", view.Len()).
		Int("min_zoom", p.cfg.MinZoom).
		Int("max_zoom", p.cfg.MaxZoom).
		Msg("Precompute started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for z := p.cfg.MinZoom; z <= p.cfg.MaxZoom; z++ {
		g.Go(func() error {
			return p.precomputeZoom(gctx, view, z)
		})
	}
	err := g.Wait()

	if err == nil {
		// The done marker has no TTL; it survives cache restarts as a
		// signal that a full pass completed at least once.
		p.cache.Set(ctx, cache.PrecomputeDoneKey, "1")
		metrics.PrecomputeDuration.Set(time.Since(start).Seconds())
		logging.Info().Dur("elapsed", time.Since(start)).Msg("Precompute complete")
	} else {
		logging.Error().Err(err).Msg("Precompute aborted")
	}
	p.finish(err)
	return err
}

// precomputeZoom partitions the region's points by tile at one zoom level
// and writes every non-empty tile through a pipelined batch.
func (p *Precomputer) precomputeZoom(ctx context.Context, view store.View, z int) error {
	partitions := make(map[geo.Tile][]int32)
	for i := 0; i < view.Len(); i++ {
		t := geo.LatLonToTile(view.Lat(i), view.Lon(i), z)
		partitions[t] = append(partitions[t], int32(i))
	}

	pipe := p.cache.Pipeline()
	written := 0
	for t, rows := range partitions {
		if err := ctx.Err(); err != nil {
			return err
		}

		bbox := geo.TileToBBox(t.X, t.Y, z)
		metrics.ClusterInvocations.WithLabelValues(string(p.clusterer.Mode())).Inc()
		clusters := p.clusterer.Cluster(view.Subset(rows), z, bbox)
		if len(clusters) == 0 {
			continue
		}
		encoded, err := json.Marshal(clusters)
		if err != nil {
			return err
		}

		pipe.SetEx(cache.TileKey(z, t.X, t.Y), cache.TileTTL, string(encoded))
		written++
		metrics.PrecomputeTiles.Inc()
		if pipe.Len() >= p.cfg.FlushEvery {
			if err := pipe.Flush(ctx); err != nil {
				logging.Warn().Err(err).Int("z", z).Msg("Precompute pipeline flush failed")
			}
		}
	}
	if err := pipe.Flush(ctx); err != nil {
		logging.Warn().Err(err).Int("z", z).Msg("Precompute pipeline flush failed")
	}

	logging.Info().Int("z", z).Int("tiles", written).Msg("Precompute zoom done")
	return nil
}

// Prewarm computes every tile covering the configured region for the low
// zoom band through the regular tile service, so the initial viewport is
// served from cache even while the full pass is still running.
func (p *Precomputer) Prewarm(ctx context.Context) {
	region := p.cfg.Region
	warmed := 0
	for z := p.cfg.MinZoom; z <= p.cfg.PrewarmMaxZoom; z++ {
		for _, t := range geo.BoundsToTiles(region.MinLat, region.MaxLat, region.MinLon, region.MaxLon, z) {
			if ctx.Err() != nil {
				return
			}
			if _, err := p.tiles.Get(ctx, z, t.X, t.Y); err != nil {
				logging.Warn().Err(err).
					Int("z", z).Int("x", t.X).Int("y", t.Y).
					Msg("Pre-warm tile failed")
				continue
			}
			warmed++
		}
	}
	logging.Info().Int("tiles", warmed).Msg("Pre-warm complete")
}
