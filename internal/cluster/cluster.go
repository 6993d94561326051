// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package cluster aggregates point views into cluster records at a
// resolution implied by the map zoom level.
//
// Two modes are supported and selected per deployment:
//
//   - ModeH3: points are grouped by Uber H3 hexagonal cell at a
//     zoom-derived resolution. This is the default.
//   - ModeGrid: points are grouped by a rectangular grid laid over the
//     tile bounding box.
//
// The mode must stay consistent across the tile cache and the on-the-fly
// path; switching modes invalidates previously stored tiles.
//
// Both modes guarantee that every input point contributes to exactly one
// cluster (the counts sum to the input size) and that output is
// deterministic for a fixed input order: groups accumulate in first-seen
// order and the final descending-by-count sort is stable.
package cluster

import (
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/tomtom215/parcelmap/internal/geo"
	"github.com/tomtom215/parcelmap/internal/models"
	"github.com/tomtom215/parcelmap/internal/store"
)

// Mode selects the spatial grouping strategy.
type Mode string

const (
	// ModeH3 groups points by H3 hexagonal cell.
	ModeH3 Mode = "h3"
	// ModeGrid groups points by a rectangular grid over the tile bbox.
	ModeGrid Mode = "grid"
)

// MaxPointsPerTile caps the number of individual points returned verbatim
// at the maximum zoom, per tile.
const MaxPointsPerTile = 500

// PointZoom is the zoom at or above which individual points are returned
// instead of aggregates.
const PointZoom = 14

// zoomToH3Res maps request zoom to H3 resolution.
var zoomToH3Res = map[int]int{
	6: 5, 7: 6, 8: 6, 9: 7, 10: 7, 11: 8, 12: 8, 13: 9, 14: 9,
}

const (
	h3ResMin = 5
	h3ResMax = 9
)

// H3Resolution returns the clamped H3 resolution for a zoom level.
// Zooms outside the service band fall back to the maximum resolution.
func H3Resolution(zoom int) int {
	res, ok := zoomToH3Res[zoom]
	if !ok {
		res = h3ResMax
	}
	if res < h3ResMin {
		res = h3ResMin
	}
	if res > h3ResMax {
		res = h3ResMax
	}
	return res
}

// gridResolution returns the per-axis cell count for grid mode.
func gridResolution(zoom int) int {
	switch {
	case zoom <= 6:
		return 3
	case zoom <= 8:
		return 5
	case zoom <= 10:
		return 7
	default:
		return 10
	}
}

// Clusterer aggregates point views. The zero value is not usable; create
// one with New.
type Clusterer struct {
	mode Mode
}

// New returns a clusterer for the given mode. Unknown modes fall back to
// ModeH3.
func New(mode Mode) *Clusterer {
	if mode != ModeGrid {
		mode = ModeH3
	}
	return &Clusterer{mode: mode}
}

// Mode returns the configured grouping mode.
func (c *Clusterer) Mode() Mode { return c.mode }

// Cluster aggregates the view at the resolution implied by zoom. The bbox
// is the tile bounds and is only consulted in grid mode. An empty view
// yields an empty (non-nil) slice.
func (c *Clusterer) Cluster(v store.View, zoom int, bbox geo.BBox) []models.Cluster {
	if v.IsEmpty() {
		return []models.Cluster{}
	}
	if zoom >= PointZoom {
		return passthrough(v.Head(MaxPointsPerTile))
	}
	if c.mode == ModeGrid {
		return clusterByGrid(v, zoom, bbox)
	}
	return clusterByH3(v, zoom)
}

// passthrough emits each point as a count=1 cluster carrying its own
// fields verbatim.
func passthrough(v store.View) []models.Cluster {
	out := make([]models.Cluster, v.Len())
	for i := 0; i < v.Len(); i++ {
		id := v.ID(i)
		out[i] = models.Cluster{
			Latitude:  v.Lat(i),
			Longitude: v.Lon(i),
			Count:     1,
			ID:        &id,
			Margin:    v.Margin(i),
			TypeLocal: v.TypeLocal(i),
			Address:   v.Address(i),
		}
	}
	return out
}

// group accumulates the aggregate for one cell.
type group struct {
	sumLat    float64
	sumLon    float64
	count     int
	id        string
	margin    *float64
	typeLocal *string
	address   *string
	latIdx    int
	lonIdx    int
}

func (g *group) add(v store.View, i int) {
	g.sumLat += v.Lat(i)
	g.sumLon += v.Lon(i)
	g.count++
	if g.count == 1 {
		g.id = v.ID(i)
		g.typeLocal = v.TypeLocal(i)
		g.address = v.Address(i)
	}
	if m := v.Margin(i); m != nil {
		if g.margin == nil || *m > *g.margin {
			g.margin = m
		}
	}
}

func (g *group) cluster(withIdx bool) models.Cluster {
	id := g.id
	cl := models.Cluster{
		Latitude:  g.sumLat / float64(g.count),
		Longitude: g.sumLon / float64(g.count),
		Count:     g.count,
		ID:        &id,
		Margin:    g.margin,
		TypeLocal: g.typeLocal,
		Address:   g.address,
	}
	if withIdx {
		latIdx, lonIdx := g.latIdx, g.lonIdx
		cl.LatIdx = &latIdx
		cl.LonIdx = &lonIdx
	}
	return cl
}

func clusterByH3(v store.View, zoom int) []models.Cluster {
	res := H3Resolution(zoom)

	groups := make(map[h3.Cell]*group, 64)
	order := make([]h3.Cell, 0, 64)
	for i := 0; i < v.Len(); i++ {
		cell, err := h3.LatLngToCell(h3.NewLatLng(v.Lat(i), v.Lon(i)), res)
		if err != nil {
			// Coordinates were validated at load; an indexing failure can
			// only mean a degenerate value, which lands in the zero cell
			// so the point is still counted.
			cell = 0
		}
		g, ok := groups[cell]
		if !ok {
			g = &group{}
			groups[cell] = g
			order = append(order, cell)
		}
		g.add(v, i)
	}

	out := make([]models.Cluster, 0, len(order))
	for _, cell := range order {
		out = append(out, groups[cell].cluster(false))
	}
	sortByCountDesc(out)
	return out
}

func clusterByGrid(v store.View, zoom int, bbox geo.BBox) []models.Cluster {
	const eps = 1e-4
	res := gridResolution(zoom)

	latSpan := bbox.MaxLat - bbox.MinLat
	if latSpan < eps {
		latSpan = eps
	}
	lonSpan := bbox.MaxLon - bbox.MinLon
	if lonSpan < eps {
		lonSpan = eps
	}
	latStep := latSpan / float64(res)
	lonStep := lonSpan / float64(res)

	type cellKey struct{ latIdx, lonIdx int }
	groups := make(map[cellKey]*group, 64)
	order := make([]cellKey, 0, 64)
	for i := 0; i < v.Len(); i++ {
		key := cellKey{
			latIdx: int((v.Lat(i) - bbox.MinLat) / latStep),
			lonIdx: int((v.Lon(i) - bbox.MinLon) / lonStep),
		}
		g, ok := groups[key]
		if !ok {
			g = &group{latIdx: key.latIdx, lonIdx: key.lonIdx}
			groups[key] = g
			order = append(order, key)
		}
		g.add(v, i)
	}

	out := make([]models.Cluster, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key].cluster(true))
	}
	sortByCountDesc(out)
	return out
}

// sortByCountDesc orders clusters by descending count. The stable sort
// preserves first-seen order among equal counts so output is deterministic
// for a fixed input order.
func sortByCountDesc(clusters []models.Cluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Count > clusters[j].Count
	})
}
