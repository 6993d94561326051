// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package store holds the full property dataset in a columnar in-memory
// layout. The store is built once at startup and is read-only afterwards,
// which makes every method safe for concurrent use without locking.
//
// FilterBBox returns a View: the store pointer plus an index slice into the
// columns. Views are cheap to create and copy; they never duplicate column
// data.
package store

import (
	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/models"
)

// Store is the columnar point table. Column i across all slices describes
// the same point. Optional columns use pointer slices so absent values
// survive the trip from the source dataset.
type Store struct {
	ids          []string
	lats         []float64
	lons         []float64
	daysOnMarket []*int
	margins      []*float64
	typeLocals   []*string
	addresses    []*string
}

// New builds a store from the loaded dataset. Points violating the
// coordinate invariant (non-finite or outside [-90,90] x [-180,180]) are
// dropped with a single WARN summarizing the count.
func New(points []models.Point) *Store {
	s := &Store{
		ids:          make([]string, 0, len(points)),
		lats:         make([]float64, 0, len(points)),
		lons:         make([]float64, 0, len(points)),
		daysOnMarket: make([]*int, 0, len(points)),
		margins:      make([]*float64, 0, len(points)),
		typeLocals:   make([]*string, 0, len(points)),
		addresses:    make([]*string, 0, len(points)),
	}

	dropped := 0
	for i := range points {
		p := &points[i]
		if !p.Valid() {
			dropped++
			continue
		}
		s.ids = append(s.ids, p.ID)
		s.lats = append(s.lats, p.Latitude)
		s.lons = append(s.lons, p.Longitude)
		s.daysOnMarket = append(s.daysOnMarket, p.DaysOnMarket)
		s.margins = append(s.margins, p.Margin)
		s.typeLocals = append(s.typeLocals, p.TypeLocal)
		s.addresses = append(s.addresses, p.Address)
	}

	if dropped > 0 {
		logging.Warn().
			Int("dropped", dropped).
			Int("kept", len(s.ids)).
			Msg("Dropped points with invalid coordinates")
	}
	return s
}

// Len returns the number of points in the store.
func (s *Store) Len() int { return len(s.ids) }

// IsEmpty reports whether the store holds no points.
func (s *Store) IsEmpty() bool { return len(s.ids) == 0 }

// All returns a view over every point.
func (s *Store) All() View {
	idx := make([]int32, s.Len())
	for i := range idx {
		idx[i] = int32(i)
	}
	return View{store: s, idx: idx}
}

// FilterBBox returns a view of the points inside the closed rectangle.
func (s *Store) FilterBBox(minLat, maxLat, minLon, maxLon float64) View {
	var idx []int32
	for i, lat := range s.lats {
		if lat < minLat || lat > maxLat {
			continue
		}
		lon := s.lons[i]
		if lon < minLon || lon > maxLon {
			continue
		}
		idx = append(idx, int32(i))
	}
	return View{store: s, idx: idx}
}

// View is a read-only subset of a store, represented as row indices into
// the shared columns.
type View struct {
	store *Store
	idx   []int32
}

// Len returns the number of points in the view.
func (v View) Len() int { return len(v.idx) }

// IsEmpty reports whether the view holds no points.
func (v View) IsEmpty() bool { return len(v.idx) == 0 }

// Head returns a view over the first n points (all of them when n exceeds
// the view length). Views share column storage, so this is O(1) data-wise.
func (v View) Head(n int) View {
	if n >= len(v.idx) {
		return v
	}
	return View{store: v.store, idx: v.idx[:n]}
}

// Subset returns a view over the given row positions of this view.
// Positions index into the view, not the underlying store.
func (v View) Subset(rows []int32) View {
	idx := make([]int32, len(rows))
	for i, r := range rows {
		idx[i] = v.idx[r]
	}
	return View{store: v.store, idx: idx}
}

// Lat returns the latitude of the i-th point in the view.
func (v View) Lat(i int) float64 { return v.store.lats[v.idx[i]] }

// Lon returns the longitude of the i-th point in the view.
func (v View) Lon(i int) float64 { return v.store.lons[v.idx[i]] }

// ID returns the id of the i-th point in the view.
func (v View) ID(i int) string { return v.store.ids[v.idx[i]] }

// Margin returns the margin of the i-th point, or nil when absent.
func (v View) Margin(i int) *float64 { return v.store.margins[v.idx[i]] }

// TypeLocal returns the local type of the i-th point, or nil when absent.
func (v View) TypeLocal(i int) *string { return v.store.typeLocals[v.idx[i]] }

// Address returns the address of the i-th point, or nil when absent.
func (v View) Address(i int) *string { return v.store.addresses[v.idx[i]] }

// DaysOnMarket returns the days-on-market of the i-th point, or nil.
func (v View) DaysOnMarket(i int) *int { return v.store.daysOnMarket[v.idx[i]] }
