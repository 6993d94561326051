// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package geo

import (
	"math"
	"testing"
)

func TestLatLonToTileKnownValues(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		z        int
		want     Tile
	}{
		{"origin at zoom 0", 0, 0, 0, Tile{0, 0}},
		{"origin at zoom 1", 0.1, 0.1, 1, Tile{1, 0}},
		{"paris at zoom 10", 48.8566, 2.3522, 10, Tile{518, 352}},
		{"west edge", 0, -180, 4, Tile{0, 8}},
		{"east edge clamps", 0, 180, 4, Tile{15, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LatLonToTile(tt.lat, tt.lon, tt.z)
			if got != tt.want {
				t.Errorf("LatLonToTile(%v, %v, %d) = %+v, want %+v",
					tt.lat, tt.lon, tt.z, got, tt.want)
			}
		})
	}
}

// Every point must land inside the bbox of the tile it maps to, at every
// served zoom.
func TestTileRoundTrip(t *testing.T) {
	points := []struct{ lat, lon float64 }{
		{48.8566, 2.3522},
		{43.2965, 5.3698},
		{51.0, -5.0},
		{41.1, 9.9},
		{0.0001, 0.0001},
		{-33.8688, 151.2093},
	}
	for _, p := range points {
		for z := 6; z <= 14; z++ {
			tile := LatLonToTile(p.lat, p.lon, z)
			bbox := TileToBBox(tile.X, tile.Y, z)
			if !bbox.Contains(p.lat, p.lon) {
				t.Errorf("point (%v, %v) at zoom %d maps to tile %+v whose bbox %+v does not contain it",
					p.lat, p.lon, z, tile, bbox)
			}
		}
	}
}

func TestLatLonToTilePolarClamp(t *testing.T) {
	for _, lat := range []float64{90, 89.9, -90, -89.9} {
		tile := LatLonToTile(lat, 0, 10)
		max := 1<<10 - 1
		if tile.Y < 0 || tile.Y > max {
			t.Errorf("latitude %v produced out-of-range y %d", lat, tile.Y)
		}
	}
	// Exactly the clamp boundary must not panic or go negative.
	top := LatLonToTile(MaxMercatorLat, 0, 10)
	if top.Y != 0 {
		t.Errorf("Expected y=0 at the north clamp, got %d", top.Y)
	}
}

func TestTileToBBoxAdjacency(t *testing.T) {
	// Horizontally adjacent tiles share a meridian, vertically adjacent
	// tiles share a parallel.
	a := TileToBBox(100, 100, 10)
	right := TileToBBox(101, 100, 10)
	below := TileToBBox(100, 101, 10)
	if math.Abs(a.MaxLon-right.MinLon) > 1e-9 {
		t.Errorf("Expected shared east edge, got %v vs %v", a.MaxLon, right.MinLon)
	}
	if math.Abs(a.MinLat-below.MaxLat) > 1e-9 {
		t.Errorf("Expected shared south edge, got %v vs %v", a.MinLat, below.MaxLat)
	}
}

// The tile cover of a bbox must contain the tile of every point inside it.
func TestBoundsToTilesCompleteness(t *testing.T) {
	minLat, maxLat := 48.0, 49.5
	minLon, maxLon := 1.5, 3.5
	z := 10

	cover := BoundsToTiles(minLat, maxLat, minLon, maxLon, z)
	covered := make(map[Tile]bool, len(cover))
	for _, tile := range cover {
		covered[tile] = true
	}

	for lat := minLat; lat <= maxLat; lat += 0.1 {
		for lon := minLon; lon <= maxLon; lon += 0.1 {
			tile := LatLonToTile(lat, lon, z)
			if !covered[tile] {
				t.Fatalf("tile %+v for point (%v, %v) missing from cover of %d tiles",
					tile, lat, lon, len(cover))
			}
		}
	}
}

func TestBoundsToTilesInvertedCorners(t *testing.T) {
	// Corner order must not matter.
	a := BoundsToTiles(48.0, 49.0, 2.0, 3.0, 8)
	b := BoundsToTiles(49.0, 48.0, 3.0, 2.0, 8)
	if len(a) != len(b) {
		t.Fatalf("Expected identical covers, got %d vs %d tiles", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("cover mismatch at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestBoundsToTilesCap(t *testing.T) {
	// A world-spanning viewport at high zoom must be truncated, not
	// enumerated.
	cover := BoundsToTiles(-85, 85, -180, 180, 14)
	if len(cover) != MaxTilesPerQuery {
		t.Errorf("Expected cover capped at %d, got %d", MaxTilesPerQuery, len(cover))
	}
}

func TestBoundsToTilesSingleTile(t *testing.T) {
	// A viewport inside one tile covers exactly that tile.
	bbox := TileToBBox(518, 352, 10)
	lat, lon := bbox.Center()
	cover := BoundsToTiles(lat-1e-6, lat+1e-6, lon-1e-6, lon+1e-6, 10)
	if len(cover) != 1 {
		t.Fatalf("Expected a single tile, got %d", len(cover))
	}
	if cover[0] != (Tile{518, 352}) {
		t.Errorf("Expected tile {518 352}, got %+v", cover[0])
	}
}

func TestBBoxContains(t *testing.T) {
	b := BBox{MinLat: 10, MaxLat: 20, MinLon: -5, MaxLon: 5}
	if !b.Contains(10, -5) || !b.Contains(20, 5) {
		t.Error("Expected closed bounds to contain their edges")
	}
	if b.Contains(9.999, 0) || b.Contains(15, 5.001) {
		t.Error("Expected points outside the rectangle to be excluded")
	}
}
