// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package geo implements Web Mercator tile math (EPSG:3857): conversions
// between lat/lon and integer tile coordinates, and enumeration of the
// tiles covering a bounding box. All functions are pure and stateless.
package geo

import "math"

// Mercator-safe latitude band. The projection diverges at the poles, so
// latitudes are clamped here before conversion.
const (
	MaxMercatorLat = 85.05112878
	MinMercatorLat = -85.05112878
)

// MaxTilesPerQuery caps BoundsToTiles output. A viewport that legitimately
// spans more tiles than this gets a truncated cover; callers tolerate the
// cap because each tile is also computable on demand.
const MaxTilesPerQuery = 200

// Tile identifies a Web Mercator tile at zoom Z.
type Tile struct {
	X int
	Y int
}

// BBox is a closed lat/lon rectangle.
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// TileToBBox returns the geographic bounds of tile (x, y) at zoom z.
func TileToBBox(x, y, z int) BBox {
	n := math.Exp2(float64(z))

	minLon := float64(x)/n*360.0 - 180.0
	maxLon := float64(x+1)/n*360.0 - 180.0

	maxLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	minLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y+1)/n)))

	return BBox{
		MinLat: minLatRad * 180.0 / math.Pi,
		MaxLat: maxLatRad * 180.0 / math.Pi,
		MinLon: minLon,
		MaxLon: maxLon,
	}
}

// LatLonToTile returns the tile containing (lat, lon) at zoom z.
// Latitude is clamped to the Mercator-safe band first; out-of-range
// longitude clamps to the edge tiles.
func LatLonToTile(lat, lon float64, z int) Tile {
	n := math.Exp2(float64(z))
	lat = clampLat(lat)

	x := int(math.Floor((lon + 180.0) / 360.0 * n))

	latRad := lat * math.Pi / 180.0
	// tan + sec is monotonic over the clamped band; a non-positive value
	// can only appear from float underflow at the band edge.
	merc := math.Tan(latRad) + 1/math.Cos(latRad)
	var y int
	if merc <= 0 {
		y = 0
	} else {
		y = int(math.Floor((1 - math.Log(merc)/math.Pi) / 2 * n))
	}

	max := int(n) - 1
	return Tile{X: clampInt(x, 0, max), Y: clampInt(y, 0, max)}
}

// BoundsToTiles enumerates the tiles covering the bounding box at zoom z,
// row by row. The y axis grows southward, so the maximum latitude maps to
// the smallest y. Output is capped at MaxTilesPerQuery.
func BoundsToTiles(minLat, maxLat, minLon, maxLon float64, z int) []Tile {
	t0 := LatLonToTile(maxLat, minLon, z)
	t1 := LatLonToTile(minLat, maxLon, z)

	x0, x1 := t0.X, t1.X
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	y0, y1 := t0.Y, t1.Y
	if y0 > y1 {
		y0, y1 = y1, y0
	}

	tiles := make([]Tile, 0, (x1-x0+1)*(y1-y0+1))
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			if len(tiles) >= MaxTilesPerQuery {
				return tiles
			}
			tiles = append(tiles, Tile{X: x, Y: y})
		}
	}
	return tiles
}

// Center returns the midpoint of the bounding box.
func (b BBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Contains reports whether (lat, lon) lies inside the closed rectangle.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat &&
		lon >= b.MinLon && lon <= b.MaxLon
}

func clampLat(lat float64) float64 {
	if lat > MaxMercatorLat {
		return MaxMercatorLat
	}
	if lat < MinMercatorLat {
		return MinMercatorLat
	}
	return lat
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
