// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package cache

import (
	"crypto/md5" //nolint:gosec // non-cryptographic key derivation
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Key namespaces persisted in the remote store.
const (
	// PrecomputeLockKey guards the precomputer across processes.
	PrecomputeLockKey = "h3:precompute:lock"

	// PrecomputeDoneKey marks a completed precompute run. No TTL.
	PrecomputeDoneKey = "h3:precompute:done"
)

// TTLs for the two cache layers and the precompute lease.
const (
	TileTTL     = 30 * 24 * time.Hour
	ViewportTTL = 5 * time.Minute
	LeaseTTL    = time.Hour
)

// TileKey builds the cache key for a Web Mercator tile.
func TileKey(z, x, y int) string {
	return fmt.Sprintf("tile:%d:%d:%d", z, x, y)
}

// ViewportKey derives the viewport cache key. Coordinates are rounded to a
// zoom-dependent precision (3 decimals below zoom 10, else 4) so nearby
// viewports share an entry, then hashed with MD5 to bound key length.
func ViewportKey(minLat, maxLat, minLon, maxLon float64, zoom int) string {
	prec := 3
	if zoom >= 10 {
		prec = 4
	}
	raw := roundCoord(minLat, prec) + ":" +
		roundCoord(maxLat, prec) + ":" +
		roundCoord(minLon, prec) + ":" +
		roundCoord(maxLon, prec) + ":" +
		strconv.Itoa(zoom)

	sum := md5.Sum([]byte(raw)) //nolint:gosec // key derivation only
	return "viewport:" + hex.EncodeToString(sum[:])
}

func roundCoord(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
