// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package models defines the data records shared across the Parcelmap
// pipeline: the immutable property Point loaded at startup and the Cluster
// aggregate served to map clients.
package models

import "math"

// Point is a single property record. The full point collection is loaded
// once at startup and never mutated for the lifetime of the process.
//
// Latitude and Longitude are mandatory; the remaining fields come from the
// source dataset and may be absent, which the pointer types preserve
// through JSON round trips.
type Point struct {
	ID           string   `json:"id" db:"id"`
	Latitude     float64  `json:"latitude" db:"latitude"`
	Longitude    float64  `json:"longitude" db:"longitude"`
	DaysOnMarket *int     `json:"days_on_market,omitempty" db:"days_on_market"`
	Margin       *float64 `json:"margin,omitempty" db:"margin"`
	TypeLocal    *string  `json:"type_local,omitempty" db:"type_local"`
	Address      *string  `json:"address,omitempty" db:"address"`
}

// Valid reports whether the point satisfies the load invariant: finite
// coordinates inside [-90, 90] x [-180, 180]. Points failing this are
// dropped during store construction.
func (p *Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) {
		return false
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Cluster is an aggregate over one or more points that fell into the same
// grid or H3 cell. Latitude/Longitude are the centroid of the contributing
// points and Count is the number of points represented.
//
// The optional fields are representatives: when Count == 1 they are
// authoritative for that single point, when Count > 1 they are aggregate
// summaries only (first id/type/address, max margin). LatIdx and LonIdx are
// debug metadata emitted on the tile path; frontends must not rely on them.
type Cluster struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Count     int      `json:"count"`
	ID        *string  `json:"id,omitempty"`
	Margin    *float64 `json:"margin,omitempty"`
	TypeLocal *string  `json:"type_local,omitempty"`
	Address   *string  `json:"address,omitempty"`
	LatIdx    *int     `json:"lat_idx,omitempty"`
	LonIdx    *int     `json:"lon_idx,omitempty"`
}

// APIError is the wire shape for user-visible failures. Internal errors
// never leak stack traces through it.
type APIError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// PrecomputeStatus is the snapshot exposed by GET /api/status.
type PrecomputeStatus struct {
	Running   bool   `json:"running"`
	Completed bool   `json:"completed"`
	Error     string `json:"error,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	APIReady   bool             `json:"api_ready"`
	Precompute PrecomputeStatus `json:"precompute"`
}
