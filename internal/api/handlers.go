// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package api provides the HTTP surface: viewport marker queries, raw
// tile queries, readiness status and the embedded map page.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/models"
	"github.com/tomtom215/parcelmap/internal/precompute"
	"github.com/tomtom215/parcelmap/internal/store"
	"github.com/tomtom215/parcelmap/internal/tiles"
	"github.com/tomtom215/parcelmap/internal/viewport"
)

// Cache-Control max-age values, in seconds. Viewport responses are cheap
// to recompute and the data behind a tile never changes within a deploy.
const (
	markersMaxAge = 60
	tileMaxAge    = 86400
)

// Handler holds the services behind the HTTP endpoints.
type Handler struct {
	store      *store.Store
	viewport   *viewport.Service
	tiles      *tiles.Service
	precompute *precompute.Precomputer
}

// NewHandler creates the endpoint handler set.
func NewHandler(st *store.Store, vp *viewport.Service, ts *tiles.Service, pc *precompute.Precomputer) *Handler {
	return &Handler{store: st, viewport: vp, tiles: ts, precompute: pc}
}

// Markers handles GET /api/markers: clusters for a lat/lon viewport.
//
// Query parameters: min_lat, max_lat, min_lon, max_lon, zoom. All five are
// required; malformed or out-of-range values produce a 400 with a JSON
// error body rather than a partial answer.
func (h *Handler) Markers(w http.ResponseWriter, r *http.Request) {
	q, err := parseViewportQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid viewport query", err.Error())
		return
	}

	clusters, err := h.viewport.Markers(r.Context(), q)
	if err != nil {
		logging.Error().Err(err).Msg("Viewport query failed")
		respondError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(markersMaxAge))
	respondJSON(w, http.StatusOK, clusters)
}

// Tile handles GET /api/tiles/{z}/{x}/{y}: the cluster set for one Web
// Mercator tile.
func (h *Handler) Tile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		respondError(w, http.StatusBadRequest, "invalid tile coordinates", "z, x and y must be integers")
		return
	}
	if z < tiles.MinZoom || z > tiles.MaxZoom {
		respondError(w, http.StatusBadRequest, "invalid tile coordinates",
			"zoom must be between "+strconv.Itoa(tiles.MinZoom)+" and "+strconv.Itoa(tiles.MaxZoom))
		return
	}
	max := 1 << uint(z)
	if x < 0 || x >= max || y < 0 || y >= max {
		respondError(w, http.StatusBadRequest, "invalid tile coordinates",
			"x and y must be within [0, 2^zoom)")
		return
	}

	clusters, err := h.tiles.Get(r.Context(), z, x, y)
	if err != nil {
		logging.Error().Err(err).Int("z", z).Int("x", x).Int("y", y).Msg("Tile query failed")
		respondError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(tileMaxAge))
	respondJSON(w, http.StatusOK, clusters)
}

// Status handles GET /api/status: dataset readiness plus the precompute
// snapshot. The API is ready as soon as the store is loaded; precompute
// completion only affects cold-tile latency, never correctness.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := models.StatusResponse{
		APIReady:   !h.store.IsEmpty(),
		Precompute: h.precompute.Status(),
	}
	respondJSON(w, http.StatusOK, resp)
}

// parseViewportQuery extracts and validates the viewport parameters.
func parseViewportQuery(r *http.Request) (viewport.Query, error) {
	var q viewport.Query
	fields := []struct {
		name string
		dst  *float64
	}{
		{"min_lat", &q.MinLat},
		{"max_lat", &q.MaxLat},
		{"min_lon", &q.MinLon},
		{"max_lon", &q.MaxLon},
		{"zoom", &q.Zoom},
	}
	for _, f := range fields {
		raw := r.URL.Query().Get(f.name)
		if raw == "" {
			return q, &paramError{f.name, "missing"}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, &paramError{f.name, "not a number"}
		}
		*f.dst = v
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

type paramError struct {
	param  string
	reason string
}

func (e *paramError) Error() string {
	return "parameter " + e.param + ": " + e.reason
}

// respondJSON writes v as a JSON body. Encoding failures at this point can
// only be programming errors, so they are logged and the connection is
// left to die.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError writes the uniform error body.
func respondError(w http.ResponseWriter, status int, msg, detail string) {
	respondJSON(w, status, models.APIError{Error: msg, Detail: detail})
}
