// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/parcelmap/internal/config"
	"github.com/tomtom215/parcelmap/internal/middleware"
)

// NewRouter wires the full route table with the shared middleware stack.
//
// Rate limiting applies to /api only; the map page, the Prometheus scrape
// endpoint and static assets stay unmetered.
func NewRouter(cfg config.ServerConfig, h *Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		// The map page may be hosted anywhere; the API serves public,
		// read-only data.
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.Compression)

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
		r.Use(middleware.PrometheusMetrics("/api"))

		r.Get("/markers", h.Markers)
		r.Get("/tiles/{z}/{x}/{y}", h.Tile)
		r.Get("/status", h.Status)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", h.Index)

	return r
}
