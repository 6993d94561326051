// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package metrics exposes Prometheus instrumentation for the viewport
// pipeline: cache efficiency per layer, clusterer work, redis health and
// HTTP latency. Scraped via GET /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tile cache metrics
	TileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tile_cache_hits_total",
			Help: "Total number of tile cache hits",
		},
	)

	TileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tile_cache_misses_total",
			Help: "Total number of tile cache misses",
		},
	)

	// Viewport cache metrics
	ViewportCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "viewport_cache_hits_total",
			Help: "Total number of viewport cache hits",
		},
	)

	ViewportCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "viewport_cache_misses_total",
			Help: "Total number of viewport cache misses",
		},
	)

	// Clusterer metrics
	ClusterInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cluster_invocations_total",
			Help: "Total number of clusterer invocations",
		},
		[]string{"mode"},
	)

	ClusterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cluster_duration_seconds",
			Help:    "Duration of a single tile clustering pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Remote cache client metrics
	RedisOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_op_errors_total",
			Help: "Total number of failed redis operations",
		},
		[]string{"op"},
	)

	// Precompute metrics
	PrecomputeTiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "precompute_tiles_total",
			Help: "Total number of tiles written by the precomputer",
		},
	)

	PrecomputeDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "precompute_duration_seconds",
			Help: "Duration of the last completed precompute run in seconds",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)

// RecordHTTPRequest records one request observation.
func RecordHTTPRequest(path, method string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(path, method, strconv.Itoa(status)).
		Observe(duration.Seconds())
}
