// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package main is the entry point for the Parcelmap server.
//
// Parcelmap serves a map of French property records as clustered markers.
// The dataset is loaded once at startup, held in an immutable in-memory
// store, and queried through a three-tier read path: viewport result
// cache, per-tile cluster cache, on-demand clustering.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layered sources (env > config.yaml > defaults)
//  2. Dataset: Postgres when DATABASE_URL is set, CSV download otherwise
//  3. Cache: Redis (REDIS_URL), or the in-process cache for memory://
//  4. Services: clusterer, tile service, viewport service, precomputer
//  5. Supervisor tree: HTTP server plus background precompute/pre-warm
//
// # Configuration
//
// Everything is controlled through environment variables; see
// internal/config for the full list. The common ones:
//
//	export REDIS_URL=redis://redis:6379/0
//	export CSV_URL=https://example.com/source_data.csv
//	export CLUSTER_MODE=h3        # or grid
//	export SKIP_PRECOMPUTE=true   # serve on-demand only
//	export PORT=8000
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: the server stops
// accepting connections, in-flight requests get ShutdownTimeout to
// finish, and background passes are canceled.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/parcelmap/internal/api"
	"github.com/tomtom215/parcelmap/internal/cache"
	"github.com/tomtom215/parcelmap/internal/cluster"
	"github.com/tomtom215/parcelmap/internal/config"
	"github.com/tomtom215/parcelmap/internal/loader"
	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/precompute"
	"github.com/tomtom215/parcelmap/internal/store"
	"github.com/tomtom215/parcelmap/internal/supervisor"
	"github.com/tomtom215/parcelmap/internal/tiles"
	"github.com/tomtom215/parcelmap/internal/viewport"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("cluster_mode", cfg.Cluster.Mode).
		Bool("skip_precompute", cfg.Precompute.Skip).
		Bool("memory_cache", cfg.MemoryCache()).
		Msg("Starting Parcelmap")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load the dataset before binding the port; an empty dataset means
	// every query would return nothing, which is a deployment error worth
	// failing loudly on.
	points, err := loader.Load(ctx, cfg.Dataset)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load dataset")
	}
	if len(points) == 0 {
		logging.Fatal().Msg("Dataset is empty")
	}
	st := store.New(points)
	logging.Info().Int("points", st.Len()).Msg("Point store ready")

	var c cache.Cache
	if cfg.MemoryCache() {
		mem := cache.NewMemory()
		defer mem.Close()
		c = mem
		logging.Warn().Msg("Using in-process cache; entries do not survive restarts")
	} else {
		redis, err := cache.NewRedis(cfg.Redis.URL)
		if err != nil {
			logging.Fatal().Err(err).Str("url", cfg.Redis.URL).Msg("Failed to configure Redis client")
		}
		defer redis.Close()
		c = redis
	}

	clusterer := cluster.New(cluster.Mode(cfg.Cluster.Mode))
	tileSvc := tiles.New(st, c, clusterer)
	viewportSvc := viewport.New(c, tileSvc)
	precomputer := precompute.New(st, c, clusterer, tileSvc, cfg.Precompute)

	handler := api.NewHandler(st, viewportSvc, tileSvc, precomputer)
	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: api.NewRouter(cfg.Server, handler),
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(&supervisor.HTTPService{
		Server:          server,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if cfg.Precompute.Skip {
		logging.Info().Msg("Precompute disabled (SKIP_PRECOMPUTE)")
	} else {
		tree.AddBackgroundService(&supervisor.PrewarmService{Precomputer: precomputer})
		tree.AddBackgroundService(&supervisor.PrecomputeService{Precomputer: precomputer})
	}

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree terminated")
		os.Exit(1)
	}
	logging.Info().Msg("Shutdown complete")
}
