// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package config loads application configuration with Koanf v2 layered
// sources (highest priority wins):
//
//  1. Environment variables (REDIS_URL, CSV_URL, DATABASE_URL,
//     SKIP_PRECOMPUTE, ...)
//  2. Optional YAML config file (config.yaml)
//  3. Built-in defaults
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Redis      RedisConfig      `koanf:"redis"`
	Dataset    DatasetConfig    `koanf:"dataset"`
	Cluster    ClusterConfig    `koanf:"cluster"`
	Precompute PrecomputeConfig `koanf:"precompute"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// RequestTimeout is the overall deadline for one request.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// ShutdownTimeout bounds graceful shutdown; in-flight requests get
	// this long to complete.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is the per-client request budget per minute on /api.
	RateLimit int `koanf:"rate_limit"`
}

// RedisConfig holds remote cache settings. URL "memory://" selects the
// in-process cache implementation instead of a Redis backend.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// DatasetConfig selects the dataset loader. A non-empty DatabaseURL takes
// precedence over the CSV source; explicit configuration beats the CSV
// default.
type DatasetConfig struct {
	CSVURL      string `koanf:"csv_url"`
	CSVPath     string `koanf:"csv_path"` // local file, skips download when set
	DatabaseURL string `koanf:"database_url"`
}

// ClusterConfig selects the clustering mode: "h3" or "grid". The mode must
// stay consistent for the lifetime of the tile cache; switching it
// invalidates stored tiles.
type ClusterConfig struct {
	Mode string `koanf:"mode"`
}

// RegionConfig is the service-area rectangle the precomputer and pre-warm
// pass cover.
type RegionConfig struct {
	MinLat float64 `koanf:"min_lat"`
	MaxLat float64 `koanf:"max_lat"`
	MinLon float64 `koanf:"min_lon"`
	MaxLon float64 `koanf:"max_lon"`
}

// PrecomputeConfig holds background precompute settings.
type PrecomputeConfig struct {
	// Skip disables the precomputer entirely (SKIP_PRECOMPUTE).
	Skip bool `koanf:"skip"`

	// Workers bounds per-zoom parallelism.
	Workers int `koanf:"workers"`

	MinZoom int `koanf:"min_zoom"`
	MaxZoom int `koanf:"max_zoom"`

	// PrewarmMaxZoom bounds the synchronous pre-warm pass run at startup
	// (zooms MinZoom..PrewarmMaxZoom).
	PrewarmMaxZoom int `koanf:"prewarm_max_zoom"`

	// FlushEvery is the pipeline batch size between flushes.
	FlushEvery int `koanf:"flush_every"`

	Region RegionConfig `koanf:"region"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns the built-in defaults, applied before the config
// file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       600,
		},
		Redis: RedisConfig{
			URL: "redis://redis:6379/0",
		},
		Dataset: DatasetConfig{
			CSVURL: "https://pub-ecf2cacf42304db4aff89b230d889189.r2.dev/source_data.csv",
		},
		Cluster: ClusterConfig{
			Mode: "h3",
		},
		Precompute: PrecomputeConfig{
			Skip:           false,
			Workers:        8,
			MinZoom:        6,
			MaxZoom:        14,
			PrewarmMaxZoom: 8,
			FlushEvery:     1000,
			// Metropolitan France, the deployment's service area.
			Region: RegionConfig{
				MinLat: 41.0,
				MaxLat: 51.5,
				MinLon: -5.5,
				MaxLon: 10.0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field consistency. Called by Load.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url must not be empty (use memory:// for no backend)")
	}
	if c.Cluster.Mode != "h3" && c.Cluster.Mode != "grid" {
		return fmt.Errorf("cluster.mode %q must be h3 or grid", c.Cluster.Mode)
	}
	p := &c.Precompute
	if p.MinZoom < 0 || p.MaxZoom > 20 || p.MinZoom > p.MaxZoom {
		return fmt.Errorf("precompute zoom range [%d, %d] invalid", p.MinZoom, p.MaxZoom)
	}
	if p.PrewarmMaxZoom > p.MaxZoom {
		return fmt.Errorf("precompute.prewarm_max_zoom %d exceeds max_zoom %d", p.PrewarmMaxZoom, p.MaxZoom)
	}
	if p.Workers < 1 {
		return fmt.Errorf("precompute.workers must be >= 1")
	}
	if p.FlushEvery < 1 {
		return fmt.Errorf("precompute.flush_every must be >= 1")
	}
	r := &p.Region
	if r.MinLat >= r.MaxLat || r.MinLon >= r.MaxLon {
		return fmt.Errorf("precompute.region is degenerate")
	}
	if c.Dataset.CSVURL == "" && c.Dataset.CSVPath == "" && c.Dataset.DatabaseURL == "" {
		return fmt.Errorf("no dataset source configured")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MemoryCache reports whether the in-process cache implementation was
// selected instead of a Redis backend.
func (c *Config) MemoryCache() bool {
	return c.Redis.URL == "memory://"
}
