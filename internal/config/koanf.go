// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/parcelmap/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envToPath maps the recognized environment variables onto koanf paths.
// The flat names are kept for compatibility with the existing deployment
// (REDIS_URL, CSV_URL, DATABASE_URL, SKIP_PRECOMPUTE).
var envToPath = map[string]string{
	"HOST":                  "server.host",
	"PORT":                  "server.port",
	"REQUEST_TIMEOUT":       "server.request_timeout",
	"SHUTDOWN_TIMEOUT":      "server.shutdown_timeout",
	"RATE_LIMIT":            "server.rate_limit",
	"REDIS_URL":             "redis.url",
	"CSV_URL":               "dataset.csv_url",
	"CSV_PATH":              "dataset.csv_path",
	"DATABASE_URL":          "dataset.database_url",
	"CLUSTER_MODE":          "cluster.mode",
	"SKIP_PRECOMPUTE":       "precompute.skip",
	"PRECOMPUTE_WORKERS":    "precompute.workers",
	"PRECOMPUTE_MIN_ZOOM":   "precompute.min_zoom",
	"PRECOMPUTE_MAX_ZOOM":   "precompute.max_zoom",
	"PREWARM_MAX_ZOOM":      "precompute.prewarm_max_zoom",
	"PRECOMPUTE_FLUSH":      "precompute.flush_every",
	"REGION_MIN_LAT":        "precompute.region.min_lat",
	"REGION_MAX_LAT":        "precompute.region.max_lat",
	"REGION_MIN_LON":        "precompute.region.min_lon",
	"REGION_MAX_LON":        "precompute.region.max_lon",
	"LOG_LEVEL":             "logging.level",
	"LOG_FORMAT":            "logging.format",
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: struct defaults.
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: optional config file.
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables. Unknown variables map to "" and
	// are skipped by the provider.
	envProvider := env.Provider("", ".", func(key string) string {
		return envToPath[key]
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
