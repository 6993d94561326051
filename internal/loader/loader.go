// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package loader materializes the property dataset exactly once at
// startup. Two sources are supported: a CSV file (downloaded to the
// system temp directory on first run, reused afterwards) and a Postgres
// `properties` table. A configured DATABASE_URL takes precedence over the
// CSV source.
//
// The loader only materializes records; coordinate validation and
// dropping happens in the store.
package loader

import (
	"context"
	"fmt"

	"github.com/tomtom215/parcelmap/internal/config"
	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/models"
)

// Load materializes the dataset from the configured source.
func Load(ctx context.Context, cfg config.DatasetConfig) ([]models.Point, error) {
	var (
		points []models.Point
		err    error
	)
	switch {
	case cfg.DatabaseURL != "":
		points, err = loadPostgres(ctx, cfg.DatabaseURL)
	case cfg.CSVPath != "" || cfg.CSVURL != "":
		points, err = loadCSV(ctx, cfg)
	default:
		return nil, fmt.Errorf("no dataset source configured")
	}
	if err != nil {
		return nil, err
	}
	logging.Info().Int("points", len(points)).Msg("Dataset loaded")
	return points, nil
}
