// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package loader

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/tomtom215/parcelmap/internal/models"
)

// propertiesQuery reads the ingestion sink table. The schema is owned by
// the one-shot import job; this side only ever reads it.
const propertiesQuery = `
	SELECT id, latitude, longitude, days_on_market, margin, type_local, address
	FROM properties`

// loadPostgres materializes the dataset from a Postgres database.
func loadPostgres(ctx context.Context, url string) ([]models.Point, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var points []models.Point
	if err := db.SelectContext(ctx, &points, propertiesQuery); err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	return points, nil
}
