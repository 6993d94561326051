// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tomtom215/parcelmap/internal/config"
	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/models"
)

// cachedCSVName is the filename under the system temp directory where the
// downloaded dataset is kept between restarts.
const cachedCSVName = "source_data.csv"

const downloadTimeout = 5 * time.Minute

// loadCSV reads the dataset from a local CSV file, downloading it first
// when only a URL is configured and no cached copy exists.
func loadCSV(ctx context.Context, cfg config.DatasetConfig) ([]models.Point, error) {
	path := cfg.CSVPath
	if path == "" {
		path = filepath.Join(os.TempDir(), cachedCSVName)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := download(ctx, cfg.CSVURL, path); err != nil {
				return nil, fmt.Errorf("download dataset: %w", err)
			}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return parseCSV(f)
}

// download fetches url into path via a temp file so a partial download
// never masquerades as a complete dataset.
func download(ctx context.Context, url, path string) error {
	logging.Info().Str("url", url).Msg("Downloading dataset CSV")

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), cachedCSVName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// parseCSV decodes points from a header-addressed CSV stream. The source
// export names the key column "property_id"; both it and "id" are
// accepted. Rows with unparseable coordinates are skipped with a count.
func parseCSV(r io.Reader) ([]models.Point, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	// Ragged rows are handled by the per-row column checks below instead
	// of aborting the whole load.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	idCol, ok := col["id"]
	if !ok {
		idCol, ok = col["property_id"]
	}
	latCol, latOK := col["latitude"]
	lonCol, lonOK := col["longitude"]
	if !ok || !latOK || !lonOK {
		return nil, fmt.Errorf("csv missing required columns (id/property_id, latitude, longitude)")
	}

	field := func(rec []string, name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(rec) || rec[i] == "" {
			return "", false
		}
		return rec[i], true
	}

	var points []models.Point
	skipped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if idCol >= len(rec) || latCol >= len(rec) || lonCol >= len(rec) {
			skipped++
			continue
		}

		lat, latErr := strconv.ParseFloat(rec[latCol], 64)
		lon, lonErr := strconv.ParseFloat(rec[lonCol], 64)
		if latErr != nil || lonErr != nil {
			skipped++
			continue
		}

		p := models.Point{ID: rec[idCol], Latitude: lat, Longitude: lon}
		if s, ok := field(rec, "days_on_market"); ok {
			if v, err := strconv.Atoi(s); err == nil {
				p.DaysOnMarket = &v
			}
		}
		if s, ok := field(rec, "margin"); ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				p.Margin = &v
			}
		}
		if s, ok := field(rec, "type_local"); ok {
			v := s
			p.TypeLocal = &v
		}
		if s, ok := field(rec, "address"); ok {
			v := s
			p.Address = &v
		}
		points = append(points, p)
	}

	if skipped > 0 {
		logging.Warn().Int("skipped", skipped).Msg("Skipped unparseable CSV rows")
	}
	return points, nil
}
