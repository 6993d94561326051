// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package tiles

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parcelmap/internal/cache"
	"github.com/tomtom215/parcelmap/internal/cluster"
	"github.com/tomtom215/parcelmap/internal/geo"
	"github.com/tomtom215/parcelmap/internal/models"
	"github.com/tomtom215/parcelmap/internal/store"
)

// parisTile contains central Paris at zoom 10.
var parisTile = geo.LatLonToTile(48.8566, 2.3522, 10)

func parisStore(n int) *store.Store {
	points := make([]models.Point, n)
	for i := range points {
		points[i] = models.Point{
			ID:        fmt.Sprintf("p-%d", i),
			Latitude:  48.8566 + float64(i%11)*0.001,
			Longitude: 2.3522 + float64(i%13)*0.001,
		}
	}
	return store.New(points)
}

func newService(t *testing.T, st *store.Store) (*Service, *cache.Memory) {
	t.Helper()
	mem := cache.NewMemory()
	t.Cleanup(mem.Close)
	return New(st, mem, cluster.New(cluster.ModeH3)), mem
}

func TestGetColdComputesAndCaches(t *testing.T) {
	svc, mem := newService(t, parisStore(50))
	ctx := context.Background()

	clusters, err := svc.Get(ctx, 10, parisTile.X, parisTile.Y)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	total := 0
	for _, c := range clusters {
		total += c.Count
	}
	if total != 50 {
		t.Errorf("Expected 50 points represented, got %d", total)
	}

	// The computed tile must now be in the cache.
	raw, ok := mem.Get(ctx, cache.TileKey(10, parisTile.X, parisTile.Y))
	if !ok {
		t.Fatal("Expected tile cached after cold compute")
	}
	var cached []models.Cluster
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		t.Fatalf("cached tile does not decode: %v", err)
	}
	if len(cached) != len(clusters) {
		t.Errorf("Expected %d cached clusters, got %d", len(clusters), len(cached))
	}
}

// A warm read must return exactly what the cold read stored.
func TestGetWarmMatchesCold(t *testing.T) {
	svc, _ := newService(t, parisStore(80))
	ctx := context.Background()

	cold, err := svc.Get(ctx, 10, parisTile.X, parisTile.Y)
	if err != nil {
		t.Fatalf("cold Get failed: %v", err)
	}
	warm, err := svc.Get(ctx, 10, parisTile.X, parisTile.Y)
	if err != nil {
		t.Fatalf("warm Get failed: %v", err)
	}
	if len(cold) != len(warm) {
		t.Fatalf("Expected identical responses, got %d vs %d clusters", len(cold), len(warm))
	}
	for i := range cold {
		if cold[i].Count != warm[i].Count ||
			cold[i].Latitude != warm[i].Latitude ||
			cold[i].Longitude != warm[i].Longitude {
			t.Errorf("cluster %d differs between cold and warm reads", i)
		}
	}
}

func TestGetEmptyTileNotCached(t *testing.T) {
	svc, mem := newService(t, parisStore(10))
	ctx := context.Background()

	// A tile over the ocean holds nothing.
	ocean := geo.LatLonToTile(46.0, -10.0, 10)
	clusters, err := svc.Get(ctx, 10, ocean.X, ocean.Y)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(clusters) != 0 {
		t.Errorf("Expected empty tile, got %d clusters", len(clusters))
	}
	if _, ok := mem.Get(ctx, cache.TileKey(10, ocean.X, ocean.Y)); ok {
		t.Error("Expected empty tile to stay uncached")
	}
}

func TestGetCorruptEntryRecomputed(t *testing.T) {
	svc, mem := newService(t, parisStore(30))
	ctx := context.Background()
	key := cache.TileKey(10, parisTile.X, parisTile.Y)

	mem.SetEx(ctx, key, cache.TileTTL, "{not json")

	clusters, err := svc.Get(ctx, 10, parisTile.X, parisTile.Y)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	total := 0
	for _, c := range clusters {
		total += c.Count
	}
	if total != 30 {
		t.Errorf("Expected recompute to represent 30 points, got %d", total)
	}

	// The overwrite must leave a decodable entry behind.
	raw, ok := mem.Get(ctx, key)
	if !ok {
		t.Fatal("Expected tile recached after corrupt entry")
	}
	var cached []models.Cluster
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		t.Errorf("Expected corrupt entry replaced, still undecodable: %v", err)
	}
}

func TestGetConcurrentSameTile(t *testing.T) {
	svc, _ := newService(t, parisStore(200))
	ctx := context.Background()

	const workers = 16
	results := make([][]models.Cluster, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clusters, err := svc.Get(ctx, 10, parisTile.X, parisTile.Y)
			if err != nil {
				t.Errorf("concurrent Get failed: %v", err)
				return
			}
			results[w] = clusters
		}()
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		if len(results[w]) != len(results[0]) {
			t.Fatalf("worker %d saw %d clusters, worker 0 saw %d", w, len(results[w]), len(results[0]))
		}
	}
}

func TestFillGridIndices(t *testing.T) {
	bbox := geo.TileToBBox(parisTile.X, parisTile.Y, 10)
	clusters := []models.Cluster{
		{Latitude: bbox.MinLat, Longitude: bbox.MinLon, Count: 3},
	}
	fillGridIndices(clusters, bbox)
	if clusters[0].LatIdx == nil || clusters[0].LonIdx == nil {
		t.Fatal("Expected indices filled")
	}
	if *clusters[0].LatIdx != 0 || *clusters[0].LonIdx != 0 {
		t.Errorf("Expected origin indices, got (%d, %d)", *clusters[0].LatIdx, *clusters[0].LonIdx)
	}

	// Existing indices are preserved.
	li, lo := 7, 9
	withIdx := []models.Cluster{{Latitude: bbox.MinLat, Longitude: bbox.MinLon, LatIdx: &li, LonIdx: &lo}}
	fillGridIndices(withIdx, bbox)
	if *withIdx[0].LatIdx != 7 || *withIdx[0].LonIdx != 9 {
		t.Error("Expected existing indices untouched")
	}
}
