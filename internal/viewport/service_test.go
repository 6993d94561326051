// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package viewport

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/parcelmap/internal/cache"
	"github.com/tomtom215/parcelmap/internal/cluster"
	"github.com/tomtom215/parcelmap/internal/models"
	"github.com/tomtom215/parcelmap/internal/store"
	"github.com/tomtom215/parcelmap/internal/tiles"
)

// Three-point fixture: two close points near Paris, one in Marseille.
func testStore() *store.Store {
	return store.New([]models.Point{
		{ID: "p1", Latitude: 48.85, Longitude: 2.35},
		{ID: "p2", Latitude: 48.86, Longitude: 2.36},
		{ID: "p3", Latitude: 43.30, Longitude: 5.40},
	})
}

// franceQuery covers all three fixture points.
func franceQuery(zoom float64) Query {
	return Query{MinLat: 41.0, MaxLat: 51.5, MinLon: -5.5, MaxLon: 10.0, Zoom: zoom}
}

func newService(t *testing.T, c cache.Cache) *Service {
	t.Helper()
	ts := tiles.New(testStore(), c, cluster.New(cluster.ModeH3))
	return New(c, ts)
}

func sumCounts(clusters []models.Cluster) int {
	total := 0
	for _, c := range clusters {
		total += c.Count
	}
	return total
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"valid", franceQuery(8), false},
		{"inverted lat", Query{MinLat: 50, MaxLat: 40, MinLon: 0, MaxLon: 1, Zoom: 8}, true},
		{"inverted lon", Query{MinLat: 40, MaxLat: 50, MinLon: 5, MaxLon: 1, Zoom: 8}, true},
		{"lat out of range", Query{MinLat: -91, MaxLat: 50, MinLon: 0, MaxLon: 1, Zoom: 8}, true},
		{"lon out of range", Query{MinLat: 40, MaxLat: 50, MinLon: 0, MaxLon: 181, Zoom: 8}, true},
		{"zoom negative", Query{MinLat: 40, MaxLat: 50, MinLon: 0, MaxLon: 1, Zoom: -1}, true},
		{"degenerate allowed", Query{MinLat: 48.85, MaxLat: 48.85, MinLon: 2.35, MaxLon: 2.35, Zoom: 12}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected valid query, got %v", err)
			}
		})
	}
}

func TestRequestZoomClamping(t *testing.T) {
	tests := []struct {
		zoom float64
		want int
	}{
		{0, 6}, {5.9, 6}, {6, 6}, {9.7, 9}, {14, 14}, {18, 14}, {22, 14},
	}
	for _, tt := range tests {
		q := franceQuery(tt.zoom)
		if got := q.RequestZoom(); got != tt.want {
			t.Errorf("RequestZoom with zoom=%v: expected %d, got %d", tt.zoom, got, tt.want)
		}
	}
}

// Cold query: every fixture point is represented exactly once.
func TestMarkersColdQuery(t *testing.T) {
	mem := cache.NewMemory()
	defer mem.Close()
	svc := newService(t, mem)

	clusters, err := svc.Markers(context.Background(), franceQuery(8))
	if err != nil {
		t.Fatalf("Markers failed: %v", err)
	}
	if got := sumCounts(clusters); got != 3 {
		t.Errorf("Expected 3 points represented, got %d", got)
	}
}

// A repeated identical query is served from the viewport cache and returns
// the same clusters.
func TestMarkersRepeatQueryCoherent(t *testing.T) {
	mem := cache.NewMemory()
	defer mem.Close()
	svc := newService(t, mem)
	ctx := context.Background()
	q := franceQuery(8)

	first, err := svc.Markers(ctx, q)
	if err != nil {
		t.Fatalf("first Markers failed: %v", err)
	}

	// The viewport entry must now exist.
	vk := cache.ViewportKey(q.MinLat, q.MaxLat, q.MinLon, q.MaxLon, q.RequestZoom())
	if _, ok := mem.Get(ctx, vk); !ok {
		t.Fatal("Expected viewport cache entry after first query")
	}

	second, err := svc.Markers(ctx, q)
	if err != nil {
		t.Fatalf("second Markers failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("Expected identical responses, got %d vs %d clusters", len(first), len(second))
	}
	for i := range first {
		if first[i].Count != second[i].Count ||
			first[i].Latitude != second[i].Latitude ||
			first[i].Longitude != second[i].Longitude {
			t.Errorf("cluster %d differs between cold and cached reads", i)
		}
	}
}

// At the maximum zoom individual points come back verbatim.
func TestMarkersPointZoom(t *testing.T) {
	mem := cache.NewMemory()
	defer mem.Close()
	svc := newService(t, mem)

	q := Query{MinLat: 48.8, MaxLat: 48.9, MinLon: 2.3, MaxLon: 2.4, Zoom: 14}
	clusters, err := svc.Markers(context.Background(), q)
	if err != nil {
		t.Fatalf("Markers failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("Expected the 2 Paris points, got %d clusters", len(clusters))
	}
	ids := map[string]bool{}
	for _, c := range clusters {
		if c.Count != 1 {
			t.Errorf("Expected count 1 at max zoom, got %d", c.Count)
		}
		if c.ID != nil {
			ids[*c.ID] = true
		}
	}
	if !ids["p1"] || !ids["p2"] {
		t.Errorf("Expected ids p1 and p2, got %v", ids)
	}
}

// deadCache simulates an unreachable backend: all reads miss, all writes
// vanish, leases never acquire.
type deadCache struct{}

func (deadCache) Get(context.Context, string) (string, bool) { return "", false }
func (deadCache) MGet(_ context.Context, keys ...string) []cache.Value {
	return make([]cache.Value, len(keys))
}
func (deadCache) SetEx(context.Context, string, time.Duration, string)       {}
func (deadCache) Set(context.Context, string, string)                        {}
func (deadCache) Pipeline() cache.Pipeliner                                  { return deadPipeline{} }
func (deadCache) Lease(context.Context, string, time.Duration) *cache.Lease  { return nil }

type deadPipeline struct{}

func (deadPipeline) SetEx(string, time.Duration, string) {}
func (deadPipeline) Len() int                            { return 0 }
func (deadPipeline) Flush(context.Context) error         { return nil }

// With the backend gone every query degrades to full recomputation but
// still answers correctly.
func TestMarkersDegradedCache(t *testing.T) {
	svc := newService(t, deadCache{})

	for run := 0; run < 3; run++ {
		clusters, err := svc.Markers(context.Background(), franceQuery(8))
		if err != nil {
			t.Fatalf("run %d: Markers failed: %v", run, err)
		}
		if got := sumCounts(clusters); got != 3 {
			t.Errorf("run %d: expected 3 points represented, got %d", run, got)
		}
	}
}

// A narrow viewport only returns the points inside it.
func TestMarkersViewportFiltering(t *testing.T) {
	mem := cache.NewMemory()
	defer mem.Close()
	svc := newService(t, mem)

	// Marseille only.
	q := Query{MinLat: 43.0, MaxLat: 43.5, MinLon: 5.0, MaxLon: 5.6, Zoom: 10}
	clusters, err := svc.Markers(context.Background(), q)
	if err != nil {
		t.Fatalf("Markers failed: %v", err)
	}
	if got := sumCounts(clusters); got != 1 {
		t.Errorf("Expected only the Marseille point, got %d points", got)
	}
}
