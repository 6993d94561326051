// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBasicOperations(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	m.Set(ctx, "key1", "value1")
	value, ok := m.Get(ctx, "key1")
	if !ok {
		t.Error("Expected key1 to exist")
	}
	if value != "value1" {
		t.Errorf("Expected value1, got %q", value)
	}

	_, ok = m.Get(ctx, "missing")
	if ok {
		t.Error("Expected missing key to be absent")
	}
}

func TestMemoryExpiration(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	m.SetEx(ctx, "short", 50*time.Millisecond, "v")
	if _, ok := m.Get(ctx, "short"); !ok {
		t.Error("Expected entry to exist immediately after SetEx")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := m.Get(ctx, "short"); ok {
		t.Error("Expected entry to be expired")
	}
}

func TestMemorySetNoExpiry(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	// Set without TTL must not expire (the done marker relies on this).
	m.Set(ctx, "forever", "1")
	time.Sleep(30 * time.Millisecond)
	if _, ok := m.Get(ctx, "forever"); !ok {
		t.Error("Expected unexpiring entry to survive")
	}
}

func TestMemoryMGetPreservesOrder(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	m.Set(ctx, "a", "1")
	m.Set(ctx, "c", "3")

	values := m.MGet(ctx, "a", "b", "c")
	if len(values) != 3 {
		t.Fatalf("Expected 3 slots, got %d", len(values))
	}
	if !values[0].Present || values[0].Data != "1" {
		t.Errorf("slot 0: expected present 1, got %+v", values[0])
	}
	if values[1].Present {
		t.Errorf("slot 1: expected absent, got %+v", values[1])
	}
	if !values[2].Present || values[2].Data != "3" {
		t.Errorf("slot 2: expected present 3, got %+v", values[2])
	}
}

func TestMemoryMGetEmpty(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	if got := m.MGet(context.Background()); len(got) != 0 {
		t.Errorf("Expected no slots for no keys, got %d", len(got))
	}
}

func TestMemoryLeaseExclusive(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	lease := m.Lease(ctx, "lock", time.Minute)
	if lease == nil {
		t.Fatal("Expected first lease acquisition to succeed")
	}
	if second := m.Lease(ctx, "lock", time.Minute); second != nil {
		t.Error("Expected second acquisition to fail while held")
	}

	lease.Release(ctx)
	if third := m.Lease(ctx, "lock", time.Minute); third == nil {
		t.Error("Expected acquisition to succeed after release")
	}
}

func TestMemoryLeaseExpires(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	if m.Lease(ctx, "lock", 40*time.Millisecond) == nil {
		t.Fatal("Expected first acquisition to succeed")
	}
	time.Sleep(60 * time.Millisecond)
	if m.Lease(ctx, "lock", time.Minute) == nil {
		t.Error("Expected acquisition to succeed after the old lease expired")
	}
}

func TestMemoryPipeline(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	pipe := m.Pipeline()
	pipe.SetEx("p1", time.Minute, "v1")
	pipe.SetEx("p2", time.Minute, "v2")

	if pipe.Len() != 2 {
		t.Errorf("Expected 2 pending writes, got %d", pipe.Len())
	}
	// Nothing visible before the flush.
	if _, ok := m.Get(ctx, "p1"); ok {
		t.Error("Expected pending write to be invisible before Flush")
	}

	if err := pipe.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if pipe.Len() != 0 {
		t.Errorf("Expected pipeline drained, got %d pending", pipe.Len())
	}
	for _, key := range []string{"p1", "p2"} {
		if _, ok := m.Get(ctx, key); !ok {
			t.Errorf("Expected %s to exist after Flush", key)
		}
	}
}
