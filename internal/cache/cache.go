// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

// Package cache abstracts the remote key/value store backing the tile and
// viewport caches. Two implementations exist: Redis (production) and
// Memory (tests, or REDIS_URL=memory:// deployments without a backend).
//
// The client is deliberately failure-swallowing: when the backend is
// unreachable, reads report absent, writes are dropped with a WARN, and
// lease acquisition reports "held elsewhere". The serving path therefore
// degrades to compute-on-every-request instead of failing requests.
package cache

import (
	"context"
	"time"
)

// Value is one slot of an MGet reply, aligned to the requested keys.
type Value struct {
	Data    string
	Present bool
}

// Cache is the capability set the pipeline needs from the remote store.
// All methods are safe for concurrent use.
type Cache interface {
	// Get returns the value for key, or ok=false when the key is absent
	// or the backend is unreachable. Bounded by the client socket timeout.
	Get(ctx context.Context, key string) (value string, ok bool)

	// MGet fetches all keys in a single round trip. The reply is aligned
	// to keys; on backend failure every slot reports absent.
	MGet(ctx context.Context, keys ...string) []Value

	// SetEx stores value under key with a TTL. Fire-and-forget: failures
	// are swallowed and logged, and the call must not extend the latency
	// of the request that triggered it.
	SetEx(ctx context.Context, key string, ttl time.Duration, value string)

	// Set stores value under key without expiry. Same fire-and-forget
	// semantics as SetEx.
	Set(ctx context.Context, key, value string)

	// Pipeline returns a write batcher for bulk SetEx operations.
	Pipeline() Pipeliner

	// Lease attempts to acquire the named lease (SET NX EX). Returns nil
	// when the lease is already held or the backend is unreachable.
	Lease(ctx context.Context, name string, ttl time.Duration) *Lease
}

// Pipeliner batches SetEx writes into a single flush. Write ordering
// within a batch is not guaranteed. Not safe for concurrent use; each
// goroutine should own its pipeline.
type Pipeliner interface {
	SetEx(key string, ttl time.Duration, value string)
	// Len returns the number of queued writes.
	Len() int
	// Flush sends the queued writes and resets the batch.
	Flush(ctx context.Context) error
}

// Lease is a time-limited exclusive claim on a name in the remote store.
type Lease struct {
	name    string
	release func(ctx context.Context)
}

// Name returns the lease key.
func (l *Lease) Name() string { return l.name }

// Release gives up the lease. Best-effort: a failed delete simply lets the
// lease expire at its TTL.
func (l *Lease) Release(ctx context.Context) {
	if l.release != nil {
		l.release(ctx)
	}
}
