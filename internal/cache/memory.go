// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package cache

import (
	"context"
	"sync"
	"time"
)

// entry is a stored value with optional expiration. A zero ExpiresAt means
// the entry never expires.
type entry struct {
	data      string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is a thread-safe in-memory Cache with TTL support. It implements
// the full remote-store capability set, including SET NX EX lease
// semantics, so the serving path and the tests run unchanged against it.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	stop    chan struct{}
	once    sync.Once
}

// assert interface compliance at compile time.
var _ Cache = (*Memory)(nil)

// NewMemory creates an in-memory cache. A background janitor removes
// expired entries every minute; call Close to stop it.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Close stops the background janitor. Safe to call multiple times.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for k, e := range m.entries {
				if e.expired(now) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return "", false
	}
	return e.data, true
}

// MGet implements Cache.
func (m *Memory) MGet(_ context.Context, keys ...string) []Value {
	now := time.Now()
	out := make([]Value, len(keys))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, k := range keys {
		if e, ok := m.entries[k]; ok && !e.expired(now) {
			out[i] = Value{Data: e.data, Present: true}
		}
	}
	return out
}

// SetEx implements Cache.
func (m *Memory) SetEx(_ context.Context, key string, ttl time.Duration, value string) {
	m.mu.Lock()
	m.entries[key] = entry{data: value, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key, value string) {
	m.mu.Lock()
	m.entries[key] = entry{data: value}
	m.mu.Unlock()
}

// Pipeline implements Cache. The memory pipeline simply defers writes
// until Flush so precompute batching behaves the same as against Redis.
func (m *Memory) Pipeline() Pipeliner {
	return &memoryPipeline{cache: m}
}

// Lease implements Cache with SET NX EX semantics under the cache mutex.
func (m *Memory) Lease(_ context.Context, name string, ttl time.Duration) *Lease {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[name]; ok && !e.expired(time.Now()) {
		return nil
	}
	m.entries[name] = entry{data: "1", expiresAt: time.Now().Add(ttl)}
	return &Lease{
		name: name,
		release: func(context.Context) {
			m.mu.Lock()
			delete(m.entries, name)
			m.mu.Unlock()
		},
	}
}

// Len returns the number of live entries. Test helper.
func (m *Memory) Len() int {
	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

type pendingWrite struct {
	key   string
	ttl   time.Duration
	value string
}

type memoryPipeline struct {
	cache   *Memory
	pending []pendingWrite
}

func (p *memoryPipeline) SetEx(key string, ttl time.Duration, value string) {
	p.pending = append(p.pending, pendingWrite{key: key, ttl: ttl, value: value})
}

func (p *memoryPipeline) Len() int { return len(p.pending) }

func (p *memoryPipeline) Flush(ctx context.Context) error {
	for _, w := range p.pending {
		p.cache.SetEx(ctx, w.key, w.ttl, w.value)
	}
	p.pending = p.pending[:0]
	return nil
}
