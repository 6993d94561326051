// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/metrics"
)

// Redis client tuning. The socket timeout bounds every read the request
// path performs; the pool size matches the expected fan-out concurrency.
const (
	redisPoolSize      = 500
	redisSocketTimeout = time.Second

	breakerFailureThreshold = 3
	breakerOpenTimeout      = 30 * time.Second
)

// Redis is the production Cache backed by a shared go-redis connection
// pool. Reads go through a circuit breaker so a dead backend costs one
// socket timeout per trip instead of one per key; while the breaker is
// open every read reports absent immediately and the pipeline computes
// tiles from the point store instead.
type Redis struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[any]
}

var _ Cache = (*Redis)(nil)

// NewRedis creates a Redis cache client from a redis:// URL. Construction
// succeeds even when the backend is down; connectivity is probed once and
// logged so operators see the degraded mode.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = redisPoolSize
	opts.DialTimeout = redisSocketTimeout
	opts.ReadTimeout = redisSocketTimeout
	opts.WriteTimeout = redisSocketTimeout

	r := &Redis{
		client: redis.NewClient(opts),
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:    "redis-reads",
			Timeout: breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Redis circuit breaker state change")
			},
		}),
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), redisSocketTimeout)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		logging.Warn().Err(err).Msg("Redis unreachable at startup, serving in degraded mode")
	}
	return r, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error { return r.client.Close() }

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	res, err := r.breaker.Execute(func() (any, error) {
		val, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return val, nil
	})
	if err != nil {
		metrics.RedisOpErrors.WithLabelValues("get").Inc()
		logging.Warn().Err(err).Str("key", key).Msg("Redis GET failed")
		return "", false
	}
	val, ok := res.(string)
	return val, ok
}

// MGet implements Cache.
func (r *Redis) MGet(ctx context.Context, keys ...string) []Value {
	out := make([]Value, len(keys))
	if len(keys) == 0 {
		return out
	}

	res, err := r.breaker.Execute(func() (any, error) {
		return r.client.MGet(ctx, keys...).Result()
	})
	if err != nil {
		metrics.RedisOpErrors.WithLabelValues("mget").Inc()
		logging.Warn().Err(err).Int("keys", len(keys)).Msg("Redis MGET failed")
		return out
	}

	raw, _ := res.([]interface{})
	for i := range raw {
		if i >= len(out) {
			break
		}
		if s, ok := raw[i].(string); ok {
			out[i] = Value{Data: s, Present: true}
		}
	}
	return out
}

// SetEx implements Cache. The write happens on a detached goroutine with
// its own deadline so it never extends the latency of the request that
// produced the value.
func (r *Redis) SetEx(ctx context.Context, key string, ttl time.Duration, value string) {
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		opCtx, cancel := context.WithTimeout(writeCtx, redisSocketTimeout)
		defer cancel()
		if err := r.client.SetEx(opCtx, key, value, ttl).Err(); err != nil {
			metrics.RedisOpErrors.WithLabelValues("setex").Inc()
			logging.Warn().Err(err).Str("key", key).Msg("Redis SETEX failed")
		}
	}()
}

// Set implements Cache. Same fire-and-forget semantics as SetEx.
func (r *Redis) Set(ctx context.Context, key, value string) {
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		opCtx, cancel := context.WithTimeout(writeCtx, redisSocketTimeout)
		defer cancel()
		if err := r.client.Set(opCtx, key, value, 0).Err(); err != nil {
			metrics.RedisOpErrors.WithLabelValues("set").Inc()
			logging.Warn().Err(err).Str("key", key).Msg("Redis SET failed")
		}
	}()
}

// Pipeline implements Cache.
func (r *Redis) Pipeline() Pipeliner {
	return &redisPipeline{client: r.client}
}

// Lease implements Cache using SET NX EX. A nil return means the lease is
// held by another process or the backend is unreachable; either way the
// caller must not proceed.
func (r *Redis) Lease(ctx context.Context, name string, ttl time.Duration) *Lease {
	ok, err := r.client.SetNX(ctx, name, "1", ttl).Result()
	if err != nil {
		metrics.RedisOpErrors.WithLabelValues("setnx").Inc()
		logging.Warn().Err(err).Str("lease", name).Msg("Redis lease acquisition failed")
		return nil
	}
	if !ok {
		return nil
	}
	return &Lease{
		name: name,
		release: func(ctx context.Context) {
			opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisSocketTimeout)
			defer cancel()
			if err := r.client.Del(opCtx, name).Err(); err != nil {
				logging.Warn().Err(err).Str("lease", name).Msg("Redis lease release failed")
			}
		},
	}
}

type redisPipeline struct {
	client  *redis.Client
	pending []pendingWrite
}

func (p *redisPipeline) SetEx(key string, ttl time.Duration, value string) {
	p.pending = append(p.pending, pendingWrite{key: key, ttl: ttl, value: value})
}

func (p *redisPipeline) Len() int { return len(p.pending) }

// Flush sends all queued writes in a single pipelined round trip.
func (p *redisPipeline) Flush(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, w := range p.pending {
		pipe.SetEx(ctx, w.key, w.value, w.ttl)
	}
	p.pending = p.pending[:0]
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOpErrors.WithLabelValues("pipeline").Inc()
		return fmt.Errorf("pipeline exec: %w", err)
	}
	return nil
}
