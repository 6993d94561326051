// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/parcelmap/internal/logging"
	"github.com/tomtom215/parcelmap/internal/precompute"
)

// HTTPService runs an http.Server under supervision. Context cancellation
// triggers a graceful shutdown bounded by ShutdownTimeout.
type HTTPService struct {
	Server          *http.Server
	ShutdownTimeout time.Duration
}

// Serve implements suture.Service.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.Server.Addr).Msg("HTTP server listening")
		errCh <- s.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP server shutdown incomplete")
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }

// PrecomputeService runs the tile precompute pass once. A failed pass is
// reported through the precomputer's status and not retried; the tile
// layer computes on demand regardless, so restarting would only repeat
// work the next request does anyway.
type PrecomputeService struct {
	Precomputer *precompute.Precomputer
}

// Serve implements suture.Service.
func (s *PrecomputeService) Serve(ctx context.Context) error {
	if err := s.Precomputer.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		logging.Error().Err(err).Msg("Precompute pass failed")
	}
	return suture.ErrDoNotRestart
}

func (s *PrecomputeService) String() string { return "precompute" }

// PrewarmService runs the synchronous low-zoom pre-warm pass once.
type PrewarmService struct {
	Precomputer *precompute.Precomputer
}

// Serve implements suture.Service.
func (s *PrewarmService) Serve(ctx context.Context) error {
	s.Precomputer.Prewarm(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return suture.ErrDoNotRestart
}

func (s *PrewarmService) String() string { return "prewarm" }
