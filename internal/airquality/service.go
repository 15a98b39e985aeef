package airquality

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/airsentry/airsentry/internal/cache"
)

// Per-client cache TTL defaults from the fetch pipeline contract.
const (
	DefaultSatelliteTTL = 15 * time.Minute
	DefaultGroundTTL    = 10 * time.Minute
)

// ServiceConfig holds configuration for the fetch pipeline.
type ServiceConfig struct {
	// Satellite is the satellite product client (mock fallback).
	Satellite Client

	// GroundA is the EPA-style station network client (no fallback; skipped
	// in the merge on failure).
	GroundA Client

	// GroundB is the OpenAQ-style station network client (mock fallback).
	GroundB Client

	// Logger for pipeline operations.
	Logger zerolog.Logger

	// SatelliteTTL overrides the satellite cache TTL (default 15m).
	SatelliteTTL time.Duration

	// GroundTTL overrides the ground-network cache TTL (default 10m).
	GroundTTL time.Duration
}

// Service is the multi-source fetch pipeline: it fans out to the upstream
// clients through per-client TTL caches, then canonicalizes whatever subset of
// payloads came back into a Snapshot. Mock payloads are valid cacheable
// values; client errors are never cached.
type Service struct {
	satellite Client
	groundA   Client
	groundB   Client
	logger    zerolog.Logger

	satCache     *cache.Cache[*Payload]
	groundACache *cache.Cache[*Payload]
	groundBCache *cache.Cache[*Payload]
}

// NewService creates the fetch pipeline.
func NewService(cfg ServiceConfig) *Service {
	satTTL := cfg.SatelliteTTL
	if satTTL == 0 {
		satTTL = DefaultSatelliteTTL
	}
	groundTTL := cfg.GroundTTL
	if groundTTL == 0 {
		groundTTL = DefaultGroundTTL
	}

	return &Service{
		satellite:    cfg.Satellite,
		groundA:      cfg.GroundA,
		groundB:      cfg.GroundB,
		logger:       cfg.Logger,
		satCache:     cache.New[*Payload](satTTL),
		groundACache: cache.New[*Payload](groundTTL),
		groundBCache: cache.New[*Payload](groundTTL),
	}
}

// CurrentSnapshot resolves a query into a canonical snapshot. Any subset of
// providers may fail; a degraded snapshot is always preferable to an error.
// ErrUnavailable is returned only when no provider produced data at all (which
// requires mock fallbacks to be disabled by configuration).
func (s *Service) CurrentSnapshot(ctx context.Context, q Query) (*Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var satPayload, groundAPayload, groundBPayload *Payload

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		satPayload, err = s.cachedFetch(gctx, s.satCache, s.satellite, q)
		return err
	})
	g.Go(func() (err error) {
		groundAPayload, err = s.cachedFetch(gctx, s.groundACache, s.groundA, q)
		return err
	})
	g.Go(func() (err error) {
		groundBPayload, err = s.cachedFetch(gctx, s.groundBCache, s.groundB, q)
		return err
	})
	if err := g.Wait(); err != nil {
		// Only programmer errors propagate out of cachedFetch.
		return nil, err
	}

	if satPayload == nil && groundAPayload == nil && groundBPayload == nil {
		return nil, ErrUnavailable
	}

	snap := Canonicalize(q.Location(), time.Now(), satPayload, groundAPayload, groundBPayload)

	s.logger.Debug().
		Float64("lat", q.Lat).
		Float64("lng", q.Lng).
		Int("aqi", snap.AQI).
		Strs("sources", snap.Sources).
		Str("confidence", string(snap.DataQuality.Confidence)).
		Msg("snapshot canonicalized")

	return snap, nil
}

// cachedFetch resolves one provider through its cache with single-flight
// coalescing. A provider that produced nothing yields a nil payload, not an
// error; only ErrBadRequest and ErrInternal escape.
func (s *Service) cachedFetch(ctx context.Context, c *cache.Cache[*Payload], client Client, q Query) (*Payload, error) {
	if client == nil {
		return nil, nil
	}

	payload, err := c.GetOrCompute(ctx, q.CacheKey(), func(ctx context.Context) (*Payload, error) {
		return client.Fetch(ctx, q)
	})
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInternal) {
			return nil, err
		}
		// Clients absorb transport failures; anything else unexpected is
		// logged and treated as an absent source.
		s.logger.Error().Err(err).Str("provider", client.Name()).Msg("unexpected provider error")
		return nil, nil
	}
	return payload, nil
}

// Sweep evicts expired entries from all provider caches and returns the total
// number of evictions.
func (s *Service) Sweep() int {
	return s.satCache.Sweep() + s.groundACache.Sweep() + s.groundBCache.Sweep()
}
