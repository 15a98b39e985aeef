package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/cache"
)

// Provider defines the interface for weather data providers.
type Provider interface {
	// GetCurrentWeather fetches current weather for a location.
	GetCurrentWeather(ctx context.Context, lat, lng float64) (*Observation, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	// Provider is the weather data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache observations (default: 30 minutes).
	// Weather moves slower than air quality, so the long TTL is fine.
	CacheTTL time.Duration

	// CacheGridSize is the cache grid cell size in degrees (default: 0.1).
	// Points within the same cell share cached data.
	CacheGridSize float64
}

// Service provides weather observations with grid-cell TTL caching and
// single-flight coalescing. Weather is optional everywhere it is consumed: a
// provider failure yields ErrNoData and the forecast proceeds without it.
type Service struct {
	provider Provider
	logger   zerolog.Logger
	gridSize float64
	cache    *cache.Cache[*Observation]
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	gridSize := cfg.CacheGridSize
	if gridSize == 0 {
		gridSize = 0.1
	}

	return &Service{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		gridSize: gridSize,
		cache:    cache.New[*Observation](ttl),
	}
}

// Current returns the cached or freshly fetched observation for a location.
func (s *Service) Current(ctx context.Context, lat, lng float64) (*Observation, error) {
	if s.provider == nil {
		return nil, ErrNoData
	}

	obs, err := s.cache.GetOrCompute(ctx, s.gridKey(lat, lng), func(ctx context.Context) (*Observation, error) {
		return s.provider.GetCurrentWeather(ctx, lat, lng)
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).
				Float64("lat", lat).
				Float64("lng", lng).
				Str("provider", s.provider.Name()).
				Msg("weather fetch failed, proceeding without weather")
		}
		return nil, ErrNoData
	}
	return obs, nil
}

// Sweep evicts expired cache entries.
func (s *Service) Sweep() int {
	return s.cache.Sweep()
}

// gridKey snaps a point to its cache grid cell.
func (s *Service) gridKey(lat, lng float64) string {
	return fmt.Sprintf("%.1f,%.1f",
		math.Round(lat/s.gridSize)*s.gridSize,
		math.Round(lng/s.gridSize)*s.gridSize)
}
