// Package scheduler drives the periodic refresh pipeline: it tracks hot
// locations (subscriber locations plus recent on-demand requests), refreshes
// each one through the cached provider pipeline, generates a forecast, and
// hands the result to the push bus and the alert dispatcher.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/dispatch"
	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/pushbus"
	"github.com/airsentry/airsentry/internal/subscription"
	"github.com/airsentry/airsentry/internal/weather"
)

// EventUpdate is the push bus event type for scheduled forecast refreshes.
const EventUpdate = "air-quality-update"

// Defaults.
const (
	DefaultInterval        = 15 * time.Minute
	DefaultConcurrency     = 4
	DefaultShutdownTimeout = 30 * time.Second
	DefaultHotCapacity     = 256
	DefaultHotTTL          = time.Hour
)

// RoomForLocation returns the push bus room for a quantized location.
func RoomForLocation(lat, lng float64) string {
	return fmt.Sprintf("loc:%.2f,%.2f", lat, lng)
}

// Config holds scheduler configuration.
type Config struct {
	// Logger for scheduler operations.
	Logger zerolog.Logger

	// AirQuality produces canonical snapshots through the cached clients.
	AirQuality *airquality.Service

	// Weather supplies observations for feature assembly. Optional.
	Weather *weather.Service

	// Engine generates forecasts.
	Engine *forecast.Engine

	// Registry supplies subscriber locations.
	Registry *subscription.Registry

	// Dispatcher receives every generated forecast. Optional.
	Dispatcher *dispatch.Dispatcher

	// Bus receives forecast broadcasts. Optional.
	Bus *pushbus.Bus

	// Interval between refresh ticks (default 15m).
	Interval time.Duration

	// Concurrency bounds the per-tick refresh worker pool (default 4).
	Concurrency int

	// ShutdownTimeout bounds the wait for in-flight refreshes (default 30s).
	ShutdownTimeout time.Duration

	// HotCapacity caps the recent-request location set (default 256).
	HotCapacity int

	// HotTTL expires recent-request locations (default 1h).
	HotTTL time.Duration
}

// Metrics tracks scheduler statistics.
type Metrics struct {
	mu sync.RWMutex

	TotalTicks         int64
	LocationsRefreshed int64
	Failures           int64
	EntriesSwept       int64

	LastTickAt       time.Time
	LastTickDuration time.Duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalTicks         int64         `json:"totalTicks"`
	LocationsRefreshed int64         `json:"locationsRefreshed"`
	Failures           int64         `json:"failures"`
	EntriesSwept       int64         `json:"entriesSwept"`
	LastTickAt         time.Time     `json:"lastTickAt"`
	LastTickDuration   time.Duration `json:"lastTickDuration"`
}

// Scheduler owns the refresh loop.
type Scheduler struct {
	logger          zerolog.Logger
	airQuality      *airquality.Service
	weather         *weather.Service
	engine          *forecast.Engine
	registry        *subscription.Registry
	dispatcher      *dispatch.Dispatcher
	bus             *pushbus.Bus
	interval        time.Duration
	concurrency     int
	shutdownTimeout time.Duration

	hot     *expirable.LRU[string, airquality.Location]
	trigger chan struct{}
	metrics *Metrics
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	hotCapacity := cfg.HotCapacity
	if hotCapacity <= 0 {
		hotCapacity = DefaultHotCapacity
	}
	hotTTL := cfg.HotTTL
	if hotTTL <= 0 {
		hotTTL = DefaultHotTTL
	}

	return &Scheduler{
		logger:          cfg.Logger,
		airQuality:      cfg.AirQuality,
		weather:         cfg.Weather,
		engine:          cfg.Engine,
		registry:        cfg.Registry,
		dispatcher:      cfg.Dispatcher,
		bus:             cfg.Bus,
		interval:        interval,
		concurrency:     concurrency,
		shutdownTimeout: shutdownTimeout,
		hot:             expirable.NewLRU[string, airquality.Location](hotCapacity, nil, hotTTL),
		trigger:         make(chan struct{}, 1),
		metrics:         &Metrics{},
	}
}

// Track records an on-demand request location so the scheduler keeps it warm.
func (s *Scheduler) Track(loc airquality.Location) {
	key := RoomForLocation(loc.Lat, loc.Lng)
	s.hot.Add(key, loc)
}

// Trigger requests an immediate refresh cycle. Non-blocking; coalesces with a
// pending trigger.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Metrics returns a copy of the scheduler counters.
func (s *Scheduler) Metrics() MetricsSnapshot {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()
	return MetricsSnapshot{
		TotalTicks:         s.metrics.TotalTicks,
		LocationsRefreshed: s.metrics.LocationsRefreshed,
		Failures:           s.metrics.Failures,
		EntriesSwept:       s.metrics.EntriesSwept,
		LastTickAt:         s.metrics.LastTickAt,
		LastTickDuration:   s.metrics.LastTickDuration,
	}
}

// Run executes refresh cycles until the context is cancelled, then waits up
// to the shutdown timeout for the in-flight cycle to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Int("concurrency", s.concurrency).
		Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var inflight sync.WaitGroup
	var running atomic.Bool
	for {
		select {
		case <-ctx.Done():
			done := make(chan struct{})
			go func() {
				inflight.Wait()
				close(done)
			}()
			select {
			case <-done:
				s.logger.Info().Msg("scheduler stopped")
			case <-time.After(s.shutdownTimeout):
				s.logger.Warn().Msg("scheduler shutdown timed out waiting for in-flight refresh")
			}
			return
		case <-ticker.C:
		case <-s.trigger:
		}

		// One cycle at a time; a tick arriving mid-cycle is skipped.
		if !running.CompareAndSwap(false, true) {
			continue
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer running.Store(false)
			s.RefreshAll(ctx)
		}()
	}
}

// RefreshAll refreshes every hot location once, using a bounded worker pool.
// A failure at one location never prevents the others from refreshing.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	start := time.Now()

	locations := s.hotLocations()
	if len(locations) == 0 {
		s.record(start, 0, 0)
		return
	}

	s.logger.Debug().Int("locations", len(locations)).Msg("starting refresh cycle")

	work := make(chan airquality.Location, len(locations))
	var failures int64
	var failMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for loc := range work {
				if ctx.Err() != nil {
					return
				}
				if err := s.refreshLocation(ctx, loc); err != nil {
					failMu.Lock()
					failures++
					failMu.Unlock()
					s.logger.Error().Err(err).
						Float64("lat", loc.Lat).
						Float64("lng", loc.Lng).
						Msg("location refresh failed")
				}
			}
		}()
	}

	for _, loc := range locations {
		work <- loc
	}
	close(work)
	wg.Wait()

	swept := s.airQuality.Sweep()
	if s.weather != nil {
		swept += s.weather.Sweep()
	}

	s.metrics.mu.Lock()
	s.metrics.EntriesSwept += int64(swept)
	s.metrics.Failures += failures
	s.metrics.mu.Unlock()
	s.record(start, len(locations), swept)
}

// refreshLocation runs the full pipeline for one location and publishes the
// result.
func (s *Scheduler) refreshLocation(ctx context.Context, loc airquality.Location) error {
	q, err := airquality.NewQuery(loc.Lat, loc.Lng, airquality.DefaultRadiusKm, airquality.DefaultHorizonHours)
	if err != nil {
		return err
	}

	snap, err := s.airQuality.CurrentSnapshot(ctx, q)
	if err != nil {
		return err
	}

	var obs *weather.Observation
	if s.weather != nil {
		obs, err = s.weather.Current(ctx, loc.Lat, loc.Lng)
		if err != nil {
			obs = nil
		}
	}

	now := time.Now()
	fc := s.engine.Generate(forecast.Inputs{
		Location:     loc,
		HorizonHours: airquality.DefaultHorizonHours,
		Snapshot:     snap,
		Weather:      obs,
		Features:     forecast.AssembleFeatures(snap, obs, now),
		Now:          now,
	})

	if s.bus != nil {
		s.bus.Publish(RoomForLocation(loc.Lat, loc.Lng), EventUpdate, fc)
	}
	if s.dispatcher != nil {
		s.dispatcher.DispatchForecast(ctx, fc)
	}
	return nil
}

// hotLocations merges subscriber locations with recently requested ones,
// deduplicated on the quantized room key.
func (s *Scheduler) hotLocations() []airquality.Location {
	seen := make(map[string]bool)
	var locations []airquality.Location

	for _, loc := range s.registry.Locations() {
		key := RoomForLocation(loc.Lat, loc.Lng)
		if !seen[key] {
			seen[key] = true
			locations = append(locations, loc)
		}
	}
	for _, loc := range s.hot.Values() {
		key := RoomForLocation(loc.Lat, loc.Lng)
		if !seen[key] {
			seen[key] = true
			locations = append(locations, loc)
		}
	}
	return locations
}

func (s *Scheduler) record(start time.Time, refreshed, swept int) {
	duration := time.Since(start)

	s.metrics.mu.Lock()
	s.metrics.TotalTicks++
	s.metrics.LocationsRefreshed += int64(refreshed)
	s.metrics.LastTickAt = start
	s.metrics.LastTickDuration = duration
	s.metrics.mu.Unlock()

	s.logger.Info().
		Int("locations", refreshed).
		Int("swept", swept).
		Dur("duration", duration).
		Msg("refresh cycle complete")
}
