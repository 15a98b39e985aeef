package subscription

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
)

// earthRadiusKm is the spherical-earth radius used for distance checks.
const earthRadiusKm = 6371

// RegistryConfig holds configuration for the subscriber registry.
type RegistryConfig struct {
	// Logger for registry operations.
	Logger zerolog.Logger

	// Repository optionally persists subscribers across restarts. Writes
	// are write-through and best-effort; the in-memory map stays
	// authoritative.
	Repository Repository
}

// Registry is the exclusive owner of the subscriber map. Mutations are
// serialized under the write lock; readers iterate concurrently and observe
// consistent per-subscriber copies.
type Registry struct {
	logger zerolog.Logger
	repo   Repository

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// NewRegistry creates a registry, loading any persisted subscribers.
func NewRegistry(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	r := &Registry{
		logger:      cfg.Logger,
		repo:        cfg.Repository,
		subscribers: make(map[string]*Subscriber),
	}

	if r.repo != nil {
		persisted, err := r.repo.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load subscribers: %w", err)
		}
		for _, s := range persisted {
			r.subscribers[s.ID] = s.clone()
		}
		r.logger.Info().Int("subscribers", len(persisted)).Msg("subscriber registry loaded")
	}

	return r, nil
}

// Subscribe upserts a subscriber. LastDispatchAt is reset only on a new
// insert; re-subscribing keeps the cooldown clock.
func (r *Registry) Subscribe(ctx context.Context, id string, loc Location, prefs Prefs) (*Subscriber, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty subscriber id", ErrInvalidPrefs)
	}
	if loc.RadiusKm < 0 || loc.RadiusKm > airquality.MaxRadiusKm {
		return nil, fmt.Errorf("%w: radius %.1f km out of range [0, 100]", ErrInvalidRadius, loc.RadiusKm)
	}
	if err := prefs.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()

	r.mu.Lock()
	existing, ok := r.subscribers[id]
	var sub *Subscriber
	if ok {
		sub = existing
		sub.Location = loc
		sub.Prefs = prefs
		sub.UpdatedAt = now
	} else {
		sub = &Subscriber{
			ID:        id,
			Location:  loc,
			Prefs:     prefs,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.subscribers[id] = sub
	}
	cpy := sub.clone()
	r.mu.Unlock()

	r.persist(ctx, cpy)
	r.logger.Info().Str("subscriber", id).Bool("new", !ok).Msg("subscriber upserted")
	return cpy, nil
}

// Unsubscribe removes a subscriber.
func (r *Registry) Unsubscribe(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.subscribers[id]
	delete(r.subscribers, id)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if r.repo != nil {
		if err := r.repo.Delete(ctx, id); err != nil {
			r.logger.Error().Err(err).Str("subscriber", id).Msg("failed to delete persisted subscriber")
		}
	}
	r.logger.Info().Str("subscriber", id).Msg("subscriber removed")
	return nil
}

// UpdatePrefs merges a partial preference update into an existing subscriber.
func (r *Registry) UpdatePrefs(ctx context.Context, id string, patch PrefsPatch) (*Subscriber, error) {
	r.mu.Lock()
	sub, ok := r.subscribers[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}

	merged := sub.Prefs
	if patch.AQIThresholds != nil {
		merged.AQIThresholds = *patch.AQIThresholds
	}
	if patch.PollutantThresholds != nil {
		merged.PollutantThresholds = patch.PollutantThresholds
	}
	if patch.Channels != nil {
		merged.Channels = *patch.Channels
	}
	if patch.Enabled != nil {
		merged.Enabled = *patch.Enabled
	}
	if err := merged.Validate(); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	sub.Prefs = merged
	sub.UpdatedAt = time.Now()
	cpy := sub.clone()
	r.mu.Unlock()

	r.persist(ctx, cpy)
	return cpy, nil
}

// Get returns a copy of a subscriber.
func (r *Registry) Get(id string) (*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscribers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sub.clone(), nil
}

// WithinRadius returns copies of all subscribers whose area of interest
// contains the given point. A zero radius matches nothing.
func (r *Registry) WithinRadius(loc airquality.Location) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Subscriber
	for _, sub := range r.subscribers {
		if sub.Location.RadiusKm <= 0 {
			continue
		}
		if haversineKm(loc.Lat, loc.Lng, sub.Location.Lat, sub.Location.Lng) <= sub.Location.RadiusKm {
			matched = append(matched, sub.clone())
		}
	}
	return matched
}

// Locations returns the distinct points subscribers care about, for the
// scheduler's hot-location set.
func (r *Registry) Locations() []airquality.Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.subscribers))
	var locations []airquality.Location
	for _, sub := range r.subscribers {
		key := fmt.Sprintf("%.2f,%.2f", sub.Location.Lat, sub.Location.Lng)
		if !seen[key] {
			seen[key] = true
			locations = append(locations, airquality.Location{Lat: sub.Location.Lat, Lng: sub.Location.Lng})
		}
	}
	return locations
}

// Count returns the number of subscribers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// MarkDispatched records a dispatch time for the cooldown clock.
func (r *Registry) MarkDispatched(ctx context.Context, id string, at time.Time) {
	r.mu.Lock()
	sub, ok := r.subscribers[id]
	var cpy *Subscriber
	if ok {
		sub.LastDispatchAt = at
		cpy = sub.clone()
	}
	r.mu.Unlock()

	if cpy != nil {
		r.persist(ctx, cpy)
	}
}

func (r *Registry) persist(ctx context.Context, sub *Subscriber) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Upsert(ctx, sub); err != nil {
		r.logger.Error().Err(err).Str("subscriber", sub.ID).Msg("failed to persist subscriber")
	}
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
