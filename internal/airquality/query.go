package airquality

import (
	"context"
	"fmt"
	"time"
)

// Query parameter bounds.
const (
	MinRadiusKm     = 0.0
	MaxRadiusKm     = 100.0
	DefaultRadiusKm = 25.0

	MinHorizonHours     = 1
	MaxHorizonHours     = 72
	DefaultHorizonHours = 24
)

// Query is a validated geographic request against the fetch pipeline.
type Query struct {
	Lat          float64
	Lng          float64
	RadiusKm     float64
	HorizonHours int
}

// NewQuery builds a validated query. A zero radius or horizon takes the
// corresponding default before validation runs.
func NewQuery(lat, lng, radiusKm float64, horizonHours int) (Query, error) {
	if radiusKm == 0 {
		radiusKm = DefaultRadiusKm
	}
	if horizonHours == 0 {
		horizonHours = DefaultHorizonHours
	}
	q := Query{
		Lat:          lat,
		Lng:          lng,
		RadiusKm:     radiusKm,
		HorizonHours: horizonHours,
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// Validate checks parameter bounds. Violations wrap ErrBadRequest and are
// rejected before any upstream provider is contacted.
func (q Query) Validate() error {
	if q.Lat < -90 || q.Lat > 90 {
		return fmt.Errorf("%w: latitude %.4f out of range [-90, 90]", ErrBadRequest, q.Lat)
	}
	if q.Lng < -180 || q.Lng > 180 {
		return fmt.Errorf("%w: longitude %.4f out of range [-180, 180]", ErrBadRequest, q.Lng)
	}
	if q.RadiusKm <= MinRadiusKm || q.RadiusKm > MaxRadiusKm {
		return fmt.Errorf("%w: radius %.1f km out of range (0, 100]", ErrBadRequest, q.RadiusKm)
	}
	if q.HorizonHours < MinHorizonHours || q.HorizonHours > MaxHorizonHours {
		return fmt.Errorf("%w: horizon %d h out of range [1, 72]", ErrBadRequest, q.HorizonHours)
	}
	return nil
}

// Location returns the query's geographic point.
func (q Query) Location() Location {
	return Location{Lat: q.Lat, Lng: q.Lng}
}

// CacheKey quantizes the query for use as a cache key. Two decimal places is
// roughly 1.1 km at the equator, matching the mock seed granularity.
func (q Query) CacheKey() string {
	return fmt.Sprintf("%.2f,%.2f,%.0f", q.Lat, q.Lng, q.RadiusKm)
}

// Payload is the canonical-typed result of one provider fetch. Providers parse
// their wire formats defensively and emit only canonical measurements.
type Payload struct {
	// Source is the provider name, e.g. "TEMPO", "AirNow", "OpenAQ".
	Source string

	// Satellite marks satellite-derived (rather than ground station) data.
	Satellite bool

	// Contributions, when non-nil, declares the upstream mix this payload was
	// derived from. Provider payloads leave it nil and the mix is inferred
	// from Satellite; re-canonicalized payloads carry it so the mix survives
	// a round trip.
	Contributions *Contributions

	// Resolution is the spatial resolution of the product, e.g. "2.1km".
	Resolution string

	Measurements []Measurement
	Stations     []Station
	FetchedAt    time.Time

	// Fallback marks a payload synthesized by the deterministic mock.
	Fallback bool
}

// Client is the single capability interface every upstream provider exposes.
// Implementations absorb transport errors: they return a deterministic mock
// payload or ErrNoData, never a raw transport failure. Invalid queries are
// programmer errors and are reported as ErrBadRequest.
type Client interface {
	Fetch(ctx context.Context, q Query) (*Payload, error)
	Name() string
}
