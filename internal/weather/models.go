// Package weather provides current meteorological observations used by the
// forecast feature assembly.
package weather

import (
	"errors"
	"time"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrNoData              = errors.New("no weather data for location")
)

// Observation represents weather at a specific point and time.
type Observation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`

	// TemperatureC is the air temperature in Celsius.
	TemperatureC float64 `json:"temperatureC"`

	// HumidityPct is relative humidity (0-100).
	HumidityPct float64 `json:"humidityPct"`

	// WindSpeedMs is wind speed in m/s.
	WindSpeedMs float64 `json:"windSpeedMs"`

	// WindDirection in degrees (0-360, 0=N).
	WindDirection float64 `json:"windDirection"`

	// PressureHpa is atmospheric pressure in hPa.
	PressureHpa float64 `json:"pressureHpa"`

	// CloudCoverPct is cloud cover (0-100).
	CloudCoverPct float64 `json:"cloudCoverPct"`

	Condition   string `json:"condition"`
	Description string `json:"description,omitempty"`

	ObservedAt time.Time `json:"observedAt"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// WindCategory buckets wind speed by its effect on pollutant dispersion.
type WindCategory string

const (
	WindCalm     WindCategory = "CALM"     // < 1 m/s, pollutants accumulate
	WindLight    WindCategory = "LIGHT"    // 1-3 m/s
	WindModerate WindCategory = "MODERATE" // 3-8 m/s
	WindStrong   WindCategory = "STRONG"   // > 8 m/s, strong dispersion
)

// GetWindCategory returns the wind category for the observation.
func (o *Observation) GetWindCategory() WindCategory {
	switch {
	case o.WindSpeedMs < 1:
		return WindCalm
	case o.WindSpeedMs < 3:
		return WindLight
	case o.WindSpeedMs < 8:
		return WindModerate
	default:
		return WindStrong
	}
}

// StagnationIndex approximates how readily pollutants accumulate:
// clamp(1 - windSpeed/5, 0, 1), plus 0.3 under a high-pressure ridge.
func (o *Observation) StagnationIndex() float64 {
	stagnation := 1 - o.WindSpeedMs/5
	if stagnation < 0 {
		stagnation = 0
	}
	if stagnation > 1 {
		stagnation = 1
	}
	if o.PressureHpa > 1020 {
		stagnation += 0.3
	}
	return stagnation
}

// DispersionIndex approximates atmospheric mixing: windSpeed/10 + cloudCover/100.
func (o *Observation) DispersionIndex() float64 {
	return o.WindSpeedMs/10 + o.CloudCoverPct/100
}
