// Package provider implements the upstream data clients and their shared
// deterministic fallback. When a provider times out, returns a non-2xx status,
// or produces an unparseable body, clients fall back to a mock payload (or to
// no data, depending on the client) instead of propagating the failure.
package provider

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/airsentry/airsentry/internal/airquality"
)

// Baseline concentrations in canonical units used when synthesizing mock data.
var mockBaselines = map[airquality.Pollutant]float64{
	airquality.PollutantNO2:  20,
	airquality.PollutantO3:   50,
	airquality.PollutantSO2:  10,
	airquality.PollutantHCHO: 5,
	airquality.PollutantCO:   1.0,
	airquality.PollutantPM25: 15,
	airquality.PollutantPM10: 25,
}

// urbanCenter is a city core whose vicinity scales mock concentrations.
type urbanCenter struct {
	name     string
	lat, lng float64
}

// Fixed list; a query within 0.5 degrees of a center gets the urban multiplier.
var urbanCenters = []urbanCenter{
	{"Los Angeles", 34.05, -118.24},
	{"New York", 40.71, -74.01},
	{"Chicago", 41.88, -87.63},
	{"Houston", 29.76, -95.37},
	{"Mexico City", 19.43, -99.13},
	{"London", 51.51, -0.13},
	{"Paris", 48.86, 2.35},
	{"Delhi", 28.61, 77.21},
	{"Beijing", 39.90, 116.41},
	{"Sao Paulo", -23.55, -46.63},
}

// Urban multipliers per pollutant, all within [0.8, 1.5]. Ozone runs lower in
// city cores (NO titration), traffic gases run higher.
var urbanFactors = map[airquality.Pollutant]float64{
	airquality.PollutantNO2:  1.5,
	airquality.PollutantCO:   1.4,
	airquality.PollutantPM25: 1.3,
	airquality.PollutantPM10: 1.25,
	airquality.PollutantSO2:  1.2,
	airquality.PollutantHCHO: 1.1,
	airquality.PollutantO3:   0.8,
}

// MockPayload synthesizes a deterministic payload for a query. The value for a
// pollutant derives from a seed over (lat, lng rounded to two decimals,
// pollutant), so repeated calls for the same place produce identical numbers.
// A time-of-day multiplier keyed by approximate local hour shapes the diurnal
// profile: traffic gases peak at rush hours, ozone peaks midday.
func MockPayload(source string, satellite bool, resolution string, q airquality.Query, now time.Time) *airquality.Payload {
	p := &airquality.Payload{
		Source:     source,
		Satellite:  satellite,
		Resolution: resolution,
		FetchedAt:  now,
		Fallback:   true,
	}

	hour := localHour(q.Lng, now)
	urban := nearUrbanCenter(q.Lat, q.Lng)

	for _, pollutant := range airquality.Pollutants {
		value := mockBaselines[pollutant] * mockJitter(q.Lat, q.Lng, pollutant)
		if urban {
			value *= urbanFactors[pollutant]
		}
		value *= hourFactor(pollutant, hour)

		p.Measurements = append(p.Measurements, airquality.Measurement{
			Pollutant:      pollutant,
			Concentration:  math.Round(value*100) / 100,
			Unit:           pollutant.CanonicalUnit(),
			Source:         source,
			StationID:      mockStationID(source, q),
			ObservedAt:     now,
			DistanceMeters: mockStationDistance(q),
		})
	}

	if !satellite {
		p.Stations = []airquality.Station{{
			ID:             mockStationID(source, q),
			Name:           fmt.Sprintf("%s synthetic %.2f,%.2f", source, q.Lat, q.Lng),
			Source:         source,
			Lat:            q.Lat,
			Lng:            q.Lng,
			DistanceMeters: mockStationDistance(q),
		}}
	}

	return p
}

// mockJitter returns a stable multiplier in [0.7, 1.3] for a place/pollutant.
func mockJitter(lat, lng float64, pollutant airquality.Pollutant) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%.2f|%.2f|%s", lat, lng, pollutant)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	return 0.7 + 0.6*rng.Float64()
}

func mockStationID(source string, q airquality.Query) string {
	return fmt.Sprintf("%s-%.2f-%.2f", source, q.Lat, q.Lng)
}

// mockStationDistance yields a stable pseudo-distance in [500, 5500) meters.
func mockStationDistance(q airquality.Query) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "dist|%.2f|%.2f", q.Lat, q.Lng)
	return 500 + float64(h.Sum64()%5000)
}

func nearUrbanCenter(lat, lng float64) bool {
	for _, c := range urbanCenters {
		if math.Abs(lat-c.lat) <= 0.5 && math.Abs(lng-c.lng) <= 0.5 {
			return true
		}
	}
	return false
}

// localHour approximates the local hour of day from longitude alone; the mock
// has no timezone database and 15 degrees per hour is close enough for a
// diurnal shape.
func localHour(lng float64, now time.Time) int {
	offset := int(math.Round(lng / 15))
	h := (now.UTC().Hour() + offset) % 24
	if h < 0 {
		h += 24
	}
	return h
}

// hourFactor shapes the diurnal profile per pollutant.
func hourFactor(p airquality.Pollutant, hour int) float64 {
	switch p {
	case airquality.PollutantNO2, airquality.PollutantCO:
		// Rush hour peaks.
		if (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19) {
			return 1.4
		}
		if hour >= 0 && hour <= 4 {
			return 0.7
		}
		return 1.0
	case airquality.PollutantO3:
		// Photochemical midday peak.
		if hour >= 12 && hour <= 16 {
			return 1.3
		}
		if hour >= 21 || hour <= 5 {
			return 0.7
		}
		return 1.0
	case airquality.PollutantPM25, airquality.PollutantPM10:
		// Overnight accumulation under a low boundary layer.
		if hour >= 22 || hour <= 6 {
			return 1.15
		}
		return 1.0
	default:
		return 1.0
	}
}
