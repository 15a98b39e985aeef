package airquality_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentry/airsentry/internal/airquality"
)

var testLoc = airquality.Location{Lat: 34.05, Lng: -118.24}

func mustQuery(t *testing.T, lat, lng float64) airquality.Query {
	t.Helper()
	q, err := airquality.NewQuery(lat, lng, 0, 0)
	require.NoError(t, err)
	return q
}

func measurement(p airquality.Pollutant, conc, distance float64, source string, at time.Time) airquality.Measurement {
	return airquality.Measurement{
		Pollutant:      p,
		Concentration:  conc,
		Unit:           p.CanonicalUnit(),
		Source:         source,
		ObservedAt:     at,
		DistanceMeters: distance,
	}
}

func TestCanonicalize_NearestStationWins(t *testing.T) {
	now := time.Now()

	airnow := &airquality.Payload{
		Source: "AirNow",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantPM25, 30, 4500, "AirNow", now),
		},
	}
	openaq := &airquality.Payload{
		Source: "OpenAQ",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantPM25, 22, 2000, "OpenAQ", now),
		},
	}

	snap := airquality.Canonicalize(testLoc, now, airnow, openaq)

	m, ok := snap.Pollutants[airquality.PollutantPM25]
	require.True(t, ok)
	assert.Equal(t, "OpenAQ", m.Source)
	assert.Equal(t, 22.0, m.Concentration)
	assert.Equal(t, 72, snap.AQI)
	assert.Equal(t, airquality.LevelModerate, snap.Level)
}

func TestCanonicalize_DistanceTieBrokenByNewerThenSource(t *testing.T) {
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(30 * time.Minute)

	a := &airquality.Payload{
		Source: "AirNow",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantO3, 60, 1000, "AirNow", older),
		},
	}
	b := &airquality.Payload{
		Source: "OpenAQ",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantO3, 65, 1000, "OpenAQ", newer),
		},
	}

	snap := airquality.Canonicalize(testLoc, newer, a, b)
	assert.Equal(t, "OpenAQ", snap.Pollutants[airquality.PollutantO3].Source)

	// Same distance, same time: alphabetically earlier source wins.
	b.Measurements[0].ObservedAt = older
	snap = airquality.Canonicalize(testLoc, newer, a, b)
	assert.Equal(t, "AirNow", snap.Pollutants[airquality.PollutantO3].Source)
}

func TestCanonicalize_AQIIsMaxOverPollutants(t *testing.T) {
	now := time.Now()
	p := &airquality.Payload{
		Source: "AirNow",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantPM25, 20, 1000, "AirNow", now), // AQI 68
			measurement(airquality.PollutantO3, 75, 1000, "AirNow", now),   // AQI 115
			measurement(airquality.PollutantNO2, 30, 1000, "AirNow", now),  // AQI 28
		},
	}

	snap := airquality.Canonicalize(testLoc, now, p)
	assert.Equal(t, 115, snap.AQI)
	assert.Equal(t, airquality.LevelUnhealthySensitive, snap.Level)
}

func TestCanonicalize_NegativeConcentrationsDropped(t *testing.T) {
	now := time.Now()
	p := &airquality.Payload{
		Source: "OpenAQ",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantSO2, -4, 1000, "OpenAQ", now),
		},
	}

	snap := airquality.Canonicalize(testLoc, now, p)
	assert.Empty(t, snap.Pollutants)
	assert.Equal(t, 0, snap.AQI)
	assert.Equal(t, airquality.LevelGood, snap.Level)
}

func TestCanonicalize_StationsDedupedAndSortedByDistance(t *testing.T) {
	now := time.Now()
	st := func(id, source string, dist float64) airquality.Station {
		return airquality.Station{ID: id, Source: source, DistanceMeters: dist}
	}

	a := &airquality.Payload{
		Source:   "AirNow",
		Stations: []airquality.Station{st("s1", "AirNow", 3000), st("s2", "AirNow", 900)},
	}
	b := &airquality.Payload{
		Source: "OpenAQ",
		Stations: []airquality.Station{
			st("s1", "OpenAQ", 3000), // same ID, different source: kept
			st("s2", "OpenAQ", 900),
		},
	}
	dup := &airquality.Payload{
		Source:   "AirNow",
		Stations: []airquality.Station{st("s1", "AirNow", 3000)}, // exact duplicate: dropped
	}

	snap := airquality.Canonicalize(testLoc, now, a, b, dup)

	require.Len(t, snap.Stations, 4)
	for i := 1; i < len(snap.Stations); i++ {
		assert.LessOrEqual(t, snap.Stations[i-1].DistanceMeters, snap.Stations[i].DistanceMeters)
	}
}

func TestCanonicalize_ConfidenceFromContributions(t *testing.T) {
	now := time.Now()
	sat := &airquality.Payload{Source: "TEMPO", Satellite: true, Resolution: "2.1km"}
	ground := &airquality.Payload{Source: "AirNow"}

	tests := []struct {
		name     string
		payloads []*airquality.Payload
		want     airquality.Confidence
	}{
		{"satellite and ground", []*airquality.Payload{sat, ground}, airquality.ConfidenceHigh},
		{"satellite only", []*airquality.Payload{sat}, airquality.ConfidenceMedium},
		{"ground only", []*airquality.Payload{ground}, airquality.ConfidenceMedium},
		{"nothing", nil, airquality.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := airquality.Canonicalize(testLoc, now, tt.payloads...)
			assert.Equal(t, tt.want, snap.DataQuality.Confidence)
		})
	}
}

func TestCanonicalize_SatelliteResolutionCarried(t *testing.T) {
	now := time.Now()
	sat := &airquality.Payload{Source: "TEMPO", Satellite: true, Resolution: "2.1km"}

	snap := airquality.Canonicalize(testLoc, now, sat)
	assert.Equal(t, "2.1km", snap.DataQuality.Resolution)
	assert.True(t, snap.Contributions.Satellite)
	assert.False(t, snap.Contributions.Ground)
}

func TestCanonicalize_CoverageFullWithAllPollutants(t *testing.T) {
	now := time.Now()
	p := &airquality.Payload{Source: "TEMPO", Satellite: true}
	for _, pollutant := range airquality.Pollutants {
		p.Measurements = append(p.Measurements, measurement(pollutant, 5, 1000, "TEMPO", now))
	}

	snap := airquality.Canonicalize(testLoc, now, p)
	assert.Equal(t, airquality.CoverageFull, snap.DataQuality.Coverage)

	partial := airquality.Canonicalize(testLoc, now, &airquality.Payload{
		Source:       "TEMPO",
		Satellite:    true,
		Measurements: p.Measurements[:3],
	})
	assert.Equal(t, airquality.CoveragePartial, partial.DataQuality.Coverage)
}

func TestCanonicalize_NilPayloadsSkipped(t *testing.T) {
	now := time.Now()
	ground := &airquality.Payload{
		Source: "AirNow",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantPM25, 10, 1000, "AirNow", now),
		},
	}

	snap := airquality.Canonicalize(testLoc, now, nil, ground, nil)
	assert.Equal(t, []string{"AirNow"}, snap.Sources)
	assert.Len(t, snap.Pollutants, 1)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sat := &airquality.Payload{
		Source:     "TEMPO",
		Satellite:  true,
		Resolution: "2.1km",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantNO2, 40, 0, "TEMPO", now),
			measurement(airquality.PollutantHCHO, 8, 0, "TEMPO", now),
		},
	}
	ground := &airquality.Payload{
		Source: "OpenAQ",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantPM25, 22, 2000, "OpenAQ", now),
		},
		Stations: []airquality.Station{
			{ID: "oaq-1", Source: "OpenAQ", DistanceMeters: 2000},
		},
	}

	first := airquality.Canonicalize(testLoc, now, sat, ground)
	second := airquality.Canonicalize(testLoc, now, first.AsPayload())

	assert.Equal(t, first.AQI, second.AQI)
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.Pollutants, second.Pollutants)
	assert.Equal(t, first.Stations, second.Stations)
	assert.Equal(t, "2.1km", second.DataQuality.Resolution)
	assert.Equal(t, first.DataQuality.Confidence, second.DataQuality.Confidence)
	assert.Equal(t, first.Contributions, second.Contributions)
}

func TestCanonicalize_SatelliteOnlyRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sat := &airquality.Payload{
		Source:     "TEMPO",
		Satellite:  true,
		Resolution: "2.1km",
		Measurements: []airquality.Measurement{
			measurement(airquality.PollutantNO2, 40, 0, "TEMPO", now),
		},
	}

	first := airquality.Canonicalize(testLoc, now, sat)
	second := airquality.Canonicalize(testLoc, now, first.AsPayload())

	assert.Equal(t, "2.1km", second.DataQuality.Resolution)
	assert.True(t, second.Contributions.Satellite)
	assert.False(t, second.Contributions.Ground)
	assert.Equal(t, airquality.ConfidenceMedium, second.DataQuality.Confidence)
}

func TestNewQuery(t *testing.T) {
	q, err := airquality.NewQuery(34.05, -118.24, 10, 48)
	require.NoError(t, err)
	assert.Equal(t, 10.0, q.RadiusKm)
	assert.Equal(t, 48, q.HorizonHours)

	q, err = airquality.NewQuery(34.05, -118.24, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, airquality.DefaultRadiusKm, q.RadiusKm)
	assert.Equal(t, airquality.DefaultHorizonHours, q.HorizonHours)

	_, err = airquality.NewQuery(95, 0, 0, 0)
	assert.ErrorIs(t, err, airquality.ErrBadRequest)

	_, err = airquality.NewQuery(34.05, -118.24, 200, 0)
	assert.ErrorIs(t, err, airquality.ErrBadRequest)
}

func TestQuery_Validate(t *testing.T) {
	valid := mustQuery(t, 34.05, -118.24)
	assert.NoError(t, valid.Validate())
	assert.Equal(t, airquality.DefaultRadiusKm, valid.RadiusKm)
	assert.Equal(t, airquality.DefaultHorizonHours, valid.HorizonHours)

	tests := []struct {
		name   string
		mutate func(*airquality.Query)
	}{
		{"lat too low", func(q *airquality.Query) { q.Lat = -91 }},
		{"lat too high", func(q *airquality.Query) { q.Lat = 90.5 }},
		{"lng too low", func(q *airquality.Query) { q.Lng = -181 }},
		{"lng too high", func(q *airquality.Query) { q.Lng = 180.1 }},
		{"radius zero", func(q *airquality.Query) { q.RadiusKm = 0 }},
		{"radius too large", func(q *airquality.Query) { q.RadiusKm = 101 }},
		{"horizon zero", func(q *airquality.Query) { q.HorizonHours = 0 }},
		{"horizon too large", func(q *airquality.Query) { q.HorizonHours = 73 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := mustQuery(t, 34.05, -118.24)
			tt.mutate(&q)
			err := q.Validate()
			assert.ErrorIs(t, err, airquality.ErrBadRequest)
		})
	}
}

func TestQuery_CacheKeyQuantizes(t *testing.T) {
	a := mustQuery(t, 34.0512, -118.2409)
	b := mustQuery(t, 34.0548, -118.2441)
	c := mustQuery(t, 34.0600, -118.2409)

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
}
