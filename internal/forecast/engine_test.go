package forecast_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/weather"
)

var engineLoc = airquality.Location{Lat: 34.05, Lng: -118.24}

func newEngine() *forecast.Engine {
	return forecast.NewEngine(forecast.EngineConfig{Logger: zerolog.Nop()})
}

func snapshotWith(t *testing.T, concentrations map[airquality.Pollutant]float64) *airquality.Snapshot {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := airquality.NewSnapshot(engineLoc, now)
	for p, c := range concentrations {
		snap.Pollutants[p] = airquality.Measurement{
			Pollutant:     p,
			Concentration: c,
			Unit:          p.CanonicalUnit(),
			Source:        "AirNow",
			ObservedAt:    now,
		}
		if aqi := airquality.AQI(p, c); aqi > snap.AQI {
			snap.AQI = aqi
		}
	}
	snap.Level = airquality.LevelForAQI(snap.AQI)
	snap.Contributions = airquality.Contributions{Ground: true}
	return snap
}

func TestGenerate_CoversAllPollutantsAndHours(t *testing.T) {
	engine := newEngine()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fc := engine.Generate(forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 24,
		Now:          now,
	})

	require.Len(t, fc.AQI, 24)
	for i, pred := range fc.AQI {
		assert.Equal(t, i+1, pred.Hour)
		assert.Equal(t, now.Add(time.Duration(i+1)*time.Hour), pred.At)
		assert.GreaterOrEqual(t, pred.AQI, 0)
		assert.LessOrEqual(t, pred.AQI, 500)
	}

	for _, p := range airquality.Pollutants {
		require.Len(t, fc.PerPollutant[p], 24, "pollutant %s", p)
		require.Len(t, fc.Confidence[p], 24, "pollutant %s", p)
		for i, hp := range fc.PerPollutant[p] {
			assert.GreaterOrEqual(t, hp.Concentration, 0.0)
			assert.Equal(t, forecast.MethodStatistical, hp.Method)

			band := fc.Confidence[p][i]
			assert.LessOrEqual(t, band.Lower, hp.Concentration)
			assert.GreaterOrEqual(t, band.Upper, hp.Concentration)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	engine := newEngine()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 24,
		Snapshot:     snapshotWith(t, map[airquality.Pollutant]float64{airquality.PollutantPM25: 20}),
		Now:          now,
	}

	first := engine.Generate(in)
	second := engine.Generate(in)

	assert.Equal(t, first, second)
}

func TestGenerate_HorizonClamped(t *testing.T) {
	engine := newEngine()
	now := time.Now()

	tests := []struct {
		name    string
		horizon int
		want    int
	}{
		{"minimum", 1, 1},
		{"maximum", 72, 72},
		{"zero defaults", 0, airquality.DefaultHorizonHours},
		{"negative defaults", -3, airquality.DefaultHorizonHours},
		{"beyond max clamps", 100, 72},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := engine.Generate(forecast.Inputs{Location: engineLoc, HorizonHours: tt.horizon, Now: now})
			assert.Equal(t, tt.want, fc.HorizonHours)
			assert.Len(t, fc.AQI, tt.want)
		})
	}
}

func TestGenerate_NilSnapshotUsesBaseProjections(t *testing.T) {
	engine := newEngine()

	fc := engine.Generate(forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 12,
		Now:          time.Now(),
	})

	require.Len(t, fc.AQI, 12)
	assert.Equal(t, forecast.SourceUnavailable, fc.DataSources.Satellite)
	assert.Equal(t, forecast.SourceUnavailable, fc.DataSources.Ground)
	assert.Equal(t, forecast.SourceUnavailable, fc.DataSources.Weather)
	assert.Equal(t, 0, fc.Summary.Current)
}

func TestGenerate_DataSourcesReflectInputs(t *testing.T) {
	engine := newEngine()
	snap := snapshotWith(t, map[airquality.Pollutant]float64{airquality.PollutantO3: 40})
	snap.Contributions = airquality.Contributions{Satellite: true, Ground: true}

	fc := engine.Generate(forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 6,
		Snapshot:     snap,
		Weather:      &weather.Observation{TemperatureC: 18},
		Now:          time.Now(),
	})

	assert.Equal(t, forecast.SourceAvailable, fc.DataSources.Satellite)
	assert.Equal(t, forecast.SourceAvailable, fc.DataSources.Ground)
	assert.Equal(t, forecast.SourceAvailable, fc.DataSources.Weather)
}

func TestGenerate_HighAQIProducesAlertsAndRecommendations(t *testing.T) {
	engine := newEngine()
	// PM2.5 at 120 µg/m³ maps to AQI around 185; every projected hour stays
	// far above the warning threshold.
	snap := snapshotWith(t, map[airquality.Pollutant]float64{airquality.PollutantPM25: 120})

	fc := engine.Generate(forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 24,
		Snapshot:     snap,
		Now:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	require.NotEmpty(t, fc.Alerts)
	hasAQIAlert := false
	for _, a := range fc.Alerts {
		if a.Type == forecast.AlertAQIWarning || a.Type == forecast.AlertAQICritical || a.Type == forecast.AlertAQIEmergency {
			hasAQIAlert = true
			assert.Positive(t, a.AQI)
			assert.Positive(t, a.HoursUntil)
			assert.NotEmpty(t, a.Message)
		}
	}
	assert.True(t, hasAQIAlert)

	require.NotEmpty(t, fc.Recommendations)
	for _, r := range fc.Recommendations {
		assert.NotEmpty(t, r.Advice)
	}
}

func TestGenerate_CleanAirHasNoAlerts(t *testing.T) {
	engine := newEngine()
	snap := snapshotWith(t, map[airquality.Pollutant]float64{
		airquality.PollutantPM25: 5,
		airquality.PollutantO3:   20,
	})

	fc := engine.Generate(forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 24,
		Snapshot:     snap,
		Now:          time.Now(),
	})

	assert.Empty(t, fc.Alerts)
	assert.Empty(t, fc.Recommendations)
}

func TestGenerate_AlertsOnlyWithin24Hours(t *testing.T) {
	engine := newEngine()
	snap := snapshotWith(t, map[airquality.Pollutant]float64{airquality.PollutantPM25: 120})

	fc := engine.Generate(forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 72,
		Snapshot:     snap,
		Now:          time.Now(),
	})

	for _, a := range fc.Alerts {
		assert.LessOrEqual(t, a.HoursUntil, 24)
	}
}

func TestGenerate_SummaryPeakAndAverage(t *testing.T) {
	engine := newEngine()
	snap := snapshotWith(t, map[airquality.Pollutant]float64{airquality.PollutantPM25: 40})

	fc := engine.Generate(forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 24,
		Snapshot:     snap,
		Now:          time.Now(),
	})

	assert.Equal(t, snap.AQI, fc.Summary.Current)
	assert.Contains(t, []forecast.Trend{forecast.TrendIncreasing, forecast.TrendDecreasing, forecast.TrendStable}, fc.Summary.Trend)

	peak, worstHour, total := 0, 0, 0
	for _, pred := range fc.AQI {
		total += pred.AQI
		if pred.AQI > peak {
			peak = pred.AQI
			worstHour = pred.Hour
		}
	}
	assert.Equal(t, peak, fc.Summary.Peak)
	assert.Equal(t, worstHour, fc.Summary.WorstHour)
	assert.InDelta(t, float64(total)/24, float64(fc.Summary.Average), 1)
}

func TestForPollutant_FiltersPredictionsAndAlerts(t *testing.T) {
	engine := newEngine()
	snap := snapshotWith(t, map[airquality.Pollutant]float64{
		airquality.PollutantPM25: 120,
		airquality.PollutantO3:   20,
	})

	fc := engine.Generate(forecast.Inputs{
		Location:     engineLoc,
		HorizonHours: 24,
		Snapshot:     snap,
		Now:          time.Now(),
	})

	view := fc.ForPollutant(airquality.PollutantPM25)
	assert.Equal(t, airquality.PollutantPM25, view.Pollutant)
	assert.Len(t, view.Predictions, 24)
	assert.Len(t, view.Confidence, 24)
	require.NotEmpty(t, view.Alerts)
	for _, a := range view.Alerts {
		assert.Equal(t, airquality.PollutantPM25, a.Pollutant)
	}

	clean := fc.ForPollutant(airquality.PollutantO3)
	assert.Empty(t, clean.Alerts)
	assert.Empty(t, clean.Recommendations)
}

func TestSeverity_AtLeast(t *testing.T) {
	assert.True(t, forecast.SeverityEmergency.AtLeast(forecast.SeverityCritical))
	assert.True(t, forecast.SeverityCritical.AtLeast(forecast.SeverityCritical))
	assert.False(t, forecast.SeverityWarning.AtLeast(forecast.SeverityCritical))
	assert.True(t, forecast.SeverityWarning.AtLeast(forecast.SeverityInfo))
}
