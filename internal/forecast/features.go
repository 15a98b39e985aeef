package forecast

import (
	"time"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/weather"
)

// FeatureColumns is the fixed column order of the feature matrix. The twelve
// columns are a stable contract with the projection engine.
var FeatureColumns = []string{
	"hourOfDay",
	"dayOfWeek",
	"monthOfYear",
	"temperatureC",
	"humidityPct",
	"windSpeedMs",
	"pressureHpa",
	"no2",
	"o3",
	"so2",
	"stagnation",
	"dispersion",
}

// FeatureWindowHours is the length of the lookback window.
const FeatureWindowHours = 24

// FeatureRow is one hour of the lookback window.
type FeatureRow [12]float64

// FeatureMatrix is the 24-hour lookback window: row 0 is 23 hours ago, row 23
// is now.
type FeatureMatrix [FeatureWindowHours]FeatureRow

// AssembleFeatures builds the feature matrix from the current snapshot and
// weather observation. Historical weather and pollutant rows are approximated
// by broadcasting the current values across the window; this is a documented
// limitation until a history feed is plugged in.
func AssembleFeatures(snap *airquality.Snapshot, obs *weather.Observation, now time.Time) FeatureMatrix {
	var m FeatureMatrix

	var temp, humidity, wind, pressure, stagnation, dispersion float64
	if obs != nil {
		temp = obs.TemperatureC
		humidity = obs.HumidityPct
		wind = obs.WindSpeedMs
		pressure = obs.PressureHpa
		stagnation = obs.StagnationIndex()
		dispersion = obs.DispersionIndex()
	}

	var no2, o3, so2 float64
	if snap != nil {
		no2 = concentrationOf(snap, airquality.PollutantNO2)
		o3 = concentrationOf(snap, airquality.PollutantO3)
		so2 = concentrationOf(snap, airquality.PollutantSO2)
	}

	for i := 0; i < FeatureWindowHours; i++ {
		at := now.Add(-time.Duration(FeatureWindowHours-1-i) * time.Hour)
		m[i] = FeatureRow{
			float64(at.Hour()),
			float64(at.Weekday()),
			float64(at.Month()),
			temp,
			humidity,
			wind,
			pressure,
			no2,
			o3,
			so2,
			stagnation,
			dispersion,
		}
	}
	return m
}

func concentrationOf(snap *airquality.Snapshot, p airquality.Pollutant) float64 {
	if m, ok := snap.Pollutants[p]; ok {
		return m.Concentration
	}
	return 0
}
