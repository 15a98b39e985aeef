// Package forecast produces short-horizon air quality forecasts: per-pollutant
// hourly projections, the AQI trajectory, confidence bands, alerts, and health
// recommendations.
package forecast

import (
	"time"

	"github.com/airsentry/airsentry/internal/airquality"
)

// MethodStatistical is the only projection method currently implemented. The
// Method field is the extension point for a model-backed projection.
const MethodStatistical = "statistical"

// HourPrediction is the concentration estimate for one hour offset from now.
type HourPrediction struct {
	Hour          int       `json:"hour"`
	Concentration float64   `json:"concentration"`
	At            time.Time `json:"at"`
	Method        string    `json:"method"`
}

// AqiPrediction is the combined AQI estimate for one hour offset.
type AqiPrediction struct {
	Hour  int              `json:"hour"`
	AQI   int              `json:"aqi"`
	Level airquality.Level `json:"level"`
	At    time.Time        `json:"at"`
}

// Band is the confidence interval around one hour prediction.
type Band struct {
	Hour       int     `json:"hour"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// Severity orders alert importance.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// rank orders severities for comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityEmergency:
		return 3
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Alert types emitted by the engine.
const (
	AlertAQIWarning        = "aqi-warning"
	AlertAQICritical       = "aqi-critical"
	AlertAQIEmergency      = "aqi-emergency"
	AlertPollutantWarning  = "pollutant-warning"
	AlertPollutantCritical = "pollutant-critical"
	AlertTest              = "test"
)

// Alert describes a predicted threshold crossing.
type Alert struct {
	Type       string               `json:"type"`
	Severity   Severity             `json:"severity"`
	Pollutant  airquality.Pollutant `json:"pollutant,omitempty"`
	AQI        int                  `json:"aqi,omitempty"`
	Value      float64              `json:"value,omitempty"`
	HoursUntil int                  `json:"hoursUntil"`
	At         time.Time            `json:"at"`
	Message    string               `json:"message"`
}

// Recommendation is a health advice bundle for one forecast hour whose AQI
// exceeds 100. Consecutive duplicates are not suppressed here; deduplication
// is the caller's concern.
type Recommendation struct {
	Hour   int              `json:"hour"`
	Level  airquality.Level `json:"level"`
	At     time.Time        `json:"at"`
	Advice []string         `json:"advice"`
}

// SourceState flags whether a provider class contributed to a forecast.
type SourceState string

const (
	SourceAvailable   SourceState = "available"
	SourceUnavailable SourceState = "unavailable"
)

// DataSources records provider availability for a forecast.
type DataSources struct {
	Satellite SourceState `json:"satellite"`
	Ground    SourceState `json:"ground"`
	Weather   SourceState `json:"weather"`
}

// Trend direction of the AQI trajectory.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Summary condenses the AQI trajectory for the aqi-forecast operation.
type Summary struct {
	Current   int   `json:"current"`
	Peak      int   `json:"peak"`
	Average   int   `json:"average"`
	Trend     Trend `json:"trend"`
	WorstHour int   `json:"worstHour"`
}

// Forecast is the full output for one location and horizon.
type Forecast struct {
	Location        airquality.Location                       `json:"location"`
	HorizonHours    int                                       `json:"horizonHours"`
	GeneratedAt     time.Time                                 `json:"generatedAt"`
	PerPollutant    map[airquality.Pollutant][]HourPrediction `json:"perPollutant"`
	AQI             []AqiPrediction                           `json:"aqi"`
	Confidence      map[airquality.Pollutant][]Band           `json:"confidence"`
	Alerts          []Alert                                   `json:"alerts"`
	Recommendations []Recommendation                          `json:"recommendations"`
	Summary         Summary                                   `json:"summary"`
	DataSources     DataSources                               `json:"dataSources"`
}

// Thresholds are the AQI levels at which alerts escalate. The invariant
// warning < critical < emergency holds for any validated instance.
type Thresholds struct {
	Warning   int `json:"warning"`
	Critical  int `json:"critical"`
	Emergency int `json:"emergency"`
}

// DefaultThresholds are the engine defaults; subscribers may override them.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 100, Critical: 150, Emergency: 200}
}

// PollutantThresholds are per-pollutant concentration alert levels in the
// pollutant's canonical unit.
type PollutantThresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// DefaultPollutantThresholds follow the EPA breakpoint boundaries between
// moderate and unhealthy-for-sensitive-groups (warning) and between that and
// unhealthy (critical).
func DefaultPollutantThresholds() map[airquality.Pollutant]PollutantThresholds {
	return map[airquality.Pollutant]PollutantThresholds{
		airquality.PollutantNO2:  {Warning: 101, Critical: 361},
		airquality.PollutantO3:   {Warning: 71, Critical: 86},
		airquality.PollutantSO2:  {Warning: 76, Critical: 186},
		airquality.PollutantHCHO: {Warning: 21, Critical: 51},
		airquality.PollutantCO:   {Warning: 9.5, Critical: 12.5},
		airquality.PollutantPM25: {Warning: 35.5, Critical: 55.5},
		airquality.PollutantPM10: {Warning: 155, Critical: 255},
	}
}

// PollutantView is the single-pollutant slice of a forecast returned by the
// pollutant-forecast operation.
type PollutantView struct {
	Pollutant       airquality.Pollutant `json:"pollutant"`
	Predictions     []HourPrediction     `json:"predictions"`
	Confidence      []Band               `json:"confidence"`
	Alerts          []Alert              `json:"alerts"`
	Recommendations []Recommendation     `json:"recommendations"`
}

// ForPollutant filters the forecast down to one pollutant.
func (f *Forecast) ForPollutant(p airquality.Pollutant) PollutantView {
	view := PollutantView{
		Pollutant:   p,
		Predictions: f.PerPollutant[p],
		Confidence:  f.Confidence[p],
	}
	for _, a := range f.Alerts {
		if a.Pollutant == p {
			view.Alerts = append(view.Alerts, a)
		}
	}
	// Level-keyed recommendations are not pollutant-specific; include the
	// bundles for hours where this pollutant breaches its own thresholds.
	defaults := DefaultPollutantThresholds()[p]
	breached := make(map[int]bool)
	for _, hp := range f.PerPollutant[p] {
		if hp.Concentration >= defaults.Warning {
			breached[hp.Hour] = true
		}
	}
	for _, r := range f.Recommendations {
		if breached[r.Hour] {
			view.Recommendations = append(view.Recommendations, r)
		}
	}
	return view
}
