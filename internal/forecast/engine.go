package forecast

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/weather"
)

// Base concentrations used when the snapshot lacks a pollutant, in canonical
// units.
var baseConcentrations = map[airquality.Pollutant]float64{
	airquality.PollutantNO2:  20,
	airquality.PollutantO3:   50,
	airquality.PollutantSO2:  10,
	airquality.PollutantHCHO: 5,
	airquality.PollutantCO:   1.0,
	airquality.PollutantPM25: 15,
	airquality.PollutantPM10: 25,
}

// Inputs carries everything the engine needs for one forecast. Now is passed
// explicitly so that identical inputs and an identical clock produce
// byte-identical forecasts.
type Inputs struct {
	Location     airquality.Location
	HorizonHours int
	Snapshot     *airquality.Snapshot
	Weather      *weather.Observation
	Features     FeatureMatrix
	Now          time.Time
}

// EngineConfig holds configuration for the forecast engine.
type EngineConfig struct {
	// Logger for engine operations.
	Logger zerolog.Logger

	// Thresholds are the default AQI alert levels (DefaultThresholds if zero).
	Thresholds Thresholds

	// PollutantThresholds are the default per-pollutant alert levels.
	PollutantThresholds map[airquality.Pollutant]PollutantThresholds
}

// Engine is the statistical forecast engine. It never fails: missing inputs
// degrade to base-concentration projections.
type Engine struct {
	logger              zerolog.Logger
	thresholds          Thresholds
	pollutantThresholds map[airquality.Pollutant]PollutantThresholds
}

// NewEngine creates a forecast engine.
func NewEngine(cfg EngineConfig) *Engine {
	thresholds := cfg.Thresholds
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	pollutantThresholds := cfg.PollutantThresholds
	if pollutantThresholds == nil {
		pollutantThresholds = DefaultPollutantThresholds()
	}
	return &Engine{
		logger:              cfg.Logger,
		thresholds:          thresholds,
		pollutantThresholds: pollutantThresholds,
	}
}

// Generate produces the forecast for the given inputs.
func (e *Engine) Generate(in Inputs) *Forecast {
	horizon := in.HorizonHours
	if horizon < airquality.MinHorizonHours {
		horizon = airquality.DefaultHorizonHours
	}
	if horizon > airquality.MaxHorizonHours {
		horizon = airquality.MaxHorizonHours
	}

	f := &Forecast{
		Location:     in.Location,
		HorizonHours: horizon,
		GeneratedAt:  in.Now,
		PerPollutant: make(map[airquality.Pollutant][]HourPrediction, len(airquality.Pollutants)),
		Confidence:   make(map[airquality.Pollutant][]Band, len(airquality.Pollutants)),
		DataSources:  e.dataSources(in),
	}

	for _, pollutant := range airquality.Pollutants {
		predictions, bands := e.projectPollutant(in, pollutant, horizon)
		f.PerPollutant[pollutant] = predictions
		f.Confidence[pollutant] = bands
	}

	f.AQI = e.aqiTrajectory(f, horizon, in.Now)
	f.Alerts = e.deriveAlerts(f)
	f.Recommendations = deriveRecommendations(f.AQI)
	f.Summary = e.summarize(in, f.AQI)

	e.logger.Debug().
		Float64("lat", in.Location.Lat).
		Float64("lng", in.Location.Lng).
		Int("horizon_hours", horizon).
		Int("alerts", len(f.Alerts)).
		Msg("forecast generated")

	return f
}

// projectPollutant runs the statistical baseline: base concentration shaped by
// a diurnal sine trend plus deterministic seeded noise. The Method field marks
// the extension point for a model-backed projection.
func (e *Engine) projectPollutant(in Inputs, pollutant airquality.Pollutant, horizon int) ([]HourPrediction, []Band) {
	base := baseConcentrations[pollutant]
	if in.Snapshot != nil {
		if m, ok := in.Snapshot.Pollutants[pollutant]; ok {
			base = m.Concentration
		}
	}

	noise := seededNoise(in.Location, pollutant, in.Now)

	predictions := make([]HourPrediction, 0, horizon)
	bands := make([]Band, 0, horizon)

	for h := 1; h <= horizon; h++ {
		trend := math.Sin(float64(h)*math.Pi/12) * 0.1
		c := base * (1 + trend + noise)
		if c < 0 {
			c = 0
		}

		predictions = append(predictions, HourPrediction{
			Hour:          h,
			Concentration: c,
			At:            in.Now.Add(time.Duration(h) * time.Hour),
			Method:        MethodStatistical,
		})
		bands = append(bands, Band{
			Hour:       h,
			Lower:      0.8 * c,
			Upper:      1.2 * c,
			Confidence: 0.8,
		})
	}
	return predictions, bands
}

// seededNoise draws a deterministic value in [-0.1, 0.1] from a seed over the
// quantized location, the pollutant, and the hour of the generation day.
func seededNoise(loc airquality.Location, pollutant airquality.Pollutant, now time.Time) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%.2f|%.2f|%s|%s", loc.Lat, loc.Lng, pollutant, now.UTC().Format("2006010215"))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	return -0.1 + 0.2*rng.Float64()
}

// aqiTrajectory combines per-pollutant projections into the hourly AQI: the
// max over pollutants with a forecast at that hour. Missing pollutants are
// skipped, never imputed as zero.
func (e *Engine) aqiTrajectory(f *Forecast, horizon int, now time.Time) []AqiPrediction {
	trajectory := make([]AqiPrediction, 0, horizon)
	for h := 1; h <= horizon; h++ {
		maxAQI := 0
		for _, pollutant := range airquality.Pollutants {
			predictions := f.PerPollutant[pollutant]
			if len(predictions) < h {
				continue
			}
			if aqi := airquality.AQI(pollutant, predictions[h-1].Concentration); aqi > maxAQI {
				maxAQI = aqi
			}
		}
		trajectory = append(trajectory, AqiPrediction{
			Hour:  h,
			AQI:   maxAQI,
			Level: airquality.LevelForAQI(maxAQI),
			At:    now.Add(time.Duration(h) * time.Hour),
		})
	}
	return trajectory
}

// deriveAlerts scans the next 24 hours for AQI and per-pollutant threshold
// crossings against the engine defaults. The dispatcher re-evaluates them
// against each subscriber's own thresholds.
func (e *Engine) deriveAlerts(f *Forecast) []Alert {
	var alerts []Alert

	for _, pred := range f.AQI {
		if pred.Hour > 24 {
			break
		}
		switch {
		case pred.AQI >= e.thresholds.Emergency:
			alerts = append(alerts, Alert{
				Type:       AlertAQIEmergency,
				Severity:   SeverityEmergency,
				AQI:        pred.AQI,
				HoursUntil: pred.Hour,
				At:         pred.At,
				Message:    fmt.Sprintf("Emergency air quality expected in %dh (AQI %d)", pred.Hour, pred.AQI),
			})
		case pred.AQI >= e.thresholds.Critical:
			alerts = append(alerts, Alert{
				Type:       AlertAQICritical,
				Severity:   SeverityCritical,
				AQI:        pred.AQI,
				HoursUntil: pred.Hour,
				At:         pred.At,
				Message:    fmt.Sprintf("Very unhealthy air quality expected in %dh (AQI %d)", pred.Hour, pred.AQI),
			})
		case pred.AQI >= e.thresholds.Warning:
			alerts = append(alerts, Alert{
				Type:       AlertAQIWarning,
				Severity:   SeverityWarning,
				AQI:        pred.AQI,
				HoursUntil: pred.Hour,
				At:         pred.At,
				Message:    fmt.Sprintf("Unhealthy air quality expected in %dh (AQI %d)", pred.Hour, pred.AQI),
			})
		}
	}

	for _, pollutant := range airquality.Pollutants {
		limits, ok := e.pollutantThresholds[pollutant]
		if !ok {
			continue
		}
		for _, pred := range f.PerPollutant[pollutant] {
			if pred.Hour > 24 {
				break
			}
			switch {
			case pred.Concentration >= limits.Critical:
				alerts = append(alerts, Alert{
					Type:       AlertPollutantCritical,
					Severity:   SeverityCritical,
					Pollutant:  pollutant,
					Value:      pred.Concentration,
					HoursUntil: pred.Hour,
					At:         pred.At,
					Message:    fmt.Sprintf("%s expected at %.1f %s in %dh", pollutant, pred.Concentration, pollutant.CanonicalUnit(), pred.Hour),
				})
			case pred.Concentration >= limits.Warning:
				alerts = append(alerts, Alert{
					Type:       AlertPollutantWarning,
					Severity:   SeverityWarning,
					Pollutant:  pollutant,
					Value:      pred.Concentration,
					HoursUntil: pred.Hour,
					At:         pred.At,
					Message:    fmt.Sprintf("Elevated %s expected at %.1f %s in %dh", pollutant, pred.Concentration, pollutant.CanonicalUnit(), pred.Hour),
				})
			}
		}
	}

	return alerts
}

// Health advice bundles keyed by AQI level.
var adviceByLevel = map[airquality.Level][]string{
	airquality.LevelUnhealthySensitive: {
		"Sensitive groups should reduce prolonged or heavy outdoor exertion",
		"Watch for symptoms such as coughing or shortness of breath",
	},
	airquality.LevelUnhealthy: {
		"Everyone should reduce prolonged or heavy outdoor exertion",
		"Sensitive groups should avoid outdoor activity",
		"Consider moving activities indoors or rescheduling",
	},
	airquality.LevelVeryUnhealthy: {
		"Everyone should avoid prolonged or heavy outdoor exertion",
		"Sensitive groups should remain indoors with filtered air",
		"Wear a fitted respirator if you must be outside",
	},
	airquality.LevelHazardous: {
		"Everyone should avoid all outdoor physical activity",
		"Remain indoors and keep windows closed",
		"Run air purifiers and seek cleaner air shelters if needed",
	},
}

// deriveRecommendations emits an advice bundle for every hour whose AQI
// exceeds 100. Duplicates across consecutive hours are intentional.
func deriveRecommendations(trajectory []AqiPrediction) []Recommendation {
	var recommendations []Recommendation
	for _, pred := range trajectory {
		if pred.AQI <= 100 {
			continue
		}
		advice, ok := adviceByLevel[pred.Level]
		if !ok {
			continue
		}
		recommendations = append(recommendations, Recommendation{
			Hour:   pred.Hour,
			Level:  pred.Level,
			At:     pred.At,
			Advice: advice,
		})
	}
	return recommendations
}

// summarize condenses the trajectory. Trend compares the last and first
// predicted AQI: a swing of more than 10 either way is a direction.
func (e *Engine) summarize(in Inputs, trajectory []AqiPrediction) Summary {
	s := Summary{Trend: TrendStable}
	if in.Snapshot != nil {
		s.Current = in.Snapshot.AQI
	}
	if len(trajectory) == 0 {
		return s
	}

	total := 0
	for _, pred := range trajectory {
		total += pred.AQI
		if pred.AQI > s.Peak {
			s.Peak = pred.AQI
			s.WorstHour = pred.Hour
		}
	}
	s.Average = int(math.Round(float64(total) / float64(len(trajectory))))

	delta := trajectory[len(trajectory)-1].AQI - trajectory[0].AQI
	switch {
	case delta > 10:
		s.Trend = TrendIncreasing
	case delta < -10:
		s.Trend = TrendDecreasing
	}
	return s
}

func (e *Engine) dataSources(in Inputs) DataSources {
	ds := DataSources{
		Satellite: SourceUnavailable,
		Ground:    SourceUnavailable,
		Weather:   SourceUnavailable,
	}
	if in.Snapshot != nil {
		if in.Snapshot.Contributions.Satellite {
			ds.Satellite = SourceAvailable
		}
		if in.Snapshot.Contributions.Ground {
			ds.Ground = SourceAvailable
		}
	}
	if in.Weather != nil {
		ds.Weather = SourceAvailable
	}
	return ds
}
