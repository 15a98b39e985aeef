// Package airquality defines the canonical air quality model: pollutants,
// measurements, stations, snapshots, and the EPA AQI computation.
package airquality

import (
	"strings"
	"time"
)

// Pollutant identifies a tracked pollutant. Canonical names are case-sensitive.
type Pollutant string

const (
	PollutantNO2  Pollutant = "NO2"
	PollutantO3   Pollutant = "O3"
	PollutantSO2  Pollutant = "SO2"
	PollutantHCHO Pollutant = "HCHO"
	PollutantCO   Pollutant = "CO"
	PollutantPM25 Pollutant = "PM25"
	PollutantPM10 Pollutant = "PM10"
)

// Pollutants lists all canonical pollutants in a stable order.
var Pollutants = []Pollutant{
	PollutantNO2,
	PollutantO3,
	PollutantSO2,
	PollutantHCHO,
	PollutantCO,
	PollutantPM25,
	PollutantPM10,
}

// CanonicalUnit returns the unit a pollutant's concentrations are expressed in:
// µg/m³ for particulates, ppb for gases, except CO which is ppm.
func (p Pollutant) CanonicalUnit() string {
	switch p {
	case PollutantPM25, PollutantPM10:
		return "µg/m³"
	case PollutantCO:
		return "ppm"
	default:
		return "ppb"
	}
}

// ParsePollutant normalizes a provider-specific pollutant name to its canonical
// form. Aliases like "pm2.5", "pm2_5" and "ozone" are accepted. Returns false
// for names that do not map to a known pollutant.
func ParsePollutant(name string) (Pollutant, bool) {
	folded := strings.ToLower(name)
	folded = strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-', ' ':
			return -1
		}
		return r
	}, folded)

	switch folded {
	case "no2", "nitrogendioxide":
		return PollutantNO2, true
	case "o3", "ozone":
		return PollutantO3, true
	case "so2", "sulfurdioxide", "sulphurdioxide":
		return PollutantSO2, true
	case "hcho", "formaldehyde", "ch2o":
		return PollutantHCHO, true
	case "co", "carbonmonoxide":
		return PollutantCO, true
	case "pm25":
		return PollutantPM25, true
	case "pm10":
		return PollutantPM10, true
	default:
		return "", false
	}
}

// Measurement is a single pollutant reading in its canonical unit.
type Measurement struct {
	Pollutant      Pollutant `json:"pollutant"`
	Concentration  float64   `json:"concentration"`
	Unit           string    `json:"unit"`
	Source         string    `json:"source"`
	StationID      string    `json:"stationId,omitempty"`
	ObservedAt     time.Time `json:"observedAt"`
	DistanceMeters float64   `json:"distanceMeters,omitempty"`
}

// Station is a ground monitoring station. Identity is the (ID, Source) pair;
// stations are immutable once they enter a Snapshot.
type Station struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Source         string  `json:"source"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// Confidence grades how trustworthy a snapshot's data is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Coverage indicates whether a snapshot covers all tracked pollutants.
type Coverage string

const (
	CoveragePartial Coverage = "partial"
	CoverageFull    Coverage = "full"
)

// DataQuality describes the provenance quality of a Snapshot.
type DataQuality struct {
	Confidence Confidence `json:"confidence"`
	Coverage   Coverage   `json:"coverage"`
	Resolution string     `json:"resolution"`
}

// Location is a geographic query point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Contributions records which provider classes produced data for a snapshot.
// The forecast layer maps these to its dataSources flags.
type Contributions struct {
	Satellite bool `json:"-"`
	Ground    bool `json:"-"`
}

// Snapshot is the canonical point-in-time air quality view for one location.
// At most one Measurement per Pollutant; AQI is the max over pollutants.
type Snapshot struct {
	Location    Location                  `json:"location"`
	ObservedAt  time.Time                 `json:"observedAt"`
	Pollutants  map[Pollutant]Measurement `json:"pollutants"`
	Stations    []Station                 `json:"stations"`
	Sources     []string                  `json:"sources"`
	AQI         int                       `json:"aqi"`
	Level       Level                     `json:"level"`
	DataQuality DataQuality               `json:"dataQuality"`

	Contributions Contributions `json:"-"`
}

// NewSnapshot creates an empty snapshot for a location. Empty snapshots carry
// AQI 0, level good, and low confidence.
func NewSnapshot(loc Location, observedAt time.Time) *Snapshot {
	return &Snapshot{
		Location:   loc,
		ObservedAt: observedAt,
		Pollutants: make(map[Pollutant]Measurement),
		Level:      LevelGood,
		DataQuality: DataQuality{
			Confidence: ConfidenceLow,
			Coverage:   CoveragePartial,
			Resolution: "station",
		},
	}
}

// HasSource reports whether the named provider contributed to the snapshot.
func (s *Snapshot) HasSource(source string) bool {
	for _, src := range s.Sources {
		if src == source {
			return true
		}
	}
	return false
}
