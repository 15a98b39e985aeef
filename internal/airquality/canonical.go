package airquality

import (
	"sort"
	"time"
)

// Canonicalize merges raw provider payloads into a single Snapshot. Any subset
// of payloads may be nil; an empty input yields an empty snapshot with low
// confidence rather than an error.
//
// Merge policy: per pollutant the nearest-station measurement wins, ties broken
// by newer observation time, then alphabetical source. Stations are unioned and
// deduplicated on (ID, Source). Sources keep first-contribution order.
func Canonicalize(loc Location, observedAt time.Time, payloads ...*Payload) *Snapshot {
	snap := NewSnapshot(loc, observedAt)

	var satellitePresent, groundPresent bool
	seenStations := make(map[string]bool)

	for _, p := range payloads {
		if p == nil {
			continue
		}

		if !snap.HasSource(p.Source) {
			snap.Sources = append(snap.Sources, p.Source)
		}
		var fromSatellite bool
		if p.Contributions != nil {
			fromSatellite = p.Contributions.Satellite
			satellitePresent = satellitePresent || p.Contributions.Satellite
			groundPresent = groundPresent || p.Contributions.Ground
		} else if p.Satellite {
			fromSatellite = true
			satellitePresent = true
		} else {
			groundPresent = true
		}
		if fromSatellite && p.Resolution != "" {
			snap.DataQuality.Resolution = p.Resolution
		}

		for _, m := range p.Measurements {
			if m.Concentration < 0 {
				continue
			}
			if m.Source == "" {
				m.Source = p.Source
			}
			if m.Unit == "" {
				m.Unit = m.Pollutant.CanonicalUnit()
			}
			current, exists := snap.Pollutants[m.Pollutant]
			if !exists || prefer(m, current) {
				snap.Pollutants[m.Pollutant] = m
			}
		}

		for _, st := range p.Stations {
			if st.Source == "" {
				st.Source = p.Source
			}
			key := st.ID + "|" + st.Source
			if !seenStations[key] {
				seenStations[key] = true
				snap.Stations = append(snap.Stations, st)
			}
		}
	}

	sort.Slice(snap.Stations, func(i, j int) bool {
		return snap.Stations[i].DistanceMeters < snap.Stations[j].DistanceMeters
	})

	for p, m := range snap.Pollutants {
		if aqi := AQI(p, m.Concentration); aqi > snap.AQI {
			snap.AQI = aqi
		}
	}
	snap.Level = LevelForAQI(snap.AQI)

	snap.Contributions = Contributions{Satellite: satellitePresent, Ground: groundPresent}

	switch {
	case satellitePresent && groundPresent:
		snap.DataQuality.Confidence = ConfidenceHigh
	case satellitePresent || groundPresent:
		snap.DataQuality.Confidence = ConfidenceMedium
	default:
		snap.DataQuality.Confidence = ConfidenceLow
	}
	if len(snap.Pollutants) == len(Pollutants) {
		snap.DataQuality.Coverage = CoverageFull
	}

	return snap
}

// prefer reports whether candidate should replace current for the same
// pollutant: smaller station distance wins, then newer observation, then
// alphabetically earlier source.
func prefer(candidate, current Measurement) bool {
	if candidate.DistanceMeters != current.DistanceMeters {
		return candidate.DistanceMeters < current.DistanceMeters
	}
	if !candidate.ObservedAt.Equal(current.ObservedAt) {
		return candidate.ObservedAt.After(current.ObservedAt)
	}
	return candidate.Source < current.Source
}

// AsPayload converts a snapshot back into a single provider payload. Feeding
// the result through Canonicalize again reproduces the same snapshot, which
// keeps canonicalization idempotent.
func (s *Snapshot) AsPayload() *Payload {
	contributions := s.Contributions
	p := &Payload{
		Source:        "canonical",
		Satellite:     s.Contributions.Satellite && !s.Contributions.Ground,
		Resolution:    s.DataQuality.Resolution,
		Contributions: &contributions,
		FetchedAt:     s.ObservedAt,
		Stations:      append([]Station(nil), s.Stations...),
	}
	for _, pollutant := range Pollutants {
		if m, ok := s.Pollutants[pollutant]; ok {
			p.Measurements = append(p.Measurements, m)
		}
	}
	return p
}
