package airquality

import "math"

// Level is the qualitative AQI band.
type Level string

const (
	LevelGood               Level = "good"
	LevelModerate           Level = "moderate"
	LevelUnhealthySensitive Level = "unhealthy-sensitive"
	LevelUnhealthy          Level = "unhealthy"
	LevelVeryUnhealthy      Level = "very-unhealthy"
	LevelHazardous          Level = "hazardous"
)

// breakpoint is one EPA piecewise-linear segment mapping a concentration range
// [CLow, CHigh] to an index range [ILow, IHigh].
type breakpoint struct {
	CLow, CHigh float64
	ILow, IHigh float64
}

// EPA breakpoint tables, concentrations in the pollutant's canonical unit.
var breakpoints = map[Pollutant][]breakpoint{
	PollutantPM25: {
		{0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 350.4, 301, 400},
		{350.5, 500.4, 401, 500},
	},
	PollutantPM10: {
		{0, 54, 0, 50},
		{55, 154, 51, 100},
		{155, 254, 101, 150},
		{255, 354, 151, 200},
		{355, 424, 201, 300},
		{425, 504, 301, 400},
		{505, 604, 401, 500},
	},
	PollutantO3: {
		{0, 54, 0, 50},
		{55, 70, 51, 100},
		{71, 85, 101, 150},
		{86, 105, 151, 200},
		{106, 200, 201, 300},
	},
	PollutantNO2: {
		{0, 53, 0, 50},
		{54, 100, 51, 100},
		{101, 360, 101, 150},
		{361, 649, 151, 200},
		{650, 1249, 201, 300},
		{1250, 1649, 301, 400},
		{1650, 2049, 401, 500},
	},
	PollutantSO2: {
		{0, 35, 0, 50},
		{36, 75, 51, 100},
		{76, 185, 101, 150},
		{186, 304, 151, 200},
		{305, 604, 201, 300},
	},
	PollutantCO: {
		{0, 4.4, 0, 50},
		{4.5, 9.4, 51, 100},
		{9.5, 12.4, 101, 150},
		{12.5, 15.4, 151, 200},
		{15.5, 30.4, 201, 300},
		{30.5, 40.4, 301, 400},
		{40.5, 50.4, 401, 500},
	},
	PollutantHCHO: {
		{0, 10, 0, 50},
		{11, 20, 51, 100},
		{21, 50, 101, 150},
		{51, 100, 151, 200},
		{101, 200, 201, 300},
	},
}

// AQI maps a concentration in the pollutant's canonical unit to an Air Quality
// Index value in [0, 500] via EPA piecewise-linear interpolation. A
// concentration exactly on a segment's upper bound belongs to that segment.
// Unknown pollutants and negative concentrations map to 0.
func AQI(pollutant Pollutant, concentration float64) int {
	table, ok := breakpoints[pollutant]
	if !ok || concentration <= 0 {
		return 0
	}

	first := table[0]
	if concentration < first.CLow {
		return clampAQI(math.Round(first.ILow * concentration / first.CLow))
	}

	for _, bp := range table {
		if concentration <= bp.CHigh {
			// Concentrations inside a gap between adjacent segments snap to
			// the matched segment's lower bound so the index never dips
			// below the previous segment's ceiling.
			if concentration < bp.CLow {
				concentration = bp.CLow
			}
			span := (bp.IHigh - bp.ILow) / (bp.CHigh - bp.CLow)
			return clampAQI(math.Round(span*(concentration-bp.CLow) + bp.ILow))
		}
	}

	// Beyond the last segment.
	return 500
}

// LevelForAQI buckets an AQI value into its qualitative band.
func LevelForAQI(aqi int) Level {
	switch {
	case aqi <= 50:
		return LevelGood
	case aqi <= 100:
		return LevelModerate
	case aqi <= 150:
		return LevelUnhealthySensitive
	case aqi <= 200:
		return LevelUnhealthy
	case aqi <= 300:
		return LevelVeryUnhealthy
	default:
		return LevelHazardous
	}
}

func clampAQI(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 500 {
		return 500
	}
	return int(v)
}
