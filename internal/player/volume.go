package player

import "math"

const (
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
	DefaultRate         = 1.0
	MinRate             = 0.25
	MaxRate             = 4.0
)

// percentToExponent maps a 0-100 volume to the exponent used by
// effects.Volume with base 2, following a square-root curve.
func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

func clampRate(rate float64) float64 {
	if rate <= 0 || math.IsNaN(rate) {
		return DefaultRate
	}
	return math.Max(MinRate, math.Min(MaxRate, rate))
}
