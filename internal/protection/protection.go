// Package protection models how a beach's natural shelter reduces the wind
// felt at the water. Everything here is pure and deterministic.
package protection

import "github.com/kjstillabower/aegeanswim-service/internal/models"

// MeltemiSpeedThreshold is the speed (km/h) above which a northerly wind
// counts as meltemi for shelter purposes. The raw forecast flag uses its own,
// stricter threshold; the two are intentionally independent.
const MeltemiSpeedThreshold = 20.0

var protectionFactors = map[models.ProtectionLevel]float64{
	models.ProtectionHigh:     0.75,
	models.ProtectionModerate: 0.45,
	models.ProtectionLow:      0.15,
}

var shieldFactors = map[models.MeltemiShield]float64{
	models.ShieldExcellent: 0.85,
	models.ShieldGood:      0.60,
	models.ShieldModerate:  0.35,
	models.ShieldPoor:      0.10,
}

// IsNortherly reports whether direction (degrees) lies in [315,360] or [0,45].
func IsNortherly(direction float64) bool {
	return direction >= 315 || direction <= 45
}

// IsMeltemiWind is the shelter model's meltemi test.
func IsMeltemiWind(direction, speed float64) bool {
	return IsNortherly(direction) && speed > MeltemiSpeedThreshold
}

// Factor returns the fraction of wind removed by the beach's shelter.
// Under meltemi the beach's shield rating wins; beaches without a rating
// fall back to their general protection level.
func Factor(beach models.Beach, meltemi bool) float64 {
	if meltemi {
		if f, ok := shieldFactors[beach.MeltemiShield]; ok {
			return f
		}
	}
	return protectionFactors[beach.Protection]
}

// Compute assesses beach under a wind of speed km/h from direction degrees.
func Compute(beach models.Beach, direction, speed float64) models.ProtectionResult {
	meltemi := IsMeltemiWind(direction, speed)
	effective := speed * (1 - Factor(beach, meltemi))

	return models.ProtectionResult{
		EffectiveWindSpeed:  models.RoundTo(effective, 1),
		OriginalWindSpeed:   speed,
		SwimmingConditions:  Conditions(effective, meltemi),
		ProtectionScore:     beach.Protection,
		MeltemiProtection:   beach.MeltemiShield,
		IsMeltemiConditions: meltemi,
		SwimmabilityScore:   Score(effective),
		WindReduction:       Reduction(effective, speed),
	}
}

// Conditions labels an effective wind speed. Meltemi days use wider
// breakpoints and end in "Rough"; other days end in "Choppy".
func Conditions(effective float64, meltemi bool) string {
	if meltemi {
		switch {
		case effective <= 8:
			return "Excellent"
		case effective <= 15:
			return "Good"
		case effective <= 22:
			return "Moderate"
		default:
			return "Rough"
		}
	}
	switch {
	case effective <= 10:
		return "Excellent"
	case effective <= 15:
		return "Good"
	case effective <= 20:
		return "Moderate"
	default:
		return "Choppy"
	}
}

// Score maps an effective wind speed to a swimmability score in [10,100].
func Score(effective float64) int {
	s := models.RoundInt(100 - effective*2.5)
	if s > 100 {
		return 100
	}
	if s < 10 {
		return 10
	}
	return s
}

// Reduction is the percentage of raw wind removed by shelter.
// A calm (zero) raw wind has nothing to reduce and reports 0.
func Reduction(effective, raw float64) int {
	if raw == 0 {
		return 0
	}
	return models.RoundInt((1 - effective/raw) * 100)
}
