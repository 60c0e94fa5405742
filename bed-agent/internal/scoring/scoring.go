// Package scoring is the deterministic risk engine. Its output is the authoritative risk
// classification for every analysis; nothing downstream may override it.
package scoring

import (
	"math"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

const (
	wardCriticalOccupancy = 0.95
	emergencyPendingLimit = 10
	criticalStressScore   = 0.92
	mediumStressScore     = 0.85
	defaultTurnoverFactor = 1.0
)

var turnoverFactors = map[models.WardType]float64{
	models.WardMedicine:      1.2,
	models.WardIntensiveCare: 0.8,
}

// TurnoverFactor is the discharge multiplier for a ward type.
func TurnoverFactor(ward models.WardType) float64 {
	if f, ok := turnoverFactors[ward]; ok {
		return f
	}
	return defaultTurnoverFactor
}

// IsCritical reports whether a single ward is critical on its own.
func IsCritical(s models.ServiceCensus) bool {
	if s.TotalBeds > 0 && float64(s.OccupiedBeds)/float64(s.TotalBeds) > wardCriticalOccupancy {
		return true
	}
	return s.WardType == models.WardEmergency && s.PendingAdmission > emergencyPendingLimit
}

// Classify maps a stress score and the presence of critical wards to a risk level.
func Classify(stress float64, anyCritical bool) models.RiskLevel {
	switch {
	case stress > criticalStressScore || anyCritical:
		return models.RiskCritical
	case stress > mediumStressScore:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Compute scores a census snapshot. It is total: any input, including an empty census,
// produces a prediction.
func Compute(census []models.ServiceCensus) models.MLPrediction {
	var (
		occupied   int
		capacity   int
		discharges int
		critical   = []models.WardType{}
	)
	for _, s := range census {
		occupied += s.OccupiedBeds
		capacity += s.TotalBeds
		if IsCritical(s) {
			critical = append(critical, s.WardType)
		}
		discharges += int(math.Round(float64(s.ProbableDischarges) * TurnoverFactor(s.WardType)))
	}

	stress := 0.0
	if capacity > 0 {
		stress = float64(occupied) / float64(capacity)
	}
	stress = math.Max(0, math.Min(1, stress))

	return models.MLPrediction{
		RiskLevel:           Classify(stress, len(critical) > 0),
		PredictedDischarges: discharges,
		CriticalServices:    critical,
		StressScore:         stress,
	}
}
