package census

import (
	"errors"
	"fmt"
	"math"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

var ErrInvalidCensus = errors.New("invalid census")

// Aggregate reduces a census into hospital-wide totals. Blocked beds count towards the
// occupancy rate because they cannot be assigned.
func Aggregate(services []models.ServiceCensus) models.CensusTotals {
	var t models.CensusTotals
	for _, s := range services {
		t.TotalBeds += s.TotalBeds
		t.Occupied += s.OccupiedBeds
		t.Blocked += s.BlockedBeds
		t.Pending += s.PendingAdmission
		t.Discharges += s.ProbableDischarges
	}
	if t.TotalBeds > 0 {
		t.OccupancyRate = int(math.Round(float64(t.Occupied+t.Blocked) / float64(t.TotalBeds) * 100))
	}
	return t
}

// Validate checks one ward entry. The scoring engine does not depend on it.
func Validate(s models.ServiceCensus) error {
	if s.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidCensus)
	}
	if s.WardType == "" {
		return fmt.Errorf("%w: %s: wardType required", ErrInvalidCensus, s.ID)
	}
	if s.TotalBeds < 0 || s.OccupiedBeds < 0 || s.BlockedBeds < 0 || s.ProbableDischarges < 0 || s.PendingAdmission < 0 {
		return fmt.Errorf("%w: %s: counts must be non-negative", ErrInvalidCensus, s.ID)
	}
	if s.OccupiedBeds+s.BlockedBeds > s.TotalBeds {
		return fmt.Errorf("%w: %s: occupied (%d) + blocked (%d) exceeds total (%d)",
			ErrInvalidCensus, s.ID, s.OccupiedBeds, s.BlockedBeds, s.TotalBeds)
	}
	return nil
}

// ValidateAll validates every ward and rejects duplicate ids.
func ValidateAll(services []models.ServiceCensus) error {
	seen := make(map[string]struct{}, len(services))
	for _, s := range services {
		if err := Validate(s); err != nil {
			return err
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidCensus, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Demo returns the reference census used for local runs.
func Demo() []models.ServiceCensus {
	return []models.ServiceCensus{
		{ID: "urg", WardType: models.WardEmergency, TotalBeds: 45, OccupiedBeds: 42, BlockedBeds: 1, ProbableDischarges: 2, PendingAdmission: 15},
		{ID: "med", WardType: models.WardMedicine, TotalBeds: 60, OccupiedBeds: 55, BlockedBeds: 3, ProbableDischarges: 8, PendingAdmission: 4},
		{ID: "cir", WardType: models.WardSurgery, TotalBeds: 40, OccupiedBeds: 35, BlockedBeds: 0, ProbableDischarges: 5, PendingAdmission: 2},
		{ID: "upc", WardType: models.WardIntensiveCare, TotalBeds: 20, OccupiedBeds: 18, BlockedBeds: 1, ProbableDischarges: 1, PendingAdmission: 3},
		{ID: "pab", WardType: models.WardOperatingRooms, TotalBeds: 12, OccupiedBeds: 8, BlockedBeds: 0, ProbableDischarges: 4, PendingAdmission: 0},
		{ID: "tra", WardType: models.WardTraumatology, TotalBeds: 25, OccupiedBeds: 20, BlockedBeds: 0, ProbableDischarges: 2, PendingAdmission: 1},
	}
}
