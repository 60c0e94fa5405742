package census

import (
	"encoding/json"
	"fmt"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

type fact struct {
	Service            models.WardType `json:"service"`
	Capacity           string          `json:"capacity"`
	Blocked            int             `json:"blocked"`
	ProbableDischarges int             `json:"probable_discharges_manual"`
	Waiting            int             `json:"waiting_patients"`
}

// FormatFacts renders the census as the indented JSON fact sheet placed in prompts.
func FormatFacts(services []models.ServiceCensus) string {
	facts := make([]fact, 0, len(services))
	for _, s := range services {
		facts = append(facts, fact{
			Service:            s.WardType,
			Capacity:           fmt.Sprintf("%d/%d", s.OccupiedBeds, s.TotalBeds),
			Blocked:            s.BlockedBeds,
			ProbableDischarges: s.ProbableDischarges,
			Waiting:            s.PendingAdmission,
		})
	}
	b, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
