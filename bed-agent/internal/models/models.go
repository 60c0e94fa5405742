package models

import (
	"time"

	"github.com/google/uuid"
)

type WardType string

const (
	WardEmergency      WardType = "Urgencia"
	WardMedicine       WardType = "Medicina"
	WardSurgery        WardType = "Cirugía"
	WardIntensiveCare  WardType = "UPC (UCI/UTI)"
	WardOperatingRooms WardType = "Pabellón"
	WardTraumatology   WardType = "Traumatología"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "Bajo"
	RiskMedium   RiskLevel = "Medio"
	RiskCritical RiskLevel = "Crítico"
)

// Rank orders risk levels; unknown values rank below RiskLow.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

type ServiceCensus struct {
	ID                 string   `json:"id" yaml:"id"`
	WardType           WardType `json:"wardType" yaml:"wardType"`
	TotalBeds          int      `json:"totalBeds" yaml:"totalBeds"`
	OccupiedBeds       int      `json:"occupiedBeds" yaml:"occupiedBeds"`
	BlockedBeds        int      `json:"blockedBeds" yaml:"blockedBeds"`
	ProbableDischarges int      `json:"probableDischarges" yaml:"probableDischarges"`
	PendingAdmission   int      `json:"pendingAdmission" yaml:"pendingAdmission"`
}

type CensusTotals struct {
	TotalBeds     int `json:"totalBeds"`
	Occupied      int `json:"occupied"`
	Blocked       int `json:"blocked"`
	OccupancyRate int `json:"occupancyRate"`
	Pending       int `json:"pending"`
	Discharges    int `json:"discharges"`
}

type MLPrediction struct {
	RiskLevel           RiskLevel  `json:"riskLevel"`
	PredictedDischarges int        `json:"predictedDischarges"`
	CriticalServices    []WardType `json:"criticalServices"`
	StressScore         float64    `json:"stressScore"`
}

// HasCritical reports whether ward is among the critical services.
func (p MLPrediction) HasCritical(ward WardType) bool {
	for _, w := range p.CriticalServices {
		if w == ward {
			return true
		}
	}
	return false
}

type ProtocolDocument struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Tags    []string `json:"tags" yaml:"tags"`
	Content string   `json:"content" yaml:"content"`
}

type RiskAssessment struct {
	Level     RiskLevel `json:"level"`
	Reasoning string    `json:"reasoning"`
}

type Provenance struct {
	ModelUsed    string   `json:"modelUsed"`
	RAGDocuments []string `json:"ragDocuments"`
	MLEngineUsed bool     `json:"mlEngineUsed"`
	FallbackMode bool     `json:"fallbackMode"`
}

type AnalysisResult struct {
	ID                    uuid.UUID      `json:"id"`
	Generation            uint64         `json:"generation"`
	Summary               string         `json:"summary"`
	RiskAssessment        RiskAssessment `json:"riskAssessment"`
	Recommendations       []string       `json:"recommendations"`
	PredictedDischarges24 int            `json:"predictedDischarges24h"`
	Provenance            Provenance     `json:"provenance"`
	CreatedAt             time.Time      `json:"createdAt"`
}

type CleaningProtocol string

const (
	ProtocolQuick    CleaningProtocol = "RAPIDO"
	ProtocolTerminal CleaningProtocol = "TERMINAL"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDIENTE"
	StatusInProgress TaskStatus = "EN_PROCESO"
	StatusReady      TaskStatus = "LISTA"
)

type Priority string

const (
	PriorityHigh   Priority = "ALTA"
	PriorityMedium Priority = "MEDIA"
	PriorityLow    Priority = "BAJA"
)

type CleaningTask struct {
	ID               uuid.UUID        `json:"id"`
	BedID            string           `json:"bedId"`
	Protocol         CleaningProtocol `json:"protocol"`
	Reasoning        string           `json:"reasoning"`
	Priority         Priority         `json:"priority"`
	EstimatedMinutes int              `json:"estimatedMinutes"`
	Status           TaskStatus       `json:"status"`
	PatientContext   string           `json:"patientContext"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

type Demographics struct {
	Initials string `json:"initials" yaml:"initials"`
	Age      int    `json:"age" yaml:"age"`
}

type GRDCluster struct {
	Code       string  `json:"code" yaml:"code"`
	Name       string  `json:"name" yaml:"name"`
	AvgDays    float64 `json:"avgDays" yaml:"avgDays"`
	Complexity string  `json:"complexity" yaml:"complexity"`
}

type PatientStatus string

const (
	PatientHospitalized PatientStatus = "HOSPITALIZADO"
	PatientPreDischarge PatientStatus = "PRE_ALTA"
)

type PatientRecord struct {
	ID            string        `json:"id"`
	Demographics  Demographics  `json:"demographics"`
	Diagnosis     string        `json:"diagnosis"`
	AdmissionDate time.Time     `json:"admissionDate"`
	BedID         string        `json:"bedId"`
	Status        PatientStatus `json:"status"`
	ClinicalNotes string        `json:"clinicalNotes"`
	GRDCluster    *GRDCluster   `json:"grdCluster,omitempty"`
}
