package patients

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

var (
	ErrNotFound  = errors.New("patient not found")
	ErrDuplicate = errors.New("patient already registered")
)

// Registry is the active-patient list. Discharge is the only path that removes entries.
type Registry struct {
	mu       sync.RWMutex
	patients []models.PatientRecord
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a patient, filling the GRD cluster from the reference table when absent.
func (r *Registry) Add(p models.PatientRecord) (models.PatientRecord, error) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Diagnosis) == "" || strings.TrimSpace(p.BedID) == "" {
		return models.PatientRecord{}, fmt.Errorf("id, diagnosis and bedId required")
	}
	if p.Status == "" {
		p.Status = models.PatientHospitalized
	}
	if p.GRDCluster == nil {
		if g, ok := knowledge.FindGRD(p.Diagnosis); ok {
			p.GRDCluster = &g
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.patients {
		if existing.ID == p.ID {
			return models.PatientRecord{}, ErrDuplicate
		}
	}
	r.patients = append(r.patients, p)
	return copyRecord(p), nil
}

// Remove deletes a patient and returns the removed record.
func (r *Registry) Remove(id string) (models.PatientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.patients {
		if p.ID == id {
			r.patients = append(r.patients[:i], r.patients[i+1:]...)
			return p, nil
		}
	}
	return models.PatientRecord{}, ErrNotFound
}

func (r *Registry) Get(id string) (models.PatientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.ID == id {
			return copyRecord(p), nil
		}
	}
	return models.PatientRecord{}, ErrNotFound
}

func (r *Registry) List() []models.PatientRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.PatientRecord, len(r.patients))
	for i, p := range r.patients {
		out[i] = copyRecord(p)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patients)
}

func copyRecord(p models.PatientRecord) models.PatientRecord {
	if p.GRDCluster != nil {
		g := *p.GRDCluster
		p.GRDCluster = &g
	}
	return p
}

// Demo returns the emergency-ward candidates used when seeding a demo instance.
func Demo(now time.Time) []models.PatientRecord {
	day := 24 * time.Hour
	return []models.PatientRecord{
		{
			ID:            "p1",
			Demographics:  models.Demographics{Initials: "J.P.L.", Age: 68},
			Diagnosis:     "Neumonía (No Aislamiento)",
			AdmissionDate: now.Add(-2 * day),
			BedID:         "URG-04",
			Status:        models.PatientHospitalized,
			ClinicalNotes: "Estable. PCR Negativo. Sin aislamiento de contacto.",
		},
		{
			ID:            "p2",
			Demographics:  models.Demographics{Initials: "M.A.R.", Age: 45},
			Diagnosis:     "Apendicitis",
			AdmissionDate: now.Add(-1 * day),
			BedID:         "URG-08",
			Status:        models.PatientPreDischarge,
			ClinicalNotes: "Herida limpia. Sin antecedentes infecciosos.",
		},
		{
			ID:            "p3",
			Demographics:  models.Demographics{Initials: "S.T.V.", Age: 82},
			Diagnosis:     "Diarrea por C. Difficile",
			AdmissionDate: now.Add(-4 * day),
			BedID:         "URG-01",
			Status:        models.PatientHospitalized,
			ClinicalNotes: "AISLAMIENTO DE CONTACTO. Precaución estricta.",
		},
	}
}
