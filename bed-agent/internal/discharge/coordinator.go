package discharge

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/audit"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/cleaning"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/patients"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/tasks"
)

var ErrPatientNotFound = errors.New("patient not found")

const noPreparationReason = "sin clasificación previa al alta"

// Coordinator turns a discharge into a cleaning task. It makes no generative calls.
type Coordinator struct {
	registry *patients.Registry
	queue    *tasks.Queue
	preparer *Preparer
	recorder *audit.Recorder
	logger   *zap.Logger

	mu sync.Mutex
}

func NewCoordinator(registry *patients.Registry, queue *tasks.Queue, preparer *Preparer, recorder *audit.Recorder, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{registry: registry, queue: queue, preparer: preparer, recorder: recorder, logger: logger}
}

// Discharge removes the patient, queues the bed for cleaning at the head with high
// priority and clears the held preparation. When prep is nil the preparation held by
// the Preparer is used; when there is none the fail-safe verdict applies.
func (c *Coordinator) Discharge(ctx context.Context, patientID string, prep *Preparation) (models.CleaningTask, error) {
	patient, task, err := c.release(patientID, prep)
	if err != nil {
		return models.CleaningTask{}, err
	}

	c.logger.Info("patient discharged",
		zap.String("patient_id", patientID),
		zap.String("bed_id", patient.BedID),
		zap.String("protocol", string(task.Protocol)),
		zap.String("task_id", task.ID.String()))
	c.recorder.Emit(ctx, audit.EventDischargeCompleted, map[string]interface{}{
		"patientId": patientID,
		"bedId":     patient.BedID,
		"taskId":    task.ID.String(),
		"protocol":  string(task.Protocol),
		"minutes":   task.EstimatedMinutes,
	})
	return task, nil
}

// release does the state changes of a discharge under the coordinator lock.
func (c *Coordinator) release(patientID string, prep *Preparation) (models.PatientRecord, models.CleaningTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	patient, err := c.registry.Remove(patientID)
	if errors.Is(err, patients.ErrNotFound) {
		return models.PatientRecord{}, models.CleaningTask{}, ErrPatientNotFound
	}
	if err != nil {
		return models.PatientRecord{}, models.CleaningTask{}, err
	}

	if c.preparer != nil {
		if held, ok := c.preparer.Take(patientID); ok && prep == nil {
			prep = &held
		}
	}
	verdict := cleaning.FailSafe(noPreparationReason)
	if prep != nil && prep.PatientID == patientID && prep.Classification.Protocol != "" {
		verdict = prep.Classification
	}

	task := c.queue.Push(models.CleaningTask{
		BedID:            patient.BedID,
		Protocol:         verdict.Protocol,
		Reasoning:        verdict.Reasoning,
		Priority:         models.PriorityHigh,
		EstimatedMinutes: verdict.EstimatedMinutes,
		Status:           models.StatusPending,
		PatientContext:   patient.Diagnosis,
	})
	return patient, task, nil
}
