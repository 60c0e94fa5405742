package discharge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/cleaning"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

// ErrPreparationStale means the patient was discharged while the preparation ran.
var ErrPreparationStale = errors.New("patient discharged during preparation")

// Preparation is the result of preparing one patient's discharge.
type Preparation struct {
	PatientID      string                  `json:"patientId"`
	Draft          Draft                   `json:"draft"`
	Classification cleaning.Classification `json:"classification"`
	// Degraded is set when classification failed and the fail-safe verdict was used.
	Degraded   bool      `json:"degraded"`
	NotesRaw   bool      `json:"notesRaw"`
	PreparedAt time.Time `json:"preparedAt"`
}

// Preparer runs drafting and classification concurrently and holds the latest
// preparation per patient until the discharge consumes it.
type Preparer struct {
	writer     DocumentWriter
	classifier cleaning.Classifier
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]Preparation
	// epochs counts Take calls per patient; a preparation only lands in the epoch it started in.
	epochs map[string]uint64
}

func NewPreparer(w DocumentWriter, c cleaning.Classifier, logger *zap.Logger) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{writer: w, classifier: c, logger: logger, pending: map[string]Preparation{}, epochs: map[string]uint64{}}
}

// Prepare fails only if drafting fails. A refinement failure falls back to the raw
// notes and a classification failure falls back to cleaning.FailSafe.
func (p *Preparer) Prepare(ctx context.Context, patient models.PatientRecord) (Preparation, error) {
	prep := Preparation{PatientID: patient.ID}
	p.mu.Lock()
	epoch := p.epochs[patient.ID]
	p.mu.Unlock()

	notes, err := p.writer.RefineNotes(ctx, patient.ClinicalNotes)
	if err != nil {
		p.logger.Warn("note refinement failed, using raw notes", zap.String("patient_id", patient.ID), zap.Error(err))
		notes = patient.ClinicalNotes
		prep.NotesRaw = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := p.writer.Draft(gctx, patient, notes)
		if err != nil {
			return fmt.Errorf("draft discharge summary: %w", err)
		}
		prep.Draft = d
		return nil
	})
	g.Go(func() error {
		c, err := p.classifier.Classify(gctx, patient.Diagnosis, patient.ClinicalNotes)
		if err != nil {
			p.logger.Warn("cleaning classification failed, using fail-safe", zap.String("patient_id", patient.ID), zap.Error(err))
			c = cleaning.FailSafe(err.Error())
			prep.Degraded = true
		}
		prep.Classification = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return Preparation{}, err
	}

	prep.PreparedAt = time.Now().UTC()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.epochs[patient.ID] != epoch {
		p.logger.Info("dropping preparation for discharged patient", zap.String("patient_id", patient.ID))
		return Preparation{}, ErrPreparationStale
	}
	p.pending[patient.ID] = prep
	return prep, nil
}

func (p *Preparer) Pending(patientID string) (Preparation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prep, ok := p.pending[patientID]
	return prep, ok
}

// Take removes and returns the held preparation, and invalidates any preparation
// of the same patient still running.
func (p *Preparer) Take(patientID string) (Preparation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prep, ok := p.pending[patientID]
	delete(p.pending, patientID)
	p.epochs[patientID]++
	return prep, ok
}
