package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/assistant"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/audit"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/census"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/cleaning"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/discharge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/orchestrator"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/patients"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/snapshot"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/tasks"
)

var (
	ErrPatientNotFound = discharge.ErrPatientNotFound
	ErrInsightNotFound = errors.New("insight not found")
)

// Snapshots mirrors state for external readers; snapshot.Cache implements it.
type Snapshots interface {
	SaveAnalysis(ctx context.Context, r models.AnalysisResult) error
	LatestAnalysis(ctx context.Context) (models.AnalysisResult, error)
	SaveQueue(ctx context.Context, tasks []models.CleaningTask) error
	SaveCensus(ctx context.Context, census []models.ServiceCensus) error
	Ping(ctx context.Context) error
}

type Deps struct {
	Census       *census.Store
	Catalog      *knowledge.Catalog
	Tracker      *orchestrator.Tracker
	Classifier   cleaning.Classifier
	Registry     *patients.Registry
	Queue        *tasks.Queue
	Preparer     *discharge.Preparer
	Coordinator  *discharge.Coordinator
	Assistant    *assistant.Assistant
	Board        *assistant.Board
	Recorder     *audit.Recorder
	Snapshots    Snapshots
	Logger       *zap.Logger
	AutoAnalysis bool
}

type Service struct {
	census      *census.Store
	catalog     *knowledge.Catalog
	tracker     *orchestrator.Tracker
	classifier  cleaning.Classifier
	registry    *patients.Registry
	queue       *tasks.Queue
	preparer    *discharge.Preparer
	coordinator *discharge.Coordinator
	assistant   *assistant.Assistant
	board       *assistant.Board
	recorder    *audit.Recorder
	snapshots   Snapshots
	logger      *zap.Logger

	// Mirror writes re-read state under these locks so the last write carries the newest state.
	censusMirror sync.Mutex
	queueMirror  sync.Mutex
}

// New wires the components together. With AutoAnalysis every census mutation
// triggers a background analysis through the tracker.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		census:      d.Census,
		catalog:     d.Catalog,
		tracker:     d.Tracker,
		classifier:  d.Classifier,
		registry:    d.Registry,
		queue:       d.Queue,
		preparer:    d.Preparer,
		coordinator: d.Coordinator,
		assistant:   d.Assistant,
		board:       d.Board,
		recorder:    d.Recorder,
		snapshots:   d.Snapshots,
		logger:      logger,
	}
	if s.board == nil {
		s.board = assistant.NewBoard()
	}
	s.tracker.OnPublish(s.onAnalysis)
	if d.AutoAnalysis {
		s.census.OnChange(s.tracker.Trigger)
	}
	return s
}

func (s *Service) onAnalysis(ctx context.Context, r models.AnalysisResult) {
	s.logger.Info("analysis published",
		zap.Uint64("generation", r.Generation),
		zap.String("risk_level", string(r.RiskAssessment.Level)),
		zap.Bool("fallback", r.Provenance.FallbackMode))
	s.recorder.Emit(ctx, audit.EventAnalysisCompleted, map[string]interface{}{
		"analysisId": r.ID.String(),
		"generation": r.Generation,
		"level":      string(r.RiskAssessment.Level),
		"fallback":   r.Provenance.FallbackMode,
		"model":      r.Provenance.ModelUsed,
	})
	if s.snapshots != nil {
		if err := s.snapshots.SaveAnalysis(ctx, r); err != nil {
			s.logger.Warn("snapshot analysis failed", zap.Error(err))
		}
	}
}

func (s *Service) Ready(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	return s.snapshots.Ping(ctx)
}

func (s *Service) Census() []models.ServiceCensus {
	return s.census.Snapshot()
}

func (s *Service) Totals() models.CensusTotals {
	return census.Aggregate(s.census.Snapshot())
}

func (s *Service) ReplaceCensus(ctx context.Context, services []models.ServiceCensus) ([]models.ServiceCensus, error) {
	snap, err := s.census.Replace(services)
	if err != nil {
		return nil, err
	}
	s.saveCensus(ctx)
	return snap, nil
}

func (s *Service) UpdateWard(ctx context.Context, ward models.ServiceCensus) ([]models.ServiceCensus, error) {
	snap, err := s.census.UpdateWard(ward)
	if err != nil {
		return nil, err
	}
	s.saveCensus(ctx)
	return snap, nil
}

func (s *Service) saveCensus(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	s.censusMirror.Lock()
	defer s.censusMirror.Unlock()
	if err := s.snapshots.SaveCensus(ctx, s.census.Snapshot()); err != nil {
		s.logger.Warn("snapshot census failed", zap.Error(err))
	}
}

// Analyze runs an analysis of the current census now. Published is false when a
// newer analysis started before this one finished.
func (s *Service) Analyze(ctx context.Context) (result models.AnalysisResult, published bool) {
	return s.tracker.RunLatest(ctx, s.census, nil)
}

// LatestAnalysis returns the last published analysis, falling back to the snapshot store.
func (s *Service) LatestAnalysis(ctx context.Context) (models.AnalysisResult, bool) {
	if r, ok := s.tracker.Latest(); ok {
		return r, true
	}
	if s.snapshots == nil {
		return models.AnalysisResult{}, false
	}
	r, err := s.snapshots.LatestAnalysis(ctx)
	if err != nil {
		if !errors.Is(err, snapshot.ErrMiss) {
			s.logger.Warn("snapshot read failed", zap.Error(err))
		}
		return models.AnalysisResult{}, false
	}
	return r, true
}

func (s *Service) Report(ctx context.Context) assistant.Report {
	return s.assistant.Report(ctx, s.census.Snapshot())
}

func (s *Service) Ask(ctx context.Context, history []genai.Turn, question string) assistant.Answer {
	return s.assistant.Ask(ctx, s.census.Snapshot(), history, question)
}

// ExtractInsights turns free text into action items and posts them on the board.
func (s *Service) ExtractInsights(ctx context.Context, text string) (assistant.Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return assistant.Extraction{}, fmt.Errorf("text required")
	}
	ex := s.assistant.Extract(ctx, text)
	s.board.Add(ex.Insights)
	return ex, nil
}

func (s *Service) Insights() []assistant.Insight {
	return s.board.List()
}

// ApplyInsight closes an open action item.
func (s *Service) ApplyInsight(ctx context.Context, id uuid.UUID) (assistant.Insight, error) {
	in, ok := s.board.Apply(id)
	if !ok {
		return assistant.Insight{}, ErrInsightNotFound
	}
	s.recorder.Emit(ctx, audit.EventInsightApplied, map[string]interface{}{
		"insightId":  id.String(),
		"category":   string(in.Category),
		"actionItem": in.ActionItem,
	})
	return in, nil
}

// AnalyzeMessage screens a shift-board message and records the alerts it raises.
func (s *Service) AnalyzeMessage(ctx context.Context, text, role string) (assistant.Alert, error) {
	if strings.TrimSpace(text) == "" {
		return assistant.Alert{}, fmt.Errorf("text required")
	}
	alert := s.assistant.AnalyzeMessage(ctx, text, role)
	if alert.ShouldNotify {
		s.recorder.Emit(ctx, audit.EventAlertRaised, map[string]interface{}{
			"targetGroup": alert.TargetGroup,
			"priority":    string(alert.Priority),
			"reason":      alert.Reason,
			"role":        role,
			"fallback":    alert.Fallback,
		})
	}
	return alert, nil
}

func (s *Service) PredictGRD(ctx context.Context, diagnosis string, age int) (assistant.GRDPrediction, error) {
	return s.assistant.PredictGRD(ctx, diagnosis, age)
}

func (s *Service) Patients() []models.PatientRecord {
	return s.registry.List()
}

func (s *Service) AddPatient(p models.PatientRecord) (models.PatientRecord, error) {
	return s.registry.Add(p)
}

func (s *Service) PreparedDischarge(patientID string) (discharge.Preparation, bool) {
	return s.preparer.Pending(patientID)
}

func (s *Service) PrepareDischarge(ctx context.Context, patientID string) (discharge.Preparation, error) {
	p, err := s.registry.Get(patientID)
	if errors.Is(err, patients.ErrNotFound) {
		return discharge.Preparation{}, ErrPatientNotFound
	}
	if err != nil {
		return discharge.Preparation{}, err
	}
	return s.preparer.Prepare(ctx, p)
}

func (s *Service) Discharge(ctx context.Context, patientID string) (models.CleaningTask, error) {
	task, err := s.coordinator.Discharge(ctx, patientID, nil)
	if err != nil {
		return models.CleaningTask{}, err
	}
	s.saveQueue(ctx)
	return task, nil
}

func (s *Service) CleaningQueue() []models.CleaningTask {
	return s.queue.List()
}

func (s *Service) AdvanceTask(ctx context.Context, id uuid.UUID) tasks.Transition {
	tr := s.queue.Advance(id)
	if !tr.Found {
		return tr
	}
	if tr.Removed {
		s.recorder.Emit(ctx, audit.EventBedReleased, map[string]interface{}{
			"taskId": id.String(),
			"bedId":  tr.BedID,
		})
	} else {
		s.recorder.Emit(ctx, audit.EventCleaningAdvanced, map[string]interface{}{
			"taskId": id.String(),
			"bedId":  tr.BedID,
			"from":   string(tr.From),
			"to":     string(tr.To),
		})
	}
	s.saveQueue(ctx)
	return tr
}

func (s *Service) saveQueue(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	s.queueMirror.Lock()
	defer s.queueMirror.Unlock()
	if err := s.snapshots.SaveQueue(ctx, s.queue.List()); err != nil {
		s.logger.Warn("snapshot queue failed", zap.Error(err))
	}
}

// ClassifyResult reports a cleaning verdict; Degraded marks a fail-safe substitution.
type ClassifyResult struct {
	cleaning.Classification
	Degraded bool `json:"degraded"`
}

func (s *Service) Classify(ctx context.Context, diagnosis, notes string) (ClassifyResult, error) {
	if strings.TrimSpace(diagnosis) == "" && strings.TrimSpace(notes) == "" {
		return ClassifyResult{}, fmt.Errorf("diagnosis or notes required")
	}
	c, err := s.classifier.Classify(ctx, diagnosis, notes)
	if err != nil {
		s.logger.Warn("classification failed, using fail-safe", zap.Error(err))
		return ClassifyResult{Classification: cleaning.FailSafe(err.Error()), Degraded: true}, nil
	}
	return ClassifyResult{Classification: c}, nil
}

// Protocols returns the documents matching keywords, or the whole catalog when none are given.
func (s *Service) Protocols(keywords []string) []models.ProtocolDocument {
	if len(keywords) == 0 {
		return s.catalog.All()
	}
	return s.catalog.Retrieve(keywords)
}
