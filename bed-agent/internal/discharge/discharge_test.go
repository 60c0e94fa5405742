package discharge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/audit"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/cleaning"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/patients"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/tasks"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) RefineNotes(ctx context.Context, notes string) (string, error) {
	args := m.Called(ctx, notes)
	return args.String(0), args.Error(1)
}

func (m *mockWriter) Draft(ctx context.Context, p models.PatientRecord, notes string) (Draft, error) {
	args := m.Called(ctx, p, notes)
	return args.Get(0).(Draft), args.Error(1)
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string, string) (cleaning.Classification, error) {
	return cleaning.Classification{}, &cleaning.ClassificationFailure{Err: errors.New("endpoint down")}
}

func demoPatient(id string) models.PatientRecord {
	for _, p := range patients.Demo(time.Now()) {
		if p.ID == id {
			return p
		}
	}
	panic("unknown demo patient " + id)
}

func TestPrepareRunsBothAndHoldsResult(t *testing.T) {
	p3 := demoPatient("p3")
	w := &mockWriter{}
	w.On("RefineNotes", mock.Anything, p3.ClinicalNotes).Return("Aislamiento de contacto vigente.", nil)
	w.On("Draft", mock.Anything, p3, "Aislamiento de contacto vigente.").Return(Draft{PatientID: "p3", Text: "Epicrisis"}, nil)

	prep := NewPreparer(w, cleaning.RuleClassifier{}, nil)
	got, err := prep.Prepare(context.Background(), p3)
	require.NoError(t, err)
	assert.Equal(t, "Epicrisis", got.Draft.Text)
	assert.Equal(t, models.ProtocolTerminal, got.Classification.Protocol)
	assert.False(t, got.Degraded)
	assert.False(t, got.NotesRaw)

	held, ok := prep.Pending("p3")
	require.True(t, ok)
	assert.Equal(t, got, held)
	w.AssertExpectations(t)
}

func TestPrepareRefinementFailureUsesRawNotes(t *testing.T) {
	p2 := demoPatient("p2")
	w := &mockWriter{}
	w.On("RefineNotes", mock.Anything, p2.ClinicalNotes).Return("", errors.New("timeout"))
	w.On("Draft", mock.Anything, p2, p2.ClinicalNotes).Return(Draft{PatientID: "p2", Text: "ok"}, nil)

	got, err := NewPreparer(w, cleaning.RuleClassifier{}, nil).Prepare(context.Background(), p2)
	require.NoError(t, err)
	assert.True(t, got.NotesRaw)
	assert.Equal(t, models.ProtocolQuick, got.Classification.Protocol)
	w.AssertExpectations(t)
}

func TestPrepareClassificationFailureDegrades(t *testing.T) {
	p2 := demoPatient("p2")
	w := &mockWriter{}
	w.On("RefineNotes", mock.Anything, mock.Anything).Return("notas", nil)
	w.On("Draft", mock.Anything, mock.Anything, "notas").Return(Draft{PatientID: "p2", Text: "ok"}, nil)

	got, err := NewPreparer(w, failingClassifier{}, nil).Prepare(context.Background(), p2)
	require.NoError(t, err)
	assert.True(t, got.Degraded)
	assert.Equal(t, models.ProtocolTerminal, got.Classification.Protocol)
	assert.Equal(t, 60, got.Classification.EstimatedMinutes)
}

func TestPrepareDraftFailureAborts(t *testing.T) {
	p1 := demoPatient("p1")
	w := &mockWriter{}
	w.On("RefineNotes", mock.Anything, mock.Anything).Return("notas", nil)
	w.On("Draft", mock.Anything, mock.Anything, mock.Anything).Return(Draft{}, &genai.TransportFailure{Op: "generate", Err: errors.New("503")})

	prep := NewPreparer(w, cleaning.RuleClassifier{}, nil)
	_, err := prep.Prepare(context.Background(), p1)
	require.Error(t, err)
	assert.True(t, genai.IsTransport(err))
	_, ok := prep.Pending("p1")
	assert.False(t, ok)
}

func seededCoordinator(t *testing.T) (*Coordinator, *patients.Registry, *tasks.Queue, *Preparer) {
	t.Helper()
	reg := patients.NewRegistry()
	for _, p := range patients.Demo(time.Now()) {
		_, err := reg.Add(p)
		require.NoError(t, err)
	}
	q := tasks.NewQueue()
	w := &mockWriter{}
	w.On("RefineNotes", mock.Anything, mock.Anything).Return("notas", nil)
	w.On("Draft", mock.Anything, mock.Anything, mock.Anything).Return(Draft{Text: "ok"}, nil)
	prep := NewPreparer(w, cleaning.RuleClassifier{}, nil)
	return NewCoordinator(reg, q, prep, nil, nil), reg, q, prep
}

func TestDischargeUsesHeldPreparation(t *testing.T) {
	c, reg, q, prep := seededCoordinator(t)
	q.Push(models.CleaningTask{BedID: "MED-02"})

	_, err := prep.Prepare(context.Background(), demoPatient("p3"))
	require.NoError(t, err)

	task, err := c.Discharge(context.Background(), "p3", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, task.ID, q.List()[0].ID)
	assert.Equal(t, "URG-01", task.BedID)
	assert.Equal(t, models.ProtocolTerminal, task.Protocol)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, "Diarrea por C. Difficile", task.PatientContext)
	_, held := prep.Pending("p3")
	assert.False(t, held)
}

func TestDischargeExplicitPreparation(t *testing.T) {
	c, _, q, _ := seededCoordinator(t)
	quick := cleaning.Evaluate("Apendicitis", "Herida limpia")
	task, err := c.Discharge(context.Background(), "p2", &Preparation{PatientID: "p2", Classification: quick})
	require.NoError(t, err)
	assert.Equal(t, models.ProtocolQuick, task.Protocol)
	assert.Equal(t, 20, task.EstimatedMinutes)
	assert.Equal(t, 1, q.Len())
}

func TestDischargeWithoutPreparationIsFailSafe(t *testing.T) {
	c, _, _, _ := seededCoordinator(t)
	task, err := c.Discharge(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProtocolTerminal, task.Protocol)
	assert.Equal(t, 60, task.EstimatedMinutes)
	assert.True(t, strings.Contains(task.Reasoning, noPreparationReason))
}

func TestDischargeUnknownPatientMutatesNothing(t *testing.T) {
	c, reg, q, _ := seededCoordinator(t)
	_, err := c.Discharge(context.Background(), "p9", nil)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.Equal(t, 3, reg.Len())
	assert.Zero(t, q.Len())
}

// heldWriter blocks drafting until release is closed.
type heldWriter struct {
	drafting chan struct{}
	release  chan struct{}
}

func (h *heldWriter) RefineNotes(_ context.Context, notes string) (string, error) { return notes, nil }

func (h *heldWriter) Draft(_ context.Context, p models.PatientRecord, _ string) (Draft, error) {
	close(h.drafting)
	<-h.release
	return Draft{PatientID: p.ID, Text: "Epicrisis"}, nil
}

func TestPrepareOutlivedByDischargeIsDropped(t *testing.T) {
	reg := patients.NewRegistry()
	p2 := demoPatient("p2")
	_, err := reg.Add(p2)
	require.NoError(t, err)
	w := &heldWriter{drafting: make(chan struct{}), release: make(chan struct{})}
	prep := NewPreparer(w, cleaning.RuleClassifier{}, nil)
	c := NewCoordinator(reg, tasks.NewQueue(), prep, nil, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := prep.Prepare(context.Background(), p2)
		errc <- err
	}()
	<-w.drafting
	first, err := c.Discharge(context.Background(), "p2", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProtocolTerminal, first.Protocol)

	close(w.release)
	assert.ErrorIs(t, <-errc, ErrPreparationStale)
	_, held := prep.Pending("p2")
	assert.False(t, held)

	// a new stay under the same id must not inherit the old stay's verdict
	_, err = reg.Add(p2)
	require.NoError(t, err)
	second, err := c.Discharge(context.Background(), "p2", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProtocolTerminal, second.Protocol)
	assert.Contains(t, second.Reasoning, noPreparationReason)
}

// stalledSink blocks the first event until release is closed.
type stalledSink struct {
	once     sync.Once
	blocking chan struct{}
	release  chan struct{}
}

func (s *stalledSink) Record(context.Context, *audit.Event) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.blocking)
		<-s.release
	}
	return nil
}

func TestSlowAuditSinkDoesNotBlockOtherDischarges(t *testing.T) {
	reg := patients.NewRegistry()
	for _, p := range patients.Demo(time.Now()) {
		_, err := reg.Add(p)
		require.NoError(t, err)
	}
	sink := &stalledSink{blocking: make(chan struct{}), release: make(chan struct{})}
	defer close(sink.release)
	q := tasks.NewQueue()
	c := NewCoordinator(reg, q, nil, audit.NewRecorder(sink, nil), nil)

	go func() {
		_, _ = c.Discharge(context.Background(), "p1", nil)
	}()
	<-sink.blocking

	done := make(chan error, 1)
	go func() {
		_, err := c.Discharge(context.Background(), "p2", nil)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("discharge waited on another discharge's audit event")
	}
	assert.Equal(t, 2, q.Len())
}

type scriptedGenerator struct {
	replies []string
	reqs    []genai.Request
}

func (s *scriptedGenerator) Generate(_ context.Context, req genai.Request) (string, error) {
	s.reqs = append(s.reqs, req)
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *scriptedGenerator) Model() string { return "scripted" }

func TestGenerativeWriterUsesTemplate(t *testing.T) {
	cat, err := knowledge.NewCatalog(knowledge.DefaultProtocols())
	require.NoError(t, err)
	tpl, err := cat.Lookup(knowledge.DischargeTemplateID)
	require.NoError(t, err)

	gen := &scriptedGenerator{replies: []string{"  notas limpias ", "EPICRISIS\nDiagnóstico: Apendicitis"}}
	w := NewGenerativeWriter(gen, tpl)
	p := demoPatient("p2")

	notes, err := w.RefineNotes(context.Background(), p.ClinicalNotes)
	require.NoError(t, err)
	assert.Equal(t, "notas limpias", notes)

	d, err := w.Draft(context.Background(), p, notes)
	require.NoError(t, err)
	assert.Equal(t, knowledge.DischargeTemplateID, d.TemplateID)
	assert.Equal(t, "p2", d.PatientID)
	require.Len(t, gen.reqs, 2)
	assert.Contains(t, gen.reqs[1].Content, tpl.Title)
	assert.Contains(t, gen.reqs[1].Content, "Apendicitis")
	assert.Contains(t, gen.reqs[1].Content, "notas limpias")

	empty, err := w.RefineNotes(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Len(t, gen.reqs, 2)
}
