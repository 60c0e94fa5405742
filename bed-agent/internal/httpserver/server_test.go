package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/assistant"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/config"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/service"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/tasks"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	rt, err := service.Build(context.Background(), config.Config{SeedDemo: true, GenAITimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return New(rt.Service, time.Second, nil).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCensusEndpoints(t *testing.T) {
	h := newTestServer(t)

	var totals models.CensusTotals
	decode(t, do(t, h, http.MethodGet, "/census/totals", nil), &totals)
	assert.Equal(t, 202, totals.TotalBeds)
	assert.Equal(t, 91, totals.OccupancyRate)

	rec := do(t, h, http.MethodPatch, "/census/urg", models.ServiceCensus{
		WardType: models.WardEmergency, TotalBeds: 45, OccupiedBeds: 30, PendingAdmission: 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var snap []models.ServiceCensus
	decode(t, rec, &snap)
	assert.Equal(t, 30, snap[0].OccupiedBeds)

	rec = do(t, h, http.MethodPatch, "/census/urg", models.ServiceCensus{
		WardType: models.WardEmergency, TotalBeds: 10, OccupiedBeds: 9, BlockedBeds: 2,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPatch, "/census/neo", models.ServiceCensus{WardType: models.WardEmergency, TotalBeds: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/census", []models.ServiceCensus{
		{ID: "a", WardType: models.WardSurgery, TotalBeds: 10, OccupiedBeds: 5},
		{ID: "a", WardType: models.WardMedicine, TotalBeds: 10, OccupiedBeds: 5},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalysisFallsBackWithoutEndpoint(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		models.AnalysisResult
		Stale bool `json:"stale"`
	}
	decode(t, rec, &res)
	assert.False(t, res.Stale)
	assert.True(t, res.Provenance.FallbackMode)
	assert.Equal(t, models.RiskCritical, res.RiskAssessment.Level)

	rec = do(t, h, http.MethodGet, "/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReportAndChatNeverFail(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error generando el reporte")

	rec = do(t, h, http.MethodPost, "/chat", map[string]string{"message": "¿Camas libres?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error de conexión con BedAI.")

	rec = do(t, h, http.MethodPost, "/chat", map[string]string{"message": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDischargeAndCleaningFlow(t *testing.T) {
	h := newTestServer(t)

	// drafting needs the endpoint, so preparation fails without one
	rec := do(t, h, http.MethodPost, "/patients/p3/prepare", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, h, http.MethodPost, "/patients/p3/discharge", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var task models.CleaningTask
	decode(t, rec, &task)
	assert.Equal(t, models.ProtocolTerminal, task.Protocol)
	assert.Equal(t, models.PriorityHigh, task.Priority)

	rec = do(t, h, http.MethodPost, "/patients/p3/discharge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var list []models.PatientRecord
	decode(t, do(t, h, http.MethodGet, "/patients", nil), &list)
	assert.Len(t, list, 2)

	path := "/cleaning/" + task.ID.String() + "/advance"
	var tr tasks.Transition
	decode(t, do(t, h, http.MethodPost, path, nil), &tr)
	assert.Equal(t, models.StatusInProgress, tr.To)
	decode(t, do(t, h, http.MethodPost, path, nil), &tr)
	assert.Equal(t, models.StatusReady, tr.To)
	decode(t, do(t, h, http.MethodPost, path, nil), &tr)
	assert.True(t, tr.Removed)

	var queue []models.CleaningTask
	decode(t, do(t, h, http.MethodGet, "/cleaning", nil), &queue)
	assert.Empty(t, queue)

	rec = do(t, h, http.MethodPost, "/cleaning/not-a-uuid/advance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddPatient(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/patients", models.PatientRecord{ID: "p4", Diagnosis: "Colecistitis aguda", BedID: "CIR-03"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var p models.PatientRecord
	decode(t, rec, &p)
	require.NotNil(t, p.GRDCluster)
	assert.Equal(t, "GRD-035", p.GRDCluster.Code)

	rec = do(t, h, http.MethodPost, "/patients", models.PatientRecord{ID: "p4", Diagnosis: "x", BedID: "y"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClassifyAndProtocols(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/classify", map[string]string{"diagnosis": "Apendicitis", "notes": "Herida limpia, sin antecedentes infecciosos"})
	require.Equal(t, http.StatusOK, rec.Code)
	var c struct {
		Protocol         models.CleaningProtocol `json:"protocol"`
		EstimatedMinutes int                     `json:"estimatedMinutes"`
		Degraded         bool                    `json:"degraded"`
	}
	decode(t, rec, &c)
	assert.Equal(t, models.ProtocolQuick, c.Protocol)
	assert.Equal(t, 20, c.EstimatedMinutes)
	assert.False(t, c.Degraded)

	var docs []models.ProtocolDocument
	decode(t, do(t, h, http.MethodGet, "/protocols?keywords=critico", nil), &docs)
	require.Len(t, docs, 2)
	assert.Equal(t, "prot-001", docs[0].ID)

	decode(t, do(t, h, http.MethodGet, "/protocols", nil), &docs)
	assert.Len(t, docs, 5)
}

func TestInsightsBoard(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/insights", map[string]string{"text": "Priorizar altas de Medicina. Cama 402 lista para aseo."})
	require.Equal(t, http.StatusOK, rec.Code)
	var ex assistant.Extraction
	decode(t, rec, &ex)
	assert.True(t, ex.Fallback)
	require.Len(t, ex.Insights, 2)

	var open []assistant.Insight
	decode(t, do(t, h, http.MethodGet, "/insights", nil), &open)
	require.Len(t, open, 2)

	rec = do(t, h, http.MethodPost, "/insights/"+open[0].ID.String()+"/apply", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, do(t, h, http.MethodGet, "/insights", nil), &open)
	assert.Len(t, open, 1)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/insights/"+ex.Insights[0].ID.String()+"/apply", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/insights/nope/apply", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/insights", map[string]string{"text": " "}).Code)
}

func TestAnalyzeMessage(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/messages/analyze", map[string]string{"text": "Urgencia colapsada, 15 en espera", "role": "Jefe de Turno"})
	require.Equal(t, http.StatusOK, rec.Code)
	var alert assistant.Alert
	decode(t, rec, &alert)
	assert.True(t, alert.ShouldNotify)
	assert.Equal(t, assistant.GroupShiftLead, alert.TargetGroup)
	assert.Contains(t, alert.Notice, "AVISO AUTOMATIZADO")

	rec = do(t, h, http.MethodPost, "/messages/analyze", map[string]string{"text": "Recibido", "role": "Admin"})
	decode(t, rec, &alert)
	assert.False(t, alert.ShouldNotify)
}

func TestPredictGRD(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/grd?diagnosis=Neumon%C3%ADa&age=70", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p assistant.GRDPrediction
	decode(t, rec, &p)
	assert.Equal(t, "GRD-089", p.Code)
	assert.Equal(t, "Alta", p.Complexity)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/grd?diagnosis=Fractura&age=70", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/grd?diagnosis=Neumonia", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/grd?age=3", nil).Code)
}
