package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/assistant"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/census"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/discharge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/patients"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/service"
)

type Server struct {
	service *service.Service
	logger  *zap.Logger
	// requestTimeout must exceed the generative timeout so fallbacks can still be written.
	requestTimeout time.Duration
}

func New(svc *service.Service, genaiTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{service: svc, logger: logger, requestTimeout: genaiTimeout*2 + 10*time.Second}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/health", s.handleHealth)

	r.Route("/census", func(r chi.Router) {
		r.Get("/", s.handleGetCensus)
		r.Put("/", s.handleReplaceCensus)
		r.Get("/totals", s.handleTotals)
		r.Patch("/{id}", s.handleUpdateWard)
	})

	r.Get("/analysis", s.handleLatestAnalysis)
	r.Post("/analysis", s.handleAnalyze)
	r.Post("/report", s.handleReport)
	r.Post("/chat", s.handleChat)

	r.Route("/patients", func(r chi.Router) {
		r.Get("/", s.handleListPatients)
		r.Post("/", s.handleAddPatient)
		r.Get("/{id}/preparation", s.handleGetPreparation)
		r.Post("/{id}/prepare", s.handlePrepare)
		r.Post("/{id}/discharge", s.handleDischarge)
	})

	r.Get("/cleaning", s.handleCleaningQueue)
	r.Post("/cleaning/{id}/advance", s.handleAdvance)
	r.Post("/classify", s.handleClassify)
	r.Get("/protocols", s.handleProtocols)

	r.Route("/insights", func(r chi.Router) {
		r.Get("/", s.handleListInsights)
		r.Post("/", s.handleExtractInsights)
		r.Post("/{id}/apply", s.handleApplyInsight)
	})
	r.Post("/messages/analyze", s.handleAnalyzeMessage)
	r.Get("/grd", s.handlePredictGRD)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.service.Ready(ctx); err != nil {
		status["ok"] = false
		status["snapshots"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetCensus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Census())
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Totals())
}

func (s *Server) handleReplaceCensus(w http.ResponseWriter, r *http.Request) {
	var req []models.ServiceCensus
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.service.ReplaceCensus(r.Context(), req)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUpdateWard(w http.ResponseWriter, r *http.Request) {
	var ward models.ServiceCensus
	if err := decodeJSON(w, r, &ward); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if ward.ID != "" && ward.ID != id {
		respondError(w, http.StatusBadRequest, "id in body does not match path")
		return
	}
	ward.ID = id
	snap, err := s.service.UpdateWard(r.Context(), ward)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	res, ok := s.service.LatestAnalysis(r.Context())
	if !ok {
		respondError(w, http.StatusNotFound, "no analysis yet")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type analysisResponse struct {
	models.AnalysisResult
	Stale bool `json:"stale"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	res, published := s.service.Analyze(r.Context())
	respondJSON(w, http.StatusOK, analysisResponse{AnalysisResult: res, Stale: !published})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Report(r.Context()))
}

type chatRequest struct {
	Message string       `json:"message"`
	History []genai.Turn `json:"history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message required")
		return
	}
	for _, t := range req.History {
		if t.Role != "user" && t.Role != "model" {
			respondError(w, http.StatusBadRequest, "history role must be user or model")
			return
		}
	}
	respondJSON(w, http.StatusOK, s.service.Ask(r.Context(), req.History, req.Message))
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Patients())
}

func (s *Server) handleAddPatient(w http.ResponseWriter, r *http.Request) {
	var req models.PatientRecord
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.service.AddPatient(req)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPreparation(w http.ResponseWriter, r *http.Request) {
	prep, ok := s.service.PreparedDischarge(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "no preparation for patient")
		return
	}
	respondJSON(w, http.StatusOK, prep)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	prep, err := s.service.PrepareDischarge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Warn("discharge preparation failed", zap.String("patient_id", chi.URLParam(r, "id")), zap.Error(err))
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prep)
}

func (s *Server) handleDischarge(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.Discharge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleCleaningQueue(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.CleaningQueue())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	respondJSON(w, http.StatusOK, s.service.AdvanceTask(r.Context(), id))
}

type classifyRequest struct {
	Diagnosis string `json:"diagnosis"`
	Notes     string `json:"notes"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.Classify(r.Context(), req.Diagnosis, req.Notes)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleProtocols(w http.ResponseWriter, r *http.Request) {
	var keywords []string
	for _, k := range strings.Split(r.URL.Query().Get("keywords"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	respondJSON(w, http.StatusOK, s.service.Protocols(keywords))
}

type insightsRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleExtractInsights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ex, err := s.service.ExtractInsights(r.Context(), req.Text)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ex)
}

func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Insights())
}

func (s *Server) handleApplyInsight(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid insight id")
		return
	}
	in, err := s.service.ApplyInsight(r.Context(), id)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, in)
}

type messageRequest struct {
	Text string `json:"text"`
	Role string `json:"role"`
}

func (s *Server) handleAnalyzeMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := s.service.AnalyzeMessage(r.Context(), req.Text, req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

func (s *Server) handlePredictGRD(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	age, err := strconv.Atoi(q.Get("age"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "age must be an integer")
		return
	}
	p, err := s.service.PredictGRD(r.Context(), q.Get("diagnosis"), age)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, census.ErrInvalidCensus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, census.ErrNotFound), errors.Is(err, service.ErrPatientNotFound), errors.Is(err, patients.ErrNotFound),
		errors.Is(err, service.ErrInsightNotFound), errors.Is(err, assistant.ErrNoGRD):
		return http.StatusNotFound
	case errors.Is(err, patients.ErrDuplicate), errors.Is(err, discharge.ErrPreparationStale):
		return http.StatusConflict
	case genai.IsTransport(err), genai.IsSchema(err):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
