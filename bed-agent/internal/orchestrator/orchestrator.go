package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/scoring"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/synth"
)

type Stage string

const (
	StageScoring    Stage = "scoring"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
)

const (
	fallbackModel   = "none"
	fallbackSummary = "MODO CONTINGENCIA: el servicio de IA generativa no está disponible. Se presentan los resultados del motor determinista."
)

var fallbackRecommendations = []string{
	"Consultar la documentación de protocolos institucionales vigentes.",
	"Priorizar altas en los servicios de mayor demanda.",
	"Escalar la situación al equipo de soporte y a la jefatura de turno.",
}

// Synthesizer is the narrative side of the pipeline.
type Synthesizer interface {
	Attempt(ctx context.Context, c synth.Context) synth.Outcome
	Model() string
}

type Orchestrator struct {
	retriever knowledge.Retriever
	synth     Synthesizer
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func New(retriever knowledge.Retriever, s Synthesizer, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		retriever: retriever,
		synth:     s,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// DeriveKeywords maps an engine result to catalog lookup keywords.
func DeriveKeywords(score models.MLPrediction) []string {
	var kw []string
	if score.RiskLevel == models.RiskCritical {
		kw = append(kw, "colapso", "critico")
	}
	if score.HasCritical(models.WardEmergency) {
		kw = append(kw, "urgencia")
	}
	if score.HasCritical(models.WardIntensiveCare) {
		kw = append(kw, "upc")
	}
	if len(kw) == 0 {
		kw = []string{"normal"}
	}
	return kw
}

// Analyze runs scoring, retrieval and synthesis. It never fails: any synthesis
// error yields the deterministic fallback result. onStage may be nil.
func (o *Orchestrator) Analyze(ctx context.Context, census []models.ServiceCensus, onStage func(Stage)) models.AnalysisResult {
	report := func(s Stage) {
		if onStage != nil {
			onStage(s)
		}
	}

	report(StageScoring)
	score := scoring.Compute(census)

	report(StageRetrieval)
	docs := o.retriever.Retrieve(DeriveKeywords(score))

	report(StageGeneration)
	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	out := o.synth.Attempt(callCtx, synth.Context{Census: census, Score: score, Documents: docs})
	if out.Kind != synth.Success {
		o.logger.Warn("narrative synthesis failed, using fallback",
			zap.String("kind", out.Kind.String()),
			zap.String("risk_level", string(score.RiskLevel)),
			zap.Error(out.Err))
		return o.Fallback(score)
	}

	titles := make([]string, len(docs))
	for i, d := range docs {
		titles[i] = d.Title
	}
	return models.AnalysisResult{
		ID:      uuid.New(),
		Summary: out.Narrative.Summary,
		RiskAssessment: models.RiskAssessment{
			Level:     score.RiskLevel,
			Reasoning: out.Narrative.Reasoning,
		},
		Recommendations:       out.Narrative.Recommendations,
		PredictedDischarges24: out.Narrative.PredictedDischarges,
		Provenance: models.Provenance{
			ModelUsed:    o.synth.Model(),
			RAGDocuments: titles,
			MLEngineUsed: true,
		},
		CreatedAt: o.now().UTC(),
	}
}

// Fallback builds the contingency result from the engine output alone.
func (o *Orchestrator) Fallback(score models.MLPrediction) models.AnalysisResult {
	recs := make([]string, len(fallbackRecommendations))
	copy(recs, fallbackRecommendations)
	return models.AnalysisResult{
		ID:      uuid.New(),
		Summary: fallbackSummary,
		RiskAssessment: models.RiskAssessment{
			Level:     score.RiskLevel,
			Reasoning: fallbackReasoning(score),
		},
		Recommendations:       recs,
		PredictedDischarges24: score.PredictedDischarges,
		Provenance: models.Provenance{
			ModelUsed:    fallbackModel,
			RAGDocuments: []string{},
			MLEngineUsed: true,
			FallbackMode: true,
		},
		CreatedAt: o.now().UTC(),
	}
}

func fallbackReasoning(score models.MLPrediction) string {
	critical := "sin servicios críticos"
	if len(score.CriticalServices) > 0 {
		names := make([]string, len(score.CriticalServices))
		for i, w := range score.CriticalServices {
			names[i] = string(w)
		}
		critical = "servicios críticos: " + strings.Join(names, ", ")
	}
	return fmt.Sprintf("Motor determinista: estrés del sistema en %.0f%%, %s.", score.StressScore*100, critical)
}
