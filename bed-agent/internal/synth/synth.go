// Package synth turns a hybrid analysis context into narrative text through the
// generative endpoint. The risk level is not part of its writable schema.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/census"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

const systemInstruction = `Eres BedAI, asistente de gestión de camas del Hospital San José.
Tu objetivo es ayudar al Gestor de Camas a optimizar el flujo de pacientes.
- Los datos del censo son manuales; no existe ficha electrónica.
- El NIVEL DE RIESGO y el ESTRÉS calculados por el motor determinista son hechos; no los reinterpretes.
- Usa los protocolos institucionales entregados como contexto.
Tareas:
1. Resume la situación operativa.
2. Explica el razonamiento del nivel de riesgo entregado.
3. Entrega 3 recomendaciones concretas de asignación o derivación de camas.
4. Estima las altas de las próximas 24 h partiendo de la predicción del motor.`

// ExcerptLimit bounds how much of each protocol document is placed in the prompt.
const ExcerptLimit = 600

// Context is the hybrid input: census facts, the authoritative engine output and
// retrieved protocol excerpts.
type Context struct {
	Census    []models.ServiceCensus
	Score     models.MLPrediction
	Documents []models.ProtocolDocument
}

type Narrative struct {
	Summary             string
	Reasoning           string
	Recommendations     []string
	PredictedDischarges int
}

type OutcomeKind int

const (
	Success OutcomeKind = iota
	SchemaError
	TransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case SchemaError:
		return "schema_error"
	default:
		return "transport_error"
	}
}

// Outcome is the tagged result of one synthesis attempt.
type Outcome struct {
	Kind      OutcomeKind
	Narrative Narrative
	Err       error
}

type Synthesizer struct {
	gen genai.Generator
}

func New(gen genai.Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

func (s *Synthesizer) Model() string { return s.gen.Model() }

// ResponseSchema is the structured-output contract sent with every call.
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: "OBJECT",
		Properties: map[string]*genai.Schema{
			"summary":                {Type: "STRING"},
			"reasoning":              {Type: "STRING"},
			"recommendations":        {Type: "ARRAY", Items: &genai.Schema{Type: "STRING"}},
			"predictedDischarges24h": {Type: "INTEGER"},
		},
		Required: []string{"summary", "reasoning", "recommendations", "predictedDischarges24h"},
	}
}

type wireNarrative struct {
	Summary             *string  `json:"summary"`
	Reasoning           *string  `json:"reasoning"`
	Recommendations     []string `json:"recommendations"`
	PredictedDischarges *int     `json:"predictedDischarges24h"`
}

// Generate makes one call and returns a fully validated narrative or an error.
func (s *Synthesizer) Generate(ctx context.Context, c Context) (Narrative, error) {
	text, err := s.gen.Generate(ctx, genai.Request{
		SystemInstruction: systemInstruction,
		Content:           RenderPrompt(c),
		ResponseSchema:    ResponseSchema(),
	})
	if err != nil {
		return Narrative{}, err
	}
	return parseNarrative(text)
}

// Attempt wraps Generate into a tagged Outcome.
func (s *Synthesizer) Attempt(ctx context.Context, c Context) Outcome {
	n, err := s.Generate(ctx, c)
	switch {
	case err == nil:
		return Outcome{Kind: Success, Narrative: n}
	case genai.IsSchema(err):
		return Outcome{Kind: SchemaError, Err: err}
	default:
		return Outcome{Kind: TransportError, Err: err}
	}
}

func parseNarrative(text string) (Narrative, error) {
	var w wireNarrative
	if err := genai.DecodeStrict(text, &w); err != nil {
		return Narrative{}, err
	}
	switch {
	case w.Summary == nil || strings.TrimSpace(*w.Summary) == "":
		return Narrative{}, &genai.SchemaViolation{Reason: "summary missing"}
	case w.Reasoning == nil || strings.TrimSpace(*w.Reasoning) == "":
		return Narrative{}, &genai.SchemaViolation{Reason: "reasoning missing"}
	case len(w.Recommendations) == 0:
		return Narrative{}, &genai.SchemaViolation{Reason: "recommendations missing"}
	case w.PredictedDischarges == nil:
		return Narrative{}, &genai.SchemaViolation{Reason: "predictedDischarges24h missing"}
	case *w.PredictedDischarges < 0:
		return Narrative{}, &genai.SchemaViolation{Reason: "predictedDischarges24h negative"}
	}
	recs := make([]string, 0, len(w.Recommendations))
	for _, r := range w.Recommendations {
		r = strings.TrimSpace(r)
		if r == "" {
			return Narrative{}, &genai.SchemaViolation{Reason: "empty recommendation"}
		}
		recs = append(recs, r)
	}
	return Narrative{
		Summary:             strings.TrimSpace(*w.Summary),
		Reasoning:           strings.TrimSpace(*w.Reasoning),
		Recommendations:     recs,
		PredictedDischarges: *w.PredictedDischarges,
	}, nil
}

// RenderPrompt lays out the hybrid context as the user content of the call.
func RenderPrompt(c Context) string {
	critical := "ninguno"
	if len(c.Score.CriticalServices) > 0 {
		names := make([]string, len(c.Score.CriticalServices))
		for i, w := range c.Score.CriticalServices {
			names[i] = string(w)
		}
		critical = strings.Join(names, ", ")
	}

	var b strings.Builder
	b.WriteString("ESTADO DEL HOSPITAL (JSON):\n")
	b.WriteString(census.FormatFacts(c.Census))
	b.WriteString("\n\nRESULTADO DEL MOTOR DETERMINISTA (autoritativo):\n")
	fmt.Fprintf(&b, "- Nivel de riesgo: %s\n", c.Score.RiskLevel)
	fmt.Fprintf(&b, "- Estrés del sistema: %.0f%%\n", c.Score.StressScore*100)
	fmt.Fprintf(&b, "- Servicios críticos: %s\n", critical)
	fmt.Fprintf(&b, "- Altas predichas 24h: %d\n", c.Score.PredictedDischarges)
	b.WriteString("\nPROTOCOLOS INSTITUCIONALES:\n")
	if len(c.Documents) == 0 {
		b.WriteString("(sin protocolos relevantes)\n")
	}
	for _, d := range c.Documents {
		fmt.Fprintf(&b, "[%s] %s\n", d.Title, excerpt(d.Content, ExcerptLimit))
	}
	return b.String()
}

func excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
