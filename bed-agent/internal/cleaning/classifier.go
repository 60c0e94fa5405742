// Package cleaning decides which cleaning protocol a bed needs after discharge.
//
// The rule classifier is the authority: it looks for infection-risk markers in
// the diagnosis and clinical notes. The generative classifier can only escalate
// its verdict. Callers that get an error must fall back to FailSafe, which is
// always the terminal protocol.
package cleaning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

const (
	QuickMinutes    = 20
	TerminalMinutes = 60
)

type Classification struct {
	Protocol         models.CleaningProtocol `json:"protocol"`
	Reasoning        string                  `json:"reasoning"`
	EstimatedMinutes int                     `json:"estimatedMinutes"`
}

type Classifier interface {
	Classify(ctx context.Context, diagnosis, notes string) (Classification, error)
}

// ClassificationFailure wraps any error raised while classifying.
type ClassificationFailure struct {
	Err error
}

func (e *ClassificationFailure) Error() string {
	return fmt.Sprintf("cleaning classification failed: %v", e.Err)
}

func (e *ClassificationFailure) Unwrap() error { return e.Err }

func IsClassificationFailure(err error) bool {
	var cf *ClassificationFailure
	return errors.As(err, &cf)
}

// Minutes returns the fixed duration of a protocol. Unknown protocols get the terminal duration.
func Minutes(p models.CleaningProtocol) int {
	if p == models.ProtocolQuick {
		return QuickMinutes
	}
	return TerminalMinutes
}

// FailSafe is the verdict to use when classification could not complete.
func FailSafe(reason string) Classification {
	msg := "Clasificación no disponible; se aplica limpieza terminal por seguridad."
	if reason != "" {
		msg = fmt.Sprintf("%s Motivo: %s.", msg, reason)
	}
	return Classification{
		Protocol:         models.ProtocolTerminal,
		Reasoning:        msg,
		EstimatedMinutes: TerminalMinutes,
	}
}

// RuleClassifier applies the infection-risk vocabulary. It never fails.
type RuleClassifier struct{}

func (RuleClassifier) Classify(_ context.Context, diagnosis, notes string) (Classification, error) {
	return Evaluate(diagnosis, notes), nil
}

// Evaluate is the rule decision: terminal when any unnegated marker appears.
func Evaluate(diagnosis, notes string) Classification {
	found := findMarkers(diagnosis + "\n" + notes)
	if len(found) == 0 {
		return Classification{
			Protocol:         models.ProtocolQuick,
			Reasoning:        "Sin marcadores de riesgo infeccioso; limpieza rápida estándar.",
			EstimatedMinutes: QuickMinutes,
		}
	}
	return Classification{
		Protocol:         models.ProtocolTerminal,
		Reasoning:        fmt.Sprintf("Riesgo infeccioso detectado (%s); requiere limpieza terminal.", strings.Join(found, ", ")),
		EstimatedMinutes: TerminalMinutes,
	}
}

const classifierInstruction = `Eres el asistente de control de infecciones intrahospitalarias.
Determina el protocolo de limpieza de la cama tras el alta:
- TERMINAL si existe cualquier precaución de aislamiento (contacto, gotitas, aérea), organismo multirresistente, C. difficile, COVID-19, tuberculosis o herida abierta infectada.
- RAPIDO en cualquier otro caso.
Responde con el protocolo y un razonamiento breve.`

func classifierSchema() *genai.Schema {
	return &genai.Schema{
		Type: "OBJECT",
		Properties: map[string]*genai.Schema{
			"protocol":  {Type: "STRING", Enum: []string{string(models.ProtocolQuick), string(models.ProtocolTerminal)}},
			"reasoning": {Type: "STRING"},
		},
		Required: []string{"protocol", "reasoning"},
	}
}

type wireVerdict struct {
	Protocol  *string `json:"protocol"`
	Reasoning *string `json:"reasoning"`
}

// GenerativeClassifier consults the endpoint when the rules find nothing. A
// terminal rule verdict is returned without a call.
type GenerativeClassifier struct {
	gen    genai.Generator
	logger *zap.Logger
}

func NewGenerativeClassifier(gen genai.Generator, logger *zap.Logger) *GenerativeClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerativeClassifier{gen: gen, logger: logger}
}

func (g *GenerativeClassifier) Classify(ctx context.Context, diagnosis, notes string) (Classification, error) {
	rule := Evaluate(diagnosis, notes)
	if rule.Protocol == models.ProtocolTerminal {
		return rule, nil
	}

	text, err := g.gen.Generate(ctx, genai.Request{
		SystemInstruction: classifierInstruction,
		Content:           fmt.Sprintf("Diagnóstico: %s\nNotas: %s", diagnosis, notes),
		ResponseSchema:    classifierSchema(),
	})
	if err != nil {
		return Classification{}, &ClassificationFailure{Err: err}
	}
	var w wireVerdict
	if err := genai.DecodeStrict(text, &w); err != nil {
		return Classification{}, &ClassificationFailure{Err: err}
	}
	if w.Protocol == nil || w.Reasoning == nil {
		return Classification{}, &ClassificationFailure{Err: &genai.SchemaViolation{Reason: "protocol and reasoning required"}}
	}

	switch models.CleaningProtocol(*w.Protocol) {
	case models.ProtocolTerminal:
		g.logger.Info("generative classifier escalated to terminal", zap.String("diagnosis", diagnosis))
		return Classification{
			Protocol:         models.ProtocolTerminal,
			Reasoning:        strings.TrimSpace(*w.Reasoning),
			EstimatedMinutes: TerminalMinutes,
		}, nil
	case models.ProtocolQuick:
		if r := strings.TrimSpace(*w.Reasoning); r != "" {
			rule.Reasoning = r
		}
		return rule, nil
	default:
		return Classification{}, &ClassificationFailure{Err: &genai.SchemaViolation{Reason: fmt.Sprintf("unknown protocol %q", *w.Protocol)}}
	}
}
