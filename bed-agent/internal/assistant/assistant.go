package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/census"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

const (
	ReportFailureText = "Error generando el reporte. Por favor intente nuevamente."
	ChatFailureText   = "Error de conexión con BedAI."
)

const reportInstruction = `Eres un asistente administrativo estricto. Genera un reporte formal y conciso en español
para el Director del Hospital y el Servicio de Salud. Enfócate en los nodos críticos, las tasas de ocupación
y las necesidades inmediatas. No uses formato markdown, solo párrafos de texto plano.`

const chatInstruction = `Eres BedAI. Tienes acceso a los datos de camas del hospital en tiempo real:
%s
Responde las preguntas del equipo de enfermería de forma breve y útil. Si preguntan por camas disponibles,
especifica el servicio.`

type Report struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

type Answer struct {
	Text   string `json:"text"`
	Failed bool   `json:"failed"`
}

// Assistant produces the daily report and answers free-form questions. Neither
// operation returns an error: failures become fixed user-facing texts.
type Assistant struct {
	gen    genai.Generator
	logger *zap.Logger
}

func New(gen genai.Generator, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{gen: gen, logger: logger}
}

func (a *Assistant) Report(ctx context.Context, services []models.ServiceCensus) Report {
	temp := 0.3
	text, err := a.gen.Generate(ctx, genai.Request{
		SystemInstruction: reportInstruction,
		Content:           "Genera el \"Reporte Diario de Gestión de Camas\" con estos datos:\n" + census.FormatFacts(services),
		Temperature:       &temp,
	})
	if err != nil {
		a.logger.Warn("report generation failed", zap.Error(err))
		return Report{Text: ReportFailureText + "\n\n" + totalsSummary(census.Aggregate(services)), Fallback: true}
	}
	return Report{Text: strings.TrimSpace(text)}
}

func (a *Assistant) Ask(ctx context.Context, services []models.ServiceCensus, history []genai.Turn, question string) Answer {
	if strings.TrimSpace(question) == "" {
		return Answer{Text: "", Failed: true}
	}
	text, err := a.gen.Generate(ctx, genai.Request{
		SystemInstruction: fmt.Sprintf(chatInstruction, census.FormatFacts(services)),
		History:           history,
		Content:           question,
	})
	if err != nil {
		a.logger.Warn("chat failed", zap.Error(err))
		return Answer{Text: ChatFailureText, Failed: true}
	}
	return Answer{Text: strings.TrimSpace(text)}
}

func totalsSummary(t models.CensusTotals) string {
	return fmt.Sprintf("Resumen del censo: %d camas, %d ocupadas, %d bloqueadas (ocupación %d%%), %d pacientes en espera, %d altas probables.",
		t.TotalBeds, t.Occupied, t.Blocked, t.OccupancyRate, t.Pending, t.Discharges)
}
