package discharge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

const refineInstruction = `Eres un asistente de documentación clínica. Reescribe las notas entregadas
en lenguaje clínico estandarizado, sin agregar hallazgos que no estén en el texto.
Responde solo con las notas reescritas, en texto plano.`

const draftInstruction = `Eres un médico redactando la epicrisis de alta.
Completa la plantilla institucional con los datos del paciente. No inventes resultados de exámenes.
Responde en texto plano, sin formato markdown.`

// Draft is the discharge summary prepared for a patient.
type Draft struct {
	PatientID    string `json:"patientId"`
	TemplateID   string `json:"templateId"`
	RefinedNotes string `json:"refinedNotes"`
	Text         string `json:"text"`
}

// DocumentWriter refines clinical notes and drafts discharge summaries.
type DocumentWriter interface {
	RefineNotes(ctx context.Context, notes string) (string, error)
	Draft(ctx context.Context, patient models.PatientRecord, refinedNotes string) (Draft, error)
}

// GenerativeWriter drafts from the catalog's discharge template.
type GenerativeWriter struct {
	gen      genai.Generator
	template models.ProtocolDocument
}

func NewGenerativeWriter(gen genai.Generator, template models.ProtocolDocument) *GenerativeWriter {
	return &GenerativeWriter{gen: gen, template: template}
}

func (w *GenerativeWriter) RefineNotes(ctx context.Context, notes string) (string, error) {
	if strings.TrimSpace(notes) == "" {
		return "", nil
	}
	temp := 0.2
	text, err := w.gen.Generate(ctx, genai.Request{
		SystemInstruction: refineInstruction,
		Content:           notes,
		Temperature:       &temp,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (w *GenerativeWriter) Draft(ctx context.Context, p models.PatientRecord, refinedNotes string) (Draft, error) {
	text, err := w.gen.Generate(ctx, genai.Request{
		SystemInstruction: draftInstruction,
		Content:           draftPrompt(w.template, p, refinedNotes),
	})
	if err != nil {
		return Draft{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Draft{}, &genai.SchemaViolation{Reason: "empty discharge draft"}
	}
	return Draft{PatientID: p.ID, TemplateID: w.template.ID, RefinedNotes: refinedNotes, Text: text}, nil
}

func draftPrompt(tpl models.ProtocolDocument, p models.PatientRecord, notes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PLANTILLA (%s):\n%s\n\n", tpl.Title, tpl.Content)
	b.WriteString("PACIENTE:\n")
	fmt.Fprintf(&b, "- Iniciales: %s\n", p.Demographics.Initials)
	fmt.Fprintf(&b, "- Edad: %d\n", p.Demographics.Age)
	fmt.Fprintf(&b, "- Diagnóstico: %s\n", p.Diagnosis)
	fmt.Fprintf(&b, "- Fecha de ingreso: %s\n", p.AdmissionDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Cama: %s\n", p.BedID)
	if p.GRDCluster != nil {
		fmt.Fprintf(&b, "- GRD: %s %s (estadía media %.1f días)\n", p.GRDCluster.Code, p.GRDCluster.Name, p.GRDCluster.AvgDays)
	}
	fmt.Fprintf(&b, "- Días de estadía: %d\n", int(time.Since(p.AdmissionDate).Hours()/24))
	fmt.Fprintf(&b, "\nNOTAS CLÍNICAS:\n%s\n", notes)
	return b.String()
}
