package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

var ErrNoGRD = errors.New("no GRD cluster for diagnosis")

const (
	GRDSourceTable = "tabla"
	GRDSourceModel = "modelo"
)

type GRDPrediction struct {
	models.GRDCluster
	Age    int    `json:"age"`
	Source string `json:"source"`
}

const grdInstruction = `Eres codificador clínico GRD. Asigna el grupo relacionado por diagnóstico más probable
para el diagnóstico y la edad dados. Usa códigos con el formato GRD-NNN, la estancia media en días y
la complejidad (Baja, Media o Alta).`

func grdSchema() *genai.Schema {
	return &genai.Schema{
		Type: "OBJECT",
		Properties: map[string]*genai.Schema{
			"code":       {Type: "STRING"},
			"name":       {Type: "STRING"},
			"avgStay":    {Type: "NUMBER"},
			"complexity": {Type: "STRING", Enum: []string{"Baja", "Media", "Alta"}},
		},
		Required: []string{"code", "name", "avgStay", "complexity"},
	}
}

type wireGRD struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	AvgStay    *float64 `json:"avgStay"`
	Complexity string   `json:"complexity"`
}

// PredictGRD looks the diagnosis up in the GRD table and adjusts it for age. Only
// diagnoses the table does not know are sent to the endpoint; if that fails too the
// result is ErrNoGRD.
func (a *Assistant) PredictGRD(ctx context.Context, diagnosis string, age int) (GRDPrediction, error) {
	if strings.TrimSpace(diagnosis) == "" {
		return GRDPrediction{}, fmt.Errorf("diagnosis required")
	}
	if age < 0 {
		return GRDPrediction{}, fmt.Errorf("age must be non-negative")
	}
	if g, ok := knowledge.FindGRD(diagnosis); ok {
		return GRDPrediction{GRDCluster: knowledge.AdjustForAge(g, age), Age: age, Source: GRDSourceTable}, nil
	}

	g, err := a.grdGenerative(ctx, diagnosis, age)
	if err != nil {
		a.logger.Info("grd prediction unavailable", zap.String("diagnosis", diagnosis), zap.Error(err))
		return GRDPrediction{}, ErrNoGRD
	}
	return GRDPrediction{GRDCluster: g, Age: age, Source: GRDSourceModel}, nil
}

func (a *Assistant) grdGenerative(ctx context.Context, diagnosis string, age int) (models.GRDCluster, error) {
	reply, err := a.gen.Generate(ctx, genai.Request{
		SystemInstruction: grdInstruction,
		Content:           fmt.Sprintf("Diagnóstico: %s\nEdad: %d", diagnosis, age),
		ResponseSchema:    grdSchema(),
	})
	if err != nil {
		return models.GRDCluster{}, err
	}
	var w wireGRD
	if err := genai.DecodeStrict(reply, &w); err != nil {
		return models.GRDCluster{}, err
	}
	if strings.TrimSpace(w.Code) == "" || w.AvgStay == nil || *w.AvgStay <= 0 {
		return models.GRDCluster{}, &genai.SchemaViolation{Reason: "code and positive avgStay required"}
	}
	switch w.Complexity {
	case "Baja", "Media", "Alta":
	default:
		return models.GRDCluster{}, &genai.SchemaViolation{Reason: "unknown complexity " + w.Complexity}
	}
	return models.GRDCluster{
		Code:       strings.TrimSpace(w.Code),
		Name:       strings.TrimSpace(w.Name),
		AvgDays:    *w.AvgStay,
		Complexity: w.Complexity,
	}, nil
}
