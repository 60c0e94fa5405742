package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/textfold"
)

// Notification target groups.
const (
	GroupCleaning   = "Personal de Aseo"
	GroupShiftLead  = "Jefe de Turno"
	GroupBedManager = "Gestión de Camas"
	GroupInfection  = "Control de Infecciones"
)

// Alert is the verdict on one shift-board message.
type Alert struct {
	ShouldNotify bool            `json:"shouldNotify"`
	TargetGroup  string          `json:"targetGroup,omitempty"`
	Priority     models.Priority `json:"priority,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	// Notice is the system message to post back on the board when ShouldNotify is set.
	Notice   string `json:"notice,omitempty"`
	Fallback bool   `json:"fallback"`
}

const alertInstruction = `Eres el monitor del foro de turno de gestión de camas. Decide si el mensaje requiere
avisar a un grupo: camas listas para aseo, servicios colapsados, altas bloqueadas, riesgo infeccioso o
traslados urgentes. Mensajes sociales o de confirmación no requieren aviso.
Grupos posibles: %s.`

func alertSchema() *genai.Schema {
	return &genai.Schema{
		Type: "OBJECT",
		Properties: map[string]*genai.Schema{
			"shouldNotify": {Type: "BOOLEAN"},
			"targetGroup":  {Type: "STRING", Enum: alertGroups},
			"priority":     {Type: "STRING", Enum: []string{string(models.PriorityHigh), string(models.PriorityMedium), string(models.PriorityLow)}},
			"reason":       {Type: "STRING"},
		},
		Required: []string{"shouldNotify"},
	}
}

var alertGroups = []string{GroupCleaning, GroupShiftLead, GroupBedManager, GroupInfection}

type wireAlert struct {
	ShouldNotify *bool  `json:"shouldNotify"`
	TargetGroup  string `json:"targetGroup"`
	Priority     string `json:"priority"`
	Reason       string `json:"reason"`
}

// AnalyzeMessage decides whether a board message should raise a notification. An
// endpoint failure falls back to AlertRules.
func (a *Assistant) AnalyzeMessage(ctx context.Context, text, role string) Alert {
	if strings.TrimSpace(text) == "" {
		return Alert{}
	}
	alert, err := a.analyzeGenerative(ctx, text, role)
	if err != nil {
		a.logger.Warn("message analysis failed, using local rules", zap.Error(err))
		alert = AlertRules(text)
		alert.Fallback = true
	}
	if alert.ShouldNotify {
		alert.Notice = fmt.Sprintf("AVISO AUTOMATIZADO: Notificación enviada a %s. Prioridad: %s. (%s)",
			alert.TargetGroup, alert.Priority, alert.Reason)
	}
	return alert
}

func (a *Assistant) analyzeGenerative(ctx context.Context, text, role string) (Alert, error) {
	reply, err := a.gen.Generate(ctx, genai.Request{
		SystemInstruction: fmt.Sprintf(alertInstruction, strings.Join(alertGroups, ", ")),
		Content:           fmt.Sprintf("Rol: %s\nMensaje: %s", role, text),
		ResponseSchema:    alertSchema(),
	})
	if err != nil {
		return Alert{}, err
	}
	var w wireAlert
	if err := genai.DecodeStrict(reply, &w); err != nil {
		return Alert{}, err
	}
	if w.ShouldNotify == nil {
		return Alert{}, &genai.SchemaViolation{Reason: "shouldNotify required"}
	}
	if !*w.ShouldNotify {
		return Alert{}, nil
	}
	if !knownGroup(w.TargetGroup) || !validPriority(models.Priority(w.Priority)) {
		return Alert{}, &genai.SchemaViolation{Reason: fmt.Sprintf("notify without valid group/priority: %q/%q", w.TargetGroup, w.Priority)}
	}
	return Alert{
		ShouldNotify: true,
		TargetGroup:  w.TargetGroup,
		Priority:     models.Priority(w.Priority),
		Reason:       strings.TrimSpace(w.Reason),
	}, nil
}

func knownGroup(g string) bool {
	for _, known := range alertGroups {
		if g == known {
			return true
		}
	}
	return false
}

var alertRules = []struct {
	group  string
	reason string
	stems  []string
}{
	{GroupInfection, "riesgo infeccioso informado", []string{"aislamiento", "infeccio", "kpc", "brote", "tbc", "covid"}},
	{GroupShiftLead, "servicio saturado", []string{"colapsad", "saturad", "espera"}},
	{GroupCleaning, "camas listas para aseo", []string{"aseo", "limpieza", "desocupad"}},
	{GroupBedManager, "movimiento de camas", []string{"alta", "altas", "traslad", "bloquead"}},
}

// AlertRules is the local message monitor. The first matching rule picks the group.
func AlertRules(text string) Alert {
	words := textfold.Words(textfold.Fold(text))
	for _, r := range alertRules {
		if !anyPrefix(words, r.stems) {
			continue
		}
		priority := models.PriorityMedium
		if anyPrefix(words, urgentStems) || r.group == GroupInfection {
			priority = models.PriorityHigh
		}
		return Alert{ShouldNotify: true, TargetGroup: r.group, Priority: priority, Reason: r.reason}
	}
	return Alert{}
}
