package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/textfold"
)

type InsightCategory string

const (
	InsightBed       InsightCategory = "CAMA"
	InsightDischarge InsightCategory = "ALTA"
	InsightTransfer  InsightCategory = "TRASLADO"
	InsightCleaning  InsightCategory = "ASEO"
	InsightOther     InsightCategory = "OTRO"
)

var insightCategories = []string{
	string(InsightBed), string(InsightDischarge), string(InsightTransfer), string(InsightCleaning), string(InsightOther),
}

// Insight is one action item extracted from free text such as a shift handover.
type Insight struct {
	ID         uuid.UUID       `json:"id"`
	Category   InsightCategory `json:"category"`
	ActionItem string          `json:"actionItem"`
	Priority   models.Priority `json:"priority"`
	Ward       string          `json:"ward,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Extraction struct {
	Insights []Insight `json:"insights"`
	// Fallback is set when the endpoint failed and the local rules extracted the items.
	Fallback bool `json:"fallback"`
}

const insightsInstruction = `Eres el agente de contexto de gestión de camas. Lee el texto libre (entrega de turno,
correos, notas) y extrae solo acciones concretas sobre camas, altas, traslados o aseo.
Cada acción debe ser una instrucción breve en español con su categoría, prioridad (ALTA, MEDIA o BAJA)
y el servicio si se menciona. Si no hay acciones, responde con una lista vacía.`

func insightsSchema() *genai.Schema {
	return &genai.Schema{
		Type: "OBJECT",
		Properties: map[string]*genai.Schema{
			"insights": {
				Type: "ARRAY",
				Items: &genai.Schema{
					Type: "OBJECT",
					Properties: map[string]*genai.Schema{
						"category":   {Type: "STRING", Enum: insightCategories},
						"actionItem": {Type: "STRING"},
						"priority":   {Type: "STRING", Enum: []string{string(models.PriorityHigh), string(models.PriorityMedium), string(models.PriorityLow)}},
						"ward":       {Type: "STRING"},
					},
					Required: []string{"category", "actionItem", "priority"},
				},
			},
		},
		Required: []string{"insights"},
	}
}

type wireInsight struct {
	Category   string  `json:"category"`
	ActionItem string  `json:"actionItem"`
	Priority   string  `json:"priority"`
	Ward       *string `json:"ward"`
}

type wireInsights struct {
	Insights *[]wireInsight `json:"insights"`
}

// Extract turns free text into action items. Any endpoint failure, including a
// reply outside the schema, falls back to ExtractRules.
func (a *Assistant) Extract(ctx context.Context, text string) Extraction {
	if strings.TrimSpace(text) == "" {
		return Extraction{Insights: []Insight{}}
	}
	items, err := a.extractGenerative(ctx, text)
	if err != nil {
		a.logger.Warn("insight extraction failed, using local rules", zap.Error(err))
		return Extraction{Insights: ExtractRules(text), Fallback: true}
	}
	return Extraction{Insights: items}
}

func (a *Assistant) extractGenerative(ctx context.Context, text string) ([]Insight, error) {
	reply, err := a.gen.Generate(ctx, genai.Request{
		SystemInstruction: insightsInstruction,
		Content:           text,
		ResponseSchema:    insightsSchema(),
	})
	if err != nil {
		return nil, err
	}
	var w wireInsights
	if err := genai.DecodeStrict(reply, &w); err != nil {
		return nil, err
	}
	if w.Insights == nil {
		return nil, &genai.SchemaViolation{Reason: "insights required"}
	}
	now := time.Now().UTC()
	out := make([]Insight, 0, len(*w.Insights))
	for _, wi := range *w.Insights {
		if strings.TrimSpace(wi.ActionItem) == "" {
			return nil, &genai.SchemaViolation{Reason: "empty actionItem"}
		}
		if !validPriority(models.Priority(wi.Priority)) {
			return nil, &genai.SchemaViolation{Reason: "unknown priority " + wi.Priority}
		}
		cat := InsightCategory(wi.Category)
		if !validCategory(cat) {
			return nil, &genai.SchemaViolation{Reason: "unknown category " + wi.Category}
		}
		in := Insight{
			ID:         uuid.New(),
			Category:   cat,
			ActionItem: strings.TrimSpace(wi.ActionItem),
			Priority:   models.Priority(wi.Priority),
			CreatedAt:  now,
		}
		if wi.Ward != nil {
			in.Ward = strings.TrimSpace(*wi.Ward)
		}
		out = append(out, in)
	}
	return out, nil
}

func validPriority(p models.Priority) bool {
	return p == models.PriorityHigh || p == models.PriorityMedium || p == models.PriorityLow
}

func validCategory(c InsightCategory) bool {
	for _, known := range insightCategories {
		if string(c) == known {
			return true
		}
	}
	return false
}

var categoryStems = []struct {
	category InsightCategory
	stems    []string
}{
	{InsightCleaning, []string{"aseo", "limpieza", "limpiar", "desinfec"}},
	{InsightTransfer, []string{"traslad", "transito", "derivar", "deriva"}},
	{InsightDischarge, []string{"alta", "altas", "egreso", "epicrisis"}},
	{InsightBed, []string{"cama", "camas", "bloque", "habilit", "cupo"}},
}

var urgentStems = []string{"urgente", "inmediat", "colapsad", "critic", "prioriz", "ya"}

var wardNames = []models.WardType{
	models.WardEmergency, models.WardMedicine, models.WardSurgery,
	models.WardIntensiveCare, models.WardOperatingRooms, models.WardTraumatology,
}

// ExtractRules is the local extractor: each sentence that names a bed-flow
// subject becomes one action item.
func ExtractRules(text string) []Insight {
	now := time.Now().UTC()
	out := []Insight{}
	for _, sentence := range splitSentences(text) {
		words := textfold.Words(textfold.Fold(sentence))
		cat := InsightOther
		for _, c := range categoryStems {
			if anyPrefix(words, c.stems) {
				cat = c.category
				break
			}
		}
		if cat == InsightOther {
			continue
		}
		priority := models.PriorityMedium
		if anyPrefix(words, urgentStems) {
			priority = models.PriorityHigh
		}
		out = append(out, Insight{
			ID:         uuid.New(),
			Category:   cat,
			ActionItem: sentence,
			Priority:   priority,
			Ward:       findWard(sentence),
			CreatedAt:  now,
		})
	}
	return out
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n' || r == ';' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func anyPrefix(words, stems []string) bool {
	for _, w := range words {
		for _, s := range stems {
			if w == s || (len(s) > 3 && strings.HasPrefix(w, s)) {
				return true
			}
		}
	}
	return false
}

func findWard(sentence string) string {
	folded := textfold.Fold(sentence)
	for _, w := range wardNames {
		name := textfold.Fold(strings.Fields(string(w))[0])
		if strings.Contains(folded, name) {
			return string(w)
		}
	}
	return ""
}

// Board holds the open action items until someone applies them.
type Board struct {
	mu    sync.Mutex
	items []Insight
}

func NewBoard() *Board {
	return &Board{}
}

// Add appends items and returns the open list.
func (b *Board) Add(items []Insight) []Insight {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, items...)
	return append([]Insight{}, b.items...)
}

func (b *Board) List() []Insight {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Insight{}, b.items...)
}

// Apply removes the item with id. It reports false when no such item is open.
func (b *Board) Apply(id uuid.UUID) (Insight, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, it := range b.items {
		if it.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return it, true
		}
	}
	return Insight{}, false
}
