package knowledge

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

// DischargeTemplateID is the catalog entry used to draft discharge summaries.
const DischargeTemplateID = "tpl-001"

var ErrNotFound = errors.New("protocol not found")

// Retriever is the lookup contract the orchestrator depends on. Keyword overlap and
// embedding similarity are both valid implementations.
type Retriever interface {
	Retrieve(keywords []string) []models.ProtocolDocument
}

// Catalog is an immutable, ordered protocol catalog indexed by lower-cased tag.
type Catalog struct {
	docs  []models.ProtocolDocument
	byTag map[string][]int
	byID  map[string]int
}

// NewCatalog copies docs and builds the tag index. Document ids must be unique.
func NewCatalog(docs []models.ProtocolDocument) (*Catalog, error) {
	c := &Catalog{
		docs:  make([]models.ProtocolDocument, 0, len(docs)),
		byTag: map[string][]int{},
		byID:  map[string]int{},
	}
	for _, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog: document %q has no id", d.Title)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate document id %s", d.ID)
		}
		d.Tags = append([]string(nil), d.Tags...)
		idx := len(c.docs)
		c.docs = append(c.docs, d)
		c.byID[d.ID] = idx
		for _, tag := range d.Tags {
			key := strings.ToLower(strings.TrimSpace(tag))
			if key == "" {
				continue
			}
			c.byTag[key] = append(c.byTag[key], idx)
		}
	}
	return c, nil
}

// Retrieve returns every document sharing at least one tag with keywords, each once,
// in catalog order.
func (c *Catalog) Retrieve(keywords []string) []models.ProtocolDocument {
	hit := make([]bool, len(c.docs))
	for _, kw := range keywords {
		for _, idx := range c.byTag[strings.ToLower(strings.TrimSpace(kw))] {
			hit[idx] = true
		}
	}
	out := []models.ProtocolDocument{}
	for i, ok := range hit {
		if ok {
			out = append(out, copyDoc(c.docs[i]))
		}
	}
	return out
}

func (c *Catalog) Lookup(id string) (models.ProtocolDocument, error) {
	idx, ok := c.byID[id]
	if !ok {
		return models.ProtocolDocument{}, ErrNotFound
	}
	return copyDoc(c.docs[idx]), nil
}

func (c *Catalog) All() []models.ProtocolDocument {
	out := make([]models.ProtocolDocument, len(c.docs))
	for i, d := range c.docs {
		out[i] = copyDoc(d)
	}
	return out
}

func (c *Catalog) Len() int { return len(c.docs) }

func copyDoc(d models.ProtocolDocument) models.ProtocolDocument {
	d.Tags = append([]string(nil), d.Tags...)
	return d
}

type catalogFile struct {
	Protocols []models.ProtocolDocument `yaml:"protocols"`
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(DefaultProtocols())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Protocols) == 0 {
		return nil, fmt.Errorf("parse catalog: no protocols defined")
	}
	return NewCatalog(f.Protocols)
}

// DefaultProtocols is the institutional protocol set shipped with the service.
func DefaultProtocols() []models.ProtocolDocument {
	return []models.ProtocolDocument{
		{
			ID:      "prot-001",
			Title:   "Protocolo de Colapso en Urgencia",
			Tags:    []string{"urgencia", "colapso", "saturación", "critico"},
			Content: "ACTIVAR CÓDIGO DE GESTIÓN: 1. Suspender cirugías electivas. 2. Habilitar pasillos de transición en Medicina. 3. Priorizar altas médicas antes de las 11:00 AM. 4. Evaluar traslado a red extra-hospitalaria.",
		},
		{
			ID:      "prot-002",
			Title:   "Criterios de Gestión UPC",
			Tags:    []string{"upc", "uci", "uti", "critico"},
			Content: "Para optimizar flujo UPC: Pacientes con estabilidad hemodinámica > 24h deben ser trasladados a Intermedio o Medicina (\"Step-down\"). Revisar diariamente pacientes con criterios de salida.",
		},
		{
			ID:      "prot-003",
			Title:   "Bloqueo de Camas",
			Tags:    []string{"bloqueo", "mantenimiento", "aislamiento"},
			Content: "El bloqueo de camas por aislamiento debe ser re-evaluado cada 12 horas por IAAS. Camas bloqueadas por falla técnica deben tener orden de trabajo activa en Ingeniería.",
		},
		{
			ID:      "prot-004",
			Title:   "Flujo Normal de Altas",
			Tags:    []string{"flujo", "normal", "bajo", "medio"},
			Content: "Objetivo diario: Liberar 15% de capacidad total antes de las 13:00 hrs. Gestionar ambulancias para traslados a domicilio el día previo.",
		},
		{
			ID:      DischargeTemplateID,
			Title:   "Template Epicrisis Estándar",
			Tags:    []string{"epicrisis", "alta", "documento"},
			Content: "FORMATO EPICRISIS: 1. Resumen Ingreso (Motivo). 2. Evolución Clínica (Hitos, complicaciones). 3. Procedimientos realizados. 4. Indicaciones al Alta (Fármacos, control). 5. Signos de Alarma.",
		},
	}
}
