package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/census"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/scoring"
)

type fakeGenerator struct {
	text string
	err  error
	last genai.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req genai.Request) (string, error) {
	f.last = req
	return f.text, f.err
}

func (f *fakeGenerator) Model() string { return "fake-model" }

func testContext() Context {
	c := census.Demo()
	return Context{
		Census:    c,
		Score:     scoring.Compute(c),
		Documents: knowledge.DefaultProtocols()[:2],
	}
}

func TestGenerateParsesValidResponse(t *testing.T) {
	gen := &fakeGenerator{text: `{"summary":"Urgencia saturada","reasoning":"15 en espera","recommendations":["a","b","c"],"predictedDischarges24h":24}`}
	n, err := New(gen).Generate(context.Background(), testContext())
	require.NoError(t, err)
	assert.Equal(t, "Urgencia saturada", n.Summary)
	assert.Equal(t, []string{"a", "b", "c"}, n.Recommendations)
	assert.Equal(t, 24, n.PredictedDischarges)
	require.NotNil(t, gen.last.ResponseSchema)
	assert.NotContains(t, gen.last.ResponseSchema.Properties, "riskAssessment")
}

func TestAttemptTagsFailures(t *testing.T) {
	cases := []struct {
		name string
		gen  *fakeGenerator
		want OutcomeKind
	}{
		{"transport", &fakeGenerator{err: &genai.TransportFailure{Op: "generate", Err: errors.New("down")}}, TransportError},
		{"untyped error", &fakeGenerator{err: errors.New("boom")}, TransportError},
		{"missing field", &fakeGenerator{text: `{"summary":"s","reasoning":"r","recommendations":["a"]}`}, SchemaError},
		{"empty recommendations", &fakeGenerator{text: `{"summary":"s","reasoning":"r","recommendations":[],"predictedDischarges24h":1}`}, SchemaError},
		{"negative discharges", &fakeGenerator{text: `{"summary":"s","reasoning":"r","recommendations":["a"],"predictedDischarges24h":-2}`}, SchemaError},
		{"risk level smuggled in", &fakeGenerator{text: `{"summary":"s","reasoning":"r","recommendations":["a"],"predictedDischarges24h":1,"riskAssessment":{"level":"Bajo"}}`}, SchemaError},
		{"not json", &fakeGenerator{text: `Todo bien.`}, SchemaError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := New(tc.gen).Attempt(context.Background(), testContext())
			assert.Equal(t, tc.want, out.Kind)
			assert.Error(t, out.Err)
		})
	}
}

func TestRenderPromptCarriesEngineFactsAndExcerpts(t *testing.T) {
	c := testContext()
	c.Documents = append(c.Documents, models.ProtocolDocument{Title: "Largo", Content: strings.Repeat("x", ExcerptLimit+50)})
	p := RenderPrompt(c)
	assert.Contains(t, p, "Nivel de riesgo: Crítico")
	assert.Contains(t, p, "Servicios críticos: Urgencia")
	assert.Contains(t, p, `"capacity": "42/45"`)
	assert.Contains(t, p, "[Protocolo de Colapso en Urgencia]")
	assert.NotContains(t, p, strings.Repeat("x", ExcerptLimit+1))
}
