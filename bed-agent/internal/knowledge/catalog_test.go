package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

func ids(docs []models.ProtocolDocument) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestRetrieveCriticoReturnsEachTaggedDocumentOnce(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, []string{"prot-001", "prot-002"}, ids(c.Retrieve([]string{"critico"})))
}

func TestRetrieveDeduplicatesAcrossMatchingTags(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	got := c.Retrieve([]string{"colapso", "critico", "urgencia", "upc"})
	assert.Equal(t, []string{"prot-001", "prot-002"}, ids(got))
}

func TestRetrieveIsCaseInsensitiveAndPreservesCatalogOrder(t *testing.T) {
	c, err := NewCatalog([]models.ProtocolDocument{
		{ID: "a", Title: "A", Tags: []string{"Normal"}},
		{ID: "b", Title: "B", Tags: []string{"icu"}},
		{ID: "c", Title: "C", Tags: []string{"NORMAL", "icu"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(c.Retrieve([]string{"ICU", "normal"})))
	assert.Empty(t, c.Retrieve([]string{"unknown"}))
	assert.Empty(t, c.Retrieve(nil))
}

func TestRetrieveReturnsCopies(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	got := c.Retrieve([]string{"normal"})
	require.Len(t, got, 1)
	got[0].Tags[0] = "mutated"
	assert.Equal(t, "flujo", c.Retrieve([]string{"normal"})[0].Tags[0])
}

func TestNewCatalogRejectsDuplicateIDs(t *testing.T) {
	_, err := NewCatalog([]models.ProtocolDocument{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := []byte(`protocols:
  - id: p1
    title: Aislamiento
    tags: [aislamiento, iaas]
    content: Revisar cada 12 horas.
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	doc, err := c.Lookup("p1")
	require.NoError(t, err)
	assert.Equal(t, "Aislamiento", doc.Title)

	_, err = c.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseCatalogRejectsEmpty(t *testing.T) {
	_, err := ParseCatalog([]byte("protocols: []\n"))
	assert.Error(t, err)
}

func TestFindGRD(t *testing.T) {
	g, ok := FindGRD("insuficiencia cardíaca con cc")
	require.True(t, ok)
	assert.Equal(t, "GRD-121", g.Code)

	g, ok = FindGRD("Apendicectomía")
	require.True(t, ok)
	assert.Equal(t, "GRD-330", g.Code)

	g, ok = FindGRD("Neumonía (No Aislamiento)")
	require.True(t, ok)
	assert.Equal(t, "GRD-089", g.Code)

	g, ok = FindGRD("ITU complicada")
	require.True(t, ok)
	assert.Equal(t, "GRD-540", g.Code)

	_, ok = FindGRD("Diarrea por C. Difficile")
	assert.False(t, ok)
	_, ok = FindGRD("Fractura de cadera")
	assert.False(t, ok)
	_, ok = FindGRD("  ")
	assert.False(t, ok)
	_, ok = FindGRD("a")
	assert.False(t, ok)
}

func TestAdjustForAge(t *testing.T) {
	g, ok := FindGRD("Neumonía")
	require.True(t, ok)

	assert.Equal(t, g, AdjustForAge(g, 40))
	old := AdjustForAge(g, ElderlyAge)
	assert.Equal(t, 5.1, old.AvgDays)
	assert.Equal(t, "Alta", old.Complexity)
	assert.Equal(t, "GRD-089", old.Code)

	hf, _ := FindGRD("ICC descompensada")
	assert.Equal(t, "Alta", AdjustForAge(hf, 80).Complexity)
	assert.Equal(t, 6.5, AdjustForAge(hf, 80).AvgDays)
}
