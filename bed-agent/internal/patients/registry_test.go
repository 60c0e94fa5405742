package patients

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

func seeded(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, p := range Demo(time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)) {
		_, err := r.Add(p)
		require.NoError(t, err)
	}
	return r
}

func TestAddEnrichesGRD(t *testing.T) {
	r := seeded(t)
	p1, err := r.Get("p1")
	require.NoError(t, err)
	require.NotNil(t, p1.GRDCluster)
	assert.Equal(t, "GRD-089", p1.GRDCluster.Code)

	p2, err := r.Get("p2")
	require.NoError(t, err)
	require.NotNil(t, p2.GRDCluster)
	assert.Equal(t, "GRD-330", p2.GRDCluster.Code)

	p3, err := r.Get("p3")
	require.NoError(t, err)
	assert.Nil(t, p3.GRDCluster)
}

func TestAddKeepsProvidedGRD(t *testing.T) {
	r := NewRegistry()
	own := &models.GRDCluster{Code: "GRD-999", Name: "Manual"}
	p, err := r.Add(models.PatientRecord{ID: "x", Diagnosis: "Neumonía", BedID: "MED-1", GRDCluster: own})
	require.NoError(t, err)
	assert.Equal(t, "GRD-999", p.GRDCluster.Code)
	assert.Equal(t, models.PatientHospitalized, p.Status)
}

func TestAddRejectsInvalid(t *testing.T) {
	r := seeded(t)
	_, err := r.Add(models.PatientRecord{ID: "p1", Diagnosis: "x", BedID: "y"})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = r.Add(models.PatientRecord{ID: "p9"})
	assert.Error(t, err)
	assert.Equal(t, 3, r.Len())
}

func TestRemove(t *testing.T) {
	r := seeded(t)
	removed, err := r.Remove("p2")
	require.NoError(t, err)
	assert.Equal(t, "URG-08", removed.BedID)
	assert.Equal(t, 2, r.Len())

	_, err = r.Remove("p2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, r.Len())
}

func TestListReturnsCopies(t *testing.T) {
	r := seeded(t)
	list := r.List()
	list[0].GRDCluster.Code = "changed"
	p1, _ := r.Get("p1")
	assert.Equal(t, "GRD-089", p1.GRDCluster.Code)
}
