package knowledge

import (
	"math"
	"strings"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/textfold"
)

// minReverseMatch keeps very short diagnoses from matching inside cluster names.
const minReverseMatch = 4

type grdEntry struct {
	cluster models.GRDCluster
	stems   []string
}

var grdTable = []grdEntry{
	{models.GRDCluster{Code: "GRD-121", Name: "Insuficiencia Cardíaca con CC", AvgDays: 5.2, Complexity: "Alta"},
		[]string{"insuficiencia cardiaca", "icc"}},
	{models.GRDCluster{Code: "GRD-089", Name: "Neumonía Simple / Pleuresía > 17 años", AvgDays: 4.1, Complexity: "Media"},
		[]string{"neumonia", "pleuresia"}},
	{models.GRDCluster{Code: "GRD-330", Name: "Apendicectomía Complicada", AvgDays: 3.5, Complexity: "Media"},
		[]string{"apendic"}},
	{models.GRDCluster{Code: "GRD-880", Name: "Accidente Cerebrovascular Isquémico", AvgDays: 6.8, Complexity: "Alta"},
		[]string{"cerebrovascular", "acv"}},
	{models.GRDCluster{Code: "GRD-035", Name: "Trastornos de la Vesícula Biliar", AvgDays: 2.1, Complexity: "Baja"},
		[]string{"vesicula", "colecist", "colelitiasis"}},
	{models.GRDCluster{Code: "GRD-540", Name: "Infecciones Renales y Urinarias", AvgDays: 3.8, Complexity: "Media"},
		[]string{"urinaria", "itu", "pielonefritis"}},
}

// FindGRD matches a diagnosis against the GRD reference table. A match is a
// substring relation between diagnosis and cluster name in either direction, or
// a known clinical stem at the start of a diagnosis word. Case and accents are ignored.
func FindGRD(diagnosis string) (models.GRDCluster, bool) {
	d := textfold.Fold(strings.TrimSpace(diagnosis))
	if d == "" {
		return models.GRDCluster{}, false
	}
	words := textfold.Words(d)
	for _, g := range grdTable {
		name := textfold.Fold(g.cluster.Name)
		if strings.Contains(d, name) || (len(d) >= minReverseMatch && strings.Contains(name, d)) {
			return g.cluster, true
		}
		for _, stem := range g.stems {
			if strings.Contains(stem, " ") {
				if strings.Contains(d, stem) {
					return g.cluster, true
				}
				continue
			}
			for _, w := range words {
				if strings.HasPrefix(w, stem) {
					return g.cluster, true
				}
			}
		}
	}
	return models.GRDCluster{}, false
}

// ElderlyAge is the age from which a GRD estimate is adjusted for comorbidity.
const ElderlyAge = 65

var complexitySteps = map[string]string{"Baja": "Media", "Media": "Alta", "Alta": "Alta"}

// AdjustForAge lengthens the expected stay by a quarter and raises the complexity
// one step for elderly patients. Other ages get the cluster unchanged.
func AdjustForAge(g models.GRDCluster, age int) models.GRDCluster {
	if age < ElderlyAge {
		return g
	}
	g.AvgDays = math.Round(g.AvgDays*1.25*10) / 10
	if next, ok := complexitySteps[g.Complexity]; ok {
		g.Complexity = next
	}
	return g
}
