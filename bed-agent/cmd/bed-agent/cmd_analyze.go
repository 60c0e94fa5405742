package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/census"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/config"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/orchestrator"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/scoring"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/service"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/synth"
)

var analyzeFlags struct {
	censusPath string
	scoreOnly  bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score a census file and print the analysis as JSON",
	Long:  "Reads a YAML census (a top-level services list) or the demo census when\nno file is given, then runs scoring, retrieval and synthesis once.",
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.censusPath, "file", "f", "", "Census YAML file (default: demo census)")
	f.BoolVar(&analyzeFlags.scoreOnly, "score-only", false, "Print the engine score without synthesis")
}

type analyzeOutput struct {
	Score    models.MLPrediction    `json:"score"`
	Totals   models.CensusTotals    `json:"totals"`
	Analysis *models.AnalysisResult `json:"analysis,omitempty"`
}

func loadCensus(path string) ([]models.ServiceCensus, error) {
	if path == "" {
		return census.Demo(), nil
	}
	return census.LoadFile(path)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	services, err := loadCensus(analyzeFlags.censusPath)
	if err != nil {
		return err
	}
	out := analyzeOutput{Score: scoring.Compute(services), Totals: census.Aggregate(services)}

	if !analyzeFlags.scoreOnly {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config load: %w", err)
		}
		logger := zap.NewNop()
		catalog, err := knowledge.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}
		gen, err := service.NewGenerator(cfg, logger)
		if err != nil {
			return err
		}
		res := orchestrator.New(catalog, synth.New(gen), cfg.GenAITimeout, logger).Analyze(cmd.Context(), services, nil)
		out.Analysis = &res
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
