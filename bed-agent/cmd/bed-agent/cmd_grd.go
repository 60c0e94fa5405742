package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/assistant"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/config"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/service"
)

var grdFlags struct {
	diagnosis string
	age       int
}

var grdCmd = &cobra.Command{
	Use:   "grd",
	Short: "Estimate the GRD cluster and expected stay for a diagnosis",
	RunE:  runGRD,
}

func init() {
	f := grdCmd.Flags()
	f.StringVar(&grdFlags.diagnosis, "diagnosis", "", "Admission diagnosis")
	f.IntVar(&grdFlags.age, "age", 0, "Patient age in years")
	_ = grdCmd.MarkFlagRequired("diagnosis")
}

// newAssistant builds the assistant against the configured endpoint, if any.
func newAssistant() (*assistant.Assistant, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	logger := zap.NewNop()
	gen, err := service.NewGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}
	return assistant.New(gen, logger), nil
}

func runGRD(cmd *cobra.Command, _ []string) error {
	a, err := newAssistant()
	if err != nil {
		return err
	}
	p, err := a.PredictGRD(cmd.Context(), grdFlags.diagnosis, grdFlags.age)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Code:       %s\n", p.Code)
	fmt.Fprintf(out, "Name:       %s\n", p.Name)
	fmt.Fprintf(out, "Stay:       %.1f días\n", p.AvgDays)
	fmt.Fprintf(out, "Complexity: %s\n", p.Complexity)
	fmt.Fprintf(out, "Source:     %s\n", p.Source)
	return nil
}
