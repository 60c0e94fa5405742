package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/cleaning"
)

var classifyFlags struct {
	diagnosis string
	notes     string
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify the cleaning protocol for a bed with the local rules",
	RunE:  runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&classifyFlags.diagnosis, "diagnosis", "", "Discharge diagnosis")
	f.StringVar(&classifyFlags.notes, "notes", "", "Clinical notes")
}

func runClassify(cmd *cobra.Command, _ []string) error {
	if strings.TrimSpace(classifyFlags.diagnosis) == "" && strings.TrimSpace(classifyFlags.notes) == "" {
		return fmt.Errorf("--diagnosis or --notes required")
	}
	c := cleaning.Evaluate(classifyFlags.diagnosis, classifyFlags.notes)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Protocol:  %s\n", c.Protocol)
	fmt.Fprintf(out, "Minutes:   %d\n", c.EstimatedMinutes)
	fmt.Fprintf(out, "Reasoning: %s\n", c.Reasoning)
	return nil
}
