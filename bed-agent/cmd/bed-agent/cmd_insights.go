package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var insightsFlags struct {
	text string
	path string
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Extract bed-flow action items from free text",
	Long:  "Reads a shift handover or any free text from --text, a file, or stdin with\n-f -, and prints the extracted action items as JSON.",
	RunE:  runInsights,
}

func init() {
	f := insightsCmd.Flags()
	f.StringVar(&insightsFlags.text, "text", "", "Free text to analyse")
	f.StringVarP(&insightsFlags.path, "file", "f", "", "Read the text from a file (- for stdin)")
}

func readInsightsText(cmd *cobra.Command) (string, error) {
	switch insightsFlags.path {
	case "":
		return insightsFlags.text, nil
	case "-":
		raw, err := io.ReadAll(cmd.InOrStdin())
		return string(raw), err
	default:
		raw, err := os.ReadFile(insightsFlags.path)
		return string(raw), err
	}
}

func runInsights(cmd *cobra.Command, _ []string) error {
	text, err := readInsightsText(cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("--text or --file required")
	}
	a, err := newAssistant()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(a.Extract(cmd.Context(), text))
}
