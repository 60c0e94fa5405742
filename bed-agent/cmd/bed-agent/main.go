package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "bed-agent",
	Short: "Hospital bed-flow decision support",
	Long:  "bed-agent scores hospital census pressure, drafts operational analyses\nand drives the discharge to cleaning workflow.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(grdCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(auditVerifyCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
