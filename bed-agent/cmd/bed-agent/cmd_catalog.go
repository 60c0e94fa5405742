package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

var catalogFlags struct {
	path     string
	keywords []string
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List protocol documents, optionally filtered by tag keywords",
	RunE:  runCatalog,
}

func init() {
	f := catalogCmd.Flags()
	f.StringVar(&catalogFlags.path, "catalog", "", "Catalog YAML file (default: built-in protocols)")
	f.StringSliceVar(&catalogFlags.keywords, "keywords", nil, "Comma-separated tag keywords")
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	catalog, err := knowledge.LoadCatalog(catalogFlags.path)
	if err != nil {
		return err
	}
	var docs []models.ProtocolDocument
	if len(catalogFlags.keywords) == 0 {
		docs = catalog.All()
	} else {
		docs = catalog.Retrieve(catalogFlags.keywords)
	}
	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(out, "No matching protocols.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(out, "%-10s %s\n", d.ID, d.Title)
	}
	return nil
}
