package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/audit"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/config"
)

var auditVerifyCmd = &cobra.Command{
	Use:   "audit-verify",
	Short: "Verify the Postgres audit hash chain",
	RunE:  runAuditVerify,
}

func runAuditVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("BED_AGENT_DATABASE_URL required")
	}
	sink, err := audit.OpenPGSink(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer sink.Close()

	n, err := audit.VerifyChain(cmd.Context(), sink.DB())
	if err != nil {
		return fmt.Errorf("chain broken after %d events: %w", n, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Verified %d audit events.\n", n)
	return nil
}
