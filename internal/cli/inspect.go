package cli

import (
	"github.com/spf13/cobra"
)

var guardrailsCmd = &cobra.Command{
	Use:   "guardrails",
	Short: "Evaluate live KPIs against the guardrails",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Guardrails(cmd.Context())
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the catalog for data-quality anomalies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scan(cmd.Context())
	},
}
