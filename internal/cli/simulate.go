package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"opswatch/internal/app"
	"opswatch/internal/decisionlog"
)

var (
	simulateSeverity string
	simulateTitle    string
	simulateDetail   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic decision through the configured alert channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		sev := decisionlog.Severity(simulateSeverity)
		if sev.Rank() == 0 {
			return fmt.Errorf("--severity must be one of low, med, high")
		}
		if simulateTitle == "" {
			return fmt.Errorf("--title cannot be empty")
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Severity: sev,
			Title:    simulateTitle,
			Detail:   simulateDetail,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSeverity, "severity", "high", "Severity of the synthetic entry")
	simulateCmd.Flags().StringVar(&simulateTitle, "title", "Simulated alert", "Title of the synthetic entry")
	simulateCmd.Flags().StringVar(&simulateDetail, "detail", "opswatch alert channel test", "Detail of the synthetic entry")
}
