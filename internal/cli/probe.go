package cli

import (
	"github.com/spf13/cobra"

	"opswatch/internal/app"
)

var (
	probeReportPath string
	probePNGPath    string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run every health check once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Probe(cmd.Context(), app.ProbeOptions{
			ReportPath: probeReportPath,
			PNGPath:    probePNGPath,
		})
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeReportPath, "report", "", "Path to write the plain-text report")
	probeCmd.Flags().StringVar(&probePNGPath, "png", "", "Path to write a PNG latency chart")
}
