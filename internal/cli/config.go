package cli

import (
	"github.com/spf13/cobra"

	"opswatch/internal/settings"
)

var (
	setAssignDistance float64
	setReadyNoDriver  float64
	setCancelRate     float64
	setOrdersPerHour  float64
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit the guardrail limits",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the guardrails in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ConfigShow(cmd.Context())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change one or more guardrails",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		var patch settings.Patch
		if flags.Changed("max-assign-distance-km") {
			patch.MaxAssignDistanceKM = &setAssignDistance
		}
		if flags.Changed("max-ready-without-driver") {
			patch.MaxReadyWithoutDriver = &setReadyNoDriver
		}
		if flags.Changed("max-cancel-rate") {
			patch.MaxCancelRate = &setCancelRate
		}
		if flags.Changed("max-orders-last-hour") {
			patch.MaxOrdersLastHour = &setOrdersPerHour
		}
		return getApp().ConfigSet(cmd.Context(), patch)
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default guardrails",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ConfigReset(cmd.Context())
	},
}

func init() {
	configSetCmd.Flags().Float64Var(&setAssignDistance, "max-assign-distance-km", 0, "Maximum rider assignment distance in km")
	configSetCmd.Flags().Float64Var(&setReadyNoDriver, "max-ready-without-driver", 0, "Maximum ready orders without a driver")
	configSetCmd.Flags().Float64Var(&setCancelRate, "max-cancel-rate", 0, "Maximum cancellation rate as a fraction in [0,1]")
	configSetCmd.Flags().Float64Var(&setOrdersPerHour, "max-orders-last-hour", 0, "Maximum orders in the trailing hour")

	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd)
}
