package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"opswatch/internal/app"
)

var (
	logLimit      int
	logUnreviewed bool
	logClearYes   bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect and manage the decision log",
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decisions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if logLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}
		return getApp().LogList(cmd.Context(), app.LogListOptions{Limit: logLimit, Unreviewed: logUnreviewed})
	},
}

var logAckCmd = &cobra.Command{
	Use:   "ack <id>",
	Short: "Mark a decision reviewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().LogAck(cmd.Context(), args[0])
	},
}

var logClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every decision (irreversible)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().LogClear(cmd.Context(), logClearYes)
	},
}

func init() {
	logListCmd.Flags().IntVar(&logLimit, "limit", 50, "Number of entries to display (0 for all)")
	logListCmd.Flags().BoolVar(&logUnreviewed, "unreviewed", false, "Only show entries not yet reviewed")
	logClearCmd.Flags().BoolVar(&logClearYes, "yes", false, "Confirm clearing the decision log")

	logCmd.AddCommand(logListCmd, logAckCmd, logClearCmd)
}
