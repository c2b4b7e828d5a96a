package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events <issue>",
	Short: "Show the audit log of an issue's runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := requireAudit(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		w := cmd.OutOrStdout()
		format, _ := cmd.Flags().GetString("format")

		if v, _ := cmd.Flags().GetBool("verifications"); v {
			runs, err := d.GetVerifications(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if format == "json" {
				data, _ := json.MarshalIndent(runs, "", "  ")
				fmt.Fprintln(w, string(data))
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  run=%s  attempt=%d  tests=%s  lint=%s  timed_out=%v  %s\n",
					r.Timestamp.Format("2006-01-02 15:04:05"), r.RunID, r.Attempt, r.TestsPassed, r.LintPassed, r.TimedOut, r.Duration)
			}
			return nil
		}

		events, err := d.GetRunHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if format == "json" {
			data, _ := json.MarshalIndent(events, "", "  ")
			fmt.Fprintln(w, string(data))
			return nil
		}
		if len(events) == 0 {
			fmt.Fprintf(w, "No events for issue %s.\n", args[0])
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(w, "%s  run=%s  %-20s %-14s %s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.RunID, e.Event, e.Phase, e.Detail)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Bool("verifications", false, "show verification attempts instead of events")
	eventsCmd.Flags().String("format", "text", "Output format: text or json")
}
