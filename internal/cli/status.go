package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/issuesmith/internal/orchestrator"
	"github.com/lucasnoah/issuesmith/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status [issue]",
	Short: "Show stored runs, or the latest run of one issue",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := pipeline.NewStore(cfg.StateDir)
		format, _ := cmd.Flags().GetString("format")
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			r, err := store.Latest(args[0])
			if err != nil {
				return err
			}
			rep := orchestrator.NewReport(r)
			if format == "json" {
				data, _ := json.MarshalIndent(rep, "", "  ")
				fmt.Fprintln(w, string(data))
				return nil
			}
			rep.Write(w)
			return nil
		}

		runs, err := store.List("")
		if err != nil {
			return err
		}
		if format == "json" {
			data, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Fprintln(w, string(data))
			return nil
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs found.")
			return nil
		}

		fmt.Fprintf(w, "%-8s %-36s %-34s %-20s %s\n", "ISSUE", "RUN", "PHASE", "UPDATED", "TITLE")
		fmt.Fprintf(w, "%-8s %-36s %-34s %-20s %s\n",
			strings.Repeat("-", 8),
			strings.Repeat("-", 36),
			strings.Repeat("-", 34),
			strings.Repeat("-", 20),
			strings.Repeat("-", 5))
		for _, r := range runs {
			phase := string(r.Phase)
			if r.SubState != "" {
				phase += "/" + r.SubState
			}
			title := ""
			if r.Snapshot != nil {
				title = r.Snapshot.Title
			}
			if len(title) > 40 {
				title = title[:37] + "..."
			}
			fmt.Fprintf(w, "%-8s %-36s %-34s %-20s %s\n",
				r.IssueID, r.ID, phase, r.UpdatedAt.Format("2006-01-02 15:04:05"), title)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
}
