package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/issuesmith/internal/issue"
	"github.com/lucasnoah/issuesmith/internal/requirements"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <issue>",
	Short: "Fetch an issue and print its requirements summary",
	Long:  "Analyze fetches the issue and prints the extracted requirements and open questions. Nothing is written.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tracker, err := newTracker(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		f := issue.NewFetcher(tracker,
			issue.WithMaxAttempts(cfg.Fetch.MaxAttempts),
			issue.WithBaseDelay(cfg.FetchBaseDelay()),
			issue.WithLogger(logger),
		)
		snap, err := f.Fetch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		sum := requirements.NewAnalyzer(nil).Analyze(snap)

		w := cmd.OutOrStdout()
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			data, _ := json.MarshalIndent(sum, "", "  ")
			fmt.Fprintln(w, string(data))
			return nil
		}
		fmt.Fprintf(w, "Issue #%s: %s\n", snap.ID, snap.Title)
		fmt.Fprintf(w, "Change type: %s (confidence %.2f)\n", sum.ChangeType, sum.Confidence)
		printList(w, "Must have", sum.MustHave)
		printList(w, "Nice to have", sum.NiceToHave)
		printList(w, "Out of scope", sum.OutOfScope)
		if len(sum.OpenQuestions) > 0 {
			fmt.Fprintln(w, "Open questions:")
			for _, q := range sum.OpenQuestions {
				fmt.Fprintf(w, "  [%s] %s\n", q.ID, q.Text)
				if len(q.Options) > 0 {
					fmt.Fprintf(w, "      options: %s\n", strings.Join(q.Options, " | "))
				}
			}
		}
		return nil
	},
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func init() {
	analyzeCmd.Flags().String("format", "text", "Output format: text or json")
}
