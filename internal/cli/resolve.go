package cli

import (
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <issue>",
	Short: "Take an issue from the tracker to a published pull request",
	Long: `Resolve runs the full workflow for one issue. Open requirement questions,
plan approval, verification timeouts and minor review findings are put to
the operator in the terminal, or answered from --answers.

If the credentials may not push or open pull requests, the run stops at
PUBLISHED/PendingManualAction and prints the commands that finish the job.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		answers, _ := cmd.Flags().GetString("answers")
		accessible, _ := cmd.Flags().GetBool("accessible")

		orch, cleanup, err := newOrchestrator(cmd.Context(), cfg, resolveOptions{answersFile: answers, accessible: accessible})
		if err != nil {
			return err
		}
		defer cleanup()

		rep, err := orch.Run(cmd.Context(), args[0])
		if rep != nil {
			rep.Write(cmd.OutOrStdout())
		}
		return err
	},
}

func init() {
	resolveCmd.Flags().String("answers", "", "YAML file answering operator prompts instead of the terminal")
	resolveCmd.Flags().Bool("accessible", false, "plain prompts for screen readers")
}
