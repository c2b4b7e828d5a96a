package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [dir]",
	Short: "Run the detected tests and lint in a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := cfg.ProjectRoot
		if len(args) == 1 {
			dir = args[0]
		}

		res, err := newVerifier(cfg).Verify(cmd.Context(), dir)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			data, _ := json.MarshalIndent(res, "", "  ")
			fmt.Fprintln(w, string(data))
		} else {
			toolchain := res.Toolchain
			if toolchain == "" {
				toolchain = "none detected"
			}
			fmt.Fprintf(w, "Toolchain: %s\n", toolchain)
			fmt.Fprintf(w, "Tests:     %s\n", res.TestsPassed)
			fmt.Fprintf(w, "Lint:      %s\n", res.LintPassed)
			fmt.Fprintf(w, "Duration:  %s\n", res.Duration.Round(time.Millisecond))
			if res.TimedOut {
				fmt.Fprintln(w, "Timed out: outcome unknown")
			}
			if res.Failed() {
				fmt.Fprintf(w, "\n%s\n", res.RawOutput)
			}
		}

		switch {
		case res.Failed():
			return fmt.Errorf("verification failed")
		case res.TimedOut:
			return fmt.Errorf("verification timed out")
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().String("format", "text", "Output format: text or json")
}
