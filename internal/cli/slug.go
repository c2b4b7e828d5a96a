package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/issuesmith/internal/naming"
)

var slugCmd = &cobra.Command{
	Use:   "slug <title>...",
	Short: "Print the slug, or with --issue the branch name, for a title",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		issueID, _ := cmd.Flags().GetString("issue")
		if issueID != "" {
			fmt.Fprintln(cmd.OutOrStdout(), naming.BranchName(issueID, title))
			return nil
		}
		maxLen, _ := cmd.Flags().GetInt("max-len")
		fmt.Fprintln(cmd.OutOrStdout(), naming.Slug(title, maxLen))
		return nil
	},
}

func init() {
	slugCmd.Flags().String("issue", "", "issue id; prints issue-{id}/{slug}")
	slugCmd.Flags().Int("max-len", naming.DefaultSlugLen, "maximum slug length")
}
