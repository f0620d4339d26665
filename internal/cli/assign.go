package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newAssignCmd())
}

func newAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <user-id>",
		Short: "Get (and record) a user's variant",
		Long: `Ask a running server for a user's variant. The first call for an active
experiment records a sticky assignment, exactly as a browser request would.

Example:
  splitgoat assign hero visitor-42`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newClient().GetVariant(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to get variant: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}
