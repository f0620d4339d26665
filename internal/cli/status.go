package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <draft|active|paused|completed>",
		Short: "Change an experiment's status",
		Long: `Change the lifecycle status of an experiment.

Only active experiments assign new users. Users assigned earlier keep
their variant whatever the status.

Examples:
  splitgoat status hero paused
  splitgoat status hero completed`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			status, err := experiment.ParseStatus(args[1])
			if err != nil {
				return err
			}

			c := newClient()
			// The server ignores unknown ids, so check first for a useful message
			if _, err := c.GetExperiment(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to get experiment '%s': %w", id, err)
			}
			if err := c.UpdateStatus(cmd.Context(), id, status); err != nil {
				return fmt.Errorf("failed to update status: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is now %s\n", id, status)
			return nil
		},
	}
}
