package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments on a running server",
	Long:  `List all experiments with their status and per-experiment totals.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := newClient()
	out := cmd.OutOrStdout()

	exps, err := c.ListExperiments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list experiments: %w", err)
	}

	if len(exps) == 0 {
		fmt.Fprintln(out, "No experiments yet.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Experiments auto-create on the first variant request, or run:")
		fmt.Fprintln(out, "  splitgoat create <id>")
		return nil
	}

	// Print table
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVARIANTS\tUSERS\tCONVERSIONS\tCREATED")

	for _, exp := range exps {
		res, err := c.Results(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to get results for experiment %s: %w", exp.ID, err)
		}

		users, conversions := 0, 0
		for _, st := range res.Variants {
			users += st.Users
			conversions += st.Conversions
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			exp.ID,
			exp.Name,
			strings.ToUpper(string(exp.Status)),
			len(exp.Variants),
			formatNumber(users),
			formatNumber(conversions),
			exp.CreatedAt.Format("2006-01-02"),
		)
	}

	return w.Flush()
}
