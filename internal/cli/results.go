package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/headline-goat/splitgoat/internal/server"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	leadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show detailed results for an experiment",
	Long:  `Show per-variant users, conversions, conversion rates and confidence intervals.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	id := args[0]

	res, err := newClient().Results(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to get results for '%s': %w", id, err)
	}

	printResults(cmd.OutOrStdout(), res)
	return nil
}

func printResults(w io.Writer, res server.ResultsResponse) {
	if exp := res.Experiment; exp != nil {
		fmt.Fprintln(w, titleStyle.Render("EXPERIMENT: "+exp.Name))
		fmt.Fprintf(w, "ID: %s\n", exp.ID)
		fmt.Fprintf(w, "STATUS: %s\n", exp.Status)
		fmt.Fprintf(w, "CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		fmt.Fprintln(w)
	}

	a := res.Analysis
	if a == nil {
		return
	}

	// Print table header
	fmt.Fprintln(w, "VARIANT     USERS    CONVERSIONS  RATE     95% CI            VALUE")
	fmt.Fprintln(w, dimStyle.Render(strings.Repeat("─", 70)))

	for _, v := range a.Variants {
		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
		if v.Users == 0 {
			ciStr = "N/A"
		}

		line := fmt.Sprintf("%-10s  %-7d  %-11d  %-7s  %-16s  %.2f",
			v.Variant,
			v.Users,
			v.Conversions,
			formatPercent(v.Rate),
			ciStr,
			v.TotalValue,
		)
		if v.Variant == a.Leading && len(a.Variants) > 1 {
			line += leadingStyle.Render(" ← LEADING")
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total conversion events: %d\n", res.TotalConversions)

	// Print significance message
	if len(a.Variants) > 1 {
		confPct := a.ConfidenceLevel * 100

		switch {
		case a.Confident:
			fmt.Fprintf(w, "Statistical significance: %.1f%% confident %q is the winner\n", confPct, a.Leading)
		case confPct >= 90:
			fmt.Fprintf(w, "Statistical significance: %.1f%% confident %q beats control (not yet significant)\n", confPct, a.Leading)
		default:
			fmt.Fprintln(w, "Statistical significance: Not enough data to determine a winner")
		}
	}
}
