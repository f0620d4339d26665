package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		name        string
		description string
		variants    string
		allocation  string
		status      string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create an experiment on a running server",
		Long: `Create an experiment with the given id. If the experiment already exists
the server keeps its configuration and returns it unchanged.

Omitted settings use the defaults: variants control,variant_a split 50/50,
status active.

Examples:
  splitgoat create hero
  splitgoat create pricing --variants control,variant_a,variant_b --allocation control=40,variant_a=30,variant_b=30
  splitgoat create checkout --status draft
  splitgoat create hero --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			var cfg experiment.Config
			var err error
			if interactive {
				cfg, err = promptConfig(id)
			} else {
				cfg, err = buildConfig(name, description, variants, allocation, status)
			}
			if err != nil {
				return err
			}

			exp, err := newClient().CreateExperiment(cmd.Context(), id, cfg)
			if err != nil {
				return fmt.Errorf("failed to create experiment: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Experiment '%s' (%s) with %d variants:\n", exp.ID, exp.Status, len(exp.Variants))
			for _, v := range exp.Variants {
				fmt.Fprintf(out, "  %-10s %3d%%\n", v, exp.TrafficAllocation[v])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (default: the id)")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().StringVar(&variants, "variants", "", "comma-separated variants, e.g. control,variant_a")
	cmd.Flags().StringVar(&allocation, "allocation", "", "traffic split, e.g. control=50,variant_a=50")
	cmd.Flags().StringVar(&status, "status", "", "draft, active, paused or completed")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for each setting")

	return cmd
}

func buildConfig(name, description, variants, allocation, status string) (experiment.Config, error) {
	cfg := experiment.Config{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}

	if variants != "" {
		vs, err := parseVariants(variants)
		if err != nil {
			return cfg, err
		}
		cfg.Variants = vs
	}
	if allocation != "" {
		alloc, err := parseAllocation(allocation)
		if err != nil {
			return cfg, err
		}
		cfg.TrafficAllocation = alloc
	}
	if status != "" {
		st, err := experiment.ParseStatus(status)
		if err != nil {
			return cfg, err
		}
		cfg.Status = st
	}

	return cfg, nil
}

func parseVariants(s string) ([]experiment.Variant, error) {
	var out []experiment.Variant
	seen := make(map[experiment.Variant]bool)
	for _, part := range strings.Split(s, ",") {
		v, err := experiment.ParseVariant(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if seen[v] {
			return nil, fmt.Errorf("duplicate variant %q", v)
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// parseAllocation reads "variant=percent" pairs. Sums are not checked;
// unallocated buckets fall back to control.
func parseAllocation(s string) (map[experiment.Variant]int, error) {
	out := make(map[experiment.Variant]int)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("invalid allocation %q: want variant=percent", pair)
		}
		v, err := experiment.ParseVariant(strings.TrimSpace(key))
		if err != nil {
			return nil, err
		}
		pct, err := parsePercent(value)
		if err != nil {
			return nil, fmt.Errorf("invalid allocation for %s: %w", v, err)
		}
		out[v] = pct
	}
	return out, nil
}

func parsePercent(s string) (int, error) {
	pct, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.New("not a number")
	}
	if pct < 0 || pct > 100 {
		return 0, errors.New("must be between 0 and 100")
	}
	return pct, nil
}

func promptConfig(id string) (experiment.Config, error) {
	var cfg experiment.Config

	namePrompt := promptui.Prompt{Label: "Name", Default: id}
	name, err := namePrompt.Run()
	if err != nil {
		return cfg, promptError(err)
	}
	cfg.Name = strings.TrimSpace(name)

	variantsPrompt := promptui.Prompt{
		Label:   "Variants",
		Default: "control,variant_a",
		Validate: func(s string) error {
			_, err := parseVariants(s)
			return err
		},
	}
	raw, err := variantsPrompt.Run()
	if err != nil {
		return cfg, promptError(err)
	}
	cfg.Variants, _ = parseVariants(raw)

	cfg.TrafficAllocation = make(map[experiment.Variant]int, len(cfg.Variants))
	even := 100 / len(cfg.Variants)
	for _, v := range cfg.Variants {
		allocPrompt := promptui.Prompt{
			Label:   fmt.Sprintf("Traffic for %s (%%)", v),
			Default: strconv.Itoa(even),
			Validate: func(s string) error {
				_, err := parsePercent(s)
				return err
			},
		}
		raw, err := allocPrompt.Run()
		if err != nil {
			return cfg, promptError(err)
		}
		cfg.TrafficAllocation[v], _ = parsePercent(raw)
	}

	statuses := []experiment.Status{
		experiment.StatusActive,
		experiment.StatusDraft,
		experiment.StatusPaused,
		experiment.StatusCompleted,
	}
	statusPrompt := promptui.Select{
		Label: "Status",
		Items: statuses,
		Size:  len(statuses),
	}
	idx, _, err := statusPrompt.Run()
	if err != nil {
		return cfg, promptError(err)
	}
	cfg.Status = statuses[idx]

	return cfg, nil
}

func promptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return errors.New("cancelled")
	}
	return fmt.Errorf("prompt failed: %w", err)
}
