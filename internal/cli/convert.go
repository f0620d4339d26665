package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newConvertCmd())
}

func newConvertCmd() *cobra.Command {
	var (
		variant   string
		eventType string
		value     float64
		metadata  []string
	)

	cmd := &cobra.Command{
		Use:   "convert <id> <user-id>",
		Short: "Record a conversion",
		Long: `Record a conversion event for a user.

Without --variant the user's current variant is looked up first, which
assigns the user if they have not been seen yet.

Examples:
  splitgoat convert hero visitor-42
  splitgoat convert checkout alice --variant variant_a --event-type purchase --value 49.90
  splitgoat convert checkout alice --meta plan=pro --meta source=email`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, userID := args[0], args[1]
			ctx := cmd.Context()
			c := newClient()

			var v experiment.Variant
			if variant != "" {
				parsed, err := experiment.ParseVariant(variant)
				if err != nil {
					return err
				}
				v = parsed
			} else {
				current, err := c.GetVariant(ctx, id, userID)
				if err != nil {
					return fmt.Errorf("failed to get variant: %w", err)
				}
				v = current
			}

			ev := experiment.Event{EventType: eventType}
			if cmd.Flags().Changed("value") {
				ev.Value = &value
			}
			if len(metadata) > 0 {
				meta, err := parseMetadata(metadata)
				if err != nil {
					return err
				}
				ev.Metadata = meta
			}

			resp, err := c.TrackConversion(ctx, id, userID, v, ev)
			if err != nil {
				return fmt.Errorf("failed to track conversion: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Recorded conversion %s (%s)\n", resp.ID, v)
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "", "variant to credit (default: the user's current variant)")
	cmd.Flags().StringVar(&eventType, "event-type", "", "event type (default: conversion)")
	cmd.Flags().Float64Var(&value, "value", 0, "numeric event value, e.g. revenue")
	cmd.Flags().StringArrayVar(&metadata, "meta", nil, "metadata as key=value (repeatable)")

	return cmd
}

func parseMetadata(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: want key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}
