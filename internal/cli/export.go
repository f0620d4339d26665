package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/headline-goat/splitgoat/internal/experiment"
	"github.com/headline-goat/splitgoat/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export raw conversion data",
	Long: `Export the conversions persisted to durable storage in CSV, JSON or YAML.

Reads the database directly, so the server does not need to be running.

Examples:
  splitgoat export hero --format csv > hero.csv
  splitgoat export hero --format json > hero.json
  splitgoat export hero --format yaml --config splitgoat.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv, json or yaml)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]

	switch exportFormat {
	case "csv", "json", "yaml":
	default:
		return fmt.Errorf("invalid format: must be 'csv', 'json' or 'yaml'")
	}

	return withStore(cmd.Context(), func(s store.Store) error {
		conversions, err := s.ListConversions(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to list conversions: %w", err)
		}

		out := cmd.OutOrStdout()
		switch exportFormat {
		case "csv":
			return exportCSV(out, conversions)
		case "json":
			return exportJSON(out, id, conversions)
		default:
			return exportYAML(out, id, conversions)
		}
	})
}

func exportCSV(out io.Writer, conversions []experiment.Conversion) error {
	w := csv.NewWriter(out)

	// Write header
	if err := w.Write([]string{"timestamp", "id", "user_id", "variant", "event_type", "event_value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, c := range conversions {
		value := ""
		if c.EventValue != nil {
			value = strconv.FormatFloat(*c.EventValue, 'f', -1, 64)
		}
		row := []string{
			strconv.FormatInt(c.ConvertedAt.UnixMilli(), 10),
			c.ID,
			c.UserID,
			string(c.Variant),
			c.EventType,
			value,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type conversionExport struct {
	ExperimentID string             `json:"experiment_id" yaml:"experiment_id"`
	Conversions  []exportConversion `json:"conversions" yaml:"conversions"`
}

type exportConversion struct {
	ID          string         `json:"id" yaml:"id"`
	UserID      string         `json:"user_id" yaml:"user_id"`
	Variant     string         `json:"variant" yaml:"variant"`
	EventType   string         `json:"event_type" yaml:"event_type"`
	EventValue  *float64       `json:"event_value,omitempty" yaml:"event_value,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	ConvertedAt string         `json:"converted_at" yaml:"converted_at"`
}

func buildExport(id string, conversions []experiment.Conversion) conversionExport {
	export := conversionExport{
		ExperimentID: id,
		Conversions:  make([]exportConversion, len(conversions)),
	}
	for i, c := range conversions {
		export.Conversions[i] = exportConversion{
			ID:          c.ID,
			UserID:      c.UserID,
			Variant:     string(c.Variant),
			EventType:   c.EventType,
			EventValue:  c.EventValue,
			Metadata:    c.Metadata,
			ConvertedAt: c.ConvertedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return export
}

func exportJSON(out io.Writer, id string, conversions []experiment.Conversion) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildExport(id, conversions))
}

func exportYAML(out io.Writer, id string, conversions []experiment.Conversion) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(buildExport(id, conversions)); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return encoder.Close()
}
