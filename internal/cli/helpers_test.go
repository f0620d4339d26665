package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/headline-goat/splitgoat/internal/experiment"
	"github.com/headline-goat/splitgoat/internal/store"
)

func TestParseVariants(t *testing.T) {
	tests := []struct {
		input   string
		want    []experiment.Variant
		wantErr bool
	}{
		{"control,variant_a", []experiment.Variant{experiment.Control, experiment.VariantA}, false},
		{" variant_c , control ", []experiment.Variant{experiment.VariantC, experiment.Control}, false},
		{"control,variant_z", nil, true},
		{"control,control", nil, true},
		{"", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseVariants(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseVariants(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseVariants(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParseAllocation(t *testing.T) {
	got, err := parseAllocation("control=70, variant_b=30")
	if err != nil {
		t.Fatalf("parseAllocation failed: %v", err)
	}
	want := map[experiment.Variant]int{experiment.Control: 70, experiment.VariantB: 30}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("allocation mismatch (-want +got):\n%s", diff)
	}

	// Sums are not enforced
	if _, err := parseAllocation("control=10"); err != nil {
		t.Errorf("expected under-allocation to be accepted, got %v", err)
	}

	for _, bad := range []string{"control", "control=abc", "control=101", "control=-1", "variant_z=10"} {
		if _, err := parseAllocation(bad); err == nil {
			t.Errorf("parseAllocation(%q) expected error", bad)
		}
	}
}

func TestBuildConfig(t *testing.T) {
	cfg, err := buildConfig(" Pricing ", "", "control,variant_a", "control=50,variant_a=50", "paused")
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}
	if cfg.Name != "Pricing" || cfg.Status != experiment.StatusPaused || len(cfg.Variants) != 2 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	empty, err := buildConfig("", "", "", "", "")
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}
	if empty.Variants != nil || empty.TrafficAllocation != nil || empty.Status != "" {
		t.Errorf("expected zero config so server defaults apply, got %+v", empty)
	}

	if _, err := buildConfig("", "", "", "", "archived"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestParseMetadata(t *testing.T) {
	got, err := parseMetadata([]string{"plan=pro", "ref=a=b"})
	if err != nil {
		t.Fatalf("parseMetadata failed: %v", err)
	}
	want := map[string]any{"plan": "pro", "ref": "a=b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseMetadata([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		123456:  "123,456",
		1234567: "1,234,567",
	}
	for n, want := range tests {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %s, want %s", n, got, want)
		}
	}
}

func seedExportDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "export.db")
	s, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	value := 19.99
	base := time.UnixMilli(1700000000000)
	convs := []experiment.Conversion{
		{ID: "hero:alice:1", ExperimentID: "hero", UserID: "alice", Variant: experiment.Control, EventType: "conversion", ConvertedAt: base},
		{ID: "hero:bob:2", ExperimentID: "hero", UserID: "bob", Variant: experiment.VariantA, EventType: "purchase", EventValue: &value, ConvertedAt: base.Add(time.Second)},
		{ID: "other:carol:3", ExperimentID: "other", UserID: "carol", Variant: experiment.Control, EventType: "conversion", ConvertedAt: base},
	}
	for _, c := range convs {
		if err := s.SaveConversion(context.Background(), c); err != nil {
			t.Fatalf("SaveConversion failed: %v", err)
		}
	}
	return path
}

func TestExportCommand_CSV(t *testing.T) {
	path := seedExportDB(t)

	output, err := runCLI(t, "export", "hero", "--db", path, "--format", "csv")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), output)
	}
	if lines[0] != "timestamp,id,user_id,variant,event_type,event_value" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if lines[2] != "1700000001000,hero:bob:2,bob,variant_a,purchase,19.99" {
		t.Errorf("unexpected row: %s", lines[2])
	}
}

func TestExportCommand_JSON(t *testing.T) {
	path := seedExportDB(t)

	output, err := runCLI(t, "export", "hero", "--db", path, "--format", "json")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var got conversionExport
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, output)
	}
	if got.ExperimentID != "hero" || len(got.Conversions) != 2 {
		t.Fatalf("unexpected export: %+v", got)
	}
	if got.Conversions[0].UserID != "alice" || got.Conversions[1].EventValue == nil {
		t.Errorf("unexpected conversions: %+v", got.Conversions)
	}
}

func TestExportCommand_YAML(t *testing.T) {
	path := seedExportDB(t)

	output, err := runCLI(t, "export", "hero", "--db", path, "--format", "yaml")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var got conversionExport
	if err := yaml.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("invalid YAML output: %v\n%s", err, output)
	}
	if len(got.Conversions) != 2 || got.Conversions[1].Variant != "variant_a" {
		t.Errorf("unexpected export: %+v", got)
	}
}

func TestExportCommand_InvalidFormat(t *testing.T) {
	path := seedExportDB(t)

	_, err := runCLI(t, "export", "hero", "--db", path, "--format", "xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestTokenCommand(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".splitgoat-token"), []byte("abc123\n"), 0600); err != nil {
		t.Fatalf("failed to write token: %v", err)
	}

	output, err := runCLI(t, "token", "--db", filepath.Join(dir, "splitgoat.db"), "--server", "https://ab.example.com/")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	assertContains(t, output, "Dashboard: https://ab.example.com/dashboard?token=abc123")
}

func TestTokenCommand_NoServer(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, "token", "--db", filepath.Join(dir, "splitgoat.db"))
	if err == nil || !strings.Contains(err.Error(), "no server running") {
		t.Errorf("expected no server error, got %v", err)
	}
}

func TestMirrorOrNil(t *testing.T) {
	if mirrorOrNil(nil) != nil {
		t.Error("expected nil mirror for nil store")
	}
}
