package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validReport() map[string]any {
	return map[string]any{
		"input_types": map[string]any{
			"stage_transition": map[string]any{
				"latencies":         []any{100.0, 200.0},
				"total_annotations": 2,
				"yes_annotations":   1,
				"runs": []any{
					map[string]any{"content": "a", "success": true, "latency": 100.0, "timestamp": "2025-03-01T10:00:00.000000Z"},
					map[string]any{"content": "b", "success": false, "latency": 200.0, "timestamp": "2025-03-01T10:00:01.000000Z"},
				},
			},
		},
		"statistics": map[string]any{
			"stage_transition": map[string]any{
				"latency_stats": map[string]any{
					"mean_ms": 150.0, "median_ms": 150.0, "p95_ms": 195.0, "p99_ms": 199.0,
					"min_ms": 100.0, "max_ms": 200.0, "total_runs": 2,
				},
				"annotation_stats": map[string]any{
					"total_annotations": 2, "yes_annotations": 1, "yes_percentage": 50.0,
				},
			},
		},
		"metadata": map[string]any{
			"project":      "support-bot",
			"generated_at": "2025-03-02T00:00:00Z",
			"total_runs":   2,
		},
	}
}

func TestValidateReport(t *testing.T) {
	errs, err := ValidateReport(validReport())
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("schema should pass: %v", errs)
	}
}

func TestValidateReport_MissingMetadata(t *testing.T) {
	doc := validReport()
	delete(doc, "metadata")
	errs, err := ValidateReport(doc)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if len(errs) == 0 {
		t.Fatal("expected schema violations")
	}
}

func TestValidateReport_PercentageOutOfRange(t *testing.T) {
	doc := validReport()
	stats := doc["statistics"].(map[string]any)["stage_transition"].(map[string]any)
	stats["annotation_stats"].(map[string]any)["yes_percentage"] = 120.0
	errs, err := ValidateReport(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) == 0 || !strings.Contains(strings.Join(errs, ";"), "yes_percentage") {
		t.Fatalf("expected yes_percentage violation, got %v", errs)
	}
}

func TestValidateReport_NegativeLatency(t *testing.T) {
	doc := validReport()
	bucket := doc["input_types"].(map[string]any)["stage_transition"].(map[string]any)
	bucket["latencies"] = []any{-1.0}
	errs, err := ValidateReport(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) == 0 {
		t.Fatal("expected negative latency to be rejected")
	}
}

func TestValidateExternalSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.schema.json")
	if err := os.WriteFile(path, []byte(`{"type":"object","required":["project"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	errs, err := Validate(path, map[string]any{"other": 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want one violation", errs)
	}
}

func TestValidateMissingSchemaFile(t *testing.T) {
	_, err := Validate(filepath.Join(t.TempDir(), "missing.schema.json"), map[string]any{})
	if err == nil {
		t.Fatal("expected schema loader error")
	}
	if !strings.Contains(err.Error(), "validate") {
		t.Fatalf("unexpected error: %v", err)
	}
}
