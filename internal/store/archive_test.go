package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

func archiveReport(id, project, generatedAt string, p95 float64) types.Report {
	return types.Report{
		Statistics: map[types.InputType]types.TypeStatistics{
			types.InputTypeStageTransition: {
				LatencyStats:    types.LatencyStats{MeanMS: 200, P95MS: p95, TotalRuns: 3},
				AnnotationStats: types.AnnotationStats{TotalAnnotations: 3, YesAnnotations: 2, YesPercentage: 200.0 / 3},
			},
			types.InputTypeResponseGeneration: {
				LatencyStats:    types.LatencyStats{MeanMS: 50, P95MS: 50, TotalRuns: 1},
				AnnotationStats: types.AnnotationStats{TotalAnnotations: 1, YesAnnotations: 1, YesPercentage: 100},
			},
		},
		Metadata: types.Metadata{
			Project:     project,
			GeneratedAt: generatedAt,
			TotalRuns:   5,
			SkippedRuns: 1,
			ReportID:    id,
		},
	}
}

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "db", "runs.db"))
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchive_SaveAndList(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	older := archiveReport("r-1", "bot", "2025-03-01T10:00:00Z", 290)
	newer := archiveReport("r-2", "bot", "2025-03-02T10:00:00Z", 310)
	other := archiveReport("r-3", "other", "2025-03-03T10:00:00Z", 100)
	for _, r := range []types.Report{older, newer, other} {
		n, err := a.Save(ctx, r, "sha256:abc")
		if err != nil {
			t.Fatalf("Save(%s): %v", r.Metadata.ReportID, err)
		}
		if n != 2 {
			t.Errorf("Save(%s) rows = %d, want 2", r.Metadata.ReportID, n)
		}
	}

	rows, err := a.List(ctx, "bot", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0].ReportID != "r-2" || rows[0].InputType != "response_generation" {
		t.Errorf("first row = %s/%s, want r-2/response_generation", rows[0].ReportID, rows[0].InputType)
	}
	if rows[1].P95MS != 310 {
		t.Errorf("rows[1].p95 = %v, want 310", rows[1].P95MS)
	}
	if rows[3].ReportID != "r-1" {
		t.Errorf("last row report = %s, want r-1", rows[3].ReportID)
	}
	if rows[0].OutputDigest != "sha256:abc" || rows[0].ReportRuns != 5 || rows[0].SkippedRuns != 1 {
		t.Errorf("metadata not stored: %+v", rows[0])
	}

	limited, err := a.List(ctx, "bot", 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited rows = %d, want 2", len(limited))
	}
}

func TestArchive_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	r := archiveReport("r-1", "bot", "2025-03-01T10:00:00Z", 290)
	for i := 0; i < 2; i++ {
		if _, err := a.Save(ctx, r, ""); err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
	}
	rows, err := a.List(ctx, "bot", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
}

func TestArchive_SaveRejectsIncompleteMetadata(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	r := archiveReport("", "bot", "2025-03-01T10:00:00Z", 1)
	if _, err := a.Save(ctx, r, ""); err == nil {
		t.Error("expected error for missing report id")
	}
	r = archiveReport("r-1", "bot", "yesterday", 1)
	if _, err := a.Save(ctx, r, ""); err == nil {
		t.Error("expected error for unparseable generated_at")
	}
}

func TestArchive_EmptyReport(t *testing.T) {
	a := openTestArchive(t)
	r := types.Report{Metadata: types.Metadata{Project: "bot", GeneratedAt: "2025-03-01T10:00:00Z", ReportID: "r-0"}}
	n, err := a.Save(context.Background(), r, "")
	if err != nil || n != 0 {
		t.Errorf("Save(empty) = %d, %v", n, err)
	}
}

func TestOpenArchive_EmptyPath(t *testing.T) {
	if _, err := OpenArchive("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
