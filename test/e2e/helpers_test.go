//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ogulcanaydogan/llm-run-stats/internal/aggregate"
	"github.com/ogulcanaydogan/llm-run-stats/internal/classify"
	"github.com/ogulcanaydogan/llm-run-stats/internal/logging"
	"github.com/ogulcanaydogan/llm-run-stats/internal/report"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

const stagePrompt = "Summarize the thread. What stage should this ticket be in?"

var generatedAt = time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

// fixtureRun renders one exported run as JSON.
func fixtureRun(id, content string, latencyMS int, avg float64) json.RawMessage {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(latencyMS) * time.Millisecond)
	raw, _ := json.Marshal(map[string]any{
		"id":             id,
		"start_time":     start.Format(time.RFC3339Nano),
		"end_time":       end.Format(time.RFC3339Nano),
		"feedback_stats": map[string]any{"works": map[string]any{"avg": avg}},
		"inputs": map[string]any{
			"messages": []any{[]any{
				map[string]any{"type": "system"},
				map[string]any{"kwargs": map[string]any{"content": content}},
			}},
		},
	})
	return raw
}

// fixtureRuns is a mixed export: six stage transitions, four responses and
// two broken records.
func fixtureRuns() []json.RawMessage {
	out := make([]json.RawMessage, 0, 12)
	for i, ms := range []int{120, 340, 95, 410, 230, 180} {
		avg := 1.0
		if i%3 == 2 {
			avg = 0
		}
		out = append(out, fixtureRun(fmt.Sprintf("st-%d", i), stagePrompt, ms, avg))
	}
	for i, ms := range []int{800, 1250, 640, 990} {
		out = append(out, fixtureRun(fmt.Sprintf("rg-%d", i), "Write a reply to the customer.", ms, 1))
	}
	out = append(out, json.RawMessage(`{"id":"broken-1","feedback_stats":{"works":{"avg":1}}}`))
	out = append(out, json.RawMessage(`{"id":"broken-2","start_time":"2025-03-01T10:00:01Z","end_time":"2025-03-01T10:00:00Z"}`))
	return out
}

func writeJSONL(t *testing.T, runs []json.RawMessage) string {
	t.Helper()
	lines := make([]string, len(runs))
	for i, r := range runs {
		lines[i] = string(r)
	}
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func buildReport(t *testing.T, project string, runs iter.Seq2[types.Run, error]) types.Report {
	t.Helper()
	res, err := aggregate.Aggregate(context.Background(), runs, classify.New(), logging.Discard())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	r, err := report.Build(project, res, generatedAt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return r
}
