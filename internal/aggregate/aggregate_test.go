package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ogulcanaydogan/llm-run-stats/internal/classify"
	"github.com/ogulcanaydogan/llm-run-stats/internal/source"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRun(id, content string, latencyMS int, avg float64) types.Run {
	inputs, _ := json.Marshal(map[string]any{
		"messages": []any{[]any{map[string]any{}, map[string]any{"kwargs": map[string]any{"content": content}}}},
	})
	return types.Run{
		ID:            id,
		StartTime:     "2025-03-01T10:00:00Z",
		EndTime:       fmt.Sprintf("2025-03-01T10:00:%02d.%03dZ", latencyMS/1000, latencyMS%1000),
		FeedbackStats: json.RawMessage(fmt.Sprintf(`{"works":{"avg":%v}}`, avg)),
		Inputs:        inputs,
	}
}

// once yields runs a single time; ranging it again fails the test.
func once(t *testing.T, runs ...types.Run) iter.Seq2[types.Run, error] {
	used := false
	return func(yield func(types.Run, error) bool) {
		if used {
			t.Fatal("run stream iterated twice")
		}
		used = true
		for _, r := range runs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestAggregate_StageTransitionScenario(t *testing.T) {
	stage := "Ticket 4. " + classify.StageTransitionMarker
	runs := once(t,
		makeRun("a", stage, 100, 1),
		makeRun("b", stage, 200, 1),
		makeRun("c", stage, 300, 0),
	)
	var logs bytes.Buffer
	res, err := Aggregate(context.Background(), runs, classify.New(), quietLogger(&logs))
	require.NoError(t, err)

	require.Len(t, res.Buckets, 1)
	b := res.Buckets[types.InputTypeStageTransition]
	assert.Equal(t, []float64{100, 200, 300}, b.Latencies)
	assert.Equal(t, 3, b.TotalAnnotations)
	assert.Equal(t, 2, b.YesAnnotations)
	require.Len(t, b.Runs, 3)
	assert.Equal(t, "2025-03-01T10:00:00.000000Z", b.Runs[0].Timestamp)
	assert.False(t, b.Runs[2].Success)
	assert.Equal(t, 3, res.TotalRuns)
	assert.Zero(t, res.Skipped)
}

func TestAggregate_SkipsMalformedAndContinues(t *testing.T) {
	broken := makeRun("broken", "hello", 50, 1)
	broken.FeedbackStats = nil
	runs := once(t,
		makeRun("ok-1", "hello", 10, 1),
		broken,
		makeRun("ok-2", "hello", 20, 0),
	)
	var logs bytes.Buffer
	res, err := Aggregate(context.Background(), runs, classify.New(), quietLogger(&logs))
	require.NoError(t, err)

	b := res.Buckets[types.InputTypeResponseGeneration]
	assert.Equal(t, []float64{10, 20}, b.Latencies)
	assert.Equal(t, 3, res.TotalRuns)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Processed())
	assert.Contains(t, logs.String(), "run_id=broken")
	assert.Contains(t, logs.String(), "missing feedback_stats")
}

func TestAggregate_BucketInvariant(t *testing.T) {
	runs := once(t,
		makeRun("1", classify.StageTransitionMarker, 5, 1),
		makeRun("2", "reply", 7, 0),
		makeRun("3", "reply", 9, 1),
		makeRun("4", classify.StageTransitionMarker, 11, 0),
	)
	res, err := Aggregate(context.Background(), runs, classify.New(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	for label, b := range res.Buckets {
		assert.LessOrEqual(t, b.YesAnnotations, b.TotalAnnotations, label)
		assert.Equal(t, b.TotalAnnotations, len(b.Latencies), label)
		assert.Equal(t, len(b.Latencies), len(b.Runs), label)
	}
	assert.Equal(t, []types.InputType{types.InputTypeStageTransition, types.InputTypeResponseGeneration}, res.Order)
}

func TestAggregate_PreservesSourceOrder(t *testing.T) {
	runs := once(t,
		makeRun("1", "x", 30, 1),
		makeRun("2", "x", 10, 1),
		makeRun("3", "x", 20, 1),
	)
	res, err := Aggregate(context.Background(), runs, classify.New(), nil)
	require.NoError(t, err)
	b := res.Buckets[types.InputTypeResponseGeneration]
	assert.Equal(t, []float64{30, 10, 20}, b.Latencies)
	assert.Equal(t, 30.0, b.Runs[0].Latency)
}

func TestAggregate_EmptyStreamHasNoBuckets(t *testing.T) {
	res, err := Aggregate(context.Background(), once(t), classify.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Buckets)
	assert.Zero(t, res.TotalRuns)
}

func TestAggregate_StreamErrorAborts(t *testing.T) {
	boom := errors.New("connection reset")
	runs := func(yield func(types.Run, error) bool) {
		if !yield(makeRun("1", "x", 10, 1), nil) {
			return
		}
		yield(types.Run{}, boom)
	}
	res, err := Aggregate(context.Background(), runs, classify.New(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.TotalRuns)
}

func TestAggregate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Aggregate(ctx, once(t, makeRun("1", "x", 10, 1)), classify.New(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_CancelledFileSource(t *testing.T) {
	var lines bytes.Buffer
	for i := 0; i < 3; i++ {
		raw, err := json.Marshal(makeRun(fmt.Sprint(i), "x", 10, 1))
		require.NoError(t, err)
		lines.Write(raw)
		lines.WriteByte('\n')
	}
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	require.NoError(t, os.WriteFile(path, lines.Bytes(), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Aggregate(ctx, source.File{Path: path}.Runs(ctx), classify.New(), quietLogger(&bytes.Buffer{}))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.TotalRuns)
}

func TestAggregate_QuietStreamStillFailsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	quiet := func(yield func(types.Run, error) bool) {}
	_, err := Aggregate(ctx, quiet, classify.New(), quietLogger(&bytes.Buffer{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_UndecodableRunLogsDecodeReason(t *testing.T) {
	odd := types.Run{ID: "odd", DecodeError: "json: cannot unmarshal number into Go struct field Run.start_time of type string"}
	var logs bytes.Buffer
	res, err := Aggregate(context.Background(), once(t, odd, makeRun("ok", "x", 10, 1)), classify.New(), quietLogger(&logs))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, logs.String(), "undecodable run: json: cannot unmarshal number")
	assert.NotContains(t, logs.String(), "missing feedback_stats")
}
