package aggregate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/ogulcanaydogan/llm-run-stats/internal/classify"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

type Classifier interface {
	Classify(run types.Run) (classify.Classification, error)
}

// Result is the outcome of one pass. Buckets exist only for observed types;
// Order lists them in first-seen order.
type Result struct {
	Buckets   map[types.InputType]types.InputTypeBucket
	Order     []types.InputType
	TotalRuns int
	Skipped   int
}

// Aggregate consumes runs exactly once. Records the classifier rejects are
// logged and skipped; an error yielded by the stream aborts the pass.
func Aggregate(ctx context.Context, runs iter.Seq2[types.Run, error], c Classifier, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	res := Result{Buckets: make(map[types.InputType]types.InputTypeBucket)}
	for run, err := range runs {
		if err != nil {
			return res, fmt.Errorf("consume runs: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.TotalRuns++

		cl, err := c.Classify(run)
		if err != nil {
			res.Skipped++
			reason := err.Error()
			var me *classify.MalformedRecordError
			if errors.As(err, &me) {
				reason = me.Reason
			}
			log.Warn("skipping run", "run_id", run.ID, "reason", reason)
			continue
		}
		res.add(cl)
	}
	// a stream that stops quietly on cancellation still fails the pass
	if err := ctx.Err(); err != nil {
		return res, err
	}
	log.Debug("aggregation complete", "total_runs", res.TotalRuns, "skipped", res.Skipped, "input_types", len(res.Order))
	return res, nil
}

func (r *Result) add(cl classify.Classification) {
	b, ok := r.Buckets[cl.Type]
	if !ok {
		r.Order = append(r.Order, cl.Type)
	}
	b.Latencies = append(b.Latencies, cl.LatencyMS)
	b.TotalAnnotations++
	if cl.Success {
		b.YesAnnotations++
	}
	b.Runs = append(b.Runs, types.RunSummary{
		Content:   cl.Content,
		Success:   cl.Success,
		Latency:   cl.LatencyMS,
		Timestamp: cl.Start.Format(classify.TimestampLayout),
	})
	r.Buckets[cl.Type] = b
}

// Processed is the number of runs that landed in a bucket.
func (r Result) Processed() int {
	return r.TotalRuns - r.Skipped
}
