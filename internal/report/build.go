package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/llm-run-stats/internal/aggregate"
	"github.com/ogulcanaydogan/llm-run-stats/internal/hash"
	"github.com/ogulcanaydogan/llm-run-stats/internal/stats"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

// Build turns a finished aggregation pass into the persisted report.
// generatedAt is the calculation time.
func Build(project string, res aggregate.Result, generatedAt time.Time) (types.Report, error) {
	buckets := make(map[types.InputType]types.InputTypeBucket, len(res.Buckets))
	for label, b := range res.Buckets {
		buckets[label] = b
	}
	statistics := stats.ComputeAll(buckets)
	digest, _, err := hash.HashCanonicalJSON(statistics)
	if err != nil {
		return types.Report{}, fmt.Errorf("digest statistics: %w", err)
	}
	return types.Report{
		InputTypes: buckets,
		Statistics: statistics,
		Order:      append([]types.InputType(nil), res.Order...),
		Metadata: types.Metadata{
			Project:          project,
			GeneratedAt:      generatedAt.Format(time.RFC3339Nano),
			TotalRuns:        res.TotalRuns,
			SkippedRuns:      res.Skipped,
			ReportID:         uuid.NewString(),
			StatisticsDigest: digest,
		},
	}, nil
}

// CheckDeterminism recomputes statistics from the report's buckets rounds
// times and compares each canonical digest with the recorded one.
func CheckDeterminism(r types.Report, rounds int) error {
	want := r.Metadata.StatisticsDigest
	if want == "" {
		first, _, err := hash.HashCanonicalJSON(r.Statistics)
		if err != nil {
			return err
		}
		want = first
	}
	for i := 0; i < rounds; i++ {
		next, _, err := hash.HashCanonicalJSON(stats.ComputeAll(r.InputTypes))
		if err != nil {
			return err
		}
		if next != want {
			return fmt.Errorf("determinism check failed: %s != %s", want, next)
		}
	}
	return nil
}
