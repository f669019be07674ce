// Package stats reduces an aggregated bucket into descriptive latency and
// annotation statistics. Every function here is pure.
package stats

import (
	"math"
	"sort"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

// Compute derives TypeStatistics from a finalized bucket. Empty samples
// yield zeros.
func Compute(b types.InputTypeBucket) types.TypeStatistics {
	return types.TypeStatistics{
		LatencyStats:    Latency(b.Latencies),
		AnnotationStats: Annotations(b.TotalAnnotations, b.YesAnnotations),
	}
}

// ComputeAll computes statistics for every bucket present. Input types that
// never produced a bucket stay absent.
func ComputeAll(buckets map[types.InputType]types.InputTypeBucket) map[types.InputType]types.TypeStatistics {
	out := make(map[types.InputType]types.TypeStatistics, len(buckets))
	for label, b := range buckets {
		out[label] = Compute(b)
	}
	return out
}

func Latency(samples []float64) types.LatencyStats {
	n := len(samples)
	if n == 0 {
		return types.LatencyStats{}
	}
	sorted := sortedCopy(samples)
	return types.LatencyStats{
		MeanMS:    Mean(samples),
		MedianMS:  percentileSorted(sorted, 50),
		P95MS:     percentileSorted(sorted, 95),
		P99MS:     percentileSorted(sorted, 99),
		MinMS:     sorted[0],
		MaxMS:     sorted[n-1],
		TotalRuns: n,
	}
}

func Annotations(total, yes int) types.AnnotationStats {
	pct := 0.0
	if total > 0 {
		pct = float64(yes) / float64(total) * 100
	}
	return types.AnnotationStats{
		TotalAnnotations: total,
		YesAnnotations:   yes,
		YesPercentage:    pct,
	}
}

func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))
	// Rounding can push the float sum a hair outside [min, max].
	lo, hi := samples[0], samples[0]
	for _, v := range samples[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return math.Min(math.Max(mean, lo), hi)
}

func Median(samples []float64) float64 {
	return Percentile(samples, 50)
}

// Percentile uses linear interpolation between closest ranks:
// rank = p/100 * (n-1). The input is not modified.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return percentileSorted(sortedCopy(samples), p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	v := sorted[lo] + (sorted[hi]-sorted[lo])*frac
	return math.Min(math.Max(v, sorted[lo]), sorted[hi])
}

func sortedCopy(samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	sort.Float64s(out)
	return out
}
