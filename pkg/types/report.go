package types

import "sort"

type InputType string

const (
	InputTypeStageTransition    InputType = "stage_transition"
	InputTypeResponseGeneration InputType = "response_generation"
)

type RunSummary struct {
	Content   string  `json:"content"`
	Success   bool    `json:"success"`
	Latency   float64 `json:"latency"`
	Timestamp string  `json:"timestamp"`
}

// InputTypeBucket accumulates samples for one input type in source order.
type InputTypeBucket struct {
	Latencies        []float64    `json:"latencies"`
	TotalAnnotations int          `json:"total_annotations"`
	YesAnnotations   int          `json:"yes_annotations"`
	Runs             []RunSummary `json:"runs"`
}

type LatencyStats struct {
	MeanMS    float64 `json:"mean_ms"`
	MedianMS  float64 `json:"median_ms"`
	P95MS     float64 `json:"p95_ms"`
	P99MS     float64 `json:"p99_ms"`
	MinMS     float64 `json:"min_ms"`
	MaxMS     float64 `json:"max_ms"`
	TotalRuns int     `json:"total_runs"`
}

type AnnotationStats struct {
	TotalAnnotations int     `json:"total_annotations"`
	YesAnnotations   int     `json:"yes_annotations"`
	YesPercentage    float64 `json:"yes_percentage"`
}

type TypeStatistics struct {
	LatencyStats    LatencyStats    `json:"latency_stats"`
	AnnotationStats AnnotationStats `json:"annotation_stats"`
}

type Metadata struct {
	Project          string `json:"project"`
	GeneratedAt      string `json:"generated_at"`
	TotalRuns        int    `json:"total_runs"`
	SkippedRuns      int    `json:"skipped_runs"`
	ReportID         string `json:"report_id,omitempty"`
	StatisticsDigest string `json:"statistics_digest,omitempty"`
}

// Report is the persisted document: raw buckets, derived statistics and
// run metadata.
type Report struct {
	InputTypes map[InputType]InputTypeBucket `json:"input_types"`
	Statistics map[InputType]TypeStatistics  `json:"statistics"`
	Metadata   Metadata                      `json:"metadata"`

	// Order is the first-seen order of input types during collection. It is
	// not persisted; reports read back from disk fall back to lexical order.
	Order []InputType `json:"-"`
}

// SortedInputTypes returns the statistics keys in lexical order.
func (r Report) SortedInputTypes() []InputType {
	out := make([]InputType, 0, len(r.Statistics))
	for k := range r.Statistics {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InputTypeOrder returns the types in Order that have statistics, followed
// by any remaining types in lexical order.
func (r Report) InputTypeOrder() []InputType {
	out := make([]InputType, 0, len(r.Statistics))
	seen := make(map[InputType]bool, len(r.Statistics))
	for _, k := range r.Order {
		if _, ok := r.Statistics[k]; ok && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, k := range r.SortedInputTypes() {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}
