package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry exposes the report as gauges, labelled by project and input type.
func Registry(r types.Report) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	project := prometheus.Labels{"project": r.Metadata.Project}

	latency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "runstats",
		Name:        "latency_ms",
		Help:        "Latency statistics per input type in milliseconds",
		ConstLabels: project,
	}, []string{"input_type", "stat"})
	annotations := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "runstats",
		Name:        "annotations",
		Help:        "Annotated runs per input type",
		ConstLabels: project,
	}, []string{"input_type", "kind"})
	successRatio := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "runstats",
		Name:        "success_ratio",
		Help:        "Share of annotated runs marked successful (0-1)",
		ConstLabels: project,
	}, []string{"input_type"})
	runs := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "runstats",
		Name:        "runs",
		Help:        "Runs consumed from the source in the last pass",
		ConstLabels: project,
	}, []string{"outcome"})
	reg.MustRegister(latency, annotations, successRatio, runs)

	for label, s := range r.Statistics {
		it := string(label)
		l := s.LatencyStats
		for stat, v := range map[string]float64{
			"mean": l.MeanMS, "median": l.MedianMS, "p95": l.P95MS,
			"p99": l.P99MS, "min": l.MinMS, "max": l.MaxMS,
		} {
			latency.WithLabelValues(it, stat).Set(v)
		}
		a := s.AnnotationStats
		annotations.WithLabelValues(it, "total").Set(float64(a.TotalAnnotations))
		annotations.WithLabelValues(it, "yes").Set(float64(a.YesAnnotations))
		successRatio.WithLabelValues(it).Set(a.YesPercentage / 100)
	}
	runs.WithLabelValues("processed").Set(float64(r.Metadata.TotalRuns - r.Metadata.SkippedRuns))
	runs.WithLabelValues("skipped").Set(float64(r.Metadata.SkippedRuns))
	return reg
}

// WriteMetrics writes a node_exporter textfile-collector file.
func WriteMetrics(path string, r types.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry(r)); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
