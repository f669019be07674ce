package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/ogulcanaydogan/llm-run-stats/internal/store"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

// RenderChart writes an HTML page with latency percentiles and success rate
// per input type.
func RenderChart(w io.Writer, r types.Report) error {
	labels := r.SortedInputTypes()
	if len(labels) == 0 {
		return fmt.Errorf("no input types to chart")
	}
	xAxis := make([]string, len(labels))
	for i, l := range labels {
		xAxis[i] = string(l)
	}

	latency := charts.NewBar()
	latency.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Latency by input type",
			Subtitle: fmt.Sprintf("%s | %d runs | %s", r.Metadata.Project, r.Metadata.TotalRuns, r.Metadata.GeneratedAt),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	latency.SetXAxis(xAxis)
	series := []struct {
		name string
		pick func(types.LatencyStats) float64
	}{
		{"mean", func(l types.LatencyStats) float64 { return l.MeanMS }},
		{"median", func(l types.LatencyStats) float64 { return l.MedianMS }},
		{"p95", func(l types.LatencyStats) float64 { return l.P95MS }},
		{"p99", func(l types.LatencyStats) float64 { return l.P99MS }},
	}
	for _, s := range series {
		data := make([]opts.BarData, 0, len(labels))
		for _, l := range labels {
			data = append(data, opts.BarData{Name: string(l), Value: round2(s.pick(r.Statistics[l].LatencyStats))})
		}
		latency.AddSeries(s.name, data)
	}

	success := charts.NewBar()
	success.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Success rate by input type"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Max: 100}),
	)
	success.SetXAxis(xAxis)
	rates := make([]opts.BarData, 0, len(labels))
	for _, l := range labels {
		rates = append(rates, opts.BarData{Name: string(l), Value: round2(r.Statistics[l].AnnotationStats.YesPercentage)})
	}
	success.AddSeries("yes %", rates)

	page := components.NewPage()
	page.PageTitle = "runstats: " + r.Metadata.Project
	page.AddCharts(latency, success)
	return page.Render(w)
}

func WriteChart(path string, r types.Report) error {
	return store.WriteWith(path, func(w io.Writer) error {
		return RenderChart(w, r)
	})
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
