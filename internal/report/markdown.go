package report

import (
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/llm-run-stats/internal/store"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

func BuildMarkdown(r types.Report) string {
	var b strings.Builder
	b.WriteString("# LLM Run Statistics Report\n\n")
	b.WriteString(fmt.Sprintf("- Project: `%s`\n", r.Metadata.Project))
	b.WriteString(fmt.Sprintf("- Generated At: `%s`\n", r.Metadata.GeneratedAt))
	b.WriteString(fmt.Sprintf("- Runs Fetched: `%d`\n", r.Metadata.TotalRuns))
	b.WriteString(fmt.Sprintf("- Runs Skipped: `%d`\n", r.Metadata.SkippedRuns))
	if r.Metadata.StatisticsDigest != "" {
		b.WriteString(fmt.Sprintf("- Statistics Digest: `%s`\n", r.Metadata.StatisticsDigest))
	}

	labels := r.SortedInputTypes()
	if len(labels) == 0 {
		b.WriteString("\nNo classified runs.\n")
		return b.String()
	}

	b.WriteString("\n## Latency\n\n")
	b.WriteString("| Input Type | Runs | Mean (ms) | Median (ms) | P95 (ms) | P99 (ms) | Min (ms) | Max (ms) |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, label := range labels {
		l := r.Statistics[label].LatencyStats
		b.WriteString(fmt.Sprintf("| %s | %d | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
			escapeCell(string(label)), l.TotalRuns, l.MeanMS, l.MedianMS, l.P95MS, l.P99MS, l.MinMS, l.MaxMS))
	}

	b.WriteString("\n## Accuracy\n\n")
	b.WriteString("| Input Type | Annotated | Successful | Success Rate |\n")
	b.WriteString("|---|---:|---:|---:|\n")
	for _, label := range labels {
		a := r.Statistics[label].AnnotationStats
		b.WriteString(fmt.Sprintf("| %s | %d | %d | %.1f%% |\n",
			escapeCell(string(label)), a.TotalAnnotations, a.YesAnnotations, a.YesPercentage))
	}
	return b.String()
}

func WriteMarkdown(path string, r types.Report) error {
	return store.WriteFile(path, []byte(BuildMarkdown(r)))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
