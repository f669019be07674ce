package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

// Console prints the human-readable breakdown, one section per input type
// in the order the types were first seen. Styling degrades to plain text
// when w is not a terminal.
func Console(w io.Writer, r types.Report) error {
	renderer := lipgloss.NewRenderer(w)
	title := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	section := renderer.NewStyle().Underline(true)

	cw := &consoleWriter{w: w}
	for _, label := range r.InputTypeOrder() {
		s := r.Statistics[label]
		l, a := s.LatencyStats, s.AnnotationStats

		cw.printf("\n%s\n", title.Render(fmt.Sprintf("=== Statistics for %s ===", label)))
		cw.printf("\n%s\n", section.Render("Latency Statistics:"))
		cw.printf("Total runs: %d\n", l.TotalRuns)
		cw.printf("Mean: %.2fms\n", l.MeanMS)
		cw.printf("Median: %.2fms\n", l.MedianMS)
		cw.printf("95th percentile: %.2fms\n", l.P95MS)
		cw.printf("99th percentile: %.2fms\n", l.P99MS)
		cw.printf("Min: %.2fms\n", l.MinMS)
		cw.printf("Max: %.2fms\n", l.MaxMS)

		cw.printf("\n%s\n", section.Render("Accuracy Statistics:"))
		cw.printf("Total runs: %d\n", a.TotalAnnotations)
		cw.printf("Successful runs: %d\n", a.YesAnnotations)
		cw.printf("Success rate: %.1f%%\n", a.YesPercentage)
	}
	return cw.err
}

// consoleWriter keeps the first write error.
type consoleWriter struct {
	w   io.Writer
	err error
}

func (c *consoleWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = fmt.Fprintf(c.w, format, args...)
}
