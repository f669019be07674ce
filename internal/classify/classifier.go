package classify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	"github.com/tidwall/gjson"
)

const (
	scorePath   = "works.avg"
	contentPath = "messages.0.1.kwargs.content"

	// TimestampLayout matches the microsecond ISO-8601 form of the tracing service.
	TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// MalformedRecordError marks a run that lacks a required field or carries a
// value of the wrong shape. It is never fatal to a pass.
type MalformedRecordError struct {
	RunID  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	id := e.RunID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("malformed run %s: %s", id, e.Reason)
}

// Classification is everything the aggregator needs from one run.
type Classification struct {
	RunID     string
	Type      types.InputType
	Content   string
	Success   bool
	Start     time.Time
	LatencyMS float64
}

type Classifier struct {
	rules    []Rule
	fallback types.InputType
	rounding RoundingMode
}

type Option func(*Classifier)

// WithRules replaces the default rule list. Rules are evaluated in order.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		if len(rules) > 0 {
			c.rules = rules
		}
	}
}

func WithFallback(label types.InputType) Option {
	return func(c *Classifier) {
		if label != "" {
			c.fallback = label
		}
	}
}

func WithRounding(mode RoundingMode) Option {
	return func(c *Classifier) {
		if mode != "" {
			c.rounding = mode
		}
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:    DefaultRules(),
		fallback: types.InputTypeResponseGeneration,
		rounding: RoundTruncate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Label returns the first matching rule's label, or the fallback.
func (c *Classifier) Label(content string) types.InputType {
	for _, r := range c.rules {
		if r.Match != nil && r.Match(content) {
			return r.Label
		}
	}
	return c.fallback
}

func (c *Classifier) Classify(run types.Run) (Classification, error) {
	malformed := func(format string, args ...any) (Classification, error) {
		return Classification{}, &MalformedRecordError{RunID: run.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if run.DecodeError != "" {
		return malformed("undecodable run: %s", run.DecodeError)
	}
	if isAbsent(run.FeedbackStats) {
		return malformed("missing feedback_stats")
	}
	if !gjson.ValidBytes(run.FeedbackStats) {
		return malformed("feedback_stats is not valid JSON")
	}
	score := gjson.GetBytes(run.FeedbackStats, scorePath)
	if !score.Exists() {
		return malformed("missing feedback_stats.%s", scorePath)
	}
	if score.Type != gjson.Number {
		return malformed("feedback_stats.%s is %s, want number", scorePath, score.Type)
	}

	if isAbsent(run.Inputs) {
		return malformed("missing inputs")
	}
	if !gjson.ValidBytes(run.Inputs) {
		return malformed("inputs is not valid JSON")
	}
	// numeric path segments also match object keys, so pin the shape first
	messages := gjson.GetBytes(run.Inputs, "messages")
	if !messages.Exists() {
		return malformed("missing inputs.messages")
	}
	if !messages.IsArray() {
		return malformed("inputs.messages is %s, want array", kind(messages))
	}
	if first := messages.Get("0"); first.Exists() && !first.IsArray() {
		return malformed("inputs.messages.0 is %s, want array", kind(first))
	}
	content := gjson.GetBytes(run.Inputs, contentPath)
	if !content.Exists() {
		return malformed("missing inputs.%s", contentPath)
	}
	if content.Type != gjson.String {
		return malformed("inputs.%s is %s, want string", contentPath, content.Type)
	}

	start, err := parseTimestamp(run.StartTime)
	if err != nil {
		return malformed("start_time: %v", err)
	}
	end, err := parseTimestamp(run.EndTime)
	if err != nil {
		return malformed("end_time: %v", err)
	}
	latency := float64(end.Sub(start)) / float64(time.Millisecond)
	if latency < 0 || math.IsNaN(latency) {
		return malformed("end_time precedes start_time by %.3fms", -latency)
	}

	text := content.String()
	return Classification{
		RunID:     run.ID,
		Type:      c.Label(text),
		Content:   text,
		Success:   successFromScore(score.Float(), c.rounding),
		Start:     start,
		LatencyMS: latency,
	}, nil
}

func isAbsent(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func kind(r gjson.Result) string {
	switch {
	case r.IsObject():
		return "object"
	case r.IsArray():
		return "array"
	}
	return strings.ToLower(r.Type.String())
}
