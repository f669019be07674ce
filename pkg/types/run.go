package types

import "encoding/json"

// Run is one execution record as returned by the tracing service. Nested
// payloads are kept raw; the classifier decides what is well formed.
type Run struct {
	ID            string          `json:"id"`
	Name          string          `json:"name,omitempty"`
	StartTime     string          `json:"start_time"`
	EndTime       string          `json:"end_time"`
	FeedbackStats json.RawMessage `json:"feedback_stats"`
	Inputs        json.RawMessage `json:"inputs"`

	// DecodeError is set by sources when the record could not be decoded.
	DecodeError string `json:"-"`
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
