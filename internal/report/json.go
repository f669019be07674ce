package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ogulcanaydogan/llm-run-stats/internal/store"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/schema"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

// SchemaError lists the report schema violations that blocked a write.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return "report schema invalid: " + strings.Join(e.Violations, "; ")
}

func Validate(r types.Report) error {
	errs, err := schema.ValidateReport(r)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return &SchemaError{Violations: errs}
	}
	return nil
}

// WriteJSON validates r and writes it with two-space indentation.
func WriteJSON(path string, r types.Report) error {
	if r.InputTypes == nil {
		r.InputTypes = map[types.InputType]types.InputTypeBucket{}
	}
	if r.Statistics == nil {
		r.Statistics = map[types.InputType]types.TypeStatistics{}
	}
	if err := Validate(r); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return store.WriteFile(path, append(raw, '\n'))
}

func ReadJSON(path string) (types.Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Report{}, err
	}
	var r types.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return types.Report{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	return r, nil
}
