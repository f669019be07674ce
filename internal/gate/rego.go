package gate

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	oparego "github.com/open-policy-agent/opa/rego"
)

//go:embed policy/gates.rego
var defaultRego string

// DefaultRego returns the bundled module, equivalent to the YAML engine.
func DefaultRego() []byte { return []byte(defaultRego) }

type RegoInput struct {
	Project    string                                   `json:"project"`
	Statistics map[types.InputType]types.TypeStatistics `json:"statistics"`
	Gates      []Gate                                   `json:"gates"`
}

type RegoResult struct {
	Allow      bool     `json:"allow"`
	Violations []string `json:"violations"`
}

func BuildRegoInput(policy Policy, r types.Report) RegoInput {
	statistics := r.Statistics
	if statistics == nil {
		statistics = map[types.InputType]types.TypeStatistics{}
	}
	gates := policy.Gates
	if gates == nil {
		gates = []Gate{}
	}
	return RegoInput{Project: r.Metadata.Project, Statistics: statistics, Gates: gates}
}

// EvaluateRego runs data.runstats.gates.result from the module at
// policyPath, or from the bundled module when policyPath is empty.
func EvaluateRego(ctx context.Context, policyPath string, input RegoInput) (RegoResult, error) {
	name, module := "gates.rego", defaultRego
	if policyPath != "" {
		raw, err := os.ReadFile(policyPath)
		if err != nil {
			return RegoResult{}, fmt.Errorf("read rego policy: %w", err)
		}
		name, module = filepath.Base(policyPath), string(raw)
	}

	query, err := oparego.New(
		oparego.Query("data.runstats.gates.result"),
		oparego.Module(name, module),
		oparego.Input(input),
	).PrepareForEval(ctx)
	if err != nil {
		return RegoResult{}, fmt.Errorf("prepare rego query: %w", err)
	}
	rs, err := query.Eval(ctx)
	if err != nil {
		return RegoResult{}, fmt.Errorf("eval rego policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return RegoResult{}, fmt.Errorf("rego policy returned no result")
	}
	return decodeResult(rs[0].Expressions[0].Value)
}

func decodeResult(v any) (RegoResult, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return RegoResult{}, fmt.Errorf("rego result must be object")
	}
	allow, _ := obj["allow"].(bool)
	violations := []string{}
	if raw, ok := obj["violations"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				violations = append(violations, s)
			}
		}
	}
	sort.Strings(violations)
	return RegoResult{Allow: allow, Violations: violations}, nil
}
