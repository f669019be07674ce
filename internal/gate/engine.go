// Package gate checks a saved report against per-input-type thresholds
// declared in YAML.
package gate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	goyaml "gopkg.in/yaml.v3"
)

type Policy struct {
	Version string `yaml:"version"`
	Gates   []Gate `yaml:"gates"`
}

// Gate applies to every input type matching InputType ("*" or a glob).
// Unset thresholds are not checked.
type Gate struct {
	ID               string   `yaml:"id" json:"id"`
	InputType        string   `yaml:"input_type" json:"input_type"`
	MaxP95MS         *float64 `yaml:"max_p95_ms,omitempty" json:"max_p95_ms,omitempty"`
	MaxP99MS         *float64 `yaml:"max_p99_ms,omitempty" json:"max_p99_ms,omitempty"`
	MaxMeanMS        *float64 `yaml:"max_mean_ms,omitempty" json:"max_mean_ms,omitempty"`
	MinYesPercentage *float64 `yaml:"min_yes_percentage,omitempty" json:"min_yes_percentage,omitempty"`
	MinRuns          *int     `yaml:"min_runs,omitempty" json:"min_runs,omitempty"`
	// Required fails the gate when no input type matches.
	Required bool   `yaml:"required,omitempty" json:"required"`
	Message  string `yaml:"message,omitempty" json:"message,omitempty"`
}

func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	var p Policy
	if err := goyaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse gates %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("gates %s: %w", path, err)
	}
	return p, nil
}

func (p Policy) Validate() error {
	seen := make(map[string]struct{}, len(p.Gates))
	for i, g := range p.Gates {
		if g.ID == "" {
			return fmt.Errorf("gate %d: id is required", i)
		}
		if _, dup := seen[g.ID]; dup {
			return fmt.Errorf("gate %s: duplicate id", g.ID)
		}
		seen[g.ID] = struct{}{}
		if g.InputType != "" && g.InputType != "*" {
			if _, err := filepath.Match(g.InputType, ""); err != nil {
				return fmt.Errorf("gate %s: bad input_type pattern: %w", g.ID, err)
			}
		}
		for name, v := range map[string]*float64{
			"max_p95_ms": g.MaxP95MS, "max_p99_ms": g.MaxP99MS, "max_mean_ms": g.MaxMeanMS,
		} {
			if v != nil && *v < 0 {
				return fmt.Errorf("gate %s: %s must be >= 0", g.ID, name)
			}
		}
		if v := g.MinYesPercentage; v != nil && (*v < 0 || *v > 100) {
			return fmt.Errorf("gate %s: min_yes_percentage must be within [0, 100]", g.ID)
		}
		if g.MinRuns != nil && *g.MinRuns < 0 {
			return fmt.Errorf("gate %s: min_runs must be >= 0", g.ID)
		}
	}
	return nil
}

// Evaluate returns one message per failed threshold, in gate order and then
// input type order.
func Evaluate(policy Policy, r types.Report) []string {
	labels := r.SortedInputTypes()
	violations := make([]string, 0)
	for _, g := range policy.Gates {
		matched := 0
		for _, label := range labels {
			if !match(string(label), g.InputType) {
				continue
			}
			matched++
			for _, failure := range check(g, r.Statistics[label]) {
				violations = append(violations, format(g, label, failure))
			}
		}
		if matched == 0 && g.Required {
			violations = append(violations, format(g, types.InputType(g.InputType), "no runs of this input type"))
		}
	}
	return violations
}

func check(g Gate, s types.TypeStatistics) []string {
	l, a := s.LatencyStats, s.AnnotationStats
	out := make([]string, 0)
	if g.MinRuns != nil && l.TotalRuns < *g.MinRuns {
		out = append(out, fmt.Sprintf("runs %d < min_runs %d", l.TotalRuns, *g.MinRuns))
	}
	if g.MaxMeanMS != nil && l.MeanMS > *g.MaxMeanMS {
		out = append(out, fmt.Sprintf("mean %.2fms > max_mean_ms %.2f", l.MeanMS, *g.MaxMeanMS))
	}
	if g.MaxP95MS != nil && l.P95MS > *g.MaxP95MS {
		out = append(out, fmt.Sprintf("p95 %.2fms > max_p95_ms %.2f", l.P95MS, *g.MaxP95MS))
	}
	if g.MaxP99MS != nil && l.P99MS > *g.MaxP99MS {
		out = append(out, fmt.Sprintf("p99 %.2fms > max_p99_ms %.2f", l.P99MS, *g.MaxP99MS))
	}
	if g.MinYesPercentage != nil && a.YesPercentage < *g.MinYesPercentage {
		out = append(out, fmt.Sprintf("success rate %.1f%% < min_yes_percentage %.1f", a.YesPercentage, *g.MinYesPercentage))
	}
	return out
}

func format(g Gate, label types.InputType, failure string) string {
	if g.Message != "" {
		return fmt.Sprintf("%s [%s]: %s (%s)", g.ID, label, g.Message, failure)
	}
	return fmt.Sprintf("%s [%s]: %s", g.ID, label, failure)
}

func match(label, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, _ := filepath.Match(pattern, label)
	return ok
}

// Default is the policy written by `runstats init`.
func Default() Policy {
	p95 := 30000.0
	yes := 80.0
	runs := 1
	return Policy{
		Version: "1",
		Gates: []Gate{
			{ID: "G001", InputType: "*", MinRuns: &runs},
			{ID: "G002", InputType: string(types.InputTypeStageTransition), MaxP95MS: &p95, MinYesPercentage: &yes},
		},
	}
}

func Marshal(p Policy) ([]byte, error) {
	return goyaml.Marshal(p)
}
