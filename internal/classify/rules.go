package classify

import (
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
)

const StageTransitionMarker = "What stage should this ticket be in?"

// Rule assigns Label to any run whose message content satisfies Match.
type Rule struct {
	Label types.InputType
	Match func(content string) bool
}

// RuleConfig is the YAML form of a substring rule.
type RuleConfig struct {
	Label    string `yaml:"label"`
	Contains string `yaml:"contains"`
}

func Contains(label types.InputType, marker string) Rule {
	return Rule{
		Label: label,
		Match: func(content string) bool { return strings.Contains(content, marker) },
	}
}

func DefaultRules() []Rule {
	return []Rule{Contains(types.InputTypeStageTransition, StageTransitionMarker)}
}

// RulesFromConfig builds substring rules in file order.
func RulesFromConfig(cfg []RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfg))
	for i, rc := range cfg {
		label := strings.TrimSpace(rc.Label)
		if label == "" {
			return nil, fmt.Errorf("rule %d: label is required", i+1)
		}
		if rc.Contains == "" {
			return nil, fmt.Errorf("rule %d (%s): contains is required", i+1, label)
		}
		rules = append(rules, Contains(types.InputType(label), rc.Contains))
	}
	return rules, nil
}
