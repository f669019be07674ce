package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ogulcanaydogan/llm-run-stats/internal/classify"
	"github.com/ogulcanaydogan/llm-run-stats/internal/source"
	"github.com/ogulcanaydogan/llm-run-stats/internal/store"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "runstats.yaml"
	DefaultDotEnvPath = ".env"
	DefaultOutputPath = "langsmith_data.json"

	EnvAPIKey   = "LANGSMITH_API_KEY"
	EnvProject  = "LANGSMITH_PROJECT"
	EnvEndpoint = "LANGSMITH_ENDPOINT"
	EnvLogLevel = "RUNSTATS_LOG_LEVEL"
)

// Settings is the optional runstats.yaml.
type Settings struct {
	Endpoint       string                `yaml:"endpoint"`
	PageSize       int                   `yaml:"page_size"`
	RateLimitRPS   float64               `yaml:"rate_limit_rps"`
	RateLimitBurst int                   `yaml:"rate_limit_burst"`
	Retry          source.RetryPolicy    `yaml:"retry"`
	Rounding       string                `yaml:"rounding"`
	FallbackLabel  string                `yaml:"fallback_label"`
	Rules          []classify.RuleConfig `yaml:"rules"`
	Output         Output                `yaml:"output"`
	LogLevel       string                `yaml:"log_level"`
}

type Output struct {
	JSON     string `yaml:"json"`
	Markdown string `yaml:"markdown"`
	Chart    string `yaml:"chart"`
	Metrics  string `yaml:"metrics"`
	Archive  string `yaml:"archive"`
}

// Env holds credentials and endpoint from the process environment or .env.
type Env struct {
	APIKey   string
	Project  string
	Endpoint string
	LogLevel string
}

func Default() Settings {
	return Settings{
		Endpoint:       source.DefaultEndpoint,
		PageSize:       source.DefaultPageSize,
		RateLimitRPS:   5,
		RateLimitBurst: 1,
		Retry:          source.DefaultRetryPolicy(),
		Rounding:       string(classify.RoundTruncate),
		FallbackLabel:  "response_generation",
		Rules: []classify.RuleConfig{
			{Label: "stage_transition", Contains: classify.StageTransitionMarker},
		},
		Output:   Output{JSON: DefaultOutputPath},
		LogLevel: "info",
	}
}

func LoadConfig(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Load overlays path onto Default. An empty path falls back to
// runstats.yaml when present.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		if !store.FileExists(DefaultConfigPath) {
			return s, nil
		}
		path = DefaultConfigPath
	}
	if err := LoadConfig(path, &s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("config %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) Validate() error {
	if _, err := classify.ParseRoundingMode(s.Rounding); err != nil {
		return err
	}
	if _, err := classify.RulesFromConfig(s.Rules); err != nil {
		return err
	}
	if s.PageSize < 0 {
		return fmt.Errorf("page_size must not be negative")
	}
	return nil
}

// Classifier builds the classifier the settings describe.
func (s Settings) Classifier() (*classify.Classifier, error) {
	mode, err := classify.ParseRoundingMode(s.Rounding)
	if err != nil {
		return nil, err
	}
	rules, err := classify.RulesFromConfig(s.Rules)
	if err != nil {
		return nil, err
	}
	return classify.New(
		classify.WithRules(rules),
		classify.WithFallback(types.InputType(s.FallbackLabel)),
		classify.WithRounding(mode),
	), nil
}

// LoadEnv reads credentials from the environment, falling back to a dotenv
// file. Real environment variables win over the file.
func LoadEnv(dotenvPath string) (Env, error) {
	v := viper.New()
	for _, key := range []string{EnvAPIKey, EnvProject, EnvEndpoint, EnvLogLevel} {
		if err := v.BindEnv(key); err != nil {
			return Env{}, err
		}
	}
	if dotenvPath != "" && store.FileExists(dotenvPath) {
		v.SetConfigFile(dotenvPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Env{}, fmt.Errorf("read %s: %w", dotenvPath, err)
		}
	}
	return Env{
		APIKey:   strings.TrimSpace(v.GetString(EnvAPIKey)),
		Project:  strings.TrimSpace(v.GetString(EnvProject)),
		Endpoint: strings.TrimSpace(v.GetString(EnvEndpoint)),
		LogLevel: strings.TrimSpace(v.GetString(EnvLogLevel)),
	}, nil
}

// RequireCredentials reports which of the variables needed to reach the
// tracing service are missing.
func (e Env) RequireCredentials() error {
	missing := make([]string, 0, 2)
	if e.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if e.Project == "" {
		missing = append(missing, EnvProject)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	return nil
}
