package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ogulcanaydogan/llm-run-stats/internal/aggregate"
	"github.com/ogulcanaydogan/llm-run-stats/internal/config"
	"github.com/ogulcanaydogan/llm-run-stats/internal/gate"
	"github.com/ogulcanaydogan/llm-run-stats/internal/hash"
	"github.com/ogulcanaydogan/llm-run-stats/internal/logging"
	"github.com/ogulcanaydogan/llm-run-stats/internal/report"
	"github.com/ogulcanaydogan/llm-run-stats/internal/source"
	"github.com/ogulcanaydogan/llm-run-stats/internal/store"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	ExitGeneric           = 1
	ExitSourceUnavailable = 10
	ExitGateFail          = 13
	ExitSchemaFail        = 14
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			stop()
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(ExitGeneric)
	}
}

var nowFunc = time.Now

// openLangSmithFunc builds the hosted source; tests swap it for an
// httptest-backed client.
var openLangSmithFunc = func(endpoint, apiKey string, s config.Settings, log *slog.Logger) (*source.LangSmith, error) {
	return source.NewLangSmith(endpoint, apiKey,
		source.WithPageSize(s.PageSize),
		source.WithRateLimit(s.RateLimitRPS, s.RateLimitBurst),
		source.WithRetry(s.Retry),
		source.WithLogger(log),
	)
}

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

// load resolves settings and environment. Flag level wins over env, env
// over the config file.
func (g *globalFlags) load() (config.Settings, config.Env, error) {
	settings, err := config.Load(g.configPath)
	if err != nil {
		return config.Settings{}, config.Env{}, err
	}
	env, err := config.LoadEnv(g.envFile)
	if err != nil {
		return config.Settings{}, config.Env{}, err
	}
	level := settings.LogLevel
	if env.LogLevel != "" {
		level = env.LogLevel
	}
	if g.logLevel != "" {
		level = g.logLevel
	}
	logging.SetLevel(level)
	return settings, env, nil
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "runstats",
		Short:         "Latency and success-rate statistics for LLM tracing runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default runstats.yaml when present)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", config.DefaultDotEnvPath, "dotenv file with LANGSMITH_* variables")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug|info|warn|error)")

	root.AddCommand(newInitCommand())
	root.AddCommand(newCollectCommand(g))
	root.AddCommand(newReportCommand())
	root.AddCommand(newGateCommand())
	root.AddCommand(newHistoryCommand(g))
	return root
}

func newInitCommand() *cobra.Command {
	var configPath, gatesPath, regoPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write default runstats.yaml, gates.yaml and gates.rego",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := yaml.Marshal(config.Default())
			if err != nil {
				return err
			}
			gates, err := gate.Marshal(gate.Default())
			if err != nil {
				return err
			}
			for _, f := range []struct {
				path string
				raw  []byte
			}{{configPath, settings}, {gatesPath, gates}, {regoPath, gate.DefaultRego()}} {
				if store.FileExists(f.path) && !force {
					fmt.Fprintf(cmd.OutOrStdout(), "kept existing %s\n", f.path)
					continue
				}
				if err := store.WriteFile(f.path, f.raw); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), f.path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config-out", config.DefaultConfigPath, "config file to write")
	cmd.Flags().StringVar(&gatesPath, "gates-out", "gates.yaml", "gates file to write")
	cmd.Flags().StringVar(&regoPath, "rego-out", "gates.rego", "rego module to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

type collectOptions struct {
	project          string
	input            string
	out              string
	markdown         string
	chart            string
	metrics          string
	archive          string
	rounding         string
	quiet            bool
	determinismCheck int
}

func newCollectCommand(g *globalFlags) *cobra.Command {
	var o collectOptions
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch runs, compute statistics and write the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, env, err := g.load()
			if err != nil {
				return err
			}
			if o.rounding != "" {
				settings.Rounding = o.rounding
			}
			applyOutputFlags(&settings.Output, o)
			classifier, err := settings.Classifier()
			if err != nil {
				return err
			}
			log := logging.L()
			ctx := cmd.Context()

			project, runs, err := openRuns(ctx, o, settings, env, log)
			if err != nil {
				return err
			}
			res, err := aggregate.Aggregate(ctx, runs, classifier, log)
			if err != nil {
				return sourceError(err)
			}
			log.Info("aggregated runs", "project", project, "total_runs", res.TotalRuns, "processed", res.Processed(), "skipped", res.Skipped)

			r, err := report.Build(project, res, nowFunc())
			if err != nil {
				return err
			}
			if o.determinismCheck > 0 {
				if err := report.CheckDeterminism(r, o.determinismCheck); err != nil {
					return err
				}
			}
			if !o.quiet {
				if err := report.Console(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			return writeOutputs(ctx, cmd, settings.Output, r, o.quiet, log)
		},
	}
	cmd.Flags().StringVar(&o.project, "project", "", "project name (defaults to LANGSMITH_PROJECT)")
	cmd.Flags().StringVar(&o.input, "input", "", "read runs from a JSON or JSONL export instead of the service")
	cmd.Flags().StringVar(&o.out, "out", "", "JSON report path (default "+config.DefaultOutputPath+")")
	cmd.Flags().StringVar(&o.markdown, "markdown", "", "also write a markdown report")
	cmd.Flags().StringVar(&o.chart, "chart", "", "also write an HTML latency chart")
	cmd.Flags().StringVar(&o.metrics, "metrics-file", "", "also write a Prometheus textfile")
	cmd.Flags().StringVar(&o.archive, "archive", "", "append summaries to this SQLite archive")
	cmd.Flags().StringVar(&o.rounding, "rounding", "", "feedback score rounding (truncate|half_even|half_up)")
	cmd.Flags().BoolVar(&o.quiet, "quiet", false, "skip the console breakdown")
	cmd.Flags().IntVar(&o.determinismCheck, "determinism-check", 0, "recompute statistics N times and compare digests")
	return cmd
}

func applyOutputFlags(out *config.Output, o collectOptions) {
	for _, f := range []struct {
		flag string
		dst  *string
	}{
		{o.out, &out.JSON}, {o.markdown, &out.Markdown}, {o.chart, &out.Chart},
		{o.metrics, &out.Metrics}, {o.archive, &out.Archive},
	} {
		if f.flag != "" {
			*f.dst = f.flag
		}
	}
	if out.JSON == "" {
		out.JSON = config.DefaultOutputPath
	}
}

func openRuns(ctx context.Context, o collectOptions, s config.Settings, env config.Env, log *slog.Logger) (string, iter.Seq2[types.Run, error], error) {
	project := o.project
	if project == "" {
		project = env.Project
	}
	if o.input != "" {
		if project == "" {
			project = strings.TrimSuffix(filepath.Base(o.input), filepath.Ext(o.input))
		}
		log.Debug("reading runs from file", "path", o.input)
		return project, source.File{Path: o.input}.Runs(ctx), nil
	}

	env.Project = project
	if err := env.RequireCredentials(); err != nil {
		return "", nil, err
	}
	endpoint := s.Endpoint
	if env.Endpoint != "" {
		endpoint = env.Endpoint
	}
	client, err := openLangSmithFunc(endpoint, env.APIKey, s, log)
	if err != nil {
		return "", nil, err
	}
	p, err := client.ReadProject(ctx, project)
	if err != nil {
		return "", nil, sourceError(err)
	}
	log.Debug("resolved project", "name", project, "id", p.ID)
	return project, client.Runs(ctx, p.ID), nil
}

func writeOutputs(ctx context.Context, cmd *cobra.Command, out config.Output, r types.Report, quiet bool, log *slog.Logger) error {
	if err := report.WriteJSON(out.JSON, r); err != nil {
		var se *report.SchemaError
		if errors.As(err, &se) {
			return cliError{code: ExitSchemaFail, err: err}
		}
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\nData saved to %s\n", out.JSON)
	}
	if out.Markdown != "" {
		if err := report.WriteMarkdown(out.Markdown, r); err != nil {
			return err
		}
		log.Info("wrote markdown", "path", out.Markdown)
	}
	if out.Chart != "" {
		if len(r.Statistics) == 0 {
			log.Warn("no classified runs, skipping chart", "path", out.Chart)
		} else if err := report.WriteChart(out.Chart, r); err != nil {
			return err
		}
	}
	if out.Metrics != "" {
		if err := report.WriteMetrics(out.Metrics, r); err != nil {
			return err
		}
		log.Info("wrote metrics", "path", out.Metrics)
	}
	if out.Archive != "" {
		digest, _, err := hash.DigestFile(out.JSON)
		if err != nil {
			return err
		}
		a, err := store.OpenArchive(out.Archive)
		if err != nil {
			return err
		}
		defer a.Close()
		n, err := a.Save(ctx, r, digest)
		if err != nil {
			return err
		}
		log.Info("archived report", "path", out.Archive, "report_id", r.Metadata.ReportID, "rows", n)
	}
	return nil
}

func sourceError(err error) error {
	var su *source.SourceUnavailableError
	if errors.As(err, &su) {
		return cliError{code: ExitSourceUnavailable, err: err}
	}
	return err
}

func newReportCommand() *cobra.Command {
	var inPath, outPath, chartPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate markdown from a saved JSON report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" || outPath == "" {
				return fmt.Errorf("--in and --out are required")
			}
			r, err := report.ReadJSON(inPath)
			if err != nil {
				return err
			}
			if err := report.Validate(r); err != nil {
				return cliError{code: ExitSchemaFail, err: err}
			}
			if err := report.WriteMarkdown(outPath, r); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			if chartPath != "" {
				if err := report.WriteChart(chartPath, r); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), chartPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "JSON report input")
	cmd.Flags().StringVar(&outPath, "out", "", "markdown output")
	cmd.Flags().StringVar(&chartPath, "chart", "", "also write an HTML latency chart")
	return cmd
}

func newGateCommand() *cobra.Command {
	var reportPath, gatesPath, engine, regoPolicyPath string
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Check a saved report against thresholds and return non-zero on violations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if gatesPath == "" {
				return fmt.Errorf("--gates is required")
			}
			policy, err := gate.LoadPolicy(gatesPath)
			if err != nil {
				return err
			}
			r, err := report.ReadJSON(reportPath)
			if err != nil {
				return err
			}
			if err := report.Validate(r); err != nil {
				return cliError{code: ExitSchemaFail, err: err}
			}
			var violations []string
			switch engine {
			case "yaml":
				violations = gate.Evaluate(policy, r)
			case "rego":
				result, err := gate.EvaluateRego(cmd.Context(), regoPolicyPath, gate.BuildRegoInput(policy, r))
				if err != nil {
					return err
				}
				violations = result.Violations
				if !result.Allow && len(violations) == 0 {
					violations = append(violations, "rego policy denied report")
				}
			default:
				return fmt.Errorf("unsupported gate engine %s", engine)
			}
			if len(violations) > 0 {
				for _, v := range violations {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
				return cliError{code: ExitGateFail, err: fmt.Errorf("gate failed: %d violation(s)", len(violations))}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "gate passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", config.DefaultOutputPath, "JSON report path")
	cmd.Flags().StringVar(&gatesPath, "gates", "", "gates YAML path")
	cmd.Flags().StringVar(&engine, "engine", "yaml", "gate engine (yaml|rego)")
	cmd.Flags().StringVar(&regoPolicyPath, "rego-policy", "", "rego module (default: bundled module, used with --engine rego)")
	return cmd
}

func newHistoryCommand(g *globalFlags) *cobra.Command {
	var archivePath, project string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived report summaries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, env, err := g.load()
			if err != nil {
				return err
			}
			if archivePath == "" {
				archivePath = settings.Output.Archive
			}
			if archivePath == "" {
				return fmt.Errorf("--archive is required")
			}
			if !store.FileExists(archivePath) {
				return fmt.Errorf("archive %s does not exist", archivePath)
			}
			if project == "" {
				project = env.Project
			}
			if project == "" {
				return fmt.Errorf("--project is required")
			}
			a, err := store.OpenArchive(archivePath)
			if err != nil {
				return err
			}
			defer a.Close()
			rows, err := a.List(cmd.Context(), project, limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no archived reports for %s\n", project)
				return nil
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("GENERATED", "REPORT", "INPUT TYPE", "RUNS", "MEAN MS", "P95 MS", "P99 MS", "SUCCESS")
			for _, row := range rows {
				t.Row(
					row.GeneratedAt.UTC().Format(time.RFC3339), shortID(row.ReportID), row.InputType,
					fmt.Sprint(row.Runs), fmt.Sprintf("%.2f", row.MeanMS), fmt.Sprintf("%.2f", row.P95MS),
					fmt.Sprintf("%.2f", row.P99MS), fmt.Sprintf("%.1f%%", row.YesPercentage),
				)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	cmd.Flags().StringVar(&archivePath, "archive", "", "SQLite archive path")
	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to LANGSMITH_PROJECT)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for all)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
