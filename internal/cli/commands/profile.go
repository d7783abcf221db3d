package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/leapprofile/internal/cli/output"
	"github.com/leapstack-labs/leapprofile/pkg/assistant"
	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/leapstack-labs/leapprofile/pkg/profiler"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ProfileOptions holds options for the profile command.
type ProfileOptions struct {
	Assistant       string
	ProfilerConfig  string
	Filter          map[string]string
	Limit           int
	IncludeColumns  []string
	ExcludeColumns  []string
	CardinalityMode string
	Seed            uint64
	Estimator       string
	LoadSeeds       bool
	Suite           string
	NoRecord        bool
}

// NewProfileCommand creates the profile command.
func NewProfileCommand() *cobra.Command {
	opts := &ProfileOptions{}

	cmd := &cobra.Command{
		Use:   "profile <asset>",
		Short: "Profile the batches of a data asset",
		Long: `Resolve the batches of a datasource asset and profile them, either with a
data assistant (volume by default) or with a profiler configuration file.

The run is recorded in the state database unless --no-record is given.

Output adapts to environment:
  - Terminal: tables
  - Piped/Scripted: JSON

Use --output to override: auto, text, markdown, json, csv`,
		Example: `  # Volume assistant over every batch of the trips asset
  leapprofile profile trips

  # Reproducible bootstrap estimates over the last three months
  leapprofile profile trips --seed 42 --filter year=2024 --limit 3

  # Exact (min/max) ranges and a restricted column set
  leapprofile profile trips --estimator exact --exclude-column payment_type

  # Run a profiler configuration file and print the expectation suite
  leapprofile profile trips --profiler-config profilers/trips.yaml --suite trips.warning`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Assistant, "assistant", "a", "volume", "Data assistant type")
	cmd.Flags().StringVarP(&opts.ProfilerConfig, "profiler-config", "p", "", "Profiler configuration file (YAML or JSON)")
	cmd.Flags().StringToStringVar(&opts.Filter, "filter", nil, "Batch identifier filter (key=value)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Use only the last N batches")
	cmd.Flags().StringSliceVar(&opts.IncludeColumns, "include-column", nil, "Only profile these columns")
	cmd.Flags().StringSliceVar(&opts.ExcludeColumns, "exclude-column", nil, "Do not profile these columns")
	cmd.Flags().StringVar(&opts.CardinalityMode, "cardinality-mode", "", "Cardinality limit mode for categorical columns")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed for bootstrap estimation")
	cmd.Flags().StringVar(&opts.Estimator, "estimator", "", "Range estimator for every rule (bootstrap|exact)")
	cmd.Flags().BoolVar(&opts.LoadSeeds, "load-seeds", false, "Load seed CSVs into the target before profiling")
	cmd.Flags().StringVar(&opts.Suite, "suite", "", "Print the expectation suite with this name instead of the result")
	cmd.Flags().BoolVar(&opts.NoRecord, "no-record", false, "Do not record the run in the state database")

	cmd.MarkFlagsMutuallyExclusive("assistant", "profiler-config")
	cmd.MarkFlagsMutuallyExclusive("include-column", "exclude-column")

	_ = cmd.RegisterFlagCompletionFunc("estimator", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"bootstrap", "exact"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("cardinality-mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return profiler.CardinalityLimitModeNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runProfile(cmd *cobra.Command, asset string, opts *ProfileOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)

	ds, cleanup, err := cc.openDatasource(ctx, opts.LoadSeeds)
	if err != nil {
		return err
	}
	defer cleanup()

	var store core.Store
	if !opts.NoRecord {
		s, err := cc.openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	req := core.BatchRequest{
		DatasourceName: ds.Name(),
		DataAssetName:  asset,
		Limit:          opts.Limit,
	}
	if len(opts.Filter) > 0 {
		req.BatchFilter = make(map[string]any, len(opts.Filter))
		for k, v := range opts.Filter {
			req.BatchFilter[k] = v
		}
	}

	var variables map[string]any
	if cmd.Flags().Changed("seed") {
		variables = map[string]any{"random_seed": opts.Seed}
	}

	var (
		res    *profiler.Result
		series []assistant.MetricSeries
	)
	if opts.ProfilerConfig != "" {
		pc, err := loadProfilerConfig(opts.ProfilerConfig)
		if err != nil {
			return err
		}
		batches, err := ds.ResolveBatches(ctx, req)
		if err != nil {
			return err
		}
		p, err := profiler.New(pc, profiler.Config{Logger: cc.Logger, Store: store})
		if err != nil {
			return err
		}
		res, err = p.Run(ctx, profiler.RunOptions{Batches: batches, Provider: ds, Variables: variables})
		if err != nil {
			return err
		}
	} else {
		reg := assistant.NewRegistry()
		runOpts, err := assistantRunOptions(reg, opts, variables)
		if err != nil {
			return err
		}
		as := assistant.NewAssistants(reg, ds, assistant.Options{Logger: cc.Logger, Store: store})
		ar, err := as.Run(ctx, opts.Assistant, req, runOpts)
		if err != nil {
			return err
		}
		res = ar.Result
		series, err = ar.MetricSeries(assistant.SeriesOptions{})
		if err != nil {
			return err
		}
	}

	if opts.Suite != "" {
		return renderSuite(cc.Renderer, res.GetExpectationSuite(opts.Suite))
	}
	return renderProfile(cc.Renderer, res, series)
}

// assistantRunOptions maps command flags onto assistant run options.
func assistantRunOptions(reg *assistant.Registry, opts *ProfileOptions, variables map[string]any) (assistant.RunOptions, error) {
	runOpts := assistant.RunOptions{
		Variables: variables,
		ColumnFilters: assistant.ColumnFilters{
			IncludeColumnNames:   opts.IncludeColumns,
			ExcludeColumnNames:   opts.ExcludeColumns,
			CardinalityLimitMode: opts.CardinalityMode,
		},
	}
	if opts.Estimator == "" {
		return runOpts, nil
	}
	def, ok := reg.Get(opts.Assistant)
	if !ok {
		return runOpts, fmt.Errorf("%w %q (known: %v)", core.ErrUnknownAssistant, opts.Assistant, reg.Types())
	}
	runOpts.RuleVariables = map[string]map[string]any{}
	for _, rule := range def.Config(def.RegisteredName).RuleNames() {
		runOpts.RuleVariables[rule] = map[string]any{"estimator": opts.Estimator}
	}
	return runOpts, nil
}

// loadProfilerConfig reads a profiler configuration from a YAML or JSON file.
func loadProfilerConfig(path string) (*core.ProfilerConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read profiler config: %w", err)
	}
	var raw map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse profiler config %s: %w", path, err)
	}
	cfg, err := core.ProfilerConfigFromJSONDict(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid profiler config %s: %w", path, err)
	}
	return cfg, nil
}

// expectationTable lists expectations with their domain and kwargs.
func expectationTable(expectations []*core.ExpectationConfiguration) *output.Table {
	t := &output.Table{Title: "Expectations", Columns: []string{"expectation_type", "column", "kwargs"}}
	for _, e := range expectations {
		kwargs, _ := e.ToJSONDict()["kwargs"].(map[string]any)
		delete(kwargs, "column")
		col := e.Column()
		if col == "" {
			col = "-"
		}
		t.Append(e.ExpectationType, col, kwargs)
	}
	return t
}

// seriesTable lists every point of every metric series.
func seriesTable(series []assistant.MetricSeries) *output.Table {
	t := &output.Table{Title: "Metrics", Columns: []string{"metric", "batch", "value"}}
	for _, s := range series {
		for _, p := range s.Points {
			t.Append(s.Label(), p.DisplayName, core.NormalizeJSON(p.Value))
		}
	}
	return t
}

func renderProfile(r *output.Renderer, res *profiler.Result, series []assistant.MetricSeries) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := map[string]any{"result": res.ToJSONDict()}
		if series != nil {
			points := make([]map[string]any, 0, len(series))
			for _, s := range series {
				ps := make([]map[string]any, 0, len(s.Points))
				for _, p := range s.Points {
					ps = append(ps, map[string]any{
						"batch_id":     p.BatchID,
						"display_name": p.DisplayName,
						"value":        core.NormalizeJSON(p.Value),
					})
				}
				points = append(points, map[string]any{
					"domain":    s.Domain.ToJSONDict(),
					"parameter": s.Parameter,
					"points":    ps,
				})
			}
			out["metric_series"] = points
		}
		return r.JSON(out)
	}

	name := res.ProfilerConfig.Name
	r.Header(1, fmt.Sprintf("Profile: %s", name))
	r.Printf("%d batches, %d expectations, %s\n\n",
		len(res.BatchIDs()), len(res.ExpectationConfigurations), res.ExecutionTime.Round(time.Millisecond))

	if len(series) > 0 {
		if err := r.Table(seriesTable(series)); err != nil {
			return err
		}
		r.Println("")
	}
	return r.Table(expectationTable(res.ExpectationConfigurations))
}

func renderSuite(r *output.Renderer, suite *core.ExpectationSuite) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(suite.ToJSONDict())
	}
	r.Header(1, fmt.Sprintf("Expectation suite: %s", suite.Name))
	r.Printf("%d expectations\n\n", len(suite.Expectations))
	return r.Table(expectationTable(suite.Expectations))
}
