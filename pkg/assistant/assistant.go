// Package assistant provides data assistants: named, fixed sets of profiler
// rules that are run over the batches of a data asset. An assistant is
// either instantiated explicitly over a Validator or invoked by type
// through an Assistants accessor; both paths produce the same result.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/leapstack-labs/leapprofile/pkg/profiler"
)

// Definition describes an assistant type.
type Definition struct {
	// Type is the accessor name, e.g. "volume".
	Type string
	// RegisteredName names the profiler on the implicit path.
	RegisteredName string
	// Config returns the assistant rules under a profiler name.
	Config func(name string) *core.ProfilerConfig
}

// Options holds assistant dependencies.
type Options struct {
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Registry resolves builder class names (optional)
	Registry *profiler.Registry
	// Now is the clock used for citation dates (optional)
	Now func() time.Time
	// Store records run history when set
	Store core.Store
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Validator binds a datasource to the ordered batches of one batch request.
type Validator struct {
	Datasource core.Datasource
	Request    core.BatchRequest
	Batches    []core.Batch
}

// NewValidator resolves the batches of req.
func NewValidator(ctx context.Context, ds core.Datasource, req core.BatchRequest) (*Validator, error) {
	if ds == nil {
		return nil, fmt.Errorf("a datasource is required")
	}
	batches, err := ds.ResolveBatches(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("resolving batches for %s: %w", req.DataAssetName, err)
	}
	if len(batches) == 0 {
		return nil, core.ErrNoBatches
	}
	return &Validator{Datasource: ds, Request: req, Batches: batches}, nil
}

// ColumnFilters narrow the column domains of every column-oriented rule for
// one run. Include lists replace the rule's own; exclude lists are added to
// it. Include and exclude column names cannot both be set.
type ColumnFilters struct {
	IncludeColumnNames              []string
	ExcludeColumnNames              []string
	IncludeColumnNameSuffixes       []string
	ExcludeColumnNameSuffixes       []string
	IncludeSemanticTypes            []string
	ExcludeSemanticTypes            []string
	AllowedSemanticTypesPassthrough []string
	// CardinalityLimitMode replaces the categorical limit (preset name).
	CardinalityLimitMode string
}

func (f ColumnFilters) validate() error {
	if len(f.IncludeColumnNames) > 0 && len(f.ExcludeColumnNames) > 0 {
		return core.NewConfigError(core.ConfigMutuallyExclusive,
			"either use `include_column_names` or `exclude_column_names`, not both")
	}
	if f.CardinalityLimitMode != "" {
		if _, err := profiler.LookupCardinalityLimitMode(f.CardinalityLimitMode); err != nil {
			return err
		}
	}
	return nil
}

func (f ColumnFilters) empty() bool {
	return len(f.IncludeColumnNames) == 0 && len(f.ExcludeColumnNames) == 0 &&
		len(f.IncludeColumnNameSuffixes) == 0 && len(f.ExcludeColumnNameSuffixes) == 0 &&
		len(f.IncludeSemanticTypes) == 0 && len(f.ExcludeSemanticTypes) == 0 &&
		len(f.AllowedSemanticTypesPassthrough) == 0 && f.CardinalityLimitMode == ""
}

// RunOptions adjust one assistant run.
type RunOptions struct {
	// Variables are deep-merged over the profiler-level variables.
	Variables map[string]any
	// RuleVariables are deep-merged over the variables of the named rule.
	RuleVariables map[string]map[string]any
	// ExcludeDomains drops matching domains from every rule; see
	// core.ExcludeDomains.
	ExcludeDomains []core.Domain
	ColumnFilters
}

// DataAssistant runs a fixed set of rules over the batches of a Validator.
type DataAssistant struct {
	name      string
	def       Definition
	validator *Validator
	opts      Options
}

// New creates an assistant of the given definition over a validator.
func New(name string, def Definition, v *Validator, opts Options) (*DataAssistant, error) {
	if v == nil {
		return nil, fmt.Errorf("%s data assistant: a validator is required", def.Type)
	}
	if name == "" {
		name = def.RegisteredName
	}
	return &DataAssistant{name: name, def: def, validator: v, opts: opts}, nil
}

// NewVolume creates a volume assistant over a validator.
func NewVolume(name string, v *Validator, opts Options) (*DataAssistant, error) {
	return New(name, VolumeDefinition(), v, opts)
}

// Name returns the profiler name used for the run.
func (a *DataAssistant) Name() string { return a.name }

// Type returns the assistant type.
func (a *DataAssistant) Type() string { return a.def.Type }

// ProfilerConfig returns the rules the assistant runs.
func (a *DataAssistant) ProfilerConfig() *core.ProfilerConfig {
	return a.def.Config(a.name)
}

// Run profiles the validator's batches.
func (a *DataAssistant) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	log := a.opts.logger().With("assistant", a.def.Type, "name", a.name)
	if err := opts.ColumnFilters.validate(); err != nil {
		log.Error("assistant run rejected", "error", err)
		return nil, err
	}

	cfg := a.ProfilerConfig()
	overrides := map[string]profiler.RuleOverride{}
	for _, rule := range cfg.Rules {
		var ro profiler.RuleOverride
		if !opts.ColumnFilters.empty() && columnOriented(rule.DomainBuilder.ClassName) {
			ro.DomainBuilderOptions = opts.ColumnFilters.domainOptions(rule.DomainBuilder)
		}
		ro.Variables = opts.RuleVariables[rule.Name]
		if ro.Variables != nil || ro.DomainBuilderOptions != nil {
			overrides[rule.Name] = ro
		}
	}
	for name := range opts.RuleVariables {
		if _, ok := cfg.Rule(name); !ok {
			return nil, core.NewConfigError(core.ConfigInvalidOption,
				"%s data assistant has no rule %q (rules: %v)", a.def.Type, name, cfg.RuleNames())
		}
	}

	p, err := profiler.New(cfg, profiler.Config{
		Registry: a.opts.Registry,
		Logger:   a.opts.Logger,
		Now:      a.opts.Now,
		Store:    a.opts.Store,
	})
	if err != nil {
		return nil, err
	}

	log.Debug("assistant run", "batches", len(a.validator.Batches), "asset", a.validator.Request.DataAssetName)
	res, err := p.Run(ctx, profiler.RunOptions{
		Batches:        a.validator.Batches,
		Provider:       a.validator.Datasource,
		Variables:      opts.Variables,
		Rules:          overrides,
		ExcludeDomains: opts.ExcludeDomains,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Result: res, AssistantType: a.def.Type}, nil
}

func columnOriented(className string) bool {
	switch className {
	case profiler.ClassColumnDomainBuilder,
		profiler.ClassCategoricalColumnDomainBuilder,
		profiler.ClassColumnPairDomainBuilder,
		profiler.ClassMultiColumnDomainBuilder:
		return true
	}
	return false
}

// domainOptions returns the domain builder options to replace.
func (f ColumnFilters) domainOptions(db *core.BuilderConfig) map[string]any {
	out := map[string]any{}
	replace := func(key string, values []string) {
		if len(values) > 0 {
			out[key] = toAnyList(values)
		}
	}
	extend := func(key string, values []string) {
		if len(values) == 0 {
			return
		}
		merged := append(stringList(db.Options[key]), values...)
		sort.Strings(merged)
		out[key] = toAnyList(slices.Compact(merged))
	}

	replace("include_column_names", f.IncludeColumnNames)
	extend("exclude_column_names", f.ExcludeColumnNames)
	replace("include_column_name_suffixes", f.IncludeColumnNameSuffixes)
	extend("exclude_column_name_suffixes", f.ExcludeColumnNameSuffixes)
	replace("include_semantic_types", f.IncludeSemanticTypes)
	extend("exclude_semantic_types", f.ExcludeSemanticTypes)
	replace("allowed_semantic_types_passthrough", f.AllowedSemanticTypesPassthrough)
	if f.CardinalityLimitMode != "" && db.ClassName == profiler.ClassCategoricalColumnDomainBuilder {
		mode, _ := profiler.LookupCardinalityLimitMode(f.CardinalityLimitMode)
		out["cardinality_limit_mode"] = mode.ToJSONDict()
		out["max_unique_values"] = nil
		out["max_proportion_unique"] = nil
	}
	return out
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toAnyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
