package profiler

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/leapstack-labs/leapprofile/internal/estimator"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// NaN replacement stages for replace_nan_with_zero.
const (
	// NaNReplaceBatch replaces NaN per batch before values are stored.
	NaNReplaceBatch = "batch"
	// NaNReplaceReduced keeps per-batch NaN in attributed_value and only
	// replaces it in the reduced value.
	NaNReplaceReduced = "reduced"
)

// Default range estimation settings.
const (
	DefaultFalsePositiveRate = 0.05
	DefaultEstimator         = estimator.KindBootstrap
)

// metricOptions are the options of every metric-computing builder.
type metricOptions struct {
	MetricName           string `mapstructure:"metric_name"`
	MetricDomainKwargs   any    `mapstructure:"metric_domain_kwargs"`
	MetricValueKwargs    any    `mapstructure:"metric_value_kwargs"`
	EnforceNumericMetric bool   `mapstructure:"enforce_numeric_metric"`
	ReplaceNaNWithZero   bool   `mapstructure:"replace_nan_with_zero"`
	ReduceScalarMetric   *bool  `mapstructure:"reduce_scalar_metric"`
	NaNReplacementStage  string `mapstructure:"nan_replacement_stage"`
}

func (o *metricOptions) validate(className string, requireMetric bool) error {
	if requireMetric && o.MetricName == "" {
		return core.NewConfigError(core.ConfigInvalidOption, "%s: metric_name is required", className)
	}
	switch o.NaNReplacementStage {
	case "", NaNReplaceBatch, NaNReplaceReduced:
	default:
		return core.NewConfigError(core.ConfigInvalidOption,
			"%s: nan_replacement_stage must be %q or %q, got %q",
			className, NaNReplaceBatch, NaNReplaceReduced, o.NaNReplacementStage)
	}
	if o.MetricDomainKwargs != nil {
		if _, ok := o.MetricDomainKwargs.(map[string]any); !ok {
			return core.NewConfigError(core.ConfigInvalidOption,
				"%s: metric_domain_kwargs must be a mapping, got %T", className, o.MetricDomainKwargs)
		}
	}
	if o.MetricValueKwargs != nil {
		if _, ok := o.MetricValueKwargs.(map[string]any); !ok {
			return core.NewConfigError(core.ConfigInvalidOption,
				"%s: metric_value_kwargs must be a mapping, got %T", className, o.MetricValueKwargs)
		}
	}
	return nil
}

func (o *metricOptions) reduce() bool {
	return o.ReduceScalarMetric == nil || *o.ReduceScalarMetric
}

func (o *metricOptions) replaceStage() string {
	if o.NaNReplacementStage == "" {
		return NaNReplaceBatch
	}
	return o.NaNReplacementStage
}

// metricConfiguration addresses the metric for a domain. Missing domain
// kwargs default to the domain's own kwargs.
func (o *metricOptions) metricConfiguration(domain core.Domain) core.MetricConfiguration {
	domainKwargs, _ := o.MetricDomainKwargs.(map[string]any)
	if domainKwargs == nil {
		domainKwargs = domain.Kwargs
	}
	valueKwargs, _ := o.MetricValueKwargs.(map[string]any)
	return core.MetricConfiguration{
		MetricName:        core.CanonicalMetricName(o.MetricName),
		DomainKwargs:      copyValue(domainKwargs).(map[string]any),
		MetricValueKwargs: valueKwargs,
	}
}

// metricSample is one metric computed over every batch.
type metricSample struct {
	config     core.MetricConfiguration
	values     []any
	attributed *core.AttributedValue
}

func (s *metricSample) details() map[string]any {
	return map[string]any{
		"metric_configuration": s.config.ToJSONDict(),
		"num_batches":          len(s.values),
	}
}

// collect computes the metric on every batch in batch order.
func (o *metricOptions) collect(ctx context.Context, bc *BuildContext, domain core.Domain) (*metricSample, error) {
	ids := bc.BatchIDs()
	if len(ids) == 0 {
		return nil, core.ErrNoBatches
	}
	mc := o.metricConfiguration(domain)
	s := &metricSample{config: mc, attributed: core.NewAttributedValue()}
	for _, id := range ids {
		v, err := bc.ComputeMetric(ctx, id, mc)
		if err != nil {
			return nil, err
		}
		if o.EnforceNumericMetric {
			f, ok := toFloat(v)
			if !ok {
				return nil, &core.MetricError{Metric: mc, BatchID: id,
					Err: fmt.Errorf("metric is not numeric (%T)", v)}
			}
			if math.IsNaN(f) {
				v = math.NaN()
				if o.ReplaceNaNWithZero && o.replaceStage() == NaNReplaceBatch {
					v = 0
				}
			}
		}
		s.values = append(s.values, v)
		s.attributed.Set(id, v)
	}
	return s, nil
}

// reduced returns the parameter value derived from the per-batch values.
func (o *metricOptions) reduced(values []any) any {
	out := make([]any, len(values))
	for i, v := range values {
		if o.ReplaceNaNWithZero && o.replaceStage() == NaNReplaceReduced {
			if f, ok := v.(float64); ok && math.IsNaN(f) {
				v = 0
			}
		}
		if o.reduce() {
			out[i] = v
		} else {
			out[i] = []any{v}
		}
	}
	if o.reduce() && len(out) == 1 {
		return out[0]
	}
	return out
}

// parameterBuilderBase carries what every parameter builder shares.
type parameterBuilderBase struct {
	cfg *core.BuilderConfig
}

func (b *parameterBuilderBase) Name() string                { return b.cfg.Name }
func (b *parameterBuilderBase) Config() *core.BuilderConfig { return b.cfg }

func (b *parameterBuilderBase) dependencies(extra ...string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(n string) {
		if n != "" && n != b.cfg.Name && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, c := range b.cfg.EvaluationParameterBuilderConfigs {
		add(c.Name)
	}
	for _, n := range parameterDependencies(b.cfg.Options) {
		add(n)
	}
	for _, n := range extra {
		add(n)
	}
	return out
}

func (b *parameterBuilderBase) decodeForValidation(className string, variables map[string]any, out any) error {
	resolved, err := resolveVariablesOnly(b.cfg.Options, variables)
	if err != nil {
		return err
	}
	m, _ := resolved.(map[string]any)
	return decodeOptions(className, m, out)
}

func (b *parameterBuilderBase) decodeForBuild(className string, bc *BuildContext, domain core.Domain, params core.Parameters, out any) error {
	opts, err := resolveOptions(b.cfg, bc.ExprContext(&domain, params))
	if err != nil {
		return err
	}
	return decodeOptions(className, opts, out)
}

// MetricMultiBatchParameterBuilder computes one metric per batch.
type MetricMultiBatchParameterBuilder struct {
	parameterBuilderBase
}

// NewMetricMultiBatchParameterBuilder creates a MetricMultiBatchParameterBuilder.
func NewMetricMultiBatchParameterBuilder(cfg *core.BuilderConfig) (ParameterBuilder, error) {
	return &MetricMultiBatchParameterBuilder{parameterBuilderBase{cfg: cfg}}, nil
}

// ClassName implements ParameterBuilder.
func (b *MetricMultiBatchParameterBuilder) ClassName() string {
	return ClassMetricMultiBatchParameterBuilder
}

// Dependencies implements ParameterBuilder.
func (b *MetricMultiBatchParameterBuilder) Dependencies() []string { return b.dependencies() }

// Validate implements ParameterBuilder.
func (b *MetricMultiBatchParameterBuilder) Validate(variables map[string]any) error {
	var opts metricOptions
	if err := b.decodeForValidation(b.ClassName(), variables, &opts); err != nil {
		return err
	}
	return opts.validate(b.ClassName(), true)
}

// Build implements ParameterBuilder.
func (b *MetricMultiBatchParameterBuilder) Build(ctx context.Context, bc *BuildContext, domain core.Domain, params core.Parameters) (*core.ParameterNode, error) {
	var opts metricOptions
	if err := b.decodeForBuild(b.ClassName(), bc, domain, params, &opts); err != nil {
		return nil, err
	}
	if err := opts.validate(b.ClassName(), true); err != nil {
		return nil, err
	}
	s, err := opts.collect(ctx, bc, domain)
	if err != nil {
		return nil, err
	}
	return &core.ParameterNode{
		Value:           opts.reduced(s.values),
		AttributedValue: s.attributed,
		Details:         s.details(),
	}, nil
}

// rangeOptions configure NumericMetricRangeMultiBatchParameterBuilder.
type rangeOptions struct {
	metricOptions `mapstructure:",squash"`

	MetricMultiBatchParameterBuilderName string           `mapstructure:"metric_multi_batch_parameter_builder_name"`
	Estimator                            string           `mapstructure:"estimator"`
	FalsePositiveRate                    *float64         `mapstructure:"false_positive_rate"`
	QuantileMethod                       string           `mapstructure:"quantile_statistic_interpolation_method"`
	NResamples                           *int             `mapstructure:"n_resamples"`
	RandomSeed                           *uint64          `mapstructure:"random_seed"`
	IncludeHistogram                     bool             `mapstructure:"include_estimator_samples_histogram_in_details"`
	TruncateValues                       estimator.Bounds `mapstructure:"truncate_values"`
	RoundDecimals                        *int             `mapstructure:"round_decimals"`
}

type rangeSettings struct {
	kind   estimator.Kind
	method estimator.Method
	opts   estimator.Options
}

func (o *rangeOptions) settings(className string) (rangeSettings, error) {
	if err := o.metricOptions.validate(className, o.MetricMultiBatchParameterBuilderName == ""); err != nil {
		return rangeSettings{}, err
	}
	kind := DefaultEstimator
	if o.Estimator != "" {
		k, err := estimator.ParseKind(o.Estimator)
		if err != nil {
			return rangeSettings{}, err
		}
		kind = k
	}
	method, err := estimator.ParseMethod(o.QuantileMethod)
	if err != nil {
		return rangeSettings{}, err
	}
	fpr := DefaultFalsePositiveRate
	if o.FalsePositiveRate != nil {
		fpr = *o.FalsePositiveRate
	}
	n := estimator.DefaultResamples
	if o.NResamples != nil {
		n = *o.NResamples
	}
	if o.RoundDecimals != nil && *o.RoundDecimals < 0 {
		return rangeSettings{}, core.NewConfigError(core.ConfigInvalidOption,
			"%s: round_decimals must not be negative, got %d", className, *o.RoundDecimals)
	}
	if err := o.TruncateValues.Validate(); err != nil {
		return rangeSettings{}, err
	}
	eo := estimator.Options{
		FalsePositiveRate: fpr,
		Method:            method,
		NResamples:        n,
		RandomSeed:        o.RandomSeed,
	}
	if err := eo.Validate(); err != nil {
		return rangeSettings{}, err
	}
	return rangeSettings{kind: kind, method: method, opts: eo}, nil
}

// NumericMetricRangeMultiBatchParameterBuilder estimates a [lower, upper]
// range from a per-batch metric sample. The sample comes from the named
// metric multi-batch parameter or, without one, is computed directly.
type NumericMetricRangeMultiBatchParameterBuilder struct {
	parameterBuilderBase
}

// NewNumericMetricRangeParameterBuilder creates a
// NumericMetricRangeMultiBatchParameterBuilder.
func NewNumericMetricRangeParameterBuilder(cfg *core.BuilderConfig) (ParameterBuilder, error) {
	return &NumericMetricRangeMultiBatchParameterBuilder{parameterBuilderBase{cfg: cfg}}, nil
}

// ClassName implements ParameterBuilder.
func (b *NumericMetricRangeMultiBatchParameterBuilder) ClassName() string {
	return ClassNumericMetricRangeParameterBuilder
}

// Dependencies implements ParameterBuilder.
func (b *NumericMetricRangeMultiBatchParameterBuilder) Dependencies() []string {
	upstream, _ := b.cfg.Options["metric_multi_batch_parameter_builder_name"].(string)
	return b.dependencies(upstream)
}

// Validate implements ParameterBuilder.
func (b *NumericMetricRangeMultiBatchParameterBuilder) Validate(variables map[string]any) error {
	var opts rangeOptions
	if err := b.decodeForValidation(b.ClassName(), variables, &opts); err != nil {
		return err
	}
	_, err := opts.settings(b.ClassName())
	return err
}

// Build implements ParameterBuilder.
func (b *NumericMetricRangeMultiBatchParameterBuilder) Build(ctx context.Context, bc *BuildContext, domain core.Domain, params core.Parameters) (*core.ParameterNode, error) {
	var opts rangeOptions
	if err := b.decodeForBuild(b.ClassName(), bc, domain, params, &opts); err != nil {
		return nil, err
	}
	st, err := opts.settings(b.ClassName())
	if err != nil {
		return nil, err
	}

	attributed, details, err := b.sample(ctx, bc, domain, params, &opts)
	if err != nil {
		return nil, err
	}

	sample := make([]float64, 0, attributed.Len())
	for _, v := range attributed.Values() {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: sample value %v is not numeric", b.Name(), v)
		}
		if math.IsNaN(f) && opts.ReplaceNaNWithZero {
			f = 0
		}
		sample = append(sample, f)
	}

	decimals := opts.RoundDecimals
	integral := allWhole(sample)
	if integral {
		zero := 0
		decimals = &zero
	}
	st.opts.Method = st.method.ResolveAuto(decimals)

	res, err := estimator.Estimate(st.kind, sample, st.opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	lower := opts.TruncateValues.Clip(res.Lower)
	upper := opts.TruncateValues.Clip(res.Upper)
	if decimals != nil {
		lower = estimator.Round(lower, *decimals)
		upper = estimator.Round(upper, *decimals)
	}

	var value any = []any{lower, upper}
	if integral && !math.IsNaN(lower) && !math.IsNaN(upper) {
		value = []any{int64(lower), int64(upper)}
	}

	if opts.IncludeHistogram {
		details["estimation_histogram"] = map[string]any{
			"counts":    intsToAny(res.Histogram),
			"bin_edges": floatsToAny(res.BinEdges),
		}
	}

	bc.Logger.Debug("range estimated",
		"rule", bc.RuleName,
		"parameter", b.Name(),
		"domain", domain.String(),
		"estimator", string(st.kind),
		"method", string(st.opts.Method),
		"lower", lower,
		"upper", upper)

	return &core.ParameterNode{
		Value:           value,
		AttributedValue: attributed,
		Details:         details,
	}, nil
}

// sample returns the per-batch values feeding the estimator together with
// the provenance details of the metric.
func (b *NumericMetricRangeMultiBatchParameterBuilder) sample(ctx context.Context, bc *BuildContext, domain core.Domain, params core.Parameters, opts *rangeOptions) (*core.AttributedValue, map[string]any, error) {
	if name := opts.MetricMultiBatchParameterBuilderName; name != "" {
		node, ok := params.Get(name)
		if !ok || node == nil {
			return nil, nil, core.NewConfigError(core.ConfigUnresolvedReference,
				"%s: parameter %q has not been computed", b.Name(), name)
		}
		if node.AttributedValue == nil {
			return nil, nil, core.NewConfigError(core.ConfigInvalidOption,
				"%s: parameter %q has no attributed value", b.Name(), name)
		}
		details := map[string]any{}
		for k, v := range node.Details {
			details[k] = copyValue(v)
		}
		return node.AttributedValue, details, nil
	}
	s, err := opts.collect(ctx, bc, domain)
	if err != nil {
		return nil, nil, err
	}
	return s.attributed, s.details(), nil
}

func allWhole(sample []float64) bool {
	if len(sample) == 0 {
		return false
	}
	for _, f := range sample {
		if !isWhole(f) {
			return false
		}
	}
	return true
}

func intsToAny(xs []int) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

func floatsToAny(xs []float64) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

// ValueSetMultiBatchParameterBuilder collects the union of a column's
// distinct values over every batch, with the share of batches each value
// appears in.
type ValueSetMultiBatchParameterBuilder struct {
	parameterBuilderBase
}

// NewValueSetMultiBatchParameterBuilder creates a ValueSetMultiBatchParameterBuilder.
func NewValueSetMultiBatchParameterBuilder(cfg *core.BuilderConfig) (ParameterBuilder, error) {
	return &ValueSetMultiBatchParameterBuilder{parameterBuilderBase{cfg: cfg}}, nil
}

// ClassName implements ParameterBuilder.
func (b *ValueSetMultiBatchParameterBuilder) ClassName() string {
	return ClassValueSetMultiBatchParameterBuilder
}

// Dependencies implements ParameterBuilder.
func (b *ValueSetMultiBatchParameterBuilder) Dependencies() []string { return b.dependencies() }

func (b *ValueSetMultiBatchParameterBuilder) options(opts *metricOptions) {
	if opts.MetricName == "" {
		opts.MetricName = core.MetricColumnDistinctValues
	}
	opts.EnforceNumericMetric = false
}

// Validate implements ParameterBuilder.
func (b *ValueSetMultiBatchParameterBuilder) Validate(variables map[string]any) error {
	var opts metricOptions
	if err := b.decodeForValidation(b.ClassName(), variables, &opts); err != nil {
		return err
	}
	b.options(&opts)
	return opts.validate(b.ClassName(), true)
}

// Build implements ParameterBuilder.
func (b *ValueSetMultiBatchParameterBuilder) Build(ctx context.Context, bc *BuildContext, domain core.Domain, params core.Parameters) (*core.ParameterNode, error) {
	var opts metricOptions
	if err := b.decodeForBuild(b.ClassName(), bc, domain, params, &opts); err != nil {
		return nil, err
	}
	b.options(&opts)
	s, err := opts.collect(ctx, bc, domain)
	if err != nil {
		return nil, err
	}

	type entry struct {
		value   any
		batches int
	}
	byKey := map[string]*entry{}
	for i, v := range s.values {
		list, ok := toAnySlice(v)
		if !ok {
			return nil, &core.MetricError{Metric: s.config, BatchID: s.attributed.Keys()[i],
				Err: fmt.Errorf("expected a list of values, got %T", v)}
		}
		seen := map[string]bool{}
		for _, e := range list {
			k := core.CanonicalJSON(e)
			if seen[k] {
				continue
			}
			seen[k] = true
			if byKey[k] == nil {
				byKey[k] = &entry{value: e}
			}
			byKey[k].batches++
		}
	}

	entries := make([]*entry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return lessValue(entries[i].value, entries[j].value) })

	values := make([]any, len(entries))
	support := make(map[string]any, len(entries))
	n := float64(len(s.values))
	for i, e := range entries {
		values[i] = e.value
		support[fmt.Sprint(e.value)] = float64(e.batches) / n
	}
	details := s.details()
	details["value_support"] = support

	return &core.ParameterNode{
		Value:           values,
		AttributedValue: s.attributed,
		Details:         details,
	}, nil
}

// toAnySlice converts any slice value to []any.
func toAnySlice(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// lessValue orders nil first, then numbers, then everything else by its
// printed form.
func lessValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b != nil
	}
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		return fa < fb
	case aNum != bNum:
		return aNum
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
