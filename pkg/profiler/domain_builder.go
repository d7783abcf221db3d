package profiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// sampleValuesCount is how many values are sampled for semantic inference
// when a column has no declared type.
const sampleValuesCount = 20

// TableDomainBuilder yields exactly one domain for the whole table.
type TableDomainBuilder struct {
	cfg      *core.BuilderConfig
	ruleName string
}

// NewTableDomainBuilder creates a TableDomainBuilder.
func NewTableDomainBuilder(cfg *core.BuilderConfig, ruleName string) (DomainBuilder, error) {
	return &TableDomainBuilder{cfg: cfg, ruleName: ruleName}, nil
}

// ClassName implements DomainBuilder.
func (b *TableDomainBuilder) ClassName() string { return ClassTableDomainBuilder }

// Validate implements DomainBuilder.
func (b *TableDomainBuilder) Validate(map[string]any) error { return nil }

// BuildDomains implements DomainBuilder.
func (b *TableDomainBuilder) BuildDomains(_ context.Context, bc *BuildContext) ([]core.Domain, error) {
	return []core.Domain{core.NewDomain(core.DomainTypeTable, nil, nil, b.ruleName)}, nil
}

// columnFilterOptions are the column selection options shared by every
// column-oriented domain builder.
type columnFilterOptions struct {
	IncludeColumnNames              []string `mapstructure:"include_column_names"`
	ExcludeColumnNames              []string `mapstructure:"exclude_column_names"`
	IncludeColumnNameSuffixes       []string `mapstructure:"include_column_name_suffixes"`
	ExcludeColumnNameSuffixes       []string `mapstructure:"exclude_column_name_suffixes"`
	IncludeSemanticTypes            []string `mapstructure:"include_semantic_types"`
	ExcludeSemanticTypes            []string `mapstructure:"exclude_semantic_types"`
	AllowedSemanticTypesPassthrough []string `mapstructure:"allowed_semantic_types_passthrough"`
}

type columnFilter struct {
	columnFilterOptions
	include     []core.SemanticDomainType
	exclude     []core.SemanticDomainType
	passthrough []core.SemanticDomainType
}

func newColumnFilter(opts columnFilterOptions) (*columnFilter, error) {
	f := &columnFilter{columnFilterOptions: opts}
	var err error
	if f.include, err = parseSemanticTypes("include_semantic_types", opts.IncludeSemanticTypes); err != nil {
		return nil, err
	}
	if f.exclude, err = parseSemanticTypes("exclude_semantic_types", opts.ExcludeSemanticTypes); err != nil {
		return nil, err
	}
	if f.passthrough, err = parseSemanticTypes("allowed_semantic_types_passthrough", opts.AllowedSemanticTypesPassthrough); err != nil {
		return nil, err
	}
	return f, nil
}

// tableColumn is one column of the most recent batch.
type tableColumn struct {
	Name     string
	Semantic core.SemanticDomainType
}

// apply returns the columns that pass every name and semantic-type filter,
// in table order.
func (f *columnFilter) apply(columns []tableColumn) ([]tableColumn, error) {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c.Name] = true
	}
	for _, n := range f.IncludeColumnNames {
		if !known[n] {
			return nil, core.NewConfigError(core.ConfigInvalidOption,
				"include_column_names: column %q is not present in the batch", n)
		}
	}

	var out []tableColumn
	for _, c := range columns {
		if len(f.IncludeColumnNames) > 0 && !contains(f.IncludeColumnNames, c.Name) {
			continue
		}
		if contains(f.ExcludeColumnNames, c.Name) {
			continue
		}
		if len(f.IncludeColumnNameSuffixes) > 0 && !hasAnySuffix(c.Name, f.IncludeColumnNameSuffixes) {
			continue
		}
		if hasAnySuffix(c.Name, f.ExcludeColumnNameSuffixes) {
			continue
		}
		if len(f.include) > 0 && !containsSemantic(f.include, c.Semantic) {
			continue
		}
		if containsSemantic(f.exclude, c.Semantic) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// tableColumns enumerates the columns of the most recent batch and infers
// their semantic types.
func tableColumns(ctx context.Context, bc *BuildContext) ([]tableColumn, error) {
	batchID := bc.LastBatchID()
	if batchID == "" {
		return nil, core.ErrNoBatches
	}
	raw, err := bc.ComputeMetric(ctx, batchID, core.MetricConfiguration{MetricName: core.MetricTableColumns})
	if err != nil {
		return nil, err
	}
	names, err := toStringSlice(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", core.MetricTableColumns, err)
	}
	rawTypes, err := bc.ComputeMetric(ctx, batchID, core.MetricConfiguration{MetricName: core.MetricTableColumnTypes})
	if err != nil {
		return nil, err
	}
	declared := columnTypes(rawTypes)

	out := make([]tableColumn, 0, len(names))
	for _, n := range names {
		var sample []any
		if declared[n] == "" && !isIdentifierName(n) {
			v, err := bc.ComputeMetric(ctx, batchID, core.MetricConfiguration{
				MetricName:        core.MetricColumnSampleValues,
				DomainKwargs:      map[string]any{"column": n},
				MetricValueKwargs: map[string]any{"n": sampleValuesCount},
			})
			if err != nil {
				return nil, err
			}
			sample, _ = v.([]any)
		}
		out = append(out, tableColumn{Name: n, Semantic: InferSemanticType(n, declared[n], sample)})
	}
	return out, nil
}

func isIdentifierName(n string) bool {
	return InferSemanticType(n, "", nil) == core.SemanticTypeIdentifier
}

// columnTypes accepts the table.column_types metric either as a
// column→type mapping or as a list of {name, type} records.
func columnTypes(v any) map[string]string {
	out := map[string]string{}
	switch t := v.(type) {
	case map[string]string:
		return t
	case map[string]any:
		for k, e := range t {
			out[k] = fmt.Sprint(e)
		}
	case []any:
		for _, e := range t {
			rec, ok := e.(map[string]any)
			if !ok {
				continue
			}
			name, _ := rec["name"].(string)
			if name != "" && rec["type"] != nil {
				out[name] = fmt.Sprint(rec["type"])
			}
		}
	case []map[string]any:
		for _, rec := range t {
			name, _ := rec["name"].(string)
			if name != "" && rec["type"] != nil {
				out[name] = fmt.Sprint(rec["type"])
			}
		}
	}
	return out
}

func semanticDetails(columns ...tableColumn) map[string]any {
	types := make(map[string]any, len(columns))
	for _, c := range columns {
		types[c.Name] = string(c.Semantic)
	}
	return map[string]any{core.InferredSemanticTypeKey: types}
}

// columnBuilderBase resolves and decodes filter options for the column
// domain builders.
type columnBuilderBase struct {
	cfg      *core.BuilderConfig
	ruleName string
}

func (b *columnBuilderBase) filterFrom(className string, opts map[string]any) (*columnFilter, error) {
	var fo columnFilterOptions
	if err := decodeOptions(className, opts, &fo); err != nil {
		return nil, err
	}
	return newColumnFilter(fo)
}

func (b *columnBuilderBase) validateOptions(className string, variables map[string]any) (map[string]any, error) {
	resolved, err := resolveVariablesOnly(b.cfg.Options, variables)
	if err != nil {
		return nil, err
	}
	m, _ := resolved.(map[string]any)
	if _, err := b.filterFrom(className, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (b *columnBuilderBase) effectiveColumns(ctx context.Context, bc *BuildContext, className string) ([]tableColumn, map[string]any, error) {
	opts, err := bc.ExprContext(nil, nil).ResolveMap(b.cfg.Options)
	if err != nil {
		return nil, nil, err
	}
	f, err := b.filterFrom(className, opts)
	if err != nil {
		return nil, nil, err
	}
	cols, err := tableColumns(ctx, bc)
	if err != nil {
		return nil, nil, err
	}
	out, err := f.apply(cols)
	return out, opts, err
}

// ColumnDomainBuilder yields one domain per selected column.
type ColumnDomainBuilder struct {
	columnBuilderBase
}

// NewColumnDomainBuilder creates a ColumnDomainBuilder.
func NewColumnDomainBuilder(cfg *core.BuilderConfig, ruleName string) (DomainBuilder, error) {
	return &ColumnDomainBuilder{columnBuilderBase{cfg: cfg, ruleName: ruleName}}, nil
}

// ClassName implements DomainBuilder.
func (b *ColumnDomainBuilder) ClassName() string { return ClassColumnDomainBuilder }

// Validate implements DomainBuilder.
func (b *ColumnDomainBuilder) Validate(variables map[string]any) error {
	_, err := b.validateOptions(b.ClassName(), variables)
	return err
}

// BuildDomains implements DomainBuilder.
func (b *ColumnDomainBuilder) BuildDomains(ctx context.Context, bc *BuildContext) ([]core.Domain, error) {
	cols, _, err := b.effectiveColumns(ctx, bc, b.ClassName())
	if err != nil {
		return nil, err
	}
	return columnDomains(cols, b.ruleName), nil
}

func columnDomains(cols []tableColumn, ruleName string) []core.Domain {
	out := make([]core.Domain, 0, len(cols))
	for _, c := range cols {
		out = append(out, core.NewDomain(core.DomainTypeColumn,
			map[string]any{"column": c.Name}, semanticDetails(c), ruleName))
	}
	return out
}

// categoricalOptions extends the column filters with the cardinality limit.
type categoricalOptions struct {
	CardinalityLimitMode any      `mapstructure:"cardinality_limit_mode"`
	MaxUniqueValues      *int64   `mapstructure:"max_unique_values"`
	MaxProportionUnique  *float64 `mapstructure:"max_proportion_unique"`
}

// CategoricalColumnDomainBuilder yields column domains whose distinctness
// stays within a cardinality limit in every batch. Columns of a
// passthrough semantic type are kept regardless of cardinality.
type CategoricalColumnDomainBuilder struct {
	columnBuilderBase
}

// NewCategoricalColumnDomainBuilder creates a CategoricalColumnDomainBuilder.
func NewCategoricalColumnDomainBuilder(cfg *core.BuilderConfig, ruleName string) (DomainBuilder, error) {
	return &CategoricalColumnDomainBuilder{columnBuilderBase{cfg: cfg, ruleName: ruleName}}, nil
}

// ClassName implements DomainBuilder.
func (b *CategoricalColumnDomainBuilder) ClassName() string {
	return ClassCategoricalColumnDomainBuilder
}

func (b *CategoricalColumnDomainBuilder) limit(opts map[string]any) (CardinalityLimitMode, error) {
	var co categoricalOptions
	if err := decodeOptions(b.ClassName(), opts, &co); err != nil {
		return CardinalityLimitMode{}, err
	}
	return resolveCardinalityLimit(co.CardinalityLimitMode, co.MaxUniqueValues, co.MaxProportionUnique)
}

// Validate implements DomainBuilder.
func (b *CategoricalColumnDomainBuilder) Validate(variables map[string]any) error {
	opts, err := b.validateOptions(b.ClassName(), variables)
	if err != nil {
		return err
	}
	_, err = b.limit(opts)
	return err
}

// BuildDomains implements DomainBuilder.
func (b *CategoricalColumnDomainBuilder) BuildDomains(ctx context.Context, bc *BuildContext) ([]core.Domain, error) {
	cols, opts, err := b.effectiveColumns(ctx, bc, b.ClassName())
	if err != nil {
		return nil, err
	}
	mode, err := b.limit(opts)
	if err != nil {
		return nil, err
	}
	f, err := b.filterFrom(b.ClassName(), opts)
	if err != nil {
		return nil, err
	}

	var passthrough, candidates []tableColumn
	for _, c := range cols {
		if containsSemantic(f.passthrough, c.Semantic) {
			passthrough = append(passthrough, c)
		} else {
			candidates = append(candidates, c)
		}
	}

	var selected []tableColumn
	for _, c := range candidates {
		ok, err := withinLimit(ctx, bc, c.Name, mode)
		if err != nil {
			return nil, err
		}
		if ok {
			selected = append(selected, c)
		}
	}
	selected = append(selected, passthrough...)

	bc.Logger.Debug("categorical columns selected",
		"rule", b.ruleName,
		"cardinality_limit_mode", mode.Name,
		"candidates", len(candidates),
		"selected", len(selected))
	return columnDomains(selected, b.ruleName), nil
}

func withinLimit(ctx context.Context, bc *BuildContext, column string, mode CardinalityLimitMode) (bool, error) {
	mc := core.MetricConfiguration{
		MetricName:   mode.MetricName,
		DomainKwargs: map[string]any{"column": column},
	}
	for _, id := range bc.BatchIDs() {
		v, err := bc.ComputeMetric(ctx, id, mc)
		if err != nil {
			return false, err
		}
		f, ok := toFloat(v)
		if !ok {
			return false, &core.MetricError{Metric: mc, BatchID: id,
				Err: fmt.Errorf("expected a number, got %T", v)}
		}
		if !mode.Allows(f) {
			return false, nil
		}
	}
	return true, nil
}

// ColumnPairDomainBuilder yields one domain over exactly two columns.
type ColumnPairDomainBuilder struct {
	columnBuilderBase
}

// NewColumnPairDomainBuilder creates a ColumnPairDomainBuilder.
func NewColumnPairDomainBuilder(cfg *core.BuilderConfig, ruleName string) (DomainBuilder, error) {
	return &ColumnPairDomainBuilder{columnBuilderBase{cfg: cfg, ruleName: ruleName}}, nil
}

// ClassName implements DomainBuilder.
func (b *ColumnPairDomainBuilder) ClassName() string { return ClassColumnPairDomainBuilder }

// Validate implements DomainBuilder.
func (b *ColumnPairDomainBuilder) Validate(variables map[string]any) error {
	_, err := b.validateOptions(b.ClassName(), variables)
	return err
}

// BuildDomains implements DomainBuilder.
func (b *ColumnPairDomainBuilder) BuildDomains(ctx context.Context, bc *BuildContext) ([]core.Domain, error) {
	cols, _, err := b.effectiveColumns(ctx, bc, b.ClassName())
	if err != nil {
		return nil, err
	}
	if len(cols) != 2 {
		return nil, core.NewConfigError(core.ConfigInvalidOption,
			"%s requires exactly 2 columns, %d selected", b.ClassName(), len(cols))
	}
	return []core.Domain{core.NewDomain(core.DomainTypeColumnPair,
		map[string]any{"column_A": cols[0].Name, "column_B": cols[1].Name},
		semanticDetails(cols...), b.ruleName)}, nil
}

// MultiColumnDomainBuilder yields one domain over every selected column.
type MultiColumnDomainBuilder struct {
	columnBuilderBase
}

// NewMultiColumnDomainBuilder creates a MultiColumnDomainBuilder.
func NewMultiColumnDomainBuilder(cfg *core.BuilderConfig, ruleName string) (DomainBuilder, error) {
	return &MultiColumnDomainBuilder{columnBuilderBase{cfg: cfg, ruleName: ruleName}}, nil
}

// ClassName implements DomainBuilder.
func (b *MultiColumnDomainBuilder) ClassName() string { return ClassMultiColumnDomainBuilder }

// Validate implements DomainBuilder.
func (b *MultiColumnDomainBuilder) Validate(variables map[string]any) error {
	_, err := b.validateOptions(b.ClassName(), variables)
	return err
}

// BuildDomains implements DomainBuilder.
func (b *MultiColumnDomainBuilder) BuildDomains(ctx context.Context, bc *BuildContext) ([]core.Domain, error) {
	cols, _, err := b.effectiveColumns(ctx, bc, b.ClassName())
	if err != nil {
		return nil, err
	}
	if len(cols) < 2 {
		return nil, core.NewConfigError(core.ConfigInvalidOption,
			"%s requires at least 2 columns, %d selected", b.ClassName(), len(cols))
	}
	names := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return []core.Domain{core.NewDomain(core.DomainTypeMulticolumn,
		map[string]any{"column_list": names}, semanticDetails(cols...), b.ruleName)}, nil
}
