package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapprofile/internal/expr"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// BuildContext carries the run-wide inputs every builder sees.
type BuildContext struct {
	RunID     string
	RuleName  string
	Batches   []core.Batch
	Provider  core.MetricProvider
	Variables map[string]any
	Logger    *slog.Logger
}

// BatchIDs returns the batch ids in evaluation order.
func (bc *BuildContext) BatchIDs() []string {
	return core.BatchIDs(bc.Batches)
}

// LastBatchID returns the id of the most recent batch.
func (bc *BuildContext) LastBatchID() string {
	if len(bc.Batches) == 0 {
		return ""
	}
	return bc.Batches[len(bc.Batches)-1].ID
}

// ExprContext returns the substitution context for a domain.
func (bc *BuildContext) ExprContext(domain *core.Domain, params core.Parameters) *expr.Context {
	return &expr.Context{Domain: domain, Parameters: params, Variables: bc.Variables}
}

// ComputeMetric computes one metric on one batch, wrapping failures.
func (bc *BuildContext) ComputeMetric(ctx context.Context, batchID string, mc core.MetricConfiguration) (any, error) {
	v, err := bc.Provider.ComputeMetric(ctx, batchID, mc)
	if err != nil {
		return nil, &core.MetricError{Metric: mc, BatchID: batchID, Err: err}
	}
	return v, nil
}

// DomainBuilder enumerates the domains a rule analyzes.
type DomainBuilder interface {
	ClassName() string
	// Validate checks options that do not depend on run data.
	Validate(variables map[string]any) error
	BuildDomains(ctx context.Context, bc *BuildContext) ([]core.Domain, error)
}

// ParameterBuilder computes one named parameter for a domain.
type ParameterBuilder interface {
	Name() string
	ClassName() string
	Config() *core.BuilderConfig
	// Dependencies names the parameter builders whose output must exist
	// before Build runs.
	Dependencies() []string
	Validate(variables map[string]any) error
	Build(ctx context.Context, bc *BuildContext, domain core.Domain, params core.Parameters) (*core.ParameterNode, error)
}

// ExpectationConfigurationBuilder turns parameters into an expectation.
// Build returns nil when its condition does not hold for the domain.
type ExpectationConfigurationBuilder interface {
	ClassName() string
	ExpectationType() string
	Config() *core.BuilderConfig
	Dependencies() []string
	Validate(variables map[string]any) error
	Build(ctx context.Context, bc *BuildContext, domain core.Domain, params core.Parameters) (*core.ExpectationConfiguration, error)
}

// Factories construct builders from their configuration.
type (
	DomainBuilderFactory      func(cfg *core.BuilderConfig, ruleName string) (DomainBuilder, error)
	ParameterBuilderFactory   func(cfg *core.BuilderConfig) (ParameterBuilder, error)
	ExpectationBuilderFactory func(cfg *core.BuilderConfig) (ExpectationConfigurationBuilder, error)
)

// Registry maps class names to builder factories. It is constructed
// explicitly and owned by whoever creates the Profiler.
type Registry struct {
	domain      map[string]DomainBuilderFactory
	parameter   map[string]ParameterBuilderFactory
	expectation map[string]ExpectationBuilderFactory
}

// Built-in builder class names.
const (
	ClassTableDomainBuilder                     = "TableDomainBuilder"
	ClassColumnDomainBuilder                    = "ColumnDomainBuilder"
	ClassCategoricalColumnDomainBuilder         = "CategoricalColumnDomainBuilder"
	ClassColumnPairDomainBuilder                = "ColumnPairDomainBuilder"
	ClassMultiColumnDomainBuilder               = "MultiColumnDomainBuilder"
	ClassMetricMultiBatchParameterBuilder       = "MetricMultiBatchParameterBuilder"
	ClassNumericMetricRangeParameterBuilder     = "NumericMetricRangeMultiBatchParameterBuilder"
	ClassValueSetMultiBatchParameterBuilder     = "ValueSetMultiBatchParameterBuilder"
	ClassDefaultExpectationConfigurationBuilder = "DefaultExpectationConfigurationBuilder"
)

// NewRegistry returns a registry holding the built-in builders.
func NewRegistry() *Registry {
	r := &Registry{
		domain:      map[string]DomainBuilderFactory{},
		parameter:   map[string]ParameterBuilderFactory{},
		expectation: map[string]ExpectationBuilderFactory{},
	}
	r.RegisterDomainBuilder(ClassTableDomainBuilder, NewTableDomainBuilder)
	r.RegisterDomainBuilder(ClassColumnDomainBuilder, NewColumnDomainBuilder)
	r.RegisterDomainBuilder(ClassCategoricalColumnDomainBuilder, NewCategoricalColumnDomainBuilder)
	r.RegisterDomainBuilder(ClassColumnPairDomainBuilder, NewColumnPairDomainBuilder)
	r.RegisterDomainBuilder(ClassMultiColumnDomainBuilder, NewMultiColumnDomainBuilder)
	r.RegisterParameterBuilder(ClassMetricMultiBatchParameterBuilder, NewMetricMultiBatchParameterBuilder)
	r.RegisterParameterBuilder(ClassNumericMetricRangeParameterBuilder, NewNumericMetricRangeParameterBuilder)
	r.RegisterParameterBuilder(ClassValueSetMultiBatchParameterBuilder, NewValueSetMultiBatchParameterBuilder)
	r.RegisterExpectationBuilder(ClassDefaultExpectationConfigurationBuilder, NewDefaultExpectationConfigurationBuilder)
	return r
}

// RegisterDomainBuilder adds or replaces a domain builder factory.
func (r *Registry) RegisterDomainBuilder(className string, f DomainBuilderFactory) {
	r.domain[className] = f
}

// RegisterParameterBuilder adds or replaces a parameter builder factory.
func (r *Registry) RegisterParameterBuilder(className string, f ParameterBuilderFactory) {
	r.parameter[className] = f
}

// RegisterExpectationBuilder adds or replaces an expectation builder factory.
func (r *Registry) RegisterExpectationBuilder(className string, f ExpectationBuilderFactory) {
	r.expectation[className] = f
}

// NewDomainBuilder instantiates a domain builder.
func (r *Registry) NewDomainBuilder(cfg *core.BuilderConfig, ruleName string) (DomainBuilder, error) {
	f, ok := r.domain[cfg.ClassName]
	if !ok {
		return nil, unknownClass("domain builder", cfg.ClassName, r.domain)
	}
	return f(cfg, ruleName)
}

// NewParameterBuilder instantiates a parameter builder.
func (r *Registry) NewParameterBuilder(cfg *core.BuilderConfig) (ParameterBuilder, error) {
	f, ok := r.parameter[cfg.ClassName]
	if !ok {
		return nil, unknownClass("parameter builder", cfg.ClassName, r.parameter)
	}
	if cfg.Name == "" {
		return nil, core.NewConfigError(core.ConfigInvalidOption, "%s has no name", cfg.ClassName)
	}
	return f(cfg)
}

// NewExpectationBuilder instantiates an expectation configuration builder.
func (r *Registry) NewExpectationBuilder(cfg *core.BuilderConfig) (ExpectationConfigurationBuilder, error) {
	f, ok := r.expectation[cfg.ClassName]
	if !ok {
		return nil, unknownClass("expectation configuration builder", cfg.ClassName, r.expectation)
	}
	return f(cfg)
}

func unknownClass[F any](kind, className string, known map[string]F) error {
	names := make([]string, 0, len(known))
	for k := range known {
		names = append(names, k)
	}
	sort.Strings(names)
	return core.NewConfigError(core.ConfigUnknownClass, "unknown %s class %q (available: %v)", kind, className, names)
}

// describe renders a builder for error messages.
func describe(className, name string) string {
	if name == "" {
		return className
	}
	return fmt.Sprintf("%s(%s)", className, name)
}
