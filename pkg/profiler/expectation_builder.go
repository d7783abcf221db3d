package profiler

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapprofile/internal/expr"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Options of DefaultExpectationConfigurationBuilder that are not
// expectation kwargs.
const (
	optExpectationType = "expectation_type"
	optCondition       = "condition"
	optMeta            = "meta"
	optModuleName      = "module_name"
	metaProfilerDetail = "profiler_details"
)

// DefaultExpectationConfigurationBuilder emits one expectation per domain.
// Every option other than expectation_type, condition and meta becomes an
// expectation kwarg after substitution.
type DefaultExpectationConfigurationBuilder struct {
	cfg             *core.BuilderConfig
	expectationType string
	condition       *expr.Condition
}

// NewDefaultExpectationConfigurationBuilder creates a
// DefaultExpectationConfigurationBuilder.
func NewDefaultExpectationConfigurationBuilder(cfg *core.BuilderConfig) (ExpectationConfigurationBuilder, error) {
	b := &DefaultExpectationConfigurationBuilder{cfg: cfg}
	b.expectationType, _ = cfg.Options[optExpectationType].(string)
	if b.expectationType == "" {
		return nil, core.NewConfigError(core.ConfigInvalidOption,
			"%s: expectation_type is required", ClassDefaultExpectationConfigurationBuilder)
	}
	if raw, ok := cfg.Options[optCondition]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, core.NewConfigError(core.ConfigInvalidOption,
				"%s: condition must be a string, got %T", b.expectationType, raw)
		}
		cond, err := expr.ParseCondition(s)
		if err != nil {
			return nil, &core.ConfigError{
				Kind:    core.ConfigInvalidOption,
				Message: fmt.Sprintf("%s: condition", b.expectationType),
				Err:     err,
			}
		}
		b.condition = cond
	}
	return b, nil
}

// ClassName implements ExpectationConfigurationBuilder.
func (b *DefaultExpectationConfigurationBuilder) ClassName() string {
	return ClassDefaultExpectationConfigurationBuilder
}

// ExpectationType implements ExpectationConfigurationBuilder.
func (b *DefaultExpectationConfigurationBuilder) ExpectationType() string {
	return b.expectationType
}

// Config implements ExpectationConfigurationBuilder.
func (b *DefaultExpectationConfigurationBuilder) Config() *core.BuilderConfig { return b.cfg }

// Dependencies implements ExpectationConfigurationBuilder.
func (b *DefaultExpectationConfigurationBuilder) Dependencies() []string {
	var out []string
	seen := map[string]bool{}
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, c := range b.cfg.ValidationParameterBuilderConfigs {
		add(c.Name)
	}
	for _, n := range parameterDependencies(b.kwargsAndMeta()) {
		add(n)
	}
	if cond, ok := b.cfg.Options[optCondition].(string); ok {
		refs, _ := expr.References(cond)
		for _, r := range refs {
			add(r.ParameterName())
		}
	}
	return out
}

func (b *DefaultExpectationConfigurationBuilder) kwargsAndMeta() map[string]any {
	out := make(map[string]any, len(b.cfg.Options))
	for k, v := range b.cfg.Options {
		switch k {
		case optExpectationType, optCondition, optModuleName:
			continue
		}
		out[k] = v
	}
	return out
}

// Validate implements ExpectationConfigurationBuilder.
func (b *DefaultExpectationConfigurationBuilder) Validate(variables map[string]any) error {
	_, err := resolveVariablesOnly(b.kwargsAndMeta(), variables)
	if err != nil {
		return fmt.Errorf("%s: %w", b.expectationType, err)
	}
	if meta, ok := b.cfg.Options[optMeta]; ok && meta != nil {
		if _, isMap := meta.(map[string]any); !isMap && !isRef(meta) {
			return core.NewConfigError(core.ConfigInvalidOption,
				"%s: meta must be a mapping, got %T", b.expectationType, meta)
		}
	}
	return nil
}

func isRef(v any) bool {
	s, ok := v.(string)
	return ok && expr.IsReference(s)
}

// Build implements ExpectationConfigurationBuilder. It returns nil when the
// condition is false for the domain.
func (b *DefaultExpectationConfigurationBuilder) Build(_ context.Context, bc *BuildContext, domain core.Domain, params core.Parameters) (*core.ExpectationConfiguration, error) {
	ectx := bc.ExprContext(&domain, params)
	if b.condition != nil {
		ok, err := b.condition.Eval(ectx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.expectationType, err)
		}
		if !ok {
			bc.Logger.Debug("expectation condition not met",
				"rule", bc.RuleName,
				"expectation_type", b.expectationType,
				"domain", domain.String())
			return nil, nil
		}
	}

	resolved, err := ectx.ResolveMap(b.kwargsAndMeta())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.expectationType, err)
	}

	meta := map[string]any{}
	if m, ok := resolved[optMeta]; ok {
		delete(resolved, optMeta)
		mm, isMap := m.(map[string]any)
		if m != nil && !isMap {
			return nil, core.NewConfigError(core.ConfigInvalidOption,
				"%s: meta must resolve to a mapping, got %T", b.expectationType, m)
		}
		for k, v := range mm {
			meta[k] = copyValue(v)
		}
	}
	if _, ok := meta[metaProfilerDetail]; !ok && len(b.cfg.ValidationParameterBuilderConfigs) == 1 {
		if node, ok := params.Get(b.cfg.ValidationParameterBuilderConfigs[0].Name); ok && node.Details != nil {
			meta[metaProfilerDetail] = copyValue(node.Details)
		}
	}

	kwargs := make(map[string]any, len(resolved))
	for k, v := range resolved {
		kwargs[k] = copyValue(v)
	}
	return &core.ExpectationConfiguration{
		ExpectationType: b.expectationType,
		Kwargs:          kwargs,
		Meta:            meta,
	}, nil
}
