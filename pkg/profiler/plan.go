package profiler

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapprofile/internal/dag"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// rulePlan is a rule whose builders are instantiated, validated and
// ordered. Planning happens for every rule before any rule runs.
type rulePlan struct {
	name      string
	variables map[string]any
	domain    DomainBuilder
	// parameters holds every parameter builder, nested ones included, in
	// dependency order.
	parameters []ParameterBuilder
	// reported names the rule-level parameter builders whose values are
	// reported in metrics_by_domain.
	reported     map[string]bool
	expectations []ExpectationConfigurationBuilder
}

// planner collects the parameter builder configs of one rule, merging
// repeated definitions of the same builder.
type planner struct {
	rule    string
	configs map[string]*core.BuilderConfig
	order   []string
}

func (p *planner) add(cfg *core.BuilderConfig) error {
	if cfg == nil {
		return nil
	}
	for _, nested := range cfg.EvaluationParameterBuilderConfigs {
		if err := p.add(nested); err != nil {
			return err
		}
	}
	if cfg.Name == "" {
		return core.NewConfigError(core.ConfigInvalidOption,
			"rule %q: %s has no name", p.rule, cfg.ClassName)
	}
	if existing, ok := p.configs[cfg.Name]; ok {
		if !sameBuilder(existing, cfg) {
			return core.NewConfigError(core.ConfigInvalidOption,
				"rule %q: parameter builder %q is defined twice with different settings", p.rule, cfg.Name)
		}
		return nil
	}
	p.configs[cfg.Name] = cfg
	p.order = append(p.order, cfg.Name)
	return nil
}

// sameBuilder compares two configs ignoring unset fields.
func sameBuilder(a, b *core.BuilderConfig) bool {
	return core.CanonicalJSON(core.DeepFilterProperties(a.ToJSONDict())) ==
		core.CanonicalJSON(core.DeepFilterProperties(b.ToJSONDict()))
}

func planRule(reg *Registry, rule *core.RuleConfig, variables map[string]any) (*rulePlan, error) {
	if rule.DomainBuilder == nil {
		return nil, core.NewConfigError(core.ConfigInvalidOption, "rule %q has no domain_builder", rule.Name)
	}
	domain, err := reg.NewDomainBuilder(rule.DomainBuilder, rule.Name)
	if err != nil {
		return nil, err
	}
	if err := domain.Validate(variables); err != nil {
		return nil, err
	}

	p := &planner{rule: rule.Name, configs: map[string]*core.BuilderConfig{}}
	reported := map[string]bool{}
	for _, cfg := range rule.ParameterBuilders {
		if err := p.add(cfg); err != nil {
			return nil, err
		}
		reported[cfg.Name] = true
	}

	var expectations []ExpectationConfigurationBuilder
	for _, cfg := range rule.ExpectationConfigurationBuilders {
		for _, v := range cfg.ValidationParameterBuilderConfigs {
			if err := p.add(v); err != nil {
				return nil, err
			}
		}
		eb, err := reg.NewExpectationBuilder(cfg)
		if err != nil {
			return nil, err
		}
		if err := eb.Validate(variables); err != nil {
			return nil, err
		}
		expectations = append(expectations, eb)
	}

	g := dag.NewGraph()
	builders := make(map[string]ParameterBuilder, len(p.order))
	for _, name := range p.order {
		pb, err := reg.NewParameterBuilder(p.configs[name])
		if err != nil {
			return nil, err
		}
		if err := pb.Validate(variables); err != nil {
			return nil, err
		}
		builders[name] = pb
		g.AddNode(name, pb)
	}
	for _, name := range p.order {
		for _, dep := range builders[name].Dependencies() {
			if _, ok := builders[dep]; !ok {
				return nil, core.NewConfigError(core.ConfigUnresolvedReference,
					"rule %q: parameter builder %q depends on undefined parameter %q", rule.Name, name, dep)
			}
			if err := g.AddEdge(dep, name); err != nil {
				return nil, cycleError(rule.Name, err)
			}
		}
	}
	for _, eb := range expectations {
		for _, dep := range eb.Dependencies() {
			if _, ok := builders[dep]; !ok {
				return nil, core.NewConfigError(core.ConfigUnresolvedReference,
					"rule %q: %s references undefined parameter %q", rule.Name, eb.ExpectationType(), dep)
			}
		}
	}

	nodes, err := g.TopologicalSort()
	if err != nil {
		return nil, cycleError(rule.Name, err)
	}
	ordered := make([]ParameterBuilder, 0, len(nodes))
	for _, n := range nodes {
		ordered = append(ordered, n.Data.(ParameterBuilder))
	}

	return &rulePlan{
		name:         rule.Name,
		variables:    variables,
		domain:       domain,
		parameters:   ordered,
		reported:     reported,
		expectations: expectations,
	}, nil
}

func cycleError(rule string, err error) error {
	var ce *dag.CycleError
	if errors.As(err, &ce) {
		return &core.ConfigError{
			Kind:    core.ConfigDependencyCycle,
			Message: fmt.Sprintf("rule %q: parameter builders depend on each other", rule),
			Err:     ce,
		}
	}
	return err
}
