// Package profiler implements the rule-based profiler: domain builders,
// parameter builders, expectation configuration builders and the
// orchestrator that runs an ordered list of rules over a batch list.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Version is recorded in the metadata of generated expectation suites.
const Version = "0.1.0"

// Run states, logged as the run advances.
const (
	stateInit             = "INIT"
	stateResolveVariables = "RESOLVE_VARIABLES"
	stateRunRules         = "RUN_RULES"
	stateAggregate        = "AGGREGATE"
	stateDone             = "DONE"
)

// Profiler runs a ProfilerConfig.
type Profiler struct {
	config   *core.ProfilerConfig
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
	store    core.Store
}

// Config holds profiler dependencies.
type Config struct {
	// Registry resolves builder class names (optional, uses NewRegistry if nil)
	Registry *Registry
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Now is the clock used for citation dates (optional)
	Now func() time.Time
	// Store records run history when set
	Store core.Store
}

// New creates a profiler for a validated configuration. The configuration
// is copied; later changes by the caller do not affect the profiler.
func New(cfg *core.ProfilerConfig, c Config) (*Profiler, error) {
	if cfg == nil {
		return nil, core.NewConfigError(core.ConfigInvalidOption, "profiler configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	reg := c.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return &Profiler{
		config:   cfg.Clone(),
		registry: reg,
		logger:   logger,
		now:      now,
		store:    c.Store,
	}, nil
}

// Config returns a copy of the profiler configuration.
func (p *Profiler) Config() *core.ProfilerConfig {
	return p.config.Clone()
}

// Name returns the profiler name.
func (p *Profiler) Name() string {
	return p.config.Name
}

// RuleOverride adjusts one rule for a single run.
type RuleOverride struct {
	// Variables are deep-merged over the rule variables.
	Variables map[string]any
	// DomainBuilderOptions replace domain builder options key by key.
	DomainBuilderOptions map[string]any
}

// RunOptions are the inputs of one profiler run.
type RunOptions struct {
	// Batches in evaluation order.
	Batches []core.Batch
	// Provider computes metrics on the batches.
	Provider core.MetricProvider
	// Variables are deep-merged over the profiler-level variables.
	Variables map[string]any
	// Rules holds per-rule overrides keyed by rule name.
	Rules map[string]RuleOverride
	// ExcludeDomains removes every built domain that is a superset of one
	// of these, in every rule.
	ExcludeDomains []core.Domain
}

// Run executes every rule in declaration order and aggregates the
// expectations. Configuration errors are reported before any metric is
// computed. Any failure aborts the run and no result is returned.
func (p *Profiler) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID, "profiler", p.config.Name)
	log.Debug("profiler state", "state", stateInit, "batches", len(opts.Batches))

	if len(opts.Batches) == 0 {
		return nil, core.ErrNoBatches
	}
	if opts.Provider == nil {
		return nil, core.NewConfigError(core.ConfigInvalidOption, "a metric provider is required")
	}

	log.Debug("profiler state", "state", stateResolveVariables)
	effective, err := p.applyOverrides(opts)
	if err != nil {
		log.Error("run rejected", "error", err)
		return nil, err
	}
	plans, err := p.plan(effective)
	if err != nil {
		log.Error("run rejected", "error", err)
		return nil, err
	}

	var ledgerID string
	if p.store != nil {
		run, err := p.store.CreateRun(p.config.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		ledgerID = run.ID
	}

	log.Debug("profiler state", "state", stateRunRules, "rules", len(plans))
	outputs := make([]*ruleOutput, 0, len(plans))
	for _, rp := range plans {
		if err := ctx.Err(); err != nil {
			p.fail(log, ledgerID, err)
			return nil, err
		}
		out, err := p.runRule(ctx, runID, rp, opts)
		if err != nil {
			p.fail(log, ledgerID, err)
			return nil, err
		}
		outputs = append(outputs, out)
		if ledgerID != "" {
			_ = p.store.RecordRuleRun(&core.RuleRun{
				RunID:            ledgerID,
				RuleName:         rp.name,
				DomainCount:      len(out.domains),
				ExpectationCount: len(out.expectations),
				ExecutionMS:      out.elapsed.Milliseconds(),
			})
		}
	}

	log.Debug("profiler state", "state", stateAggregate)
	res := &Result{
		ProfilerConfig: effective,
		batchIDs:       core.BatchIDs(opts.Batches),
		DisplayNames:   make(map[string]string, len(opts.Batches)),
		Citation:       NewCitation(p.now(), effective),
	}
	for _, b := range opts.Batches {
		res.DisplayNames[b.ID] = b.DisplayName()
	}
	for _, out := range outputs {
		res.MetricsByDomain = append(res.MetricsByDomain, out.domains...)
		res.ExpectationConfigurations = append(res.ExpectationConfigurations, out.expectations...)
	}
	if err := res.ValidateBatchOrder(); err != nil {
		p.fail(log, ledgerID, err)
		return nil, err
	}
	res.ExecutionTime = time.Since(started)

	if ledgerID != "" {
		_ = p.store.CompleteRun(ledgerID, core.RunStatusCompleted, core.RunSummary{
			BatchCount:       len(opts.Batches),
			ExpectationCount: len(res.ExpectationConfigurations),
		}, "")
	}
	log.Debug("profiler state", "state", stateDone)
	log.Info("profiler run completed",
		"domains", len(res.MetricsByDomain),
		"expectations", len(res.ExpectationConfigurations),
		"duration", res.ExecutionTime)
	return res, nil
}

func (p *Profiler) fail(log *slog.Logger, ledgerID string, err error) {
	log.Error("profiler run failed", "error", err)
	if ledgerID != "" {
		_ = p.store.CompleteRun(ledgerID, core.RunStatusFailed, core.RunSummary{}, err.Error())
	}
}

// applyOverrides returns the configuration the run executes: profiler and
// rule variables merged with the caller's overrides.
func (p *Profiler) applyOverrides(opts RunOptions) (*core.ProfilerConfig, error) {
	cfg := p.config.Clone()
	cfg.Variables = core.MergeVariables(cfg.Variables, opts.Variables)

	for name := range opts.Rules {
		if _, ok := cfg.Rule(name); !ok {
			return nil, core.NewConfigError(core.ConfigInvalidOption,
				"override for unknown rule %q (rules: %v)", name, cfg.RuleNames())
		}
	}
	for _, rule := range cfg.Rules {
		o, ok := opts.Rules[rule.Name]
		if !ok {
			continue
		}
		rule.Variables = core.MergeVariables(rule.Variables, o.Variables)
		if len(o.DomainBuilderOptions) > 0 && rule.DomainBuilder != nil {
			if rule.DomainBuilder.Options == nil {
				rule.DomainBuilder.Options = map[string]any{}
			}
			for k, v := range o.DomainBuilderOptions {
				rule.DomainBuilder.Options[k] = copyValue(v)
			}
		}
	}
	return cfg, nil
}

// plan instantiates and orders every rule, collecting all configuration
// errors.
func (p *Profiler) plan(cfg *core.ProfilerConfig) ([]*rulePlan, error) {
	var plans []*rulePlan
	var errs []error
	for _, rule := range cfg.Rules {
		vars := core.MergeVariables(cfg.Variables, rule.Variables)
		rp, err := planRule(p.registry, rule, vars)
		if err != nil {
			errs = append(errs, &core.RuleError{Rule: rule.Name, Err: err})
			continue
		}
		plans = append(plans, rp)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return plans, nil
}

// ruleOutput is what one rule contributes to the result.
type ruleOutput struct {
	domains      []DomainMetrics
	expectations []*core.ExpectationConfiguration
	elapsed      time.Duration
}

func (p *Profiler) runRule(ctx context.Context, runID string, rp *rulePlan, opts RunOptions) (*ruleOutput, error) {
	started := time.Now()
	log := p.logger.With("run_id", runID, "rule", rp.name)
	bc := &BuildContext{
		RunID:     runID,
		RuleName:  rp.name,
		Batches:   opts.Batches,
		Provider:  opts.Provider,
		Variables: rp.variables,
		Logger:    log,
	}

	domains, err := rp.domain.BuildDomains(ctx, bc)
	if err != nil {
		return nil, &core.RuleError{Rule: rp.name, Builder: rp.domain.ClassName(), Err: err}
	}
	if n := len(domains); len(opts.ExcludeDomains) > 0 {
		domains = core.ExcludeDomains(domains, opts.ExcludeDomains)
		log.Debug("domains excluded", "count", n-len(domains))
	}
	log.Debug("domains built", "count", len(domains))

	out := &ruleOutput{}
	for _, domain := range domains {
		params := core.Parameters{}
		for _, pb := range rp.parameters {
			node, err := pb.Build(ctx, bc, domain, params)
			if err != nil {
				return nil, &core.RuleError{
					Rule:    rp.name,
					Domain:  domain.String(),
					Builder: describe(pb.ClassName(), pb.Name()),
					Err:     err,
				}
			}
			params.Set(pb.Name(), node)
		}

		reported := core.Parameters{}
		for _, pb := range rp.parameters {
			if rp.reported[pb.Name()] {
				node, _ := params.Get(pb.Name())
				reported.Set(pb.Name(), node)
			}
		}
		out.domains = append(out.domains, DomainMetrics{Domain: domain, Parameters: reported})

		for _, eb := range rp.expectations {
			ec, err := eb.Build(ctx, bc, domain, params)
			if err != nil {
				return nil, &core.RuleError{
					Rule:    rp.name,
					Domain:  domain.String(),
					Builder: describe(eb.ClassName(), eb.ExpectationType()),
					Err:     err,
				}
			}
			if ec != nil {
				out.expectations = append(out.expectations, ec)
			}
		}
		log.Debug("domain profiled", "domain", domain.String(), "parameters", len(params))
	}
	out.elapsed = time.Since(started)
	return out, nil
}
