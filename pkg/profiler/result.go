package profiler

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// CitationComment is recorded in every citation.
const CitationComment = "Suite created by Rule-Based Profiler with the configuration included."

// citationDateLayout renders citation dates with microsecond precision.
const citationDateLayout = "2006-01-02T15:04:05.000000Z"

// Result dictionary keys.
const (
	KeyBatchDisplayNames         = "batch_id_to_batch_identifier_display_name_map"
	KeyProfilerConfig            = "profiler_config"
	KeyMetricsByDomain           = "metrics_by_domain"
	KeyExpectationConfigurations = "expectation_configurations"
	KeyCitation                  = "citation"
	KeyExecutionTime             = "execution_time"
)

// AllowedKeys is the complete key set of a result dictionary.
var AllowedKeys = []string{
	KeyBatchDisplayNames,
	KeyProfilerConfig,
	KeyMetricsByDomain,
	KeyExpectationConfigurations,
	KeyCitation,
	KeyExecutionTime,
}

// DomainMetrics holds the reported parameters of one domain.
type DomainMetrics struct {
	Domain     core.Domain
	Parameters core.Parameters
}

// Result is the output of a profiler run. It is only constructed for
// successful runs and is read-only afterwards.
type Result struct {
	// ProfilerConfig is the configuration the run executed, overrides
	// applied.
	ProfilerConfig            *core.ProfilerConfig
	MetricsByDomain           []DomainMetrics
	ExpectationConfigurations []*core.ExpectationConfiguration
	Citation                  map[string]any
	ExecutionTime             time.Duration
	// DisplayNames maps batch ids to readable batch identifiers.
	DisplayNames map[string]string

	batchIDs []string
}

// NewCitation records when and with which configuration a suite was made.
func NewCitation(at time.Time, cfg *core.ProfilerConfig) map[string]any {
	return map[string]any{
		"citation_date":   at.UTC().Format(citationDateLayout),
		"comment":         CitationComment,
		"profiler_config": cfg.ToJSONDict(),
	}
}

// BatchIDs returns the batch evaluation order of the run.
func (r *Result) BatchIDs() []string {
	return slices.Clone(r.batchIDs)
}

// ValidateBatchOrder checks that every attributed value lists the batches
// in the run's evaluation order.
func (r *Result) ValidateBatchOrder() error {
	canonical := r.batchIDs
	for _, dm := range r.MetricsByDomain {
		for _, fqn := range sortedParameterNames(dm.Parameters) {
			node := dm.Parameters[fqn]
			if node == nil || node.AttributedValue == nil {
				continue
			}
			keys := node.AttributedValue.Keys()
			if canonical == nil {
				canonical = keys
				continue
			}
			if !slices.Equal(keys, canonical) {
				return fmt.Errorf("parameter %s of domain %s: batch order %v does not match evaluation order %v",
					fqn, dm.Domain.String(), keys, canonical)
			}
		}
	}
	return nil
}

// MetricsFor returns the parameters reported for a domain.
func (r *Result) MetricsFor(domain core.Domain) (core.Parameters, bool) {
	for _, dm := range r.MetricsByDomain {
		if dm.Domain.Equal(domain) {
			return dm.Parameters, true
		}
	}
	return nil, false
}

// GetExpectationSuite builds a suite from the expectations with the run's
// citation attached.
func (r *Result) GetExpectationSuite(name string) *core.ExpectationSuite {
	suite := core.NewExpectationSuite(name)
	for _, e := range r.ExpectationConfigurations {
		suite.AddExpectation(core.ExpectationConfigurationFromJSONDict(e.ToJSONDict()))
	}
	suite.Meta["leapprofile_version"] = Version
	if r.Citation != nil {
		suite.AddCitation(core.NormalizeJSON(r.Citation).(map[string]any))
	}
	return suite
}

// ToDict renders the result with exactly the keys in AllowedKeys.
// Attributed values stay *core.AttributedValue so the dictionary keeps
// batch order.
func (r *Result) ToDict() map[string]any {
	metrics := make([]any, 0, len(r.MetricsByDomain))
	for _, dm := range r.MetricsByDomain {
		params := make(map[string]any, len(dm.Parameters))
		for fqn, node := range dm.Parameters {
			nd := node.ToJSONDict()
			if node.AttributedValue != nil {
				nd[core.FieldAttributedValue] = node.AttributedValue.Clone()
			}
			params[fqn] = nd
		}
		metrics = append(metrics, map[string]any{
			"domain_id": dm.Domain.ID(),
			"domain":    dm.Domain.ToJSONDict(),
			"parameter_values_for_fully_qualified_parameter_names": params,
		})
	}
	exps := make([]any, 0, len(r.ExpectationConfigurations))
	for _, e := range r.ExpectationConfigurations {
		exps = append(exps, e.ToJSONDict())
	}
	names := make(map[string]any, len(r.DisplayNames))
	for id, n := range r.DisplayNames {
		names[id] = n
	}
	var cfg map[string]any
	if r.ProfilerConfig != nil {
		cfg = r.ProfilerConfig.ToJSONDict()
	}
	return map[string]any{
		KeyBatchDisplayNames:         names,
		KeyProfilerConfig:            cfg,
		KeyMetricsByDomain:           metrics,
		KeyExpectationConfigurations: exps,
		KeyCitation:                  core.NormalizeJSON(r.Citation),
		KeyExecutionTime:             r.ExecutionTime.Seconds(),
	}
}

// ToJSONDict renders the result with plain JSON values only.
func (r *Result) ToJSONDict() map[string]any {
	m, _ := core.NormalizeJSON(r.ToDict()).(map[string]any)
	return m
}

// ResultFromDict rebuilds a result from its dictionary form. Unknown keys
// are rejected. Batch order is taken from the first attributed value.
// Attributed values given as *core.AttributedValue (as ToDict writes them)
// keep their order; plain maps carry none and are read in sorted batch-id
// order.
func ResultFromDict(m map[string]any) (*Result, error) {
	for k := range m {
		if !slices.Contains(AllowedKeys, k) {
			return nil, fmt.Errorf("unexpected result key %q", k)
		}
	}
	r := &Result{DisplayNames: map[string]string{}}

	if cfg, ok := m[KeyProfilerConfig].(map[string]any); ok {
		pc, err := core.ProfilerConfigFromJSONDict(cfg)
		if err != nil {
			return nil, err
		}
		r.ProfilerConfig = pc
	}
	if names, ok := m[KeyBatchDisplayNames].(map[string]any); ok {
		for id, n := range names {
			r.DisplayNames[id] = fmt.Sprint(n)
		}
	}
	if c, ok := m[KeyCitation].(map[string]any); ok {
		r.Citation = c
	}
	if secs, ok := toFloat(m[KeyExecutionTime]); ok && !math.IsNaN(secs) && !math.IsInf(secs, 0) {
		r.ExecutionTime = secondsToDuration(secs)
	}
	if exps, ok := m[KeyExpectationConfigurations].([]any); ok {
		for _, e := range exps {
			em, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expectation configuration: expected object, got %T", e)
			}
			r.ExpectationConfigurations = append(r.ExpectationConfigurations, core.ExpectationConfigurationFromJSONDict(em))
		}
	}
	if metrics, ok := m[KeyMetricsByDomain].([]any); ok {
		for _, entry := range metrics {
			dm, err := domainMetricsFromDict(entry)
			if err != nil {
				return nil, err
			}
			r.MetricsByDomain = append(r.MetricsByDomain, dm)
		}
	}
	r.batchIDs = r.inferBatchOrder()
	return r, nil
}

func domainMetricsFromDict(v any) (DomainMetrics, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return DomainMetrics{}, fmt.Errorf("metrics_by_domain entry: expected object, got %T", v)
	}
	dmap, _ := m["domain"].(map[string]any)
	domain, err := core.DomainFromJSONDict(dmap)
	if err != nil {
		return DomainMetrics{}, err
	}
	params := core.Parameters{}
	raw, _ := m["parameter_values_for_fully_qualified_parameter_names"].(map[string]any)
	for fqn, nv := range raw {
		nm, ok := nv.(map[string]any)
		if !ok {
			return DomainMetrics{}, fmt.Errorf("parameter %s: expected object, got %T", fqn, nv)
		}
		node := &core.ParameterNode{Value: nm[core.FieldValue]}
		switch av := nm[core.FieldAttributedValue].(type) {
		case *core.AttributedValue:
			node.AttributedValue = av.Clone()
		case map[string]any:
			node.AttributedValue = core.NewAttributedValue()
			keys := make([]string, 0, len(av))
			for k := range av {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				node.AttributedValue.Set(k, av[k])
			}
		}
		if d, ok := nm[core.FieldDetails].(map[string]any); ok {
			node.Details = d
		}
		params[fqn] = node
	}
	return DomainMetrics{Domain: domain, Parameters: params}, nil
}

func (r *Result) inferBatchOrder() []string {
	for _, dm := range r.MetricsByDomain {
		for _, fqn := range sortedParameterNames(dm.Parameters) {
			if n := dm.Parameters[fqn]; n != nil && n.AttributedValue != nil {
				return n.AttributedValue.Keys()
			}
		}
	}
	ids := make([]string, 0, len(r.DisplayNames))
	for id := range r.DisplayNames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type resultWire struct {
	DisplayNames              map[string]string    `json:"batch_id_to_batch_identifier_display_name_map"`
	ProfilerConfig            *core.ProfilerConfig `json:"profiler_config"`
	MetricsByDomain           []domainMetricsWire  `json:"metrics_by_domain"`
	ExpectationConfigurations []map[string]any     `json:"expectation_configurations"`
	Citation                  any                  `json:"citation"`
	ExecutionTime             float64              `json:"execution_time"`
}

type domainMetricsWire struct {
	DomainID   string                   `json:"domain_id"`
	Domain     map[string]any           `json:"domain"`
	Parameters map[string]parameterWire `json:"parameter_values_for_fully_qualified_parameter_names"`
}

type parameterWire struct {
	Value           any                   `json:"value"`
	AttributedValue *core.AttributedValue `json:"attributed_value,omitempty"`
	Details         map[string]any        `json:"details,omitempty"`
}

// MarshalJSON writes the result dictionary with attributed values in batch
// order.
func (r *Result) MarshalJSON() ([]byte, error) {
	w := resultWire{
		DisplayNames:   r.DisplayNames,
		ProfilerConfig: r.ProfilerConfig,
		Citation:       core.NormalizeJSON(r.Citation),
		ExecutionTime:  r.ExecutionTime.Seconds(),
	}
	for _, dm := range r.MetricsByDomain {
		dw := domainMetricsWire{
			DomainID:   dm.Domain.ID(),
			Domain:     dm.Domain.ToJSONDict(),
			Parameters: make(map[string]parameterWire, len(dm.Parameters)),
		}
		for fqn, node := range dm.Parameters {
			details, _ := core.NormalizeJSON(node.Details).(map[string]any)
			dw.Parameters[fqn] = parameterWire{
				Value:           core.NormalizeJSON(node.Value),
				AttributedValue: node.AttributedValue,
				Details:         details,
			}
		}
		w.MetricsByDomain = append(w.MetricsByDomain, dw)
	}
	for _, e := range r.ExpectationConfigurations {
		w.ExpectationConfigurations = append(w.ExpectationConfigurations, e.ToJSONDict())
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a result written by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	for k := range keys {
		if !slices.Contains(AllowedKeys, k) {
			return fmt.Errorf("unexpected result key %q", k)
		}
	}
	var w resultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Result{
		ProfilerConfig: w.ProfilerConfig,
		DisplayNames:   w.DisplayNames,
		ExecutionTime:  secondsToDuration(w.ExecutionTime),
	}
	if c, ok := w.Citation.(map[string]any); ok {
		out.Citation = c
	}
	for _, e := range w.ExpectationConfigurations {
		out.ExpectationConfigurations = append(out.ExpectationConfigurations, core.ExpectationConfigurationFromJSONDict(e))
	}
	for _, dw := range w.MetricsByDomain {
		domain, err := core.DomainFromJSONDict(dw.Domain)
		if err != nil {
			return err
		}
		params := core.Parameters{}
		for fqn, pw := range dw.Parameters {
			params[fqn] = &core.ParameterNode{Value: pw.Value, AttributedValue: pw.AttributedValue, Details: pw.Details}
		}
		out.MetricsByDomain = append(out.MetricsByDomain, DomainMetrics{Domain: domain, Parameters: params})
	}
	out.batchIDs = out.inferBatchOrder()
	*r = out
	return nil
}

// secondsToDuration inverts time.Duration.Seconds to the nanosecond.
func secondsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}

func sortedParameterNames(p core.Parameters) []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
