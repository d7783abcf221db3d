package assistant

import (
	"slices"
	"sort"

	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/leapstack-labs/leapprofile/pkg/profiler"
)

// Result is the profiler result of an assistant run.
type Result struct {
	*profiler.Result
	AssistantType string
}

// Point is one per-batch metric value.
type Point struct {
	BatchID     string
	DisplayName string
	Value       any
}

// MetricSeries is the per-batch history of one reported parameter of one
// domain, in batch order.
type MetricSeries struct {
	Domain    core.Domain
	Parameter string
	Points    []Point
}

// SeriesOptions select the column domains whose series are returned.
// Table domains are always included. Include and exclude lists cannot both
// be set.
type SeriesOptions struct {
	IncludeColumnNames []string
	ExcludeColumnNames []string
}

func (o SeriesOptions) keep(d core.Domain) bool {
	col := d.ColumnName()
	if col == "" {
		return true
	}
	if len(o.IncludeColumnNames) > 0 {
		return slices.Contains(o.IncludeColumnNames, col)
	}
	return !slices.Contains(o.ExcludeColumnNames, col)
}

// MetricSeries returns one series per reported parameter that carries
// attributed values. Series follow domain order, then parameter name.
func (r *Result) MetricSeries(opts SeriesOptions) ([]MetricSeries, error) {
	if len(opts.IncludeColumnNames) > 0 && len(opts.ExcludeColumnNames) > 0 {
		return nil, core.NewConfigError(core.ConfigMutuallyExclusive,
			"either use `include_column_names` or `exclude_column_names`, not both")
	}
	var out []MetricSeries
	for _, dm := range r.MetricsByDomain {
		if !opts.keep(dm.Domain) {
			continue
		}
		names := make([]string, 0, len(dm.Parameters))
		for fqn := range dm.Parameters {
			names = append(names, fqn)
		}
		sort.Strings(names)
		for _, fqn := range names {
			node := dm.Parameters[fqn]
			if node == nil || node.AttributedValue == nil {
				continue
			}
			s := MetricSeries{Domain: dm.Domain, Parameter: core.ParameterNameFromFQN(fqn)}
			for _, id := range node.AttributedValue.Keys() {
				v, _ := node.AttributedValue.Get(id)
				name := r.DisplayNames[id]
				if name == "" {
					name = id
				}
				s.Points = append(s.Points, Point{BatchID: id, DisplayName: name, Value: v})
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// Label names the series as "<domain>: <parameter>".
func (s MetricSeries) Label() string {
	if col := s.Domain.ColumnName(); col != "" {
		return col + ": " + s.Parameter
	}
	return string(s.Domain.Type) + ": " + s.Parameter
}
