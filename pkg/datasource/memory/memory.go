// Package memory is an in-process datasource: batches are small tables
// held in memory and metrics are computed by scanning their rows.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Column is a named, optionally typed column.
type Column struct {
	Name string
	Type string
}

// Table is the data of one batch. Rows hold one value per column.
type Table struct {
	Columns []Column
	Rows    [][]any
}

func (t *Table) columnIndex(name string) (int, error) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q not found", name)
}

func (t *Table) values(col int) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		if col < len(r) {
			out[i] = r[col]
		}
	}
	return out
}

// Datasource holds batches per data asset in insertion order.
type Datasource struct {
	name string

	mu      sync.RWMutex
	assets  map[string][]core.Batch
	batches map[string]*Table
}

// New creates an empty datasource.
func New(name string) *Datasource {
	return &Datasource{
		name:    name,
		assets:  map[string][]core.Batch{},
		batches: map[string]*Table{},
	}
}

// Name returns the datasource name.
func (d *Datasource) Name() string { return d.name }

// AddBatch registers a table as the next batch of an asset.
func (d *Datasource) AddBatch(asset string, identifiers map[string]string, t *Table) core.Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := core.NewBatch(core.BatchDefinition{
		DatasourceName:    d.name,
		DataConnectorName: "memory",
		DataAssetName:     asset,
		Identifiers:       identifiers,
	}, t)
	d.assets[asset] = append(d.assets[asset], b)
	d.batches[b.ID] = t
	return b
}

// ResolveBatches implements core.BatchResolver.
func (d *Datasource) ResolveBatches(_ context.Context, req core.BatchRequest) ([]core.Batch, error) {
	if req.DatasourceName != "" && req.DatasourceName != d.name {
		return nil, fmt.Errorf("unknown datasource %q", req.DatasourceName)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	all, ok := d.assets[req.DataAssetName]
	if !ok {
		return nil, fmt.Errorf("unknown data asset %q", req.DataAssetName)
	}
	var out []core.Batch
	for _, b := range all {
		if matches(b.Definition.Identifiers, req.BatchFilter) {
			out = append(out, b)
		}
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	if len(out) == 0 {
		return nil, core.ErrNoBatches
	}
	return out, nil
}

func matches(ids map[string]string, filter map[string]any) bool {
	for k, v := range filter {
		if ids[k] != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// ComputeMetric implements core.MetricProvider.
func (d *Datasource) ComputeMetric(ctx context.Context, batchID string, mc core.MetricConfiguration) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	t, ok := d.batches[batchID]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown batch %q", batchID)
	}
	return Compute(t, mc)
}

// Compute evaluates a metric on a table.
func Compute(t *Table, mc core.MetricConfiguration) (any, error) {
	switch core.CanonicalMetricName(mc.MetricName) {
	case core.MetricTableRowCount:
		return int64(len(t.Rows)), nil
	case core.MetricTableColumns:
		out := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			out[i] = c.Name
		}
		return out, nil
	case core.MetricTableColumnTypes:
		out := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			out[i] = map[string]any{"name": c.Name, "type": c.Type}
		}
		return out, nil
	}

	column, _ := mc.DomainKwargs["column"].(string)
	if column == "" {
		return nil, fmt.Errorf("metric %s requires a column domain", mc.MetricName)
	}
	idx, err := t.columnIndex(column)
	if err != nil {
		return nil, err
	}
	values := t.values(idx)
	nonNull := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil {
			nonNull = append(nonNull, v)
		}
	}

	switch core.CanonicalMetricName(mc.MetricName) {
	case core.MetricColumnNonNullCount:
		return int64(len(nonNull)), nil
	case core.MetricColumnNullCount:
		return int64(len(values) - len(nonNull)), nil
	case core.MetricColumnDistinctValues:
		return distinct(nonNull), nil
	case core.MetricColumnDistinctValuesCount:
		return int64(len(distinct(nonNull))), nil
	case core.MetricColumnUniqueProportion:
		if len(nonNull) == 0 {
			return 0.0, nil
		}
		return float64(len(distinct(nonNull))) / float64(len(nonNull)), nil
	case core.MetricColumnMin, core.MetricColumnMax:
		return extreme(nonNull, mc.MetricName == core.MetricColumnMax)
	case core.MetricColumnMean:
		return mean(nonNull)
	case core.MetricColumnSampleValues:
		n := len(nonNull)
		if raw, ok := mc.MetricValueKwargs["n"]; ok {
			if k, ok := toFloat(raw); ok && int(k) < n {
				n = int(k)
			}
		}
		return append([]any(nil), nonNull[:n]...), nil
	}
	return nil, fmt.Errorf("unsupported metric %q", mc.MetricName)
}

// distinct returns the distinct values, numbers ascending before strings.
func distinct(values []any) []any {
	seen := map[string]bool{}
	var out []any
	for _, v := range values {
		k := core.CanonicalJSON(core.NormalizeJSON(v))
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func less(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		return fa < fb
	case aNum != bNum:
		return aNum
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)) < 0
}

func extreme(values []any, wantMax bool) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	best := values[0]
	for _, v := range values[1:] {
		if (wantMax && less(best, v)) || (!wantMax && less(v, best)) {
			best = v
		}
	}
	return best, nil
}

func mean(values []any) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	var sum float64
	for _, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("mean of non-numeric value %v", v)
		}
		sum += f
	}
	return sum / float64(len(values)), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
