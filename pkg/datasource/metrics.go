package datasource

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// defaultSampleSize bounds column.sample_values when no "n" is given.
const defaultSampleSize = 20

// ComputeMetric implements core.MetricProvider. The batch must have been
// returned by ResolveBatches on this datasource.
func (d *SQLDatasource) ComputeMetric(ctx context.Context, batchID string, mc core.MetricConfiguration) (any, error) {
	d.mu.RLock()
	p, ok := d.batches[batchID]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown batch %q", batchID)
	}

	name := core.CanonicalMetricName(mc.MetricName)
	d.logger.Debug("computing metric", "metric", name, "batch_id", batchID, "table", p.table)

	switch name {
	case core.MetricTableRowCount:
		return d.queryScalar(ctx, p, "COUNT(*)")
	case core.MetricTableColumns, core.MetricTableColumnTypes:
		md, err := d.runner.GetTableMetadata(ctx, p.table)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(md.Columns))
		for i, c := range md.Columns {
			if name == core.MetricTableColumns {
				out[i] = c.Name
			} else {
				out[i] = map[string]any{"name": c.Name, "type": c.Type}
			}
		}
		return out, nil
	}

	column, _ := mc.DomainKwargs["column"].(string)
	if column == "" {
		return nil, fmt.Errorf("metric %s requires a column domain", mc.MetricName)
	}
	col := d.runner.Dialect().QuoteIdentifier(column)

	switch name {
	case core.MetricColumnNonNullCount:
		return d.queryScalar(ctx, p, "COUNT("+col+")")
	case core.MetricColumnNullCount:
		return d.queryScalar(ctx, p, "COUNT(*) - COUNT("+col+")")
	case core.MetricColumnDistinctValuesCount:
		return d.queryScalar(ctx, p, "COUNT(DISTINCT "+col+")")
	case core.MetricColumnUniqueProportion:
		row, err := d.queryRow(ctx, p, "COUNT(DISTINCT "+col+"), COUNT("+col+")")
		if err != nil {
			return nil, err
		}
		distinct, _ := toFloat(row[0])
		nonNull, _ := toFloat(row[1])
		if nonNull == 0 {
			return 0.0, nil
		}
		return distinct / nonNull, nil
	case core.MetricColumnMin:
		return d.queryScalar(ctx, p, "MIN("+col+")")
	case core.MetricColumnMax:
		return d.queryScalar(ctx, p, "MAX("+col+")")
	case core.MetricColumnMean:
		v, err := d.queryScalar(ctx, p, "AVG("+col+")")
		if err != nil || v == nil {
			return v, err
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("mean of %s is not numeric: %v", column, v)
		}
		return f, nil
	case core.MetricColumnDistinctValues:
		return d.selectColumn(ctx, p, "DISTINCT "+col, col, "ORDER BY "+col)
	case core.MetricColumnSampleValues:
		n := defaultSampleSize
		if raw, ok := mc.MetricValueKwargs["n"]; ok {
			if k, ok := toFloat(raw); ok && k >= 0 {
				n = int(k)
			}
		}
		return d.selectColumn(ctx, p, col, col, fmt.Sprintf("LIMIT %d", n))
	}
	return nil, fmt.Errorf("unsupported metric %q", mc.MetricName)
}

// from renders the FROM clause of a partition and its bind arguments.
func (d *SQLDatasource) from(p partition, extra string) (string, []any) {
	dial := d.runner.Dialect()
	clause := "FROM " + dial.QuoteIdentifier(p.table)
	var conds []string
	var args []any
	if p.column != "" {
		conds = append(conds, dial.QuoteIdentifier(p.column)+" = "+dial.FormatPlaceholder(1))
		args = append(args, p.value)
	}
	if extra != "" {
		conds = append(conds, extra)
	}
	for i, c := range conds {
		if i == 0 {
			clause += " WHERE " + c
		} else {
			clause += " AND " + c
		}
	}
	return clause, args
}

func (d *SQLDatasource) queryScalar(ctx context.Context, p partition, expr string) (any, error) {
	from, args := d.from(p, "")
	values, err := d.queryColumn(ctx, "SELECT "+expr+" "+from, args...)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

func (d *SQLDatasource) queryRow(ctx context.Context, p partition, exprs string) ([]any, error) {
	from, args := d.from(p, "")
	rows, err := d.runner.Query(ctx, "SELECT "+exprs+" "+from, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(cols))
	if !rows.Next() {
		return out, rows.Err()
	}
	ptrs := make([]any, len(cols))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = normalize(out[i])
	}
	return out, rows.Err()
}

func (d *SQLDatasource) selectColumn(ctx context.Context, p partition, expr, col, suffix string) ([]any, error) {
	from, args := d.from(p, col+" IS NOT NULL")
	values, err := d.queryColumn(ctx, "SELECT "+expr+" "+from+" "+suffix, args...)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []any{}
	}
	return values, nil
}

// queryColumn returns the first column of every row.
func (d *SQLDatasource) queryColumn(ctx context.Context, query string, args ...any) ([]any, error) {
	rows, err := d.runner.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, normalize(v))
	}
	return out, rows.Err()
}

// normalize converts driver values to the profiler's value set.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := normalize(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
