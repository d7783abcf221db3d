// Package datasource provides the reference SQL datasource: it resolves
// batch requests into tables or table partitions of a database reached
// through an adapter, and computes profiler metrics with SQL.
package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Runner is the part of an adapter the datasource needs.
type Runner interface {
	Query(ctx context.Context, sql string, args ...any) (*core.Rows, error)
	GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error)
	ListTables(ctx context.Context, schema string) ([]string, error)
	Dialect() *core.Dialect
}

// AssetConfig describes how one data asset is split into batches. Either
// TablePattern or Table with SplitColumn is set.
type AssetConfig struct {
	Name string `mapstructure:"name" json:"name" yaml:"name"`
	// Schema holding the tables (optional, dialect default).
	Schema string `mapstructure:"schema" json:"schema,omitempty" yaml:"schema,omitempty"`
	// TablePattern matches whole table names; each matching table is one
	// batch and named groups become batch identifiers.
	TablePattern string `mapstructure:"table_pattern" json:"table_pattern,omitempty" yaml:"table_pattern,omitempty"`
	// Table is partitioned by the distinct values of SplitColumn.
	Table       string `mapstructure:"table" json:"table,omitempty" yaml:"table,omitempty"`
	SplitColumn string `mapstructure:"split_column" json:"split_column,omitempty" yaml:"split_column,omitempty"`
}

// Config holds SQL datasource settings and dependencies.
type Config struct {
	Name   string
	Assets []AssetConfig
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

type asset struct {
	AssetConfig
	pattern *regexp.Regexp
}

// partition is the handle of a SQL batch: a table, optionally narrowed to
// one value of a split column.
type partition struct {
	table  string
	column string
	value  any
}

// SQLDatasource implements core.Datasource over a Runner.
type SQLDatasource struct {
	name   string
	runner Runner
	assets map[string]*asset
	logger *slog.Logger

	mu      sync.RWMutex
	batches map[string]partition
}

// New validates the asset configuration and creates a datasource.
func New(r Runner, cfg Config) (*SQLDatasource, error) {
	if r == nil {
		return nil, fmt.Errorf("a database runner is required")
	}
	if cfg.Name == "" {
		return nil, core.NewConfigError(core.ConfigInvalidOption, "datasource name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &SQLDatasource{
		name:    cfg.Name,
		runner:  r,
		assets:  map[string]*asset{},
		logger:  logger.With("datasource", cfg.Name),
		batches: map[string]partition{},
	}
	for _, ac := range cfg.Assets {
		a, err := newAsset(ac)
		if err != nil {
			return nil, err
		}
		if _, dup := d.assets[a.Name]; dup {
			return nil, core.NewConfigError(core.ConfigInvalidOption, "data asset %q is defined twice", a.Name)
		}
		d.assets[a.Name] = a
	}
	return d, nil
}

func newAsset(ac AssetConfig) (*asset, error) {
	if ac.Name == "" {
		return nil, core.NewConfigError(core.ConfigInvalidOption, "data asset name is required")
	}
	hasPattern := ac.TablePattern != ""
	hasSplit := ac.Table != "" || ac.SplitColumn != ""
	switch {
	case hasPattern && hasSplit:
		return nil, core.NewConfigError(core.ConfigMutuallyExclusive,
			"data asset %q: either use `table_pattern` or `table` with `split_column`", ac.Name)
	case hasPattern:
		re, err := regexp.Compile("^(?:" + ac.TablePattern + ")$")
		if err != nil {
			return nil, core.NewConfigError(core.ConfigInvalidOption,
				"data asset %q: invalid table_pattern: %v", ac.Name, err)
		}
		return &asset{AssetConfig: ac, pattern: re}, nil
	case ac.Table != "" && ac.SplitColumn != "":
		return &asset{AssetConfig: ac}, nil
	}
	return nil, core.NewConfigError(core.ConfigInvalidOption,
		"data asset %q needs `table_pattern` or both `table` and `split_column`", ac.Name)
}

// Name returns the datasource name.
func (d *SQLDatasource) Name() string { return d.name }

// ResolveBatches implements core.BatchResolver. Batches are ordered by
// their identifiers.
func (d *SQLDatasource) ResolveBatches(ctx context.Context, req core.BatchRequest) ([]core.Batch, error) {
	if req.DatasourceName != "" && req.DatasourceName != d.name {
		return nil, fmt.Errorf("unknown datasource %q", req.DatasourceName)
	}
	a, ok := d.assets[req.DataAssetName]
	if !ok {
		return nil, fmt.Errorf("unknown data asset %q", req.DataAssetName)
	}

	var (
		batches []core.Batch
		err     error
	)
	if a.pattern != nil {
		batches, err = d.tableBatches(ctx, a)
	} else {
		batches, err = d.partitionBatches(ctx, a)
	}
	if err != nil {
		return nil, err
	}

	var out []core.Batch
	for _, b := range batches {
		if matches(b.Definition.Identifiers, req.BatchFilter) {
			out = append(out, b)
		}
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	d.logger.Debug("resolved batches", "asset", a.Name, "batches", len(out))
	if len(out) == 0 {
		return nil, core.ErrNoBatches
	}
	return out, nil
}

func (d *SQLDatasource) definition(a *asset, ids map[string]string) core.BatchDefinition {
	connector := "table_pattern"
	if a.pattern == nil {
		connector = "split_column"
	}
	return core.BatchDefinition{
		DatasourceName:    d.name,
		DataConnectorName: connector,
		DataAssetName:     a.Name,
		Identifiers:       ids,
	}
}

func (d *SQLDatasource) register(b core.Batch, p partition) core.Batch {
	d.mu.Lock()
	d.batches[b.ID] = p
	d.mu.Unlock()
	return b
}

func (d *SQLDatasource) tableBatches(ctx context.Context, a *asset) ([]core.Batch, error) {
	tables, err := d.runner.ListTables(ctx, a.Schema)
	if err != nil {
		return nil, err
	}
	groups := a.pattern.SubexpNames()

	type match struct {
		table string
		key   []string
		ids   map[string]string
	}
	var found []match
	for _, t := range tables {
		sub := a.pattern.FindStringSubmatch(t)
		if sub == nil {
			continue
		}
		m := match{table: t, ids: map[string]string{}}
		for i, g := range groups {
			if i == 0 || g == "" {
				continue
			}
			m.ids[g] = sub[i]
			m.key = append(m.key, sub[i])
		}
		if len(m.ids) == 0 {
			m.ids["table"] = t
		}
		m.key = append(m.key, t)
		found = append(found, m)
	}
	sort.Slice(found, func(i, j int) bool {
		return slicesLess(found[i].key, found[j].key)
	})

	out := make([]core.Batch, 0, len(found))
	for _, m := range found {
		qualified := m.table
		if a.Schema != "" {
			qualified = a.Schema + "." + m.table
		}
		b := core.NewBatch(d.definition(a, m.ids), qualified)
		out = append(out, d.register(b, partition{table: qualified}))
	}
	return out, nil
}

func (d *SQLDatasource) partitionBatches(ctx context.Context, a *asset) ([]core.Batch, error) {
	table := a.Table
	if a.Schema != "" && !strings.Contains(table, ".") {
		table = a.Schema + "." + table
	}
	dial := d.runner.Dialect()
	col := dial.QuoteIdentifier(a.SplitColumn)
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		col, dial.QuoteIdentifier(table), col, col)

	values, err := d.queryColumn(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing partitions of %s: %w", table, err)
	}
	out := make([]core.Batch, 0, len(values))
	for _, v := range values {
		ids := map[string]string{a.SplitColumn: fmt.Sprint(v)}
		b := core.NewBatch(d.definition(a, ids), table)
		out = append(out, d.register(b, partition{table: table, column: a.SplitColumn, value: v}))
	}
	return out, nil
}

func slicesLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func matches(ids map[string]string, filter map[string]any) bool {
	for k, v := range filter {
		if ids[k] != fmt.Sprint(v) {
			return false
		}
	}
	return true
}
