package core

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Well-known metric names understood by the reference datasources.
const (
	MetricTableRowCount              = "table.row_count"
	MetricTableColumns               = "table.columns"
	MetricTableColumnTypes           = "table.column_types"
	MetricColumnDistinctValues       = "column.distinct_values"
	MetricColumnDistinctValuesCount  = "column.distinct_values.count"
	MetricColumnUniqueProportion     = "column.unique_proportion"
	MetricColumnNonNullCount         = "column_values.nonnull.count"
	MetricColumnNullCount            = "column_values.null.count"
	MetricColumnMin                  = "column.min"
	MetricColumnMax                  = "column.max"
	MetricColumnMean                 = "column.mean"
	MetricColumnSampleValues         = "column.sample_values"
	metricColumnNonNullCountAliasOld = "column.nonnull.count"
)

// CanonicalMetricName maps metric aliases to their canonical name.
func CanonicalMetricName(name string) string {
	if name == metricColumnNonNullCountAliasOld {
		return MetricColumnNonNullCount
	}
	return name
}

// MetricConfiguration addresses one metric computation.
type MetricConfiguration struct {
	MetricName         string         `json:"metric_name"`
	DomainKwargs       map[string]any `json:"domain_kwargs"`
	MetricValueKwargs  map[string]any `json:"metric_value_kwargs"`
	MetricDependencies map[string]any `json:"metric_dependencies"`
}

// ToJSONDict renders the configuration with plain JSON values.
// Unset value kwargs and dependencies are rendered as null.
func (m MetricConfiguration) ToJSONDict() map[string]any {
	dk := NormalizeJSON(m.DomainKwargs)
	if dk == nil {
		dk = map[string]any{}
	}
	var vk, deps any
	if len(m.MetricValueKwargs) > 0 {
		vk = NormalizeJSON(m.MetricValueKwargs)
	}
	if len(m.MetricDependencies) > 0 {
		deps = NormalizeJSON(m.MetricDependencies)
	}
	return map[string]any{
		"metric_name":         m.MetricName,
		"domain_kwargs":       dk,
		"metric_value_kwargs": vk,
		"metric_dependencies": deps,
	}
}

// String renders the configuration for logs and errors.
func (m MetricConfiguration) String() string {
	return fmt.Sprintf("%s%s", m.MetricName, CanonicalJSON(NormalizeJSON(m.DomainKwargs)))
}

// MetricProvider computes metrics against a single batch.
// Implementations may parallelize internally but must return a completed
// value per call.
type MetricProvider interface {
	ComputeMetric(ctx context.Context, batchID string, metric MetricConfiguration) (any, error)
}

// MetricProviderFunc adapts a function to MetricProvider.
type MetricProviderFunc func(ctx context.Context, batchID string, metric MetricConfiguration) (any, error)

// ComputeMetric implements MetricProvider.
func (f MetricProviderFunc) ComputeMetric(ctx context.Context, batchID string, metric MetricConfiguration) (any, error) {
	return f(ctx, batchID, metric)
}

// BatchRequest asks a datasource for an ordered list of batches.
type BatchRequest struct {
	DatasourceName       string         `json:"datasource_name" yaml:"datasource_name" mapstructure:"datasource_name"`
	DataConnectorName    string         `json:"data_connector_name,omitempty" yaml:"data_connector_name,omitempty" mapstructure:"data_connector_name"`
	DataAssetName        string         `json:"data_asset_name" yaml:"data_asset_name" mapstructure:"data_asset_name"`
	BatchFilter          map[string]any `json:"batch_filter,omitempty" yaml:"batch_filter,omitempty" mapstructure:"batch_filter"`
	Limit                int            `json:"limit,omitempty" yaml:"limit,omitempty" mapstructure:"limit"`
	BatchSpecPassthrough map[string]any `json:"batch_spec_passthrough,omitempty" yaml:"batch_spec_passthrough,omitempty" mapstructure:"batch_spec_passthrough"`
}

// BatchDefinition identifies a batch within a datasource.
type BatchDefinition struct {
	DatasourceName    string            `json:"datasource_name"`
	DataConnectorName string            `json:"data_connector_name"`
	DataAssetName     string            `json:"data_asset_name"`
	Identifiers       map[string]string `json:"batch_identifiers"`
}

// ID returns the md5 of the canonical JSON of the definition.
func (d BatchDefinition) ID() string {
	sum := md5.Sum([]byte(CanonicalJSON(NormalizeJSON(d))))
	return hex.EncodeToString(sum[:])
}

// Batch is one materialized slice of data.
type Batch struct {
	ID         string
	Definition BatchDefinition
	// Handle is datasource specific (a table name, a partition predicate, ...).
	Handle any
}

// NewBatch creates a batch whose id is derived from its definition.
func NewBatch(def BatchDefinition, handle any) Batch {
	return Batch{ID: def.ID(), Definition: def, Handle: handle}
}

// DisplayName renders the batch identifiers as "{k: v, ...}" with sorted
// keys, falling back to the batch id.
func (b Batch) DisplayName() string {
	ids := b.Definition.Identifiers
	if len(ids) == 0 {
		return b.ID
	}
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("'%s': '%s'", k, ids[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// BatchResolver resolves a batch request into an ordered list of batches.
type BatchResolver interface {
	ResolveBatches(ctx context.Context, req BatchRequest) ([]Batch, error)
}

// Datasource is the full external collaborator: it resolves batches and
// computes metrics on them.
type Datasource interface {
	BatchResolver
	MetricProvider
}

// BatchIDs returns the ids of the batches in order.
func BatchIDs(batches []Batch) []string {
	out := make([]string, len(batches))
	for i, b := range batches {
		out[i] = b.ID
	}
	return out
}
