package datasource_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/internal/testutil"
	"github.com/leapstack-labs/leapprofile/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapprofile/pkg/assistant"
	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/leapstack-labs/leapprofile/pkg/datasource"
	"github.com/leapstack-labs/leapprofile/pkg/datasource/memory"
)

var monthlyTrips = [][][]any{
	{{1, 10, "card", 5.5}, {2, 11, "cash", 7.0}, {3, 10, "card", 9.25}},
	{{4, 12, "card", 5.5}, {5, 10, "cash", nil}, {6, 11, "voucher", 8.0}, {7, 12, "card", 11.0}},
	{{8, 10, "card", 4.0}, {9, 10, "cash", 4.5}, {10, 11, "card", 7.5}, {11, 13, "voucher", 12.0}, {12, 14, "cash", 6.5}},
}

func loadTrips(t *testing.T) *sqlite.Adapter {
	t.Helper()
	ctx := context.Background()
	adp := sqlite.New(testutil.NewTestLogger(t))
	require.NoError(t, adp.Connect(ctx, core.AdapterConfig{Path: ":memory:"}))
	t.Cleanup(func() { _ = adp.Close() })

	for i, rows := range monthlyTrips {
		table := fmt.Sprintf("trips_2024_%02d", i+1)
		require.NoError(t, adp.Exec(ctx, fmt.Sprintf(
			`CREATE TABLE %q (id INTEGER, vendor_id INTEGER, payment TEXT, fare REAL)`, table)))
		for _, r := range rows {
			require.NoError(t, adp.Exec(ctx, fmt.Sprintf(`INSERT INTO %q VALUES (?, ?, ?, ?)`, table), r...))
		}
	}
	require.NoError(t, adp.Exec(ctx, `CREATE TABLE zones (id INTEGER)`))
	return adp
}

func memoryTrips() *memory.Datasource {
	ds := memory.New("warehouse")
	cols := []memory.Column{
		{Name: "id", Type: "INTEGER"},
		{Name: "vendor_id", Type: "INTEGER"},
		{Name: "payment", Type: "TEXT"},
		{Name: "fare", Type: "REAL"},
	}
	for i, rows := range monthlyTrips {
		ds.AddBatch("trips", map[string]string{"month": fmt.Sprintf("%02d", i+1)}, &memory.Table{Columns: cols, Rows: rows})
	}
	return ds
}

func TestSQLite_MetricsMatchMemory(t *testing.T) {
	ctx := context.Background()
	ds, err := datasource.New(loadTrips(t), datasource.Config{
		Name:   "warehouse",
		Assets: []datasource.AssetConfig{{Name: "trips", TablePattern: `trips_2024_(?P<month>\d{2})`}},
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)

	sqlBatches, err := ds.ResolveBatches(ctx, core.BatchRequest{DataAssetName: "trips"})
	require.NoError(t, err)
	mem := memoryTrips()
	memBatches, err := mem.ResolveBatches(ctx, core.BatchRequest{DataAssetName: "trips"})
	require.NoError(t, err)
	require.Len(t, sqlBatches, len(memBatches))

	metrics := []core.MetricConfiguration{
		{MetricName: core.MetricTableRowCount},
		{MetricName: core.MetricTableColumns},
		{MetricName: core.MetricColumnDistinctValuesCount, DomainKwargs: map[string]any{"column": "payment"}},
		{MetricName: core.MetricColumnDistinctValues, DomainKwargs: map[string]any{"column": "payment"}},
		{MetricName: core.MetricColumnUniqueProportion, DomainKwargs: map[string]any{"column": "vendor_id"}},
		{MetricName: "column.nonnull.count", DomainKwargs: map[string]any{"column": "fare"}},
		{MetricName: core.MetricColumnNullCount, DomainKwargs: map[string]any{"column": "fare"}},
		{MetricName: core.MetricColumnMax, DomainKwargs: map[string]any{"column": "fare"}},
		{MetricName: core.MetricColumnMean, DomainKwargs: map[string]any{"column": "fare"}},
	}
	for i := range sqlBatches {
		for _, mc := range metrics {
			got, err := ds.ComputeMetric(ctx, sqlBatches[i].ID, mc)
			require.NoError(t, err, "%s on batch %d", mc, i)
			want, err := mem.ComputeMetric(ctx, memBatches[i].ID, mc)
			require.NoError(t, err)
			assert.Equal(t, core.NormalizeJSON(want), core.NormalizeJSON(got), "%s on batch %d", mc, i)
		}
	}

	types, err := ds.ComputeMetric(ctx, sqlBatches[0].ID, core.MetricConfiguration{MetricName: core.MetricTableColumnTypes})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "fare", "type": "REAL"}, types.([]any)[3])
}

func TestSQLite_VolumeAssistant(t *testing.T) {
	ctx := context.Background()
	ds, err := datasource.New(loadTrips(t), datasource.Config{
		Name:   "warehouse",
		Assets: []datasource.AssetConfig{{Name: "trips", TablePattern: `trips_2024_(?P<month>\d{2})`}},
	})
	require.NoError(t, err)

	res, err := assistant.NewAssistants(nil, ds, assistant.Options{Logger: testutil.NewTestLogger(t)}).
		Volume(ctx, core.BatchRequest{DatasourceName: "warehouse", DataAssetName: "trips"}, assistant.RunOptions{
			RuleVariables: map[string]map[string]any{
				assistant.TableRule:              {"estimator": "exact", "false_positive_rate": 0.0},
				assistant.CategoricalColumnsRule: {"estimator": "exact", "false_positive_rate": 0.0},
			},
		})
	require.NoError(t, err)

	require.Len(t, res.ExpectationConfigurations, 3)
	table := res.ExpectationConfigurations[0]
	assert.Equal(t, int64(3), table.Kwargs["min_value"])
	assert.Equal(t, int64(5), table.Kwargs["max_value"])

	payment := res.ExpectationConfigurations[1]
	assert.Equal(t, "payment", payment.Column())
	assert.Equal(t, int64(2), payment.Kwargs["min_value"])
	assert.Equal(t, int64(3), payment.Kwargs["max_value"])

	fare := res.ExpectationConfigurations[2]
	assert.Equal(t, "fare", fare.Column())
	assert.Equal(t, int64(3), fare.Kwargs["min_value"])
	assert.Equal(t, int64(5), fare.Kwargs["max_value"])

	assert.Equal(t, "{'month': '01'}", res.DisplayNames[res.BatchIDs()[0]])
}
