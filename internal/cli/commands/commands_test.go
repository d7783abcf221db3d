package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/internal/cli/testutil"
	"github.com/leapstack-labs/leapprofile/pkg/assistant"
	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/leapstack-labs/leapprofile/pkg/datasource/memory"
)

func TestNewProfileCommand(t *testing.T) {
	cmd := NewProfileCommand()

	assert.Equal(t, "profile <asset>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{
		"assistant", "profiler-config", "filter", "limit", "include-column", "exclude-column",
		"cardinality-mode", "seed", "estimator", "load-seeds", "suite", "no-record",
	}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewRunsCommand(t *testing.T) {
	cmd := NewRunsCommand()

	assert.Equal(t, "runs", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	show, _, err := cmd.Find([]string{"show"})
	require.NoError(t, err)
	assert.Equal(t, "show <run-id>", show.Use)
}

func TestNewConfigCommand(t *testing.T) {
	cmd := NewConfigCommand()

	assert.Equal(t, "config", cmd.Use)
	for _, sub := range []string{"show", "assistant"} {
		found, _, err := cmd.Find([]string{sub})
		require.NoError(t, err)
		assert.Equal(t, sub, found.Name())
	}
}

func TestNewSeedCommand(t *testing.T) {
	cmd := NewSeedCommand()

	assert.Equal(t, "seed", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
}

func TestAssistantRunOptions(t *testing.T) {
	reg := assistant.NewRegistry()

	opts := &ProfileOptions{Assistant: "volume", ExcludeColumns: []string{"payment"}, CardinalityMode: "FEW"}
	runOpts, err := assistantRunOptions(reg, opts, map[string]any{"random_seed": uint64(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"payment"}, runOpts.ExcludeColumnNames)
	assert.Equal(t, "FEW", runOpts.CardinalityLimitMode)
	assert.Equal(t, uint64(3), runOpts.Variables["random_seed"])
	assert.Nil(t, runOpts.RuleVariables)

	opts.Estimator = "exact"
	runOpts, err = assistantRunOptions(reg, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]any{
		"table_rule":               {"estimator": "exact"},
		"categorical_columns_rule": {"estimator": "exact"},
	}, runOpts.RuleVariables)

	opts.Assistant = "onboarding"
	_, err = assistantRunOptions(reg, opts, nil)
	require.ErrorIs(t, err, core.ErrUnknownAssistant)
}

const profilerYAML = `
name: row_counts
config_version: 1.0
rules:
  - name: rows
    domain_builder:
      class_name: TableDomainBuilder
    parameter_builders:
      - class_name: MetricMultiBatchParameterBuilder
        name: row_count
        metric_name: table.row_count
    expectation_configuration_builders:
      - class_name: DefaultExpectationConfigurationBuilder
        expectation_type: expect_table_row_count_to_be_between
        min_value: $parameter.row_count.value[0]
`

func TestLoadProfilerConfig(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "rows.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(profilerYAML), 0o600))
	cfg, err := loadProfilerConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "row_counts", cfg.Name)
	assert.Equal(t, []string{"rows"}, cfg.RuleNames())

	jsonPath := filepath.Join(dir, "rows.json")
	data, err := json.Marshal(cfg.ToJSONDict())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(jsonPath, data, 0o600))
	fromJSON, err := loadProfilerConfig(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.ToJSONDict(), fromJSON.ToJSONDict())

	_, err = loadProfilerConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: [\n"), 0o600))
	_, err = loadProfilerConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse profiler config")
}

func volumeResult(t *testing.T) *assistant.Result {
	t.Helper()
	ds := memory.New("taxi")
	cols := []memory.Column{{Name: "id", Type: "BIGINT"}, {Name: "payment", Type: "VARCHAR"}}
	for i, rows := range [][][]any{
		{{1, "card"}, {2, "cash"}},
		{{3, "card"}, {4, "card"}, {5, "cash"}},
	} {
		ds.AddBatch("trips", map[string]string{"month": []string{"01", "02"}[i]},
			&memory.Table{Columns: cols, Rows: rows})
	}
	as := assistant.NewAssistants(nil, ds, assistant.Options{
		Now: func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	res, err := as.Volume(context.Background(), core.BatchRequest{DatasourceName: "taxi", DataAssetName: "trips"},
		assistant.RunOptions{RuleVariables: map[string]map[string]any{
			"table_rule":               {"estimator": "exact"},
			"categorical_columns_rule": {"estimator": "exact"},
		}})
	require.NoError(t, err)
	return res
}

func mustSeries(t *testing.T, res *assistant.Result) []assistant.MetricSeries {
	t.Helper()
	series, err := res.MetricSeries(assistant.SeriesOptions{})
	require.NoError(t, err)
	return series
}

func TestRenderProfile(t *testing.T) {
	res := volumeResult(t)

	t.Run("text", func(t *testing.T) {
		tr := testutil.NewTestRendererText()
		require.NoError(t, renderProfile(tr.Renderer, res.Result, mustSeries(t, res)))

		out := tr.Output()
		assert.Contains(t, out, "Profile: volume_data_assistant")
		assert.Contains(t, out, "2 batches, 2 expectations")
		assert.Contains(t, out, "expect_table_row_count_to_be_between")
		assert.Contains(t, out, "table: table_row_count")
		assert.Contains(t, out, `{"max_value":3,"min_value":2}`)
	})

	t.Run("markdown", func(t *testing.T) {
		tr := testutil.NewTestRendererMarkdown()
		require.NoError(t, renderProfile(tr.Renderer, res.Result, mustSeries(t, res)))

		out := tr.Output()
		testutil.AssertNoANSI(t, out)
		testutil.AssertValidMarkdown(t, out)
		assert.Contains(t, out, "# Profile: volume_data_assistant")
		assert.Contains(t, out, "## Expectations")
		assert.Contains(t, out, "| expect_column_unique_value_count_to_be_between | payment |")
	})

	t.Run("json", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		require.NoError(t, renderProfile(tr.Renderer, res.Result, mustSeries(t, res)))

		var got map[string]any
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
		result := got["result"].(map[string]any)
		assert.Len(t, result["expectation_configurations"], 2)
		series := got["metric_series"].([]any)
		require.Len(t, series, 2)
		first := series[0].(map[string]any)
		assert.Equal(t, "table_row_count", first["parameter"])
		points := first["points"].([]any)
		require.Len(t, points, 2)
		assert.Equal(t, 2.0, points[0].(map[string]any)["value"])
	})
}

func TestRenderSuite(t *testing.T) {
	res := volumeResult(t)
	suite := res.GetExpectationSuite("trips.warning")

	tr := testutil.NewTestRendererJSON()
	require.NoError(t, renderSuite(tr.Renderer, suite))

	var got map[string]any
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
	assert.Equal(t, "trips.warning", got["expectation_suite_name"])
	assert.Len(t, got["expectations"], 2)

	text := testutil.NewTestRendererText()
	require.NoError(t, renderSuite(text.Renderer, suite))
	assert.Contains(t, text.Output(), "Expectation suite: trips.warning")
	assert.Contains(t, text.Output(), "2 expectations")
}

func TestRunTable(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Second)
	tbl := runTable([]*core.Run{
		{ID: "r1", ProfilerName: "volume_data_assistant", Status: core.RunStatusCompleted,
			StartedAt: started, CompletedAt: &completed, BatchCount: 3, ExpectationCount: 4},
		{ID: "r2", ProfilerName: "volume_data_assistant", Status: core.RunStatusRunning, StartedAt: started},
	})

	recs := tbl.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "completed", recs[0]["status"])
	assert.Equal(t, "2024-03-01T10:00:02Z", recs[0]["completed_at"])
	assert.Equal(t, 4, recs[0]["expectations"])
	assert.Nil(t, recs[1]["completed_at"])
}

func TestGetSeedFiles(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	files, err := getSeedFiles(filepath.Join(dir, "seeds"))
	require.NoError(t, err)
	assert.Equal(t, []string{"trips_2024_01.csv", "trips_2024_02.csv", "trips_2024_03.csv"}, files)

	files, err = getSeedFiles(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = getSeedFiles("")
	require.NoError(t, err)
	assert.Nil(t, files)
}
