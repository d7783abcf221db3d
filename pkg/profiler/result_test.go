package profiler

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

func runSmallProfile(t *testing.T) (*Result, []core.Batch) {
	t.Helper()
	batches := makeBatches(5)
	p, err := New(mustConfig(t, profilerConfig(
		tableRule(map[string]any{"estimator": "exact"}),
		categoricalRule(map[string]any{"estimator": "exact"}),
	)), Config{Now: func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }})
	require.NoError(t, err)
	res, err := p.Run(context.Background(), RunOptions{Batches: batches, Provider: taxiProvider(batches)})
	require.NoError(t, err)
	return res, batches
}

func TestResult_ToDictKeys(t *testing.T) {
	res, _ := runSmallProfile(t)
	d := res.ToDict()

	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	want := append([]string(nil), AllowedKeys...)
	sort.Strings(keys)
	sort.Strings(want)
	assert.Equal(t, want, keys)

	assert.Equal(t, core.NormalizeJSON(d), res.ToJSONDict())
	assert.Len(t, d[KeyMetricsByDomain], 3)
	assert.Len(t, d[KeyExpectationConfigurations], 3)
	assert.Len(t, d[KeyBatchDisplayNames], 5)
}

func TestResult_MetricsEntryShape(t *testing.T) {
	res, batches := runSmallProfile(t)
	entry := res.ToJSONDict()[KeyMetricsByDomain].([]any)[0].(map[string]any)

	assert.Equal(t, res.MetricsByDomain[0].Domain.ID(), entry["domain_id"])
	assert.Equal(t, "table", entry["domain"].(map[string]any)["domain_type"])

	params := entry["parameter_values_for_fully_qualified_parameter_names"].(map[string]any)
	node := params[core.FullyQualifiedParameterName("metric_values")].(map[string]any)
	assert.Len(t, node[core.FieldAttributedValue], len(batches))
	assert.Len(t, node[core.FieldValue], len(batches))
}

func TestResult_JSONRoundTripKeepsBatchOrder(t *testing.T) {
	res, batches := runSmallProfile(t)
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, core.BatchIDs(batches), back.BatchIDs())
	require.NoError(t, back.ValidateBatchOrder())
	assert.Equal(t, res.ExecutionTime, back.ExecutionTime)

	again, err := json.Marshal(&back)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestResult_UnmarshalRejectsUnknownKeys(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{"metrics_by_domain": [], "rule_states": {}}`), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule_states")
}

func TestResultFromDict(t *testing.T) {
	res, _ := runSmallProfile(t)

	back, err := ResultFromDict(res.ToJSONDict())
	require.NoError(t, err)
	require.Len(t, back.MetricsByDomain, len(res.MetricsByDomain))
	for i := range res.MetricsByDomain {
		assert.True(t, back.MetricsByDomain[i].Domain.Equal(res.MetricsByDomain[i].Domain))
	}
	assert.Equal(t, core.NormalizeJSON(res.ProfilerConfig.ToJSONDict()), core.NormalizeJSON(back.ProfilerConfig.ToJSONDict()))
	assert.Len(t, back.ExpectationConfigurations, 3)
	assert.Equal(t, res.DisplayNames, back.DisplayNames)

	ids := res.BatchIDs()
	sort.Strings(ids)
	assert.Equal(t, ids, back.BatchIDs())
	assert.Equal(t, res.ExecutionTime, back.ExecutionTime)

	_, err = ResultFromDict(map[string]any{"profiler_config": nil, "extra": 1})
	assert.Error(t, err)
}

func TestResultFromDict_KeepsBatchOrder(t *testing.T) {
	res, batches := runSmallProfile(t)

	back, err := ResultFromDict(res.ToDict())
	require.NoError(t, err)
	assert.Equal(t, core.BatchIDs(batches), back.BatchIDs())
	require.NoError(t, back.ValidateBatchOrder())
	for i, dm := range back.MetricsByDomain {
		for fqn, node := range dm.Parameters {
			want := res.MetricsByDomain[i].Parameters[fqn]
			assert.Equal(t, want.AttributedValue.Keys(), node.AttributedValue.Keys(), fqn)
		}
	}
}

func TestSecondsToDuration(t *testing.T) {
	for _, d := range []time.Duration{0, 1, 1039731, 1500 * time.Millisecond, 3*time.Hour + 7} {
		assert.Equal(t, d, secondsToDuration(d.Seconds()))
	}
}

func TestResult_GetExpectationSuite(t *testing.T) {
	res, _ := runSmallProfile(t)
	suite := res.GetExpectationSuite("taxi.profiled")

	assert.Equal(t, "taxi.profiled", suite.Name)
	require.Len(t, suite.Expectations, 3)
	assert.Equal(t, Version, suite.Meta["leapprofile_version"])

	citations := suite.Meta["citations"].([]any)
	require.Len(t, citations, 1)
	citation := citations[0].(map[string]any)
	assert.Equal(t, "2024-03-01T12:00:00.000000Z", citation["citation_date"])
	assert.Equal(t, CitationComment, citation["comment"])

	suite.Expectations[0].Kwargs["min_value"] = -1
	assert.NotEqual(t, -1, res.ExpectationConfigurations[0].Kwargs["min_value"], "suite holds copies")
}

func TestResult_ValidateBatchOrderDetectsMismatch(t *testing.T) {
	res, batches := runSmallProfile(t)
	node, ok := res.MetricsByDomain[1].Parameters.Get("metric_values")
	require.True(t, ok)

	reordered := core.NewAttributedValue()
	for i := len(batches) - 1; i >= 0; i-- {
		v, _ := node.AttributedValue.Get(batches[i].ID)
		reordered.Set(batches[i].ID, v)
	}
	node.AttributedValue = reordered
	assert.Error(t, res.ValidateBatchOrder())
}
