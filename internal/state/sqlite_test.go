package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/internal/testutil"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// setupTestStore opens a migrated in-memory store whose clock advances one
// second per timestamp.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Migrations(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	require.NoError(t, store.InitSchema(), "migrating twice is a no-op")
	for _, table := range []string{"runs", "rule_runs"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s", table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	_, err := store.CreateRun("p")
	require.Error(t, err)
	assert.Error(t, store.InitSchema())
	_, err = store.ListRuns(0)
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		status  core.RunStatus
		summary core.RunSummary
		errMsg  string
	}{
		{"completed", core.RunStatusCompleted, core.RunSummary{BatchCount: 36, ExpectationCount: 3}, ""},
		{"failed", core.RunStatusFailed, core.RunSummary{}, "metric table.row_count failed on batch 01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			run, err := store.CreateRun("volume_data_assistant")
			require.NoError(t, err)
			assert.Equal(t, core.RunStatusRunning, run.Status)
			assert.Equal(t, "volume_data_assistant", run.ProfilerName)
			assert.Nil(t, run.CompletedAt)
			assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), run.StartedAt)

			require.NoError(t, store.CompleteRun(run.ID, tt.status, tt.summary, tt.errMsg))

			got, err := store.GetRun(run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.summary.BatchCount, got.BatchCount)
			assert.Equal(t, tt.summary.ExpectationCount, got.ExpectationCount)
			assert.Equal(t, tt.errMsg, got.Error)
			require.NotNil(t, got.CompletedAt)
			assert.True(t, got.CompletedAt.After(got.StartedAt))
		})
	}
}

func TestSQLiteStore_UnknownRun(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")

	err = store.CompleteRun("missing", core.RunStatusCompleted, core.RunSummary{}, "")
	require.Error(t, err)

	latest, err := store.GetLatestRun("never_ran")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSQLiteStore_ListAndLatest(t *testing.T) {
	store := setupTestStore(t)

	var ids []string
	for _, name := range []string{"a", "b", "a"} {
		run, err := store.CreateRun(name)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = store.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	latest, err := store.GetLatestRun("a")
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)
}

func TestSQLiteStore_RuleRuns(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun("p")
	require.NoError(t, err)

	for _, rr := range []*core.RuleRun{
		{RunID: run.ID, RuleName: "table_rule", DomainCount: 1, ExpectationCount: 1, ExecutionMS: 12},
		{RunID: run.ID, RuleName: "categorical_columns_rule", DomainCount: 4, ExpectationCount: 4, ExecutionMS: 80},
	} {
		require.NoError(t, store.RecordRuleRun(rr))
		assert.NotEmpty(t, rr.ID)
	}

	got, err := store.GetRuleRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "table_rule", got[0].RuleName)
	assert.Equal(t, 4, got[1].DomainCount)
	assert.Equal(t, int64(80), got[1].ExecutionMS)

	err = store.RecordRuleRun(&core.RuleRun{RunID: "missing", RuleName: "x"})
	assert.Error(t, err, "rule runs reference an existing run")
}
