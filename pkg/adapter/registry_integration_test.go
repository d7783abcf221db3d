package adapter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/pkg/adapter"
	"github.com/leapstack-labs/leapprofile/pkg/core"

	_ "github.com/leapstack-labs/leapprofile/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapprofile/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapprofile/pkg/adapters/sqlite"
)

func TestBundledAdapters(t *testing.T) {
	tests := []struct {
		adapterType   string
		fileBased     bool
		defaultSchema string
		placeholder   core.PlaceholderStyle
	}{
		{"duckdb", true, "main", core.PlaceholderQuestion},
		{"sqlite", true, "main", core.PlaceholderQuestion},
		{"postgres", false, "public", core.PlaceholderDollar},
	}
	assert.Subset(t, adapter.Types(), []string{"duckdb", "postgres", "sqlite"})

	for _, tt := range tests {
		t.Run(tt.adapterType, func(t *testing.T) {
			r, ok := adapter.Lookup(tt.adapterType)
			require.True(t, ok)
			assert.Equal(t, tt.fileBased, r.FileBased)
			require.NotNil(t, r.Dialect)
			assert.Equal(t, tt.adapterType, r.Dialect.Name)
			assert.Equal(t, tt.defaultSchema, r.Dialect.DefaultSchema)
			assert.Equal(t, tt.placeholder, r.Dialect.Placeholder)

			adp, err := adapter.NewAdapter(core.AdapterConfig{Type: tt.adapterType}, nil)
			require.NoError(t, err)
			assert.Same(t, r.Dialect, adp.Dialect())
		})
	}
}

func TestNewAdapter_ConnectsSQLiteTarget(t *testing.T) {
	adp, err := adapter.NewAdapter(core.AdapterConfig{Type: "SQLite", Path: ":memory:"}, nil)
	require.NoError(t, err)
	require.NoError(t, adp.Connect(t.Context(), core.AdapterConfig{Path: ":memory:"}))
	t.Cleanup(func() { _ = adp.Close() })

	tables, err := adp.ListTables(t.Context(), "")
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestNewAdapter_UnknownType(t *testing.T) {
	_, err := adapter.NewAdapter(core.AdapterConfig{Type: "unknown_adapter"}, nil)

	var unknownErr *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "unknown_adapter", unknownErr.Type)
	assert.Contains(t, unknownErr.Available, "duckdb")
}
