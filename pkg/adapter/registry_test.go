package adapter

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

func TestRegister_LowercasesType(t *testing.T) {
	dial := &core.Dialect{Name: "warehouse", DefaultSchema: "analytics"}
	Register(Registration{
		Type:    "Warehouse_Test",
		Dialect: dial,
		New:     func(_ *slog.Logger) Adapter { return nil },
	})
	t.Cleanup(func() { delete(registry, "warehouse_test") })

	r, ok := Lookup("WAREHOUSE_TEST")
	require.True(t, ok)
	assert.Equal(t, "warehouse_test", r.Type)
	assert.Same(t, dial, r.Dialect)
	assert.False(t, r.FileBased)
	assert.Contains(t, Types(), "warehouse_test")
}

func TestRegister_RequiresConstructor(t *testing.T) {
	assert.Panics(t, func() { Register(Registration{Type: "broken"}) })
	assert.Panics(t, func() { Register(Registration{New: func(_ *slog.Logger) Adapter { return nil }}) })
	_, ok := Lookup("broken")
	assert.False(t, ok)
}

func TestNewAdapter_EmptyType(t *testing.T) {
	_, err := NewAdapter(core.AdapterConfig{}, nil)
	require.Error(t, err)
	assert.Equal(t, "adapter type not specified", err.Error())
}

func TestUnknownAdapterError(t *testing.T) {
	err := &UnknownAdapterError{Type: "fake_db", Available: []string{"duckdb", "sqlite"}}
	assert.Contains(t, err.Error(), `unknown adapter type "fake_db"`)
	assert.Contains(t, err.Error(), "[duckdb sqlite]")
	assert.Contains(t, err.Error(), "target.type in leapprofile.yaml")
}
