package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Registration describes one adapter type a profiling target can name.
type Registration struct {
	// Type is the target.type value, lower case.
	Type string
	// Dialect renders the SQL the datasource issues against this adapter.
	Dialect *core.Dialect
	// FileBased adapters open a local database file named by target.database
	// instead of connecting to a host.
	FileBased bool
	// New builds an unconnected adapter. A nil logger discards.
	New func(*slog.Logger) Adapter
}

// registry is filled from adapter init functions and only read afterwards.
var registry = map[string]Registration{}

// Register adds an adapter type. Call it from an init function; a second
// registration of the same type replaces the first.
func Register(r Registration) {
	if r.Type == "" || r.New == nil {
		panic("adapter: Register needs a type and a constructor")
	}
	r.Type = strings.ToLower(r.Type)
	registry[r.Type] = r
}

// Lookup returns the registration of an adapter type (case-insensitive).
func Lookup(adapterType string) (Registration, bool) {
	r, ok := registry[strings.ToLower(adapterType)]
	return r, ok
}

// NewAdapter creates an unconnected adapter for the target type.
func NewAdapter(cfg core.AdapterConfig, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}
	r, ok := Lookup(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: Types()}
	}
	return r.New(logger), nil
}

// Types returns the registered adapter types, sorted.
func Types() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownAdapterError is returned when a target names an adapter type that
// is not registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q\nAvailable adapters: %v\nHint: set target.type in leapprofile.yaml to one of them",
		e.Type, e.Available)
}
