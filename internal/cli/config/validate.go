package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapprofile/internal/cli/output"
	"github.com/leapstack-labs/leapprofile/pkg/adapter"
)

// isFileTarget reports whether the target database is a local file.
func isFileTarget(dbType string) bool {
	r, ok := adapter.Lookup(dbType)
	return ok && r.FileBased
}

// DefaultSchemaForType returns the default schema of a registered adapter
// type, or "main" when the type is unknown.
func DefaultSchemaForType(dbType string) string {
	r, ok := adapter.Lookup(dbType)
	if !ok || r.Dialect == nil || r.Dialect.DefaultSchema == "" {
		return "main"
	}
	return r.Dialect.DefaultSchema
}

// ApplyTargetDefaults fills unset target fields.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Type = strings.ToLower(t.Type)

	// Apply default schema based on type
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}

	// Apply type-specific defaults
	if t.Type == "postgres" {
		if t.Host == "" {
			t.Host = "localhost"
		}
		if t.Port == 0 {
			t.Port = 5432
		}
	}
}

// Validate checks the target type against the adapter registry.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return errors.New("target type is required")
	}
	if _, ok := adapter.Lookup(t.Type); !ok {
		return &adapter.UnknownAdapterError{Type: t.Type, Available: adapter.Types()}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}
	if c.OutputFormat != "" && !slices.Contains(output.Modes(), strings.ToLower(c.OutputFormat)) {
		errs = append(errs, fmt.Errorf("unknown output format %q (expected one of %s)",
			c.OutputFormat, strings.Join(output.Modes(), ", ")))
	}
	if c.Target == nil {
		errs = append(errs, errors.New("target is required"))
	} else if err := c.Target.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid target configuration: %w", err))
	}
	seen := make(map[string]bool, len(c.Datasource.Assets))
	for _, a := range c.Datasource.Assets {
		if a.Name == "" {
			errs = append(errs, errors.New("datasource asset without a name"))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("duplicate datasource asset %q", a.Name))
		}
		seen[a.Name] = true
	}
	return errors.Join(errs...)
}
