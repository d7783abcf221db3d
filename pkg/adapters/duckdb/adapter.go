// Package duckdb provides a DuckDB database adapter. Import it with a blank
// identifier to register the "duckdb" adapter type.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/leapstack-labs/leapprofile/pkg/adapter"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Dialect describes DuckDB for the SQL datasource.
var Dialect = &core.Dialect{
	Name:          "duckdb",
	DefaultSchema: "main",
	Placeholder:   core.PlaceholderQuestion,
	TablesQuery: `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE' ORDER BY table_name`,
}

// Adapter implements adapter.Adapter for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{BaseSQLAdapter: *adapter.NewBaseSQLAdapter(nil, Dialect, logger)}
}

// Connect establishes a connection to DuckDB and applies Params.
// Use ":memory:" as the path for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	if err := a.setup(ctx, params); err != nil {
		_ = db.Close()
		a.DB = nil
		return err
	}
	return nil
}

// setup installs extensions, applies settings and creates secrets.
func (a *Adapter) setup(ctx context.Context, p *Params) error {
	for _, ext := range p.Extensions {
		a.Logger.Debug("loading duckdb extension", slog.String("extension", ext))
		if err := a.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmt := fmt.Sprintf("SET %s = '%s'", k, strings.ReplaceAll(p.Settings[k], "'", "''"))
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}

	for _, s := range p.Secrets {
		if err := a.Exec(ctx, buildCreateSecretSQL(s)); err != nil {
			return fmt.Errorf("failed to create %s secret: %w", s.Type, err)
		}
	}
	return nil
}

// buildCreateSecretSQL renders a CREATE SECRET statement.
func buildCreateSecretSQL(s SecretConfig) string {
	quote := func(v string) string { return "'" + strings.ReplaceAll(v, "'", "''") + "'" }

	lines := []string{"TYPE " + s.Type}
	if s.Provider != "" {
		lines = append(lines, "PROVIDER "+s.Provider)
	}
	if s.Region != "" {
		lines = append(lines, "REGION "+quote(s.Region))
	}
	switch scope := s.Scope.(type) {
	case string:
		if scope != "" {
			lines = append(lines, "SCOPE "+quote(scope))
		}
	case []string:
		quoted := make([]string, len(scope))
		for i, v := range scope {
			quoted[i] = quote(v)
		}
		lines = append(lines, "SCOPE ("+strings.Join(quoted, ", ")+")")
	case []any:
		quoted := make([]string, 0, len(scope))
		for _, v := range scope {
			quoted = append(quoted, quote(fmt.Sprint(v)))
		}
		lines = append(lines, "SCOPE ("+strings.Join(quoted, ", ")+")")
	}
	if s.KeyID != "" {
		lines = append(lines, "KEY_ID "+quote(s.KeyID))
	}
	if s.Secret != "" {
		lines = append(lines, "SECRET "+quote(s.Secret))
	}
	if s.Endpoint != "" {
		lines = append(lines, "ENDPOINT "+quote(s.Endpoint))
	}
	if s.URLStyle != "" {
		lines = append(lines, "URL_STYLE "+quote(s.URLStyle))
	}
	if s.UseSSL != nil {
		lines = append(lines, fmt.Sprintf("USE_SSL %t", *s.UseSSL))
	}
	return "CREATE SECRET (\n    " + strings.Join(lines, ",\n    ") + "\n)"
}

// LoadCSV loads data from a CSV file into a table.
// DuckDB infers the schema from the file.
func (a *Adapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		Dialect.QuoteIdentifier(tableName),
		strings.ReplaceAll(absPath, "'", "''"),
	)
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}
	return nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
