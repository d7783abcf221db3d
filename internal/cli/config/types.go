// Package config provides configuration management for the leapprofile CLI.
//
// Settings are layered: built-in defaults, leapprofile.yaml, LEAPPROFILE_
// environment variables and finally command-line flags.
package config

import (
	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/leapstack-labs/leapprofile/pkg/datasource"
)

// TargetConfig holds the database the datasource reads from.
type TargetConfig struct {
	Type string `koanf:"type" yaml:"type"` // duckdb, sqlite, postgres

	// File-based databases (DuckDB, SQLite)
	Database string `koanf:"database" yaml:"database,omitempty"`

	// Network databases
	Host     string `koanf:"host" yaml:"host,omitempty"`
	Port     int    `koanf:"port" yaml:"port,omitempty"`
	User     string `koanf:"user" yaml:"user,omitempty"`
	Password string `koanf:"password" yaml:"-"`

	Schema string `koanf:"schema" yaml:"schema,omitempty"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options" yaml:"options,omitempty"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, secrets, settings)
	Params map[string]any `koanf:"params" yaml:"params,omitempty"`
}

// AdapterConfig converts the target to an adapter connection config.
func (t *TargetConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:     t.Type,
		Path:     t.Database,
		Database: t.Database,
		Host:     t.Host,
		Port:     t.Port,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// AssetConfig describes one data asset of the datasource.
type AssetConfig struct {
	Name         string `koanf:"name" yaml:"name"`
	Schema       string `koanf:"schema" yaml:"schema,omitempty"`
	TablePattern string `koanf:"table_pattern" yaml:"table_pattern,omitempty"`
	Table        string `koanf:"table" yaml:"table,omitempty"`
	SplitColumn  string `koanf:"split_column" yaml:"split_column,omitempty"`
}

// DatasourceConfig names the datasource and its assets.
type DatasourceConfig struct {
	Name   string        `koanf:"name" yaml:"name"`
	Assets []AssetConfig `koanf:"assets" yaml:"assets,omitempty"`
}

// Config returns the SQL datasource settings.
func (d DatasourceConfig) Config() datasource.Config {
	assets := make([]datasource.AssetConfig, 0, len(d.Assets))
	for _, a := range d.Assets {
		assets = append(assets, datasource.AssetConfig(a))
	}
	return datasource.Config{Name: d.Name, Assets: assets}
}

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string           `koanf:"state_path" yaml:"state_path"`
	SeedsDir     string           `koanf:"seeds_dir" yaml:"seeds_dir,omitempty"`
	Verbose      bool             `koanf:"verbose" yaml:"verbose"`
	OutputFormat string           `koanf:"output" yaml:"output"`
	Target       *TargetConfig    `koanf:"target" yaml:"target"`
	Datasource   DatasourceConfig `koanf:"datasource" yaml:"datasource"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-" yaml:"-"`
}

// Default configuration values.
const (
	DefaultStateFile  = ".leapprofile/state.db"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=json
	DefaultTargetType = "duckdb"
	DefaultDatasource = "default"
)
