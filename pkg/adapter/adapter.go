// Package adapter defines the database adapter contract used by the SQL
// datasource. Concrete adapters live in pkg/adapters subdirectories and
// register themselves in init.
package adapter

import (
	"context"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Adapter connects to a database, runs SQL and describes tables.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg core.AdapterConfig) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string, args ...any) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (*core.Rows, error)

	// GetTableMetadata retrieves the columns of a table in ordinal order.
	GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error)

	// ListTables returns the base tables of a schema, sorted. An empty
	// schema means the dialect's default schema.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// LoadCSV loads data from a CSV file into a table, replacing it.
	LoadCSV(ctx context.Context, tableName string, filePath string) error

	// Dialect returns the SQL facts the datasource needs to build queries.
	Dialect() *core.Dialect
}
