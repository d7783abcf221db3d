// Package sqlite provides a SQLite database adapter over the pure Go
// modernc driver. Import it with a blank identifier to register the
// "sqlite" adapter type.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/leapstack-labs/leapprofile/pkg/adapter"
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Dialect describes SQLite for the SQL datasource.
var Dialect = &core.Dialect{
	Name:          "sqlite",
	DefaultSchema: "main",
	Placeholder:   core.PlaceholderQuestion,
	TablesQuery: `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
}

// memoryDBCounter names in-memory databases so adapters never share one.
var memoryDBCounter atomic.Uint64

// Adapter implements adapter.Adapter for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{BaseSQLAdapter: *adapter.NewBaseSQLAdapter(nil, Dialect, logger)}
}

// Connect opens the database file. Use ":memory:" (or an empty path) for
// an in-memory database private to this adapter. Its pooled connections
// share one cache, so a query may run while another's rows are open.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	a.Logger.Debug("connecting to sqlite", slog.String("path", path))

	dsn := path
	if path == ":memory:" {
		dsn = memoryDSN()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

func memoryDSN() string {
	return fmt.Sprintf("file:leapprofile%d?mode=memory&cache=shared", memoryDBCounter.Add(1))
}

// GetTableMetadata reads pragma_table_info; SQLite has no
// information_schema.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	schema, name := adapter.ParseQualifiedName(table, Dialect)

	rows, err := a.DB.QueryContext(ctx,
		`SELECT cid, name, type, "notnull", pk FROM pragma_table_info(?, ?) ORDER BY cid`, name, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.Column
	for rows.Next() {
		var col core.Column
		var notNull, pk int
		if err := rows.Scan(&col.Position, &col.Name, &col.Type, &notNull, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Position++
		col.Nullable = notNull == 0
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return &core.TableMetadata{Schema: schema, Name: name, Columns: columns}, nil
}

// LoadCSV replaces a table with the contents of a CSV file. Column types
// are inferred from the values: INTEGER, REAL or TEXT.
func (a *Adapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	file, err := os.Open(filePath) //nolint:gosec // path comes from the caller
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	headers, records, err := readCSV(file)
	if err != nil {
		return err
	}
	types := inferColumnTypes(len(headers), records)

	table := Dialect.QuoteIdentifier(tableName)
	defs := make([]string, len(headers))
	marks := make([]string, len(headers))
	for i, h := range headers {
		defs[i] = Dialect.QuoteIdentifier(strings.TrimSpace(h)) + " " + types[i]
		marks[i] = "?"
	}

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		args := make([]any, len(rec))
		for i, v := range rec {
			args[i] = convertValue(v, types[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}
	return tx.Commit()
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	headers, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	reader.FieldsPerRecord = len(headers)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return headers, records, nil
}

// inferColumnTypes picks the narrowest type that holds every non-empty
// value of a column.
func inferColumnTypes(n int, records [][]string) []string {
	types := make([]string, n)
	for i := range types {
		types[i] = "INTEGER"
		seen := false
		for _, rec := range records {
			v := strings.TrimSpace(rec[i])
			if v == "" {
				continue
			}
			seen = true
			if types[i] == "INTEGER" {
				if _, err := strconv.ParseInt(v, 10, 64); err == nil {
					continue
				}
				types[i] = "REAL"
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				types[i] = "TEXT"
				break
			}
		}
		if !seen {
			types[i] = "TEXT"
		}
	}
	return types
}

func convertValue(v, typ string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	switch typ {
	case "INTEGER":
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case "REAL":
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return v
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
