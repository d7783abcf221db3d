package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapprofile/internal/cli/config"
	"github.com/leapstack-labs/leapprofile/internal/cli/output"
	"github.com/leapstack-labs/leapprofile/internal/state"
	"github.com/leapstack-labs/leapprofile/pkg/adapter"
	"github.com/leapstack-labs/leapprofile/pkg/datasource"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or defaults when none was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		StatePath:    config.DefaultStateFile,
		OutputFormat: config.DefaultOutput,
		Target:       &config.TargetConfig{Type: config.DefaultTargetType},
		Datasource:   config.DatasourceConfig{Name: config.DefaultDatasource},
	}
}

// openStore opens the run ledger, creating its directory when needed.
func (c *CommandContext) openStore() (*state.SQLiteStore, error) {
	stateDir := filepath.Dir(c.Cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// connect opens the configured target database.
func (c *CommandContext) connect(ctx context.Context) (adapter.Adapter, error) {
	db, err := adapter.NewAdapter(c.Cfg.Target.AdapterConfig(), c.Logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, c.Cfg.Target.AdapterConfig()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.Cfg.Target.Type, err)
	}
	return db, nil
}

// openDatasource connects to the target and builds the SQL datasource.
// The returned cleanup closes the connection.
func (c *CommandContext) openDatasource(ctx context.Context, loadSeeds bool) (*datasource.SQLDatasource, func(), error) {
	db, err := c.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = db.Close() }

	if loadSeeds {
		if _, err := loadSeedFiles(ctx, db, c.Cfg.SeedsDir); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	dsCfg := c.Cfg.Datasource.Config()
	dsCfg.Logger = c.Logger
	ds, err := datasource.New(db, dsCfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return ds, cleanup, nil
}

// getSeedFiles returns the CSV files in the seeds directory, sorted.
func getSeedFiles(seedsDir string) ([]string, error) {
	if seedsDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(seedsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// loadSeedFiles loads every seed CSV into a table named after the file.
func loadSeedFiles(ctx context.Context, db adapter.Adapter, seedsDir string) ([]string, error) {
	files, err := getSeedFiles(seedsDir)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(files))
	for _, f := range files {
		table := strings.TrimSuffix(f, ".csv")
		if err := db.LoadCSV(ctx, table, filepath.Join(seedsDir, f)); err != nil {
			return nil, fmt.Errorf("failed to load seed %s: %w", f, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}
