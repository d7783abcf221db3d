package commands

import (
	"path/filepath"

	"github.com/leapstack-labs/leapprofile/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load seed data from CSV files",
		Long: `Load every CSV file of the seeds directory into the target database, one
table per file named after it. Existing tables are replaced.

Seeds let a file-based target (DuckDB, SQLite) hold the batches to profile.`,
		Example: `  # Load seeds into the configured target
  leapprofile seed --seeds-dir ./data

  # Load seeds as JSON
  leapprofile seed --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd)
		},
	}

	return cmd
}

func runSeed(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	db, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tables, err := loadSeedFiles(ctx, db, cc.Cfg.SeedsDir)
	if err != nil {
		return err
	}

	t := &output.Table{Title: "Seeds", Columns: []string{"table", "file"}}
	for _, table := range tables {
		t.Append(table, filepath.Join(cc.Cfg.SeedsDir, table+".csv"))
	}
	if r.EffectiveMode() != output.ModeJSON && len(tables) == 0 {
		r.Println("No seed files found in " + cc.Cfg.SeedsDir)
		return nil
	}
	return r.Table(t)
}
