package commands

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapprofile/internal/cli/output"
	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded profiler runs",
		Long: `List the profiler runs recorded in the state database, newest first.

Use "runs show <id>" for the rules of one run.`,
		Example: `  leapprofile runs --limit 5
  leapprofile runs show 0b6f0c1e-3f0a-4f55-9d0e-1f2c3d4e5f60`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunsList(cmd, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs (0 for all)")
	cmd.AddCommand(newRunsShowCommand())
	return cmd
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run and its rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd, args[0])
		},
	}
}

func runRunsList(cmd *cobra.Command, limit int) error {
	cc := NewCommandContext(cmd)
	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	return cc.Renderer.Table(runTable(runs))
}

func runRunsShow(cmd *cobra.Command, id string) error {
	cc := NewCommandContext(cmd)
	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	rules, err := store.GetRuleRunsForRun(id)
	if err != nil {
		return err
	}

	r := cc.Renderer
	rt := &output.Table{Title: "Rules", Columns: []string{"rule", "domains", "expectations", "duration_ms"}}
	for _, rr := range rules {
		rt.Append(rr.RuleName, rr.DomainCount, rr.ExpectationCount, rr.ExecutionMS)
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"run":   runTable([]*core.Run{run}).Records()[0],
			"rules": rt.Records(),
		})
	}

	r.Header(1, fmt.Sprintf("Run %s", run.ID))
	r.Println(output.FormatKeyValue("Profiler", run.ProfilerName))
	r.Println(output.FormatKeyValue("Status", cases.Title(language.English).String(string(run.Status))))
	r.Println(output.FormatKeyValue("Started", run.StartedAt.Format(time.RFC3339)))
	if run.CompletedAt != nil {
		r.Println(output.FormatKeyValue("Duration", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()))
	}
	r.Println(output.FormatKeyValue("Batches", fmt.Sprint(run.BatchCount)))
	r.Println(output.FormatKeyValue("Expectations", fmt.Sprint(run.ExpectationCount)))
	if run.Error != "" {
		r.Println(output.FormatKeyValue("Error", run.Error))
	}
	r.Println("")
	return r.Table(rt)
}

// runTable lists runs, one row each.
func runTable(runs []*core.Run) *output.Table {
	t := &output.Table{
		Title:   "Runs",
		Columns: []string{"id", "profiler", "status", "started_at", "completed_at", "batches", "expectations", "error"},
	}
	for _, run := range runs {
		var completed any
		if run.CompletedAt != nil {
			completed = run.CompletedAt.Format(time.RFC3339)
		}
		t.Append(run.ID, run.ProfilerName, string(run.Status), run.StartedAt.Format(time.RFC3339),
			completed, run.BatchCount, run.ExpectationCount, run.Error)
	}
	return t
}
