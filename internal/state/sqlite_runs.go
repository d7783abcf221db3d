package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

const runColumns = `id, profiler_name, status, started_at, completed_at, batch_count, expectation_count, error`

// CreateRun records the start of a profiler run.
func (s *SQLiteStore) CreateRun(profilerName string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	id := generateID()
	started := s.timestamp()
	s.logger.Debug("creating run", slog.String("id", id), slog.String("profiler", profilerName))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, profiler_name, status, started_at) VALUES (?, ?, ?, ?)`,
		id, profilerName, string(core.RunStatusRunning), started,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return s.GetRun(id)
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status and counters.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, summary core.RunSummary, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}
	s.logger.Debug("completing run", slog.String("id", id), slog.String("status", string(status)))

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, batch_count = ?, expectation_count = ?, error = ? WHERE id = ?`,
		string(status), s.timestamp(), summary.BatchCount, summary.ExpectationCount, errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetLatestRun retrieves the most recent run of a profiler, or nil when
// it has never run.
func (s *SQLiteStore) GetLatestRun(profilerName string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	run, err := scanRun(s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE profiler_name = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		profilerName,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// RecordRuleRun stores the outcome of one rule of a run.
func (s *SQLiteStore) RecordRuleRun(rr *core.RuleRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if rr.ID == "" {
		rr.ID = generateID()
	}
	_, err := s.db.Exec(
		`INSERT INTO rule_runs (id, run_id, rule_name, domain_count, expectation_count, execution_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rr.ID, rr.RunID, rr.RuleName, rr.DomainCount, rr.ExpectationCount, rr.ExecutionMS, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to record rule run: %w", err)
	}
	return nil
}

// GetRuleRunsForRun returns the rule runs of a run in recording order.
func (s *SQLiteStore) GetRuleRunsForRun(runID string) ([]*core.RuleRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, rule_name, domain_count, expectation_count, execution_ms
		 FROM rule_runs WHERE run_id = ? ORDER BY recorded_at, rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.RuleRun
	for rows.Next() {
		rr := &core.RuleRun{}
		if err := rows.Scan(&rr.ID, &rr.RunID, &rr.RuleName, &rr.DomainCount, &rr.ExpectationCount, &rr.ExecutionMS); err != nil {
			return nil, fmt.Errorf("failed to scan rule run: %w", err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*core.Run, error) {
	run := &core.Run{}
	var status, started string
	var completed, errMsg sql.NullString
	if err := row.Scan(&run.ID, &run.ProfilerName, &status, &started, &completed,
		&run.BatchCount, &run.ExpectationCount, &errMsg); err != nil {
		return nil, err
	}
	run.Status = core.RunStatus(status)

	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	run.StartedAt = t
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, fmt.Errorf("invalid completed_at %q: %w", completed.String, err)
		}
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return run, nil
}
