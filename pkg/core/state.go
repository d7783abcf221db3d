package core

import "time"

// Store records profiler run history.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(profilerName string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, summary RunSummary, errMsg string) error
	GetLatestRun(profilerName string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	// Rule run operations
	RecordRuleRun(ruleRun *RuleRun) error
	GetRuleRunsForRun(runID string) ([]*RuleRun, error)
}

// RunStatus represents the status of a profiler run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one profiler or data assistant execution.
type Run struct {
	ID               string
	ProfilerName     string
	Status           RunStatus
	StartedAt        time.Time
	CompletedAt      *time.Time
	BatchCount       int
	ExpectationCount int
	Error            string
}

// RunSummary holds the counters written when a run completes.
type RunSummary struct {
	BatchCount       int
	ExpectationCount int
}

// RuleRun records the outcome of one rule within a run.
type RuleRun struct {
	ID               string
	RunID            string
	RuleName         string
	DomainCount      int
	ExpectationCount int
	ExecutionMS      int64
}
