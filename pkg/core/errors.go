package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrUnknownAssistant = errors.New("unknown data assistant")
	ErrNoBatches        = errors.New("batch request resolved to no batches")
)

// ConfigErrorKind classifies configuration errors.
type ConfigErrorKind string

// Configuration error kinds.
const (
	ConfigUnresolvedReference ConfigErrorKind = "unresolved_reference"
	ConfigMutuallyExclusive   ConfigErrorKind = "mutually_exclusive"
	ConfigUnknownEstimator    ConfigErrorKind = "unknown_estimator"
	ConfigDependencyCycle     ConfigErrorKind = "dependency_cycle"
	ConfigInvalidOption       ConfigErrorKind = "invalid_option"
	ConfigUnknownClass        ConfigErrorKind = "unknown_class"
)

// ConfigError is raised for invalid profiler configuration. It is detected
// before any metric is computed for the affected rule.
type ConfigError struct {
	Kind    ConfigErrorKind
	Message string
	Err     error
}

// NewConfigError creates a ConfigError with a formatted message.
func NewConfigError(kind ConfigErrorKind, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Kind, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsConfigErrorKind reports whether err wraps a *ConfigError of the given kind.
func IsConfigErrorKind(err error, kind ConfigErrorKind) bool {
	var ce *ConfigError
	return errors.As(err, &ce) && ce.Kind == kind
}

// MetricError is a failed metric computation.
type MetricError struct {
	Metric  MetricConfiguration
	BatchID string
	Err     error
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("metric %s failed on batch %s: %v", e.Metric.String(), e.BatchID, e.Err)
}

func (e *MetricError) Unwrap() error {
	return e.Err
}

// RuleError locates a run failure: the rule, the domain and the builder
// that was executing.
type RuleError struct {
	Rule    string
	Domain  string
	Builder string
	Err     error
}

func (e *RuleError) Error() string {
	parts := []string{fmt.Sprintf("rule %q", e.Rule)}
	if e.Domain != "" {
		parts = append(parts, "domain "+e.Domain)
	}
	if e.Builder != "" {
		parts = append(parts, fmt.Sprintf("builder %q", e.Builder))
	}
	return fmt.Sprintf("%s: %v", strings.Join(parts, ", "), e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}
