// Package core defines the shared language of the LeapProfile system.
//
// This package contains:
//   - Domain entities (Domain, ParameterNode, ExpectationConfiguration, Batch)
//   - Collaborator interfaces (MetricProvider, BatchResolver, Store)
//   - Configuration types (ProfilerConfig, RuleConfig, builder configs)
//   - Typed errors shared by the profiler, assistants and datasources
//
// The Golden Rule: pkg/core imports ONLY stdlib, mapstructure and koanf/maps.
// All other packages depend on core, not the reverse.
package core
