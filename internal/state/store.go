// Package state records profiler run history in SQLite. The schema is
// managed by goose migrations embedded in the binary.
package state

import (
	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// Ensure SQLiteStore implements core.Store.
var _ core.Store = (*SQLiteStore)(nil)
