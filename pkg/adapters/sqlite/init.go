package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/leapprofile/pkg/adapter"
)

func init() {
	adapter.Register(adapter.Registration{
		Type:      "sqlite",
		Dialect:   Dialect,
		FileBased: true,
		New:       func(logger *slog.Logger) adapter.Adapter { return New(logger) },
	})
}
