package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapprofile/pkg/adapter"
)

func init() {
	adapter.Register(adapter.Registration{
		Type:    "postgres",
		Dialect: Dialect,
		New:     func(logger *slog.Logger) adapter.Adapter { return New(logger) },
	})
}
