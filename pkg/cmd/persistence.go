// Package cmd provides the shared wiring helpers the binaries use to build
// persistence and event bus instances from configuration.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/routepack/routepack/pkg/persistence"
	"github.com/routepack/routepack/pkg/persistence/file"
	"github.com/routepack/routepack/pkg/persistence/postgresql"
)

// NewPersistence builds a persistence backend from a database URL. Postgres
// URLs get the real database; anything else falls back to file storage.
//
// nolint:ireturn // Factory intentionally returns the interface.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)

	return parts[0]
}
