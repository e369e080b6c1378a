// Package cmd provides common initialization for command-line entrypoints.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/persistence/file"
	"github.com/leadflowhq/leadflow/pkg/persistence/postgresql"
	"github.com/leadflowhq/leadflow/pkg/persistence/redis"
)

// NewPersistence selects a persistence backend from the database URL
// scheme. Anything without a recognized scheme is treated as a file
// root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgresql persistence: %w", err)
		}

		return p, nil
	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		p, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}
