// Package postgresql provides PostgreSQL persistence for workflows,
// leads, paused execution state, and traces.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	leadRepo     *LeadRepository
	stateRepo    *PausedStateRepository
	traceRepo    *TraceRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs
// pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		leadRepo:     NewLeadRepository(database, logger),
		stateRepo:    NewPausedStateRepository(database, logger),
		traceRepo:    NewTraceRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// WorkflowRepository returns the workflow repository.
func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

// LeadRepository returns the lead repository.
func (p *Persistence) LeadRepository() persistence.LeadRepository {
	return p.leadRepo
}

// PausedStateRepository returns the paused-state repository.
func (p *Persistence) PausedStateRepository() persistence.PausedStateRepository {
	return p.stateRepo
}

// TraceRepository returns the trace repository.
func (p *Persistence) TraceRepository() persistence.TraceRepository {
	return p.traceRepo
}
