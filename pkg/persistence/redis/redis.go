// Package redis provides Redis persistence for workflows, leads, paused
// execution state, and traces. Records are stored as JSON strings with
// set indexes; run counters and checkpoint versions live in hashes so
// they update atomically.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/leadflowhq/leadflow/pkg/persistence"
)

const keyPrefix = "leadflow"

// Persistence implements the persistence layer for Redis.
type Persistence struct {
	client       *redis.Client
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	leadRepo     *LeadRepository
	stateRepo    *PausedStateRepository
	traceRepo    *TraceRepository
}

// NewPersistence creates a new Redis persistence layer from a redis://
// connection URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:       client,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(client),
		leadRepo:     NewLeadRepository(client),
		stateRepo:    NewPausedStateRepository(client),
		traceRepo:    NewTraceRepository(client),
	}, nil
}

// Close closes the Redis connection.
func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}

	return nil
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
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
