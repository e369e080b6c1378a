package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// traceTTL bounds how long dry-run traces stick around.
const traceTTL = 7 * 24 * time.Hour

// TraceRepository stores dry-run traces as JSON values with a TTL.
type TraceRepository struct {
	client *redis.Client
}

// NewTraceRepository creates a new trace repository.
func NewTraceRepository(client *redis.Client) *TraceRepository {
	return &TraceRepository{client: client}
}

func traceKey(testRunID string) string {
	return keyPrefix + ":trace:" + testRunID
}

// SaveTrace stores the trace under the test run identifier.
func (r *TraceRepository) SaveTrace(ctx context.Context, testRunID string, trace *models.ExecutionTrace) error {
	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace %s: %w", testRunID, err)
	}

	if err := r.client.Set(ctx, traceKey(testRunID), data, traceTTL).Err(); err != nil {
		return fmt.Errorf("failed to save trace %s: %w", testRunID, err)
	}

	return nil
}

// TraceByID loads a stored trace.
func (r *TraceRepository) TraceByID(ctx context.Context, testRunID string) (*models.ExecutionTrace, error) {
	data, err := r.client.Get(ctx, traceKey(testRunID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("trace %s: %w", testRunID, persistence.ErrTraceNotFound)
		}

		return nil, fmt.Errorf("failed to load trace %s: %w", testRunID, err)
	}

	var trace models.ExecutionTrace

	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace %s: %w", testRunID, err)
	}

	return &trace, nil
}
