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

// PausedStateRepository stores pause checkpoints as hashes holding the
// serialized state and its version, with a sorted-set index on resume
// time. Consumption runs through a Lua script so the version check and
// delete are one atomic step.
type PausedStateRepository struct {
	client *redis.Client
}

// NewPausedStateRepository creates a new paused-state repository.
func NewPausedStateRepository(client *redis.Client) *PausedStateRepository {
	return &PausedStateRepository{client: client}
}

func pausedKey(workflowID, leadID string) string {
	return keyPrefix + ":paused:" + workflowID + ":" + leadID
}

const pausedDueIndexKey = keyPrefix + ":paused:due"

// clearScript deletes the checkpoint only when the stored version
// matches. Returns 1 on success, 0 on version mismatch, -1 when the
// checkpoint does not exist.
var clearScript = redis.NewScript(`
	local version = redis.call('HGET', KEYS[1], 'version')
	if not version then
		return -1
	end
	if version ~= ARGV[1] then
		return 0
	end
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], KEYS[1])
	return 1
`)

// SavePausedState upserts the checkpoint and its due-index entry.
func (r *PausedStateRepository) SavePausedState(ctx context.Context, state *models.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, state.LeadID, err)
	}

	key := pausedKey(state.WorkflowID, state.LeadID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "state", data, "version", state.Version)

	if state.ResumeAt != nil {
		pipe.ZAdd(ctx, pausedDueIndexKey, redis.Z{
			Score:  float64(state.ResumeAt.UnixMilli()),
			Member: key,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, state.LeadID, err)
	}

	return nil
}

// LoadPausedState returns the checkpoint for the key, or nil when none exists.
func (r *PausedStateRepository) LoadPausedState(ctx context.Context, workflowID, leadID string) (*models.ExecutionState, error) {
	data, err := r.client.HGet(ctx, pausedKey(workflowID, leadID), "state").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, persistence.NewStateError("Load", workflowID, leadID, err)
	}

	var state models.ExecutionState

	if err := json.Unmarshal(data, &state); err != nil {
		return nil, persistence.NewStateError("Load", workflowID, leadID, err)
	}

	return &state, nil
}

// ListDuePausedStates returns checkpoints whose resume time has passed,
// oldest first.
func (r *PausedStateRepository) ListDuePausedStates(ctx context.Context, before time.Time, limit int) ([]*models.ExecutionState, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	keys, err := r.client.ZRangeByScore(ctx, pausedDueIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", before.UnixMilli()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due paused states: %w", err)
	}

	states := make([]*models.ExecutionState, 0, len(keys))

	for _, key := range keys {
		data, err := r.client.HGet(ctx, key, "state").Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Consumed between the index read and here.
				continue
			}

			return nil, fmt.Errorf("failed to read paused state %s: %w", key, err)
		}

		var state models.ExecutionState

		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal paused state %s: %w", key, err)
		}

		states = append(states, &state)
	}

	return states, nil
}

// ClearPausedState consumes the checkpoint atomically, rejecting a
// stale version.
func (r *PausedStateRepository) ClearPausedState(ctx context.Context, workflowID, leadID string, version int) error {
	key := pausedKey(workflowID, leadID)

	result, err := clearScript.Run(ctx, r.client,
		[]string{key, pausedDueIndexKey}, version).Int()
	if err != nil {
		return persistence.NewStateError("Clear", workflowID, leadID, err)
	}

	switch result {
	case 1:
		return nil
	case 0:
		return persistence.NewStateError("Clear", workflowID, leadID, persistence.ErrVersionConflict)
	default:
		return persistence.NewStateError("Clear", workflowID, leadID, persistence.ErrPausedStateNotFound)
	}
}
