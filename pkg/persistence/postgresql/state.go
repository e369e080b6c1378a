package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// PausedStateRepository stores pause checkpoints. The version column
// backs the optimistic check that serializes concurrent resumes: the
// consuming DELETE matches on version, so exactly one caller wins.
type PausedStateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPausedStateRepository creates a new paused-state repository.
func NewPausedStateRepository(db *sql.DB, logger *slog.Logger) *PausedStateRepository {
	return &PausedStateRepository{db: db, logger: logger}
}

// SavePausedState upserts the checkpoint for the state's key.
func (r *PausedStateRepository) SavePausedState(ctx context.Context, state *models.ExecutionState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, state.LeadID, err)
	}

	query := `
		INSERT INTO paused_states (workflow_id, lead_id, state, version, resume_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (workflow_id, lead_id) DO UPDATE SET
			state = EXCLUDED.state,
			version = EXCLUDED.version,
			resume_at = EXCLUDED.resume_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		state.WorkflowID,
		state.LeadID,
		stateJSON,
		state.Version,
		state.ResumeAt,
	)
	if err != nil {
		return persistence.NewStateError("Save", state.WorkflowID, state.LeadID, err)
	}

	return nil
}

// LoadPausedState returns the checkpoint for the key, or nil when none exists.
func (r *PausedStateRepository) LoadPausedState(ctx context.Context, workflowID, leadID string) (*models.ExecutionState, error) {
	var stateJSON []byte

	query := "SELECT state FROM paused_states WHERE workflow_id = $1 AND lead_id = $2"

	err := r.db.QueryRowContext(ctx, query, workflowID, leadID).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewStateError("Load", workflowID, leadID, err)
	}

	var state models.ExecutionState

	if err := json.Unmarshal(stateJSON, &state); err != nil {
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

	query := `
		SELECT state FROM paused_states
		WHERE resume_at IS NOT NULL AND resume_at <= $1
		ORDER BY resume_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due paused states: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	states := make([]*models.ExecutionState, 0)

	for rows.Next() {
		var stateJSON []byte

		if err := rows.Scan(&stateJSON); err != nil {
			return nil, fmt.Errorf("failed to scan paused state: %w", err)
		}

		var state models.ExecutionState

		if err := json.Unmarshal(stateJSON, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal paused state: %w", err)
		}

		states = append(states, &state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paused states: %w", err)
	}

	return states, nil
}

// ClearPausedState consumes the checkpoint. The DELETE matches on
// version; zero affected rows means either the checkpoint is gone or
// another consumer already took it.
func (r *PausedStateRepository) ClearPausedState(ctx context.Context, workflowID, leadID string, version int) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM paused_states WHERE workflow_id = $1 AND lead_id = $2 AND version = $3",
		workflowID, leadID, version)
	if err != nil {
		return persistence.NewStateError("Clear", workflowID, leadID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		exists, err := r.LoadPausedState(ctx, workflowID, leadID)
		if err != nil {
			return err
		}

		if exists == nil {
			return persistence.NewStateError("Clear", workflowID, leadID, persistence.ErrPausedStateNotFound)
		}

		return persistence.NewStateError("Clear", workflowID, leadID, persistence.ErrVersionConflict)
	}

	return nil
}
