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

// TraceRepository stores execution traces keyed by test-run identifier.
type TraceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTraceRepository creates a new trace repository.
func NewTraceRepository(db *sql.DB, logger *slog.Logger) *TraceRepository {
	return &TraceRepository{db: db, logger: logger}
}

// SaveTrace upserts the trace under the given test-run identifier.
func (r *TraceRepository) SaveTrace(ctx context.Context, testRunID string, trace *models.ExecutionTrace) error {
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace %s: %w", testRunID, err)
	}

	query := `
		INSERT INTO traces (test_run_id, trace, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (test_run_id) DO UPDATE SET trace = EXCLUDED.trace
	`

	_, err = r.db.ExecContext(ctx, query, testRunID, traceJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save trace %s: %w", testRunID, err)
	}

	return nil
}

// TraceByID retrieves a stored trace by its test-run identifier.
func (r *TraceRepository) TraceByID(ctx context.Context, testRunID string) (*models.ExecutionTrace, error) {
	var traceJSON []byte

	err := r.db.QueryRowContext(ctx, "SELECT trace FROM traces WHERE test_run_id = $1", testRunID).Scan(&traceJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTraceNotFound
		}

		return nil, fmt.Errorf("failed to query trace %s: %w", testRunID, err)
	}

	var trace models.ExecutionTrace

	if err := json.Unmarshal(traceJSON, &trace); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace %s: %w", testRunID, err)
	}

	return &trace, nil
}
