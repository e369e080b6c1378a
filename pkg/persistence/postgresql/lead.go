package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// LeadRepository handles lead records and their activity log.
type LeadRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(db *sql.DB, logger *slog.Logger) *LeadRepository {
	return &LeadRepository{db: db, logger: logger}
}

const leadColumns = `
	id
  , owner_id
  , stage
  , score
  , fields
  , custom_fields
  , tags
  , audiences
  , created_at
  , updated_at
`

func scanLead(row rowScanner) (*models.Lead, error) {
	var (
		lead             models.Lead
		fieldsJSON       []byte
		customFieldsJSON []byte
		tagsJSON         []byte
		audiencesJSON    []byte
	)

	err := row.Scan(
		&lead.ID,
		&lead.OwnerID,
		&lead.Stage,
		&lead.Score,
		&fieldsJSON,
		&customFieldsJSON,
		&tagsJSON,
		&audiencesJSON,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fieldsJSON, &lead.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}

	if err := json.Unmarshal(customFieldsJSON, &lead.CustomFields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal custom fields: %w", err)
	}

	if err := json.Unmarshal(tagsJSON, &lead.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	if err := json.Unmarshal(audiencesJSON, &lead.Audiences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audiences: %w", err)
	}

	return &lead, nil
}

// LeadByID returns a lead by its ID.
func (r *LeadRepository) LeadByID(ctx context.Context, id string) (*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewLeadError("GetByID", id, persistence.ErrLeadNotFound)
		}

		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}

	return lead, nil
}

// SaveLead upserts a full lead record.
func (r *LeadRepository) SaveLead(ctx context.Context, lead *models.Lead) error {
	now := time.Now().UTC()

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}

	lead.UpdatedAt = now

	if lead.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate lead ID: %w", err)
		}

		lead.ID = id.String()
	}

	fieldsJSON, err := json.Marshal(orEmptyMap(lead.Fields))
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	customFieldsJSON, err := json.Marshal(orEmptyMap(lead.CustomFields))
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}

	tagsJSON, err := json.Marshal(orEmptySlice(lead.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	audiencesJSON, err := json.Marshal(orEmptySlice(lead.Audiences))
	if err != nil {
		return fmt.Errorf("failed to marshal audiences: %w", err)
	}

	query := `
		INSERT INTO leads (id, owner_id, stage, score, fields, custom_fields, tags, audiences, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			stage = EXCLUDED.stage,
			score = EXCLUDED.score,
			fields = EXCLUDED.fields,
			custom_fields = EXCLUDED.custom_fields,
			tags = EXCLUDED.tags,
			audiences = EXCLUDED.audiences,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		lead.ID,
		lead.OwnerID,
		lead.Stage,
		lead.Score,
		fieldsJSON,
		customFieldsJSON,
		tagsJSON,
		audiencesJSON,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return persistence.NewLeadError("Save", lead.ID, err)
	}

	return nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}

// UpdateLead applies a field patch in a single UPDATE. Column-backed
// keys update their column; customFields.<key> and unknown keys merge
// into their JSONB document.
func (r *LeadRepository) UpdateLead(ctx context.Context, leadID string, patch map[string]any) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{leadID}

	fieldsPatch := map[string]any{}
	customPatch := map[string]any{}

	for key, value := range patch {
		switch key {
		case "stage", "ownerId", "score", "tags", "audiences":
			column := map[string]string{
				"stage":     "stage",
				"ownerId":   "owner_id",
				"score":     "score",
				"tags":      "tags",
				"audiences": "audiences",
			}[key]

			if key == "tags" || key == "audiences" {
				data, err := json.Marshal(value)
				if err != nil {
					return persistence.NewLeadError("Update", leadID, err)
				}

				args = append(args, data)
			} else {
				args = append(args, value)
			}

			sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
		default:
			if rest, found := strings.CutPrefix(key, "customFields."); found {
				customPatch[rest] = value
			} else {
				fieldsPatch[key] = value
			}
		}
	}

	if len(fieldsPatch) > 0 {
		data, err := json.Marshal(fieldsPatch)
		if err != nil {
			return persistence.NewLeadError("Update", leadID, err)
		}

		args = append(args, data)
		sets = append(sets, fmt.Sprintf("fields = fields || $%d::jsonb", len(args)))
	}

	if len(customPatch) > 0 {
		data, err := json.Marshal(customPatch)
		if err != nil {
			return persistence.NewLeadError("Update", leadID, err)
		}

		args = append(args, data)
		sets = append(sets, fmt.Sprintf("custom_fields = custom_fields || $%d::jsonb", len(args)))
	}

	query := "UPDATE leads SET " + strings.Join(sets, ", ") + " WHERE id = $1"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewLeadError("Update", leadID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewLeadError("Update", leadID, persistence.ErrLeadNotFound)
	}

	return nil
}

// DeleteLead removes a lead and its activity log.
func (r *LeadRepository) DeleteLead(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM lead_activities WHERE lead_id = $1", id); err != nil {
		return persistence.NewLeadError("Delete", id, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM leads WHERE id = $1", id); err != nil {
		return persistence.NewLeadError("Delete", id, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AddActivity appends an activity entry.
func (r *LeadRepository) AddActivity(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	detailJSON, err := json.Marshal(orEmptyMap(activity.Detail))
	if err != nil {
		return fmt.Errorf("failed to marshal activity detail: %w", err)
	}

	query := `
		INSERT INTO lead_activities (id, lead_id, workflow_id, node_id, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		activity.ID,
		activity.LeadID,
		activity.WorkflowID,
		activity.NodeID,
		activity.Kind,
		detailJSON,
		activity.CreatedAt,
	)
	if err != nil {
		return persistence.NewLeadError("AddActivity", activity.LeadID, err)
	}

	return nil
}

// ActivitiesByLead returns the newest activities for a lead, up to limit.
func (r *LeadRepository) ActivitiesByLead(ctx context.Context, leadID string, limit int) ([]*models.Activity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, lead_id, workflow_id, node_id, kind, detail, created_at
		FROM lead_activities
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	activities := make([]*models.Activity, 0)

	for rows.Next() {
		var (
			activity   models.Activity
			detailJSON []byte
		)

		err := rows.Scan(
			&activity.ID,
			&activity.LeadID,
			&activity.WorkflowID,
			&activity.NodeID,
			&activity.Kind,
			&detailJSON,
			&activity.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		if err := json.Unmarshal(detailJSON, &activity.Detail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal activity detail: %w", err)
		}

		activities = append(activities, &activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}

// LeadsMatching returns ids of leads whose addressed fields equal every
// filter value.
func (r *LeadRepository) LeadsMatching(ctx context.Context, filter map[string]any, limit int) ([]string, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	where := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter)+1)

	for key, value := range filter {
		switch key {
		case "stage":
			args = append(args, fmt.Sprintf("%v", value))
			where = append(where, fmt.Sprintf("stage = $%d", len(args)))
		case "ownerId":
			args = append(args, fmt.Sprintf("%v", value))
			where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
		case "score":
			args = append(args, value)
			where = append(where, fmt.Sprintf("score = $%d", len(args)))
		default:
			column := "fields"
			lookupKey := key

			if rest, found := strings.CutPrefix(key, "customFields."); found {
				column = "custom_fields"
				lookupKey = rest
			}

			args = append(args, lookupKey, fmt.Sprintf("%v", value))
			where = append(where, fmt.Sprintf("%s->>$%d = $%d", column, len(args)-1, len(args)))
		}
	}

	query := "SELECT id FROM leads"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	return r.queryIDs(ctx, query, args...)
}

// AudienceMembers returns ids of leads belonging to the named audience.
func (r *LeadRepository) AudienceMembers(ctx context.Context, audience string, limit int) ([]string, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id FROM leads
		WHERE audiences @> jsonb_build_array($1::text)
		ORDER BY id
		LIMIT $2
	`

	return r.queryIDs(ctx, query, audience, limit)
}

func (r *LeadRepository) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan lead id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leads: %w", err)
	}

	return ids, nil
}
