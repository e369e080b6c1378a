package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/scoring"
)

// ErrLeadNotFound is returned when a lead is not found.
var ErrLeadNotFound = persistence.ErrLeadNotFound

type Lead struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewLead creates a new lead service.
func NewLead(persistence persistence.Persistence, validate *validator.Validate) *Lead {
	return &Lead{
		persistence: persistence,
		validator:   validate,
	}
}

// FetchByID retrieves a lead by its identifier.
func (l *Lead) FetchByID(ctx context.Context, id string) (*models.Lead, error) {
	return l.persistence.LeadRepository().LeadByID(ctx, id)
}

// Save validates and stores a lead record.
func (l *Lead) Save(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	if lead == nil {
		return nil, ErrLeadNil
	}

	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}

	if err := l.validator.Struct(lead); err != nil {
		return nil, NewValidationError("Save", "invalid_lead", err.Error(), ErrInvalidRequest)
	}

	if err := l.persistence.LeadRepository().SaveLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}

	return lead, nil
}

// Patch applies a partial update to a lead.
func (l *Lead) Patch(ctx context.Context, leadID string, patch map[string]any) (*models.Lead, error) {
	if len(patch) == 0 {
		return nil, NewValidationError("Patch", "empty_patch", "patch cannot be empty", ErrInvalidRequest)
	}

	if err := l.persistence.LeadRepository().UpdateLead(ctx, leadID, patch); err != nil {
		return nil, err
	}

	return l.persistence.LeadRepository().LeadByID(ctx, leadID)
}

// Activities returns the most recent activity log entries for a lead.
func (l *Lead) Activities(ctx context.Context, leadID string, limit int) ([]*models.Activity, error) {
	return l.persistence.LeadRepository().ActivitiesByLead(ctx, leadID, limit)
}

// Rescore recomputes the lead's score under the given model, persists it
// and logs the change as an activity.
func (l *Lead) Rescore(ctx context.Context, leadID string, model *scoring.Model) (*models.Lead, error) {
	if err := l.validator.Struct(model); err != nil {
		return nil, NewValidationError("Rescore", "invalid_model", err.Error(), ErrInvalidRequest)
	}

	lead, err := l.persistence.LeadRepository().LeadByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	previous := lead.Score
	lead.Score = model.Score(lead)

	if err := l.persistence.LeadRepository().UpdateLead(ctx, leadID, map[string]any{"score": lead.Score}); err != nil {
		return nil, fmt.Errorf("failed to store score for lead %s: %w", leadID, err)
	}

	activity := &models.Activity{
		ID:     uuid.New().String(),
		LeadID: leadID,
		Kind:   "score_recomputed",
		Detail: map[string]any{
			"previous": previous,
			"score":    lead.Score,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := l.persistence.LeadRepository().AddActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("failed to log rescore for lead %s: %w", leadID, err)
	}

	return lead, nil
}

// Enrich merges an enrichment payload into the lead's fields. Existing
// values are kept unless overwrite is set.
func (l *Lead) Enrich(ctx context.Context, leadID string, payload map[string]any, overwrite bool) (*models.Lead, error) {
	if len(payload) == 0 {
		return nil, NewValidationError("Enrich", "empty_payload", "payload cannot be empty", ErrInvalidRequest)
	}

	lead, err := l.persistence.LeadRepository().LeadByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	patch := scoring.Merge(lead, payload, overwrite)
	if len(patch) == 0 {
		return lead, nil
	}

	if err := l.persistence.LeadRepository().UpdateLead(ctx, leadID, patch); err != nil {
		return nil, fmt.Errorf("failed to enrich lead %s: %w", leadID, err)
	}

	return lead, nil
}
