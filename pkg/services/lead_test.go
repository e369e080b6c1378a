package services_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence/file"
	"github.com/leadflowhq/leadflow/pkg/scoring"
	"github.com/leadflowhq/leadflow/pkg/services"
)

func setupLeadService(t *testing.T) *services.Lead {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return services.NewLead(store, validator.New(validator.WithRequiredStructEnabled()))
}

func seedLead(t *testing.T, svc *services.Lead) *models.Lead {
	t.Helper()

	lead, err := svc.Save(context.Background(), &models.Lead{
		ID:    "lead-1",
		Stage: "new",
		Fields: map[string]any{
			"company": "Acme",
			"country": "DE",
		},
	})
	require.NoError(t, err)

	return lead
}

func TestLeadSaveGeneratesID(t *testing.T) {
	svc := setupLeadService(t)

	lead, err := svc.Save(context.Background(), &models.Lead{Stage: "new"})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
}

func TestLeadPatchRoundTrip(t *testing.T) {
	svc := setupLeadService(t)
	seedLead(t, svc)

	updated, err := svc.Patch(context.Background(), "lead-1", map[string]any{
		"stage": "qualified",
		"score": 42.0,
	})
	require.NoError(t, err)

	assert.Equal(t, "qualified", updated.Stage)
	assert.InDelta(t, 42.0, updated.Score, 1e-9)
}

func TestLeadPatchRejectsEmpty(t *testing.T) {
	svc := setupLeadService(t)
	seedLead(t, svc)

	_, err := svc.Patch(context.Background(), "lead-1", nil)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestLeadRescorePersistsAndLogs(t *testing.T) {
	svc := setupLeadService(t)
	seedLead(t, svc)

	model := &scoring.Model{Rules: []scoring.Rule{
		{Path: "country", Equals: "DE", Weight: 25},
	}}

	lead, err := svc.Rescore(context.Background(), "lead-1", model)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, lead.Score, 1e-9)

	stored, err := svc.FetchByID(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.InDelta(t, 25.0, stored.Score, 1e-9)

	activities, err := svc.Activities(context.Background(), "lead-1", 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "score_recomputed", activities[0].Kind)
}

func TestLeadRescoreRejectsEmptyModel(t *testing.T) {
	svc := setupLeadService(t)
	seedLead(t, svc)

	_, err := svc.Rescore(context.Background(), "lead-1", &scoring.Model{})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestLeadEnrichKeepsExistingFields(t *testing.T) {
	svc := setupLeadService(t)
	seedLead(t, svc)

	lead, err := svc.Enrich(context.Background(), "lead-1", map[string]any{
		"company":  "Globex",
		"industry": "manufacturing",
	}, false)
	require.NoError(t, err)

	assert.Equal(t, "Acme", lead.Fields["company"])
	assert.Equal(t, "manufacturing", lead.Fields["industry"])

	stored, err := svc.FetchByID(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "manufacturing", stored.Fields["industry"])
}
