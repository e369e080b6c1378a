package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLead() *Lead {
	return &Lead{
		ID:      "lead-1",
		OwnerID: "rep-3",
		Stage:   "qualified",
		Score:   42,
		Fields: map[string]any{
			"email": "ada@example.com",
			"company": map[string]any{
				"name": "Acme",
				"size": float64(250),
			},
		},
		CustomFields: map[string]any{"plan": "enterprise"},
		Tags:         []string{"vip", "newsletter"},
		Audiences:    []string{"trial-users"},
	}
}

func TestLeadField(t *testing.T) {
	lead := sampleLead()

	tests := []struct {
		name  string
		path  string
		want  any
		found bool
	}{
		{"built-in id", "id", "lead-1", true},
		{"built-in ownerId", "ownerId", "rep-3", true},
		{"built-in stage", "stage", "qualified", true},
		{"built-in score", "score", float64(42), true},
		{"top-level field", "email", "ada@example.com", true},
		{"nested field", "company.size", float64(250), true},
		{"custom field", "customFields.plan", "enterprise", true},
		{"missing custom field", "customFields.tier", nil, false},
		{"missing field", "phone", nil, false},
		{"path through non-map", "email.domain", nil, false},
		{"missing nested leaf", "company.city", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := lead.Field(tt.path)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLeadTagsAndAudiences(t *testing.T) {
	lead := sampleLead()

	assert.True(t, lead.HasTag("vip"))
	assert.False(t, lead.HasTag("churned"))
	assert.True(t, lead.InAudience("trial-users"))
	assert.False(t, lead.InAudience("customers"))
}

func TestLeadCloneIsDeep(t *testing.T) {
	lead := sampleLead()
	clone := lead.Clone()

	clone.Score = 99
	clone.Fields["email"] = "mallory@example.com"
	clone.Fields["company"].(map[string]any)["size"] = float64(1)
	clone.CustomFields["plan"] = "free"
	clone.Tags[0] = "stolen"

	assert.Equal(t, float64(42), lead.Score)
	assert.Equal(t, "ada@example.com", lead.Fields["email"])
	assert.Equal(t, float64(250), lead.Fields["company"].(map[string]any)["size"])
	assert.Equal(t, "enterprise", lead.CustomFields["plan"])
	assert.Equal(t, "vip", lead.Tags[0])
}

func TestLeadCloneNilMaps(t *testing.T) {
	lead := &Lead{ID: "lead-2"}
	clone := lead.Clone()

	require.NotNil(t, clone)
	assert.Nil(t, clone.Fields)
	assert.Nil(t, clone.CustomFields)
}
