package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadflowhq/leadflow/pkg/models"
)

func floatPtr(f float64) *float64 {
	return &f
}

func testScoringLead() *models.Lead {
	return &models.Lead{
		ID:    "lead-1",
		Stage: "qualified",
		Fields: map[string]any{
			"company":   "Acme",
			"employees": 250,
			"country":   "DE",
		},
		CustomFields: map[string]any{
			"plan": "pro",
		},
	}
}

func TestModelScore(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		want  float64
	}{
		{
			name: "equality rules sum weights",
			model: Model{Rules: []Rule{
				{Path: "stage", Equals: "qualified", Weight: 30},
				{Path: "country", Equals: "DE", Weight: 10},
			}},
			want: 40,
		},
		{
			name: "presence rule scores any value",
			model: Model{Rules: []Rule{
				{Path: "company", Weight: 5},
			}},
			want: 5,
		},
		{
			name: "numeric comparison ignores representation",
			model: Model{Rules: []Rule{
				{Path: "employees", Equals: float64(250), Weight: 20},
			}},
			want: 20,
		},
		{
			name: "custom field path",
			model: Model{Rules: []Rule{
				{Path: "customFields.plan", Equals: "pro", Weight: 15},
			}},
			want: 15,
		},
		{
			name: "unresolved path contributes nothing",
			model: Model{Rules: []Rule{
				{Path: "missing", Weight: 100},
				{Path: "stage", Equals: "qualified", Weight: 30},
			}},
			want: 30,
		},
		{
			name: "mismatched equality contributes nothing",
			model: Model{Rules: []Rule{
				{Path: "stage", Equals: "won", Weight: 50},
			}},
			want: 0,
		},
		{
			name: "cap clamps the total",
			model: Model{
				Rules: []Rule{
					{Path: "stage", Equals: "qualified", Weight: 80},
					{Path: "country", Equals: "DE", Weight: 80},
				},
				Cap: floatPtr(100),
			},
			want: 100,
		},
		{
			name: "floor clamps negative totals",
			model: Model{
				Rules: []Rule{
					{Path: "stage", Equals: "qualified", Weight: -20},
				},
				Floor: floatPtr(0),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.model.Score(testScoringLead()), 1e-9)
		})
	}
}

func TestMergeKeepsExistingValues(t *testing.T) {
	lead := testScoringLead()

	patch := Merge(lead, map[string]any{
		"company":  "Globex",
		"industry": "manufacturing",
	}, false)

	assert.Equal(t, map[string]any{"industry": "manufacturing"}, patch)
	assert.Equal(t, "Acme", lead.Fields["company"])
	assert.Equal(t, "manufacturing", lead.Fields["industry"])
}

func TestMergeOverwrite(t *testing.T) {
	lead := testScoringLead()

	patch := Merge(lead, map[string]any{"company": "Globex"}, true)

	assert.Equal(t, map[string]any{"company": "Globex"}, patch)
	assert.Equal(t, "Globex", lead.Fields["company"])
}

func TestMergeFillsEmptyValues(t *testing.T) {
	lead := &models.Lead{
		ID:     "lead-2",
		Fields: map[string]any{"company": ""},
	}

	patch := Merge(lead, map[string]any{"company": "Initech"}, false)

	assert.Equal(t, map[string]any{"company": "Initech"}, patch)
}

func TestMergeSkipsNilPayloadValues(t *testing.T) {
	lead := testScoringLead()

	patch := Merge(lead, map[string]any{"company": nil}, true)

	assert.Empty(t, patch)
	assert.Equal(t, "Acme", lead.Fields["company"])
}

func TestMergeInitializesNilFields(t *testing.T) {
	lead := &models.Lead{ID: "lead-3"}

	patch := Merge(lead, map[string]any{"country": "BR"}, false)

	assert.Equal(t, map[string]any{"country": "BR"}, patch)
	assert.Equal(t, "BR", lead.Fields["country"])
}
