// Package scoring computes weighted lead scores and merges enrichment
// payloads into lead records.
package scoring

import (
	"fmt"
	"math"

	"github.com/leadflowhq/leadflow/pkg/models"
)

// Rule awards Weight when the lead's field at Path matches. An empty
// Equals matches any present value, so a rule can score mere presence.
type Rule struct {
	Path   string  `json:"path"   validate:"required"`
	Equals any     `json:"equals,omitempty"`
	Weight float64 `json:"weight" validate:"required"`
}

// Model is an ordered list of scoring rules with an optional floor and
// ceiling for the final score.
type Model struct {
	Rules []Rule   `json:"rules" validate:"required,min=1,dive"`
	Floor *float64 `json:"floor,omitempty"`
	Cap   *float64 `json:"cap,omitempty"`
}

// Score evaluates every rule against the lead and returns the clamped
// weighted sum. Rules never error; a path that does not resolve simply
// contributes nothing.
func (m *Model) Score(lead *models.Lead) float64 {
	var total float64

	for _, rule := range m.Rules {
		value, ok := lead.Field(rule.Path)
		if !ok {
			continue
		}

		if rule.Equals == nil || valuesEqual(value, rule.Equals) {
			total += rule.Weight
		}
	}

	if m.Floor != nil && total < *m.Floor {
		total = *m.Floor
	}

	if m.Cap != nil && total > *m.Cap {
		total = *m.Cap
	}

	return total
}

// valuesEqual compares leniently across JSON decoding artifacts: numbers
// compare by value regardless of int/float representation, everything
// else by string form.
func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

	if aok && bok {
		return math.Abs(af-bf) < 1e-9
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}

	return 0, false
}

// Merge folds an enrichment payload into the lead and returns the patch
// that was applied. Existing values win unless overwrite is set; nested
// maps are not descended, the payload value replaces wholesale.
func Merge(lead *models.Lead, payload map[string]any, overwrite bool) map[string]any {
	patch := make(map[string]any)

	for key, value := range payload {
		if value == nil {
			continue
		}

		if lead.Fields == nil {
			lead.Fields = make(map[string]any)
		}

		if existing, present := lead.Fields[key]; present && !overwrite {
			if existing != nil && fmt.Sprintf("%v", existing) != "" {
				continue
			}
		}

		lead.Fields[key] = value
		patch[key] = value
	}

	return patch
}
