// Package condition provides the condition node evaluator: it evaluates a
// (field, operator, value) predicate against the lead and returns which
// branch label the engine should follow.
package condition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/leadflowhq/leadflow/pkg/models"
)

// Operator is the closed set of supported comparison operators.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreater     Operator = "gt"
	OpGreaterEq   Operator = "gte"
	OpLess        Operator = "lt"
	OpLessEq      Operator = "lte"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Config is the typed shape of a condition node's opaque config map.
type Config struct {
	Field         string
	Operator      Operator
	Value         any
	CaseSensitive bool
}

// ParseConfig parses the node's config map, failing fast on a missing
// field or an operator outside the closed set.
func ParseConfig(config map[string]any) (*Config, error) {
	field, ok := config["field"].(string)
	if !ok || field == "" {
		return nil, errors.New("missing required field 'field'")
	}

	opStr, ok := config["operator"].(string)
	if !ok || opStr == "" {
		return nil, errors.New("missing required field 'operator'")
	}

	op := Operator(opStr)
	if !op.valid() {
		return nil, fmt.Errorf("unknown operator %q", opStr)
	}

	parsed := &Config{
		Field:         field,
		Operator:      op,
		Value:         config["value"],
		CaseSensitive: true,
	}

	if cs, ok := config["caseSensitive"].(bool); ok {
		parsed.CaseSensitive = cs
	}

	return parsed, nil
}

func (op Operator) valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith,
		OpGreater, OpGreaterEq, OpLess, OpLessEq, OpIsEmpty, OpIsNotEmpty, OpIn, OpNotIn:
		return true
	}

	return false
}

// Evaluate dispatches the condition node against the lead. The returned
// outcome's branch label ("true"/"false") is the engine's sole mechanism
// for picking among the node's two outgoing edges.
func Evaluate(node *models.Node, lead *models.Lead) *models.Outcome {
	config, err := ParseConfig(node.Config)
	if err != nil {
		return models.Fail(fmt.Sprintf("invalid condition config: %v", err))
	}

	value, _ := lead.Field(config.Field)
	result := config.test(value)

	branch := models.BranchFalse
	if result {
		branch = models.BranchTrue
	}

	return models.Branched(branch, map[string]any{
		"field":  config.Field,
		"result": result,
	})
}

// test evaluates the configured operator against the resolved field
// value. Numeric comparisons on non-numeric operands are false, never an
// error.
func (c *Config) test(value any) bool {
	switch c.Operator {
	case OpEquals:
		return equals(value, c.Value, c.CaseSensitive)
	case OpNotEquals:
		return !equals(value, c.Value, c.CaseSensitive)
	case OpContains:
		return substring(value, c.Value, c.CaseSensitive, strings.Contains)
	case OpNotContains:
		return !substring(value, c.Value, c.CaseSensitive, strings.Contains)
	case OpStartsWith:
		return substring(value, c.Value, c.CaseSensitive, strings.HasPrefix)
	case OpEndsWith:
		return substring(value, c.Value, c.CaseSensitive, strings.HasSuffix)
	case OpGreater:
		return numeric(value, c.Value, func(a, b float64) bool { return a > b })
	case OpGreaterEq:
		return numeric(value, c.Value, func(a, b float64) bool { return a >= b })
	case OpLess:
		return numeric(value, c.Value, func(a, b float64) bool { return a < b })
	case OpLessEq:
		return numeric(value, c.Value, func(a, b float64) bool { return a <= b })
	case OpIsEmpty:
		return isEmpty(value)
	case OpIsNotEmpty:
		return !isEmpty(value)
	case OpIn:
		return inArray(value, c.Value, c.CaseSensitive)
	case OpNotIn:
		return !inArray(value, c.Value, c.CaseSensitive)
	}

	return false
}

func equals(a, b any, caseSensitive bool) bool {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
	}

	sa, okA := toString(a)
	sb, okB := toString(b)

	if okA && okB {
		if !caseSensitive {
			return strings.EqualFold(sa, sb)
		}

		return sa == sb
	}

	return a == b
}

func substring(value, operand any, caseSensitive bool, match func(string, string) bool) bool {
	haystack, okA := toString(value)
	needle, okB := toString(operand)

	if !okA || !okB {
		return false
	}

	if !caseSensitive {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}

	return match(haystack, needle)
}

func numeric(value, operand any, compare func(a, b float64) bool) bool {
	a, okA := toFloat(value)
	b, okB := toFloat(operand)

	if !okA || !okB {
		return false
	}

	return compare(a, b)
}

// isEmpty treats nil, whitespace-only strings, and empty collections as
// empty.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}

	return false
}

func inArray(value, operand any, caseSensitive bool) bool {
	items, ok := toSlice(operand)
	if !ok {
		return false
	}

	for _, item := range items {
		if equals(value, item, caseSensitive) {
			return true
		}
	}

	return false
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}

		return out, true
	}

	return nil, false
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
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}

	return 0, false
}

func toString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case bool:
		return strconv.FormatBool(v), true
	}

	return "", false
}
