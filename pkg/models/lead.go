package models

import (
	"strings"
	"time"
)

// Lead is the target record a workflow run operates on. Fields holds the
// arbitrary attribute map the record store returns; the engine treats it
// as opaque apart from the lookups the evaluators perform.
type Lead struct {
	ID           string         `json:"id"            validate:"required"`
	OwnerID      string         `json:"owner_id,omitempty"`
	Stage        string         `json:"stage,omitempty"`
	Score        float64        `json:"score"`
	Fields       map[string]any `json:"fields,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Audiences    []string       `json:"audiences,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Field resolves a field reference against the lead. Built-in attributes
// are addressed by name, custom fields through the "customFields.<key>"
// prefix, everything else through the Fields map (dotted paths descend
// into nested maps). The second return is false when the path does not
// resolve.
func (l *Lead) Field(path string) (any, bool) {
	switch path {
	case "id":
		return l.ID, true
	case "ownerId":
		return l.OwnerID, true
	case "stage":
		return l.Stage, true
	case "score":
		return l.Score, true
	case "tags":
		return l.Tags, true
	case "audiences":
		return l.Audiences, true
	}

	if key, ok := strings.CutPrefix(path, "customFields."); ok {
		value, found := l.CustomFields[key]
		return value, found
	}

	return lookupPath(l.Fields, path)
}

// HasTag reports whether the lead carries the given tag.
func (l *Lead) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// InAudience reports whether the lead is a member of the named audience.
func (l *Lead) InAudience(name string) bool {
	for _, a := range l.Audiences {
		if a == name {
			return true
		}
	}

	return false
}

// Clone returns a deep copy of the lead. Evaluators that expose the lead
// to user code (scripts, templates) work on a clone so no mutation path
// leads back into the engine's live state.
func (l *Lead) Clone() *Lead {
	clone := *l
	clone.Fields = deepCopyMap(l.Fields)
	clone.CustomFields = deepCopyMap(l.CustomFields)
	clone.Tags = append([]string(nil), l.Tags...)
	clone.Audiences = append([]string(nil), l.Audiences...)

	return &clone
}

func lookupPath(fields map[string]any, path string) (any, bool) {
	if fields == nil {
		return nil, false
	}

	current := any(fields)

	for _, part := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = deepCopyValue(value)
	}

	return dst
}

func deepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return deepCopyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopyValue(item)
		}

		return out
	default:
		return v
	}
}

// Activity is an entry in a lead's activity log, written by action
// evaluators through the record store.
type Activity struct {
	ID         string         `json:"id"`
	LeadID     string         `json:"lead_id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	Kind       string         `json:"kind"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
