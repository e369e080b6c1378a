// Package action provides the action node evaluator. The catalog of
// action subtypes is a closed set dispatched through an exhaustive
// switch; adding an action is a compile-checked change. Side effects go
// through the LeadStore and TaskQueue interfaces so the dry-run harness
// can swap in recording no-ops.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/callout"
	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/script"
)

// Kind is the closed catalog of action subtypes.
type Kind string

const (
	KindAssignOwner        Kind = "assign_owner"
	KindAddTag             Kind = "add_tag"
	KindRemoveTag          Kind = "remove_tag"
	KindSendMessage        Kind = "send_message"
	KindUpdateField        Kind = "update_field"
	KindAdjustField        Kind = "adjust_field"
	KindAddToAudience      Kind = "add_to_audience"
	KindRemoveFromAudience Kind = "remove_from_audience"
	KindEnqueueTask        Kind = "enqueue_task"
	KindSendWebhook        Kind = "send_webhook"
	KindRunScript          Kind = "run_script"
)

// KnownKinds lists every action subtype in the catalog.
var KnownKinds = []Kind{
	KindAssignOwner, KindAddTag, KindRemoveTag, KindSendMessage,
	KindUpdateField, KindAdjustField, KindAddToAudience,
	KindRemoveFromAudience, KindEnqueueTask, KindSendWebhook, KindRunScript,
}

// writableFields is the allow-list for update_field outside the
// customFields escape hatch.
var writableFields = map[string]bool{
	"stage":     true,
	"ownerId":   true,
	"score":     true,
	"firstName": true,
	"lastName":  true,
	"email":     true,
	"phone":     true,
	"company":   true,
	"notes":     true,
}

// LeadStore is the slice of the record store the action evaluator needs:
// patch writes and activity-log entries. Implementations are expected to
// make writes safe to retry.
type LeadStore interface {
	UpdateLead(ctx context.Context, leadID string, patch map[string]any) error
	AddActivity(ctx context.Context, activity *models.Activity) error
}

// TaskQueue accepts fire-and-forget delivery tasks; the engine never
// awaits delivery confirmation.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *models.Task) error
}

// Caller executes outbound HTTP calls with retry policy.
type Caller interface {
	Do(ctx context.Context, req callout.Request, policy callout.RetryPolicy, timeout time.Duration) (*callout.Result, error)
}

// ScriptRunner executes sandboxed scripts seeded with the run's
// variables.
type ScriptRunner interface {
	Run(ctx context.Context, source string, lead *models.Lead, vars map[string]any, timeout time.Duration) (*script.Result, error)
}

// Evaluator dispatches action nodes against a lead.
type Evaluator struct {
	store   LeadStore
	queue   TaskQueue
	caller  Caller
	scripts ScriptRunner
	logger  *slog.Logger
}

// NewEvaluator creates an action evaluator with its collaborators.
func NewEvaluator(store LeadStore, queue TaskQueue, caller Caller, scripts ScriptRunner, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:   store,
		queue:   queue,
		caller:  caller,
		scripts: scripts,
		logger:  logger.With("module", "action_evaluator"),
	}
}

// Evaluate dispatches the action node. The in-memory lead is mutated
// alongside the store patch so downstream conditions in the same run
// observe the action's effect. Variables is the run's variable store,
// shared with run_script.
func (e *Evaluator) Evaluate(ctx context.Context, run RunInfo, node *models.Node, lead *models.Lead, vars map[string]any) *models.Outcome {
	kind := Kind(node.Subtype)

	var outcome *models.Outcome

	switch kind {
	case KindAssignOwner:
		outcome = e.assignOwner(ctx, node, lead)
	case KindAddTag:
		outcome = e.addTag(ctx, node, lead)
	case KindRemoveTag:
		outcome = e.removeTag(ctx, node, lead)
	case KindSendMessage:
		outcome = e.sendMessage(ctx, run, node, lead)
	case KindUpdateField:
		outcome = e.updateField(ctx, node, lead)
	case KindAdjustField:
		outcome = e.adjustField(ctx, node, lead)
	case KindAddToAudience:
		outcome = e.audience(ctx, node, lead, true)
	case KindRemoveFromAudience:
		outcome = e.audience(ctx, node, lead, false)
	case KindEnqueueTask:
		outcome = e.enqueueTask(ctx, run, node, lead)
	case KindSendWebhook:
		outcome = e.sendWebhook(ctx, node, lead)
	case KindRunScript:
		outcome = e.runScript(ctx, node, lead, vars)
	default:
		outcome = models.Fail(fmt.Sprintf("unknown action subtype %q", node.Subtype))
	}

	if outcome.Kind == models.OutcomeSuccess {
		e.logActivity(ctx, run, node, lead, outcome)
	}

	return outcome
}

// RunInfo identifies the run an action executes within, for activity log
// and task attribution.
type RunInfo struct {
	WorkflowID string
	LeadID     string
}

func (e *Evaluator) logActivity(ctx context.Context, run RunInfo, node *models.Node, lead *models.Lead, outcome *models.Outcome) {
	activity := &models.Activity{
		ID:         uuid.New().String(),
		LeadID:     lead.ID,
		WorkflowID: run.WorkflowID,
		NodeID:     node.ID,
		Kind:       node.Subtype,
		Detail:     outcome.Data,
		CreatedAt:  time.Now().UTC(),
	}

	if err := e.store.AddActivity(ctx, activity); err != nil {
		// Activity logging is best-effort bookkeeping.
		e.logger.Warn("failed to record activity", "lead_id", lead.ID, "node_id", node.ID, "error", err)
	}
}

func (e *Evaluator) assignOwner(ctx context.Context, node *models.Node, lead *models.Lead) *models.Outcome {
	ownerID, ok := node.Config["ownerId"].(string)
	if !ok || ownerID == "" {
		return models.Fail("missing required field 'ownerId'")
	}

	previous := lead.OwnerID
	lead.OwnerID = ownerID

	if err := e.store.UpdateLead(ctx, lead.ID, map[string]any{"ownerId": ownerID}); err != nil {
		return models.Fail(fmt.Sprintf("failed to assign owner: %v", err))
	}

	return models.Success(map[string]any{"owner_id": ownerID, "previous_owner_id": previous})
}

func (e *Evaluator) addTag(ctx context.Context, node *models.Node, lead *models.Lead) *models.Outcome {
	tag, ok := node.Config["tag"].(string)
	if !ok || tag == "" {
		return models.Fail("missing required field 'tag'")
	}

	if lead.HasTag(tag) {
		return models.Success(map[string]any{"tag": tag, "already_present": true})
	}

	lead.Tags = append(lead.Tags, tag)

	if err := e.store.UpdateLead(ctx, lead.ID, map[string]any{"tags": lead.Tags}); err != nil {
		return models.Fail(fmt.Sprintf("failed to add tag: %v", err))
	}

	return models.Success(map[string]any{"tag": tag})
}

func (e *Evaluator) removeTag(ctx context.Context, node *models.Node, lead *models.Lead) *models.Outcome {
	tag, ok := node.Config["tag"].(string)
	if !ok || tag == "" {
		return models.Fail("missing required field 'tag'")
	}

	kept := lead.Tags[:0]
	removed := false

	for _, t := range lead.Tags {
		if t == tag {
			removed = true
			continue
		}

		kept = append(kept, t)
	}

	lead.Tags = kept

	if removed {
		if err := e.store.UpdateLead(ctx, lead.ID, map[string]any{"tags": lead.Tags}); err != nil {
			return models.Fail(fmt.Sprintf("failed to remove tag: %v", err))
		}
	}

	return models.Success(map[string]any{"tag": tag, "removed": removed})
}

func (e *Evaluator) sendMessage(ctx context.Context, run RunInfo, node *models.Node, lead *models.Lead) *models.Outcome {
	channel, ok := node.Config["channel"].(string)
	if !ok || channel == "" {
		return models.Fail("missing required field 'channel'")
	}

	message, ok := node.Config["message"].(string)
	if !ok || message == "" {
		return models.Fail("missing required field 'message'")
	}

	task := &models.Task{
		ID:         uuid.New().String(),
		Kind:       models.TaskKindMessage,
		LeadID:     lead.ID,
		WorkflowID: run.WorkflowID,
		NodeID:     node.ID,
		Channel:    channel,
		Payload:    map[string]any{"message": message},
		EnqueuedAt: time.Now().UTC(),
	}

	if err := e.queue.Enqueue(ctx, task); err != nil {
		return models.Fail(fmt.Sprintf("failed to enqueue message: %v", err))
	}

	return models.Success(map[string]any{"task_id": task.ID, "channel": channel})
}

// updateField writes a single field, restricted to the writable
// allow-list plus the customFields.<key> escape hatch.
func (e *Evaluator) updateField(ctx context.Context, node *models.Node, lead *models.Lead) *models.Outcome {
	field, ok := node.Config["field"].(string)
	if !ok || field == "" {
		return models.Fail("missing required field 'field'")
	}

	value := node.Config["value"]

	if err := applyFieldWrite(lead, field, value); err != nil {
		return models.Fail(err.Error())
	}

	if err := e.store.UpdateLead(ctx, lead.ID, map[string]any{field: value}); err != nil {
		return models.Fail(fmt.Sprintf("failed to update field: %v", err))
	}

	return models.Success(map[string]any{"field": field, "value": value})
}

func applyFieldWrite(lead *models.Lead, field string, value any) error {
	if key, isCustom := strings.CutPrefix(field, "customFields."); isCustom {
		if key == "" {
			return errors.New("customFields key must not be empty")
		}

		if lead.CustomFields == nil {
			lead.CustomFields = make(map[string]any)
		}

		lead.CustomFields[key] = value

		return nil
	}

	if !writableFields[field] {
		return fmt.Errorf("field %q is not writable", field)
	}

	switch field {
	case "stage":
		s, ok := value.(string)
		if !ok {
			return errors.New("stage must be a string")
		}

		lead.Stage = s
	case "ownerId":
		s, ok := value.(string)
		if !ok {
			return errors.New("ownerId must be a string")
		}

		lead.OwnerID = s
	case "score":
		f, ok := toFloat(value)
		if !ok {
			return errors.New("score must be numeric")
		}

		lead.Score = f
	default:
		if lead.Fields == nil {
			lead.Fields = make(map[string]any)
		}

		lead.Fields[field] = value
	}

	return nil
}

// adjustField increments or decrements a numeric field by delta; a
// missing field starts at zero.
func (e *Evaluator) adjustField(ctx context.Context, node *models.Node, lead *models.Lead) *models.Outcome {
	field, ok := node.Config["field"].(string)
	if !ok || field == "" {
		return models.Fail("missing required field 'field'")
	}

	delta, ok := toFloat(node.Config["delta"])
	if !ok {
		return models.Fail("missing or non-numeric field 'delta'")
	}

	current := 0.0

	if raw, found := lead.Field(field); found {
		parsed, numeric := toFloat(raw)
		if !numeric {
			return models.Fail(fmt.Sprintf("field %q is not numeric", field))
		}

		current = parsed
	}

	next := current + delta

	if err := applyFieldWrite(lead, field, next); err != nil {
		return models.Fail(err.Error())
	}

	if err := e.store.UpdateLead(ctx, lead.ID, map[string]any{field: next}); err != nil {
		return models.Fail(fmt.Sprintf("failed to adjust field: %v", err))
	}

	return models.Success(map[string]any{"field": field, "previous": current, "value": next})
}

func (e *Evaluator) audience(ctx context.Context, node *models.Node, lead *models.Lead, add bool) *models.Outcome {
	name, ok := node.Config["audience"].(string)
	if !ok || name == "" {
		return models.Fail("missing required field 'audience'")
	}

	changed := false

	if add {
		if !lead.InAudience(name) {
			lead.Audiences = append(lead.Audiences, name)
			changed = true
		}
	} else {
		kept := lead.Audiences[:0]

		for _, a := range lead.Audiences {
			if a == name {
				changed = true
				continue
			}

			kept = append(kept, a)
		}

		lead.Audiences = kept
	}

	if changed {
		if err := e.store.UpdateLead(ctx, lead.ID, map[string]any{"audiences": lead.Audiences}); err != nil {
			return models.Fail(fmt.Sprintf("failed to update audiences: %v", err))
		}
	}

	return models.Success(map[string]any{"audience": name, "added": add, "changed": changed})
}

func (e *Evaluator) enqueueTask(ctx context.Context, run RunInfo, node *models.Node, lead *models.Lead) *models.Outcome {
	taskType, ok := node.Config["taskType"].(string)
	if !ok || taskType == "" {
		return models.Fail("missing required field 'taskType'")
	}

	payload, _ := node.Config["payload"].(map[string]any)

	task := &models.Task{
		ID:         uuid.New().String(),
		Kind:       models.TaskKindGeneric,
		LeadID:     lead.ID,
		WorkflowID: run.WorkflowID,
		NodeID:     node.ID,
		Channel:    taskType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := e.queue.Enqueue(ctx, task); err != nil {
		return models.Fail(fmt.Sprintf("failed to enqueue task: %v", err))
	}

	return models.Success(map[string]any{"task_id": task.ID, "task_type": taskType})
}

func (e *Evaluator) sendWebhook(ctx context.Context, node *models.Node, lead *models.Lead) *models.Outcome {
	url, ok := node.Config["url"].(string)
	if !ok || url == "" {
		return models.Fail("missing required field 'url'")
	}

	req := callout.Request{URL: url, Method: "POST"}

	if method, ok := node.Config["method"].(string); ok && method != "" {
		req.Method = method
	}

	if body, ok := node.Config["body"].(string); ok {
		req.Body = body
	}

	if headers, ok := node.Config["headers"].(map[string]any); ok {
		req.Headers = make(map[string]string, len(headers))

		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Headers[key] = s
			}
		}
	}

	policy := parseRetryPolicy(node.Config)

	timeout := 30 * time.Second
	if ms, ok := toFloat(node.Config["timeoutMs"]); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	result, err := e.caller.Do(ctx, req, policy, timeout)
	if err != nil {
		data := map[string]any{"url": url}
		if result != nil {
			data["attempts"] = result.Attempts
		}

		outcome := models.Fail(fmt.Sprintf("webhook call failed: %v", err))
		outcome.Data = data

		return outcome
	}

	return models.Success(map[string]any{
		"url":         url,
		"status_code": result.StatusCode,
		"attempts":    result.Attempts,
	})
}

func parseRetryPolicy(config map[string]any) callout.RetryPolicy {
	policy := callout.DefaultRetryPolicy()

	raw, ok := config["retryPolicy"].(map[string]any)
	if !ok {
		return policy
	}

	if v, ok := toFloat(raw["maxRetries"]); ok {
		policy.MaxRetries = int(v)
	}

	if v, ok := toFloat(raw["initialDelayMs"]); ok {
		policy.InitialDelayMs = int(v)
	}

	if v, ok := toFloat(raw["backoffMultiplier"]); ok {
		policy.BackoffMultiplier = v
	}

	if statuses, ok := raw["retryableStatuses"].([]any); ok {
		policy.RetryableStatuses = nil

		for _, s := range statuses {
			if v, ok := toFloat(s); ok {
				policy.RetryableStatuses = append(policy.RetryableStatuses, int(v))
			}
		}
	}

	if codes, ok := raw["retryableErrorCodes"].([]any); ok {
		policy.RetryableErrorCodes = nil

		for _, c := range codes {
			if s, ok := c.(string); ok {
				policy.RetryableErrorCodes = append(policy.RetryableErrorCodes, s)
			}
		}
	}

	return policy
}

func (e *Evaluator) runScript(ctx context.Context, node *models.Node, lead *models.Lead, vars map[string]any) *models.Outcome {
	source, ok := node.Config["script"].(string)
	if !ok || source == "" {
		return models.Fail("missing required field 'script'")
	}

	timeout := script.DefaultTimeout
	if ms, ok := toFloat(node.Config["timeoutMs"]); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	result, err := e.scripts.Run(ctx, source, lead, vars, timeout)
	if err != nil {
		return models.Fail(fmt.Sprintf("script execution failed: %v", err))
	}

	// The script ran against a copy of vars; merging the returned store
	// back is what makes its writes visible to later nodes.
	for key, value := range result.Variables {
		vars[key] = value
	}

	return models.Success(map[string]any{
		"value":     result.Value,
		"variables": result.Variables,
		"logs":      result.Logs,
	})
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}

	return 0, false
}
