package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// LeadRepository stores lead records as JSON values with a set index
// and activity logs as capped lists. Collection queries load candidate
// leads and filter in memory; the index set bounds the scan.
type LeadRepository struct {
	client *redis.Client
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(client *redis.Client) *LeadRepository {
	return &LeadRepository{client: client}
}

func leadKey(id string) string {
	return keyPrefix + ":lead:" + id
}

func activitiesKey(leadID string) string {
	return keyPrefix + ":lead:" + leadID + ":activities"
}

const leadIndexKey = keyPrefix + ":leads"

// Activity logs are capped per lead.
const maxActivities = 1000

// LeadByID returns a lead by its ID.
func (r *LeadRepository) LeadByID(ctx context.Context, id string) (*models.Lead, error) {
	data, err := r.client.Get(ctx, leadKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewLeadError("GetByID", id, persistence.ErrLeadNotFound)
		}

		return nil, fmt.Errorf("failed to fetch lead %s: %w", id, err)
	}

	var lead models.Lead

	if err := json.Unmarshal(data, &lead); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead %s: %w", id, err)
	}

	return &lead, nil
}

// SaveLead upserts a full lead record.
func (r *LeadRepository) SaveLead(ctx context.Context, lead *models.Lead) error {
	now := time.Now().UTC()

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}

	lead.UpdatedAt = now

	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}

	data, err := json.Marshal(lead)
	if err != nil {
		return persistence.NewLeadError("Save", lead.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, leadKey(lead.ID), data, 0)
	pipe.SAdd(ctx, leadIndexKey, lead.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewLeadError("Save", lead.ID, err)
	}

	return nil
}

// UpdateLead applies a field patch with a read-modify-write under an
// optimistic watch on the lead key.
func (r *LeadRepository) UpdateLead(ctx context.Context, leadID string, patch map[string]any) error {
	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, leadKey(leadID)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return persistence.NewLeadError("Update", leadID, persistence.ErrLeadNotFound)
			}

			return err
		}

		var lead models.Lead

		if err := json.Unmarshal(data, &lead); err != nil {
			return err
		}

		for key, value := range patch {
			applyPatchField(&lead, key, value)
		}

		lead.UpdatedAt = time.Now().UTC()

		updated, err := json.Marshal(&lead)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, leadKey(leadID), updated, 0)

			return nil
		})

		return err
	}

	err := r.client.Watch(ctx, update, leadKey(leadID))
	if err != nil {
		if errors.Is(err, persistence.ErrLeadNotFound) {
			return err
		}

		return persistence.NewLeadError("Update", leadID, err)
	}

	return nil
}

func applyPatchField(lead *models.Lead, key string, value any) {
	switch key {
	case "stage":
		if s, ok := value.(string); ok {
			lead.Stage = s
		}
	case "ownerId":
		if s, ok := value.(string); ok {
			lead.OwnerID = s
		}
	case "score":
		if f, ok := value.(float64); ok {
			lead.Score = f
		}
	case "tags":
		if tags, ok := value.([]string); ok {
			lead.Tags = tags
		}
	case "audiences":
		if audiences, ok := value.([]string); ok {
			lead.Audiences = audiences
		}
	default:
		if rest, found := strings.CutPrefix(key, "customFields."); found {
			if lead.CustomFields == nil {
				lead.CustomFields = make(map[string]any)
			}

			lead.CustomFields[rest] = value

			return
		}

		if lead.Fields == nil {
			lead.Fields = make(map[string]any)
		}

		lead.Fields[key] = value
	}
}

// DeleteLead removes a lead, its index entry, and its activity log.
func (r *LeadRepository) DeleteLead(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, leadKey(id))
	pipe.Del(ctx, activitiesKey(id))
	pipe.SRem(ctx, leadIndexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewLeadError("Delete", id, err)
	}

	return nil
}

// AddActivity prepends an activity entry to the lead's capped log.
func (r *LeadRepository) AddActivity(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(activity)
	if err != nil {
		return persistence.NewLeadError("AddActivity", activity.LeadID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, activitiesKey(activity.LeadID), data)
	pipe.LTrim(ctx, activitiesKey(activity.LeadID), 0, maxActivities-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewLeadError("AddActivity", activity.LeadID, err)
	}

	return nil
}

// ActivitiesByLead returns the newest activities for a lead, up to limit.
func (r *LeadRepository) ActivitiesByLead(ctx context.Context, leadID string, limit int) ([]*models.Activity, error) {
	if limit <= 0 || limit > maxActivities {
		limit = 100
	}

	entries, err := r.client.LRange(ctx, activitiesKey(leadID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read activities for lead %s: %w", leadID, err)
	}

	activities := make([]*models.Activity, 0, len(entries))

	for _, entry := range entries {
		var activity models.Activity

		if err := json.Unmarshal([]byte(entry), &activity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal activity for lead %s: %w", leadID, err)
		}

		activities = append(activities, &activity)
	}

	return activities, nil
}

// LeadsMatching returns ids of leads whose addressed fields equal every
// filter value.
func (r *LeadRepository) LeadsMatching(ctx context.Context, filter map[string]any, limit int) ([]string, error) {
	return r.scanLeads(ctx, limit, func(lead *models.Lead) bool {
		for key, expected := range filter {
			actual, found := lead.Field(key)
			if !found {
				return false
			}

			if fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected) {
				return false
			}
		}

		return true
	})
}

// AudienceMembers returns ids of leads belonging to the named audience.
func (r *LeadRepository) AudienceMembers(ctx context.Context, audience string, limit int) ([]string, error) {
	return r.scanLeads(ctx, limit, func(lead *models.Lead) bool {
		return lead.InAudience(audience)
	})
}

func (r *LeadRepository) scanLeads(ctx context.Context, limit int, match func(*models.Lead) bool) ([]string, error) {
	ids, err := r.client.SMembers(ctx, leadIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list lead ids: %w", err)
	}

	sort.Strings(ids)

	matched := make([]string, 0)

	for _, id := range ids {
		lead, err := r.LeadByID(ctx, id)
		if err != nil {
			if persistence.IsLeadNotFound(err) {
				continue
			}

			return nil, err
		}

		if !match(lead) {
			continue
		}

		matched = append(matched, id)

		if limit > 0 && len(matched) >= limit {
			break
		}
	}

	return matched, nil
}
