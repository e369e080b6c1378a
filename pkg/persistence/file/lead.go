package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// LeadRepository handles lead records and their activity log on the
// file system.
type LeadRepository struct {
	root string
	mu   sync.Mutex
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(root string) *LeadRepository {
	return &LeadRepository{root: root}
}

func (lr *LeadRepository) leadsDir() string {
	return path.Join(lr.root, "leads")
}

func (lr *LeadRepository) activitiesDir() string {
	return path.Join(lr.root, "activities")
}

// LeadByID retrieves a lead by its ID.
func (lr *LeadRepository) LeadByID(_ context.Context, id string) (*models.Lead, error) {
	filePath := filepath.Clean(path.Join(lr.leadsDir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewLeadError("GetByID", id, persistence.ErrLeadNotFound)
		}

		return nil, fmt.Errorf("failed to fetch lead %s: %w", id, err)
	}

	var lead models.Lead

	err = json.Unmarshal(body, &lead)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead %s: %w", id, err)
	}

	return &lead, nil
}

// SaveLead writes the full lead record.
func (lr *LeadRepository) SaveLead(_ context.Context, lead *models.Lead) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	return lr.write(lead)
}

func (lr *LeadRepository) write(lead *models.Lead) error {
	err := os.MkdirAll(lr.leadsDir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create leads directory: %w", err)
	}

	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}

	lead.UpdatedAt = now

	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}

	data, err := json.MarshalIndent(lead, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lead %s: %w", lead.ID, err)
	}

	filePath := path.Join(lr.leadsDir(), lead.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// UpdateLead applies a field patch to a stored lead. Patch keys follow
// the same addressing as condition fields: built-in names, top-level
// custom names, or customFields.<key>.
func (lr *LeadRepository) UpdateLead(ctx context.Context, leadID string, patch map[string]any) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	lead, err := lr.LeadByID(ctx, leadID)
	if err != nil {
		return err
	}

	for key, value := range patch {
		applyPatchField(lead, key, value)
	}

	return lr.write(lead)
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

// DeleteLead removes a lead record and its activity log.
func (lr *LeadRepository) DeleteLead(_ context.Context, id string) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	filePath := path.Join(lr.leadsDir(), id+".json")

	err := os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete lead %s: %w", id, err)
	}

	activityPath := path.Join(lr.activitiesDir(), id+".json")

	err = os.Remove(activityPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete activities for lead %s: %w", id, err)
	}

	return nil
}

// AddActivity appends an entry to the lead's activity log file.
func (lr *LeadRepository) AddActivity(ctx context.Context, activity *models.Activity) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	err := os.MkdirAll(lr.activitiesDir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create activities directory: %w", err)
	}

	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	activities, err := lr.readActivities(activity.LeadID)
	if err != nil {
		return err
	}

	activities = append(activities, activity)

	data, err := json.MarshalIndent(activities, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal activities for lead %s: %w", activity.LeadID, err)
	}

	filePath := path.Join(lr.activitiesDir(), activity.LeadID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// ActivitiesByLead returns the newest activities for a lead, up to limit.
func (lr *LeadRepository) ActivitiesByLead(_ context.Context, leadID string, limit int) ([]*models.Activity, error) {
	activities, err := lr.readActivities(leadID)
	if err != nil {
		return nil, err
	}

	sort.Slice(activities, func(i, j int) bool {
		return activities[i].CreatedAt.After(activities[j].CreatedAt)
	})

	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}

	return activities, nil
}

func (lr *LeadRepository) readActivities(leadID string) ([]*models.Activity, error) {
	filePath := filepath.Clean(path.Join(lr.activitiesDir(), leadID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read activities for lead %s: %w", leadID, err)
	}

	var activities []*models.Activity

	err = json.Unmarshal(body, &activities)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal activities for lead %s: %w", leadID, err)
	}

	return activities, nil
}

// LeadsMatching returns ids of leads whose addressed fields equal every
// filter value.
func (lr *LeadRepository) LeadsMatching(ctx context.Context, filter map[string]any, limit int) ([]string, error) {
	leads, err := lr.allLeads(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)

	for _, lead := range leads {
		if !matchesFilter(lead, filter) {
			continue
		}

		ids = append(ids, lead.ID)

		if limit > 0 && len(ids) >= limit {
			break
		}
	}

	return ids, nil
}

// AudienceMembers returns ids of leads belonging to the named audience.
func (lr *LeadRepository) AudienceMembers(ctx context.Context, audience string, limit int) ([]string, error) {
	leads, err := lr.allLeads(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)

	for _, lead := range leads {
		if !lead.InAudience(audience) {
			continue
		}

		ids = append(ids, lead.ID)

		if limit > 0 && len(ids) >= limit {
			break
		}
	}

	return ids, nil
}

func matchesFilter(lead *models.Lead, filter map[string]any) bool {
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
}

// allLeads loads every lead, sorted by id for deterministic iteration.
func (lr *LeadRepository) allLeads(ctx context.Context) ([]*models.Lead, error) {
	root := os.DirFS(lr.leadsDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list lead files: %w", err)
	}

	sort.Strings(jsonFiles)

	leads := make([]*models.Lead, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		leadID := file[:len(file)-5]

		lead, err := lr.LeadByID(ctx, leadID)
		if err != nil {
			if persistence.IsLeadNotFound(err) {
				continue
			}

			return nil, err
		}

		leads = append(leads, lead)
	}

	return leads, nil
}
