package db

import (
	"encoding/json"
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/sprintpilot/internal/models"
)

// Row types mirror table layouts. SurrealDB returns record ids as RecordID;
// each row converts itself to the model with a plain string id.

type workspaceRow struct {
	ID   surrealmodels.RecordID `json:"id"`
	Name string                 `json:"name"`
}

func (r workspaceRow) model() (models.Workspace, error) {
	id, err := models.RecordIDString(r.ID)
	return models.Workspace{ID: id, Name: r.Name}, err
}

type memberRow struct {
	ID                  surrealmodels.RecordID `json:"id"`
	WorkspaceID         string                 `json:"workspace_id"`
	Name                string                 `json:"name"`
	Role                *string                `json:"role,omitempty"`
	WeeklyCapacityHours float64                `json:"weekly_capacity_hours"`
}

func (r memberRow) model() (models.Member, error) {
	id, err := models.RecordIDString(r.ID)
	return models.Member{
		ID:                  id,
		WorkspaceID:         r.WorkspaceID,
		Name:                r.Name,
		Role:                deref(r.Role),
		WeeklyCapacityHours: r.WeeklyCapacityHours,
	}, err
}

type taskRow struct {
	ID            surrealmodels.RecordID `json:"id"`
	WorkspaceID   string                 `json:"workspace_id"`
	ProjectID     *string                `json:"project_id,omitempty"`
	EpicID        *string                `json:"epic_id,omitempty"`
	Title         string                 `json:"title"`
	Description   *string                `json:"description,omitempty"`
	Status        string                 `json:"status"`
	Priority      *string                `json:"priority,omitempty"`
	InSprint      bool                   `json:"in_sprint"`
	AssigneeID    *string                `json:"assignee_id,omitempty"`
	EstimateHours float64                `json:"estimate_hours"`
	DueDate       *time.Time             `json:"due_date,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

func (r taskRow) model() (models.Task, error) {
	id, err := models.RecordIDString(r.ID)
	return models.Task{
		ID:            id,
		WorkspaceID:   r.WorkspaceID,
		ProjectID:     r.ProjectID,
		EpicID:        r.EpicID,
		Title:         r.Title,
		Description:   deref(r.Description),
		Status:        models.TaskStatus(r.Status),
		Priority:      deref(r.Priority),
		InSprint:      r.InSprint,
		AssigneeID:    r.AssigneeID,
		EstimateHours: r.EstimateHours,
		DueDate:       r.DueDate,
		CreatedAt:     r.CreatedAt,
	}, err
}

type timeOffRow struct {
	ID       surrealmodels.RecordID `json:"id"`
	MemberID string                 `json:"member_id"`
	Start    time.Time              `json:"start"`
	End      time.Time              `json:"end"`
	Reason   *string                `json:"reason,omitempty"`
}

func (r timeOffRow) model() (models.TimeOff, error) {
	id, err := models.RecordIDString(r.ID)
	return models.TimeOff{ID: id, MemberID: r.MemberID, Start: r.Start, End: r.End, Reason: deref(r.Reason)}, err
}

type projectRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	Name        string                 `json:"name"`
	Description *string                `json:"description,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (r projectRow) model() (models.Project, error) {
	id, err := models.RecordIDString(r.ID)
	return models.Project{
		ID:          id,
		WorkspaceID: r.WorkspaceID,
		Name:        r.Name,
		Description: deref(r.Description),
		CreatedAt:   r.CreatedAt,
	}, err
}

type epicRow struct {
	ID            surrealmodels.RecordID `json:"id"`
	ProjectID     string                 `json:"project_id"`
	Name          string                 `json:"name"`
	Description   *string                `json:"description,omitempty"`
	Status        string                 `json:"status"`
	Position      int                    `json:"position"`
	EstimateWeeks float64                `json:"estimate_weeks"`
	CreatedAt     time.Time              `json:"created_at"`
}

func (r epicRow) model() (models.Epic, error) {
	id, err := models.RecordIDString(r.ID)
	return models.Epic{
		ID:            id,
		ProjectID:     r.ProjectID,
		Name:          r.Name,
		Description:   deref(r.Description),
		Status:        models.EpicStatus(r.Status),
		Position:      r.Position,
		EstimateWeeks: r.EstimateWeeks,
		CreatedAt:     r.CreatedAt,
	}, err
}

type dependencyRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	ProjectID   string                 `json:"project_id"`
	EpicID      string                 `json:"epic_id"`
	DependsOnID string                 `json:"depends_on_id"`
	Reason      *string                `json:"reason,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (r dependencyRow) model() (models.EpicDependency, error) {
	id, err := models.RecordIDString(r.ID)
	return models.EpicDependency{
		ID:          id,
		ProjectID:   r.ProjectID,
		EpicID:      r.EpicID,
		DependsOnID: r.DependsOnID,
		Reason:      deref(r.Reason),
		CreatedAt:   r.CreatedAt,
	}, err
}

type conversationRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	CreatedBy   string                 `json:"created_by"`
	Title       *string                `json:"title,omitempty"`
	ProjectID   *string                `json:"project_id,omitempty"`
	Archived    bool                   `json:"archived"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func (r conversationRow) model() (models.Conversation, error) {
	id, err := models.RecordIDString(r.ID)
	return models.Conversation{
		ID:          id,
		WorkspaceID: r.WorkspaceID,
		CreatedBy:   r.CreatedBy,
		Title:       r.Title,
		ProjectID:   r.ProjectID,
		Archived:    r.Archived,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, err
}

// messageRow stores the payload as JSON text; the CBOR codec does not
// know about Payload's custom JSON shape.
type messageRow struct {
	ID             surrealmodels.RecordID `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Seq            int                    `json:"seq"`
	Role           string                 `json:"role"`
	Content        string                 `json:"content"`
	PayloadJSON    *string                `json:"payload_json,omitempty"`
	InputTokens    *int                   `json:"input_tokens,omitempty"`
	OutputTokens   *int                   `json:"output_tokens,omitempty"`
	Model          *string                `json:"model,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

func (r messageRow) model() (models.Message, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		ID:             id,
		ConversationID: r.ConversationID,
		Role:           models.Role(r.Role),
		Content:        r.Content,
		InputTokens:    r.InputTokens,
		OutputTokens:   r.OutputTokens,
		Model:          r.Model,
		CreatedAt:      r.CreatedAt,
	}
	if r.PayloadJSON != nil {
		var p models.Payload
		if err := json.Unmarshal([]byte(*r.PayloadJSON), &p); err != nil {
			return models.Message{}, fmt.Errorf("decode payload of message %s: %w", id, err)
		}
		m.Payload = &p
	}
	return m, nil
}

func encodePayload(p *models.Payload) (*string, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	s := string(data)
	return &s, nil
}

type usageRow struct {
	WorkspaceID  string `json:"workspace_id"`
	Month        string `json:"month"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	RequestCount int64  `json:"request_count"`
}

func (r usageRow) model() models.UsageCounter {
	return models.UsageCounter(r)
}

type settingsRow struct {
	ID                surrealmodels.RecordID `json:"id"`
	Enabled           bool                   `json:"enabled"`
	Provider          *string                `json:"provider,omitempty"`
	Model             *string                `json:"model,omitempty"`
	MonthlyTokenLimit int64                  `json:"monthly_token_limit"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func (r settingsRow) model() (models.Settings, error) {
	id, err := models.RecordIDString(r.ID)
	return models.Settings{
		WorkspaceID:       id,
		Enabled:           r.Enabled,
		Provider:          deref(r.Provider),
		Model:             deref(r.Model),
		MonthlyTokenLimit: r.MonthlyTokenLimit,
		UpdatedAt:         r.UpdatedAt,
	}, err
}

// convert maps rows to models, failing on the first bad record id.
func convert[R interface{ model() (M, error) }, M any](rows []R) ([]M, error) {
	out := make([]M, 0, len(rows))
	for _, r := range rows {
		m, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
