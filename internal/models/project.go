package models

import "time"

// Project groups ordered epics.
type Project struct {
	ID          string    `json:"id" yaml:"id"`
	WorkspaceID string    `json:"workspace_id" yaml:"workspace_id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// ProjectInput holds the fields for creating a project.
type ProjectInput struct {
	WorkspaceID string
	Name        string
	Description string
}

// EpicStatus is the lifecycle state of an epic.
type EpicStatus string

// Epic statuses. An epic becomes ready once stories are attached.
const (
	EpicDraft      EpicStatus = "draft"
	EpicReady      EpicStatus = "ready"
	EpicInProgress EpicStatus = "in_progress"
	EpicDone       EpicStatus = "done"
)

// Epic is an ordered chunk of project work.
type Epic struct {
	ID            string     `json:"id" yaml:"id"`
	ProjectID     string     `json:"project_id" yaml:"project_id"`
	Name          string     `json:"name" yaml:"name"`
	Description   string     `json:"description,omitempty" yaml:"description"`
	Status        EpicStatus `json:"status" yaml:"status"`
	Position      int        `json:"position" yaml:"position"`
	EstimateWeeks float64    `json:"estimate_weeks,omitempty" yaml:"estimate_weeks"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
}

// EpicInput holds the fields for creating an epic.
type EpicInput struct {
	ProjectID     string
	Name          string
	Description   string
	Position      int
	EstimateWeeks float64
}

// EpicDependency records that EpicID cannot start before DependsOnID.
type EpicDependency struct {
	ID          string    `json:"id" yaml:"id"`
	ProjectID   string    `json:"project_id" yaml:"project_id"`
	EpicID      string    `json:"epic_id" yaml:"epic_id"`
	DependsOnID string    `json:"depends_on_id" yaml:"depends_on_id"`
	Reason      string    `json:"reason,omitempty" yaml:"reason"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}
