package models

import (
	"sort"
	"time"
)

// Workspace is the tenant boundary for all data.
type Workspace struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Member is a team member with a weekly capacity.
type Member struct {
	ID                  string  `json:"id" yaml:"id"`
	WorkspaceID         string  `json:"workspace_id" yaml:"workspace_id"`
	Name                string  `json:"name" yaml:"name"`
	Role                string  `json:"role,omitempty" yaml:"role"`
	WeeklyCapacityHours float64 `json:"weekly_capacity_hours" yaml:"weekly_capacity_hours"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses.
const (
	TaskBacklog    TaskStatus = "backlog"
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// Task is a unit of work, optionally attached to a project epic.
type Task struct {
	ID            string     `json:"id" yaml:"id"`
	WorkspaceID   string     `json:"workspace_id" yaml:"workspace_id"`
	ProjectID     *string    `json:"project_id,omitempty" yaml:"project_id"`
	EpicID        *string    `json:"epic_id,omitempty" yaml:"epic_id"`
	Title         string     `json:"title" yaml:"title"`
	Description   string     `json:"description,omitempty" yaml:"description"`
	Status        TaskStatus `json:"status" yaml:"status"`
	Priority      string     `json:"priority,omitempty" yaml:"priority"`
	InSprint      bool       `json:"in_sprint" yaml:"in_sprint"`
	AssigneeID    *string    `json:"assignee_id,omitempty" yaml:"assignee_id"`
	EstimateHours float64    `json:"estimate_hours,omitempty" yaml:"estimate_hours"`
	DueDate       *time.Time `json:"due_date,omitempty" yaml:"due_date"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
}

// Open reports whether the task still needs work.
func (t Task) Open() bool {
	return t.Status != TaskDone
}

// SortTasksByDue orders tasks by due date with undated tasks last, then by
// creation time and id.
func SortTasksByDue(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// TaskInput holds the fields for creating a task.
type TaskInput struct {
	WorkspaceID   string
	ProjectID     *string
	EpicID        *string
	Title         string
	Description   string
	Status        TaskStatus
	Priority      string
	EstimateHours float64
}

// TaskFilter narrows task listings. Zero values mean "no constraint".
type TaskFilter struct {
	Statuses  []TaskStatus
	InSprint  *bool
	DueBefore *time.Time
	ProjectID *string
	EpicID    *string
	Limit     int
}

// Matches reports whether t satisfies the filter (ignoring Limit).
func (f TaskFilter) Matches(t Task) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.InSprint != nil && t.InSprint != *f.InSprint {
		return false
	}
	if f.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*f.DueBefore)) {
		return false
	}
	if f.ProjectID != nil && (t.ProjectID == nil || *t.ProjectID != *f.ProjectID) {
		return false
	}
	if f.EpicID != nil && (t.EpicID == nil || *t.EpicID != *f.EpicID) {
		return false
	}
	return true
}

// TimeOff is an inclusive date range a member is unavailable.
type TimeOff struct {
	ID       string    `json:"id" yaml:"id"`
	MemberID string    `json:"member_id" yaml:"member_id"`
	Start    time.Time `json:"start" yaml:"start"`
	End      time.Time `json:"end" yaml:"end"`
	Reason   string    `json:"reason,omitempty" yaml:"reason"`
}

// Overlaps reports whether the time off intersects [from, to).
func (t TimeOff) Overlaps(from, to time.Time) bool {
	return t.Start.Before(to) && !t.End.Before(from)
}
