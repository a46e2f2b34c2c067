package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// =============================================================================
// WORKSPACE READS
// =============================================================================

// GetWorkspace returns the workspace or nil.
func (c *Client) GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	row, err := queryOne[workspaceRow](ctx, c, `SELECT * FROM type::record("workspace", $id)`,
		map[string]any{"id": workspaceID})
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	w, err := row.model()
	return &w, err
}

// ListMembers returns members sorted by name.
func (c *Client) ListMembers(ctx context.Context, workspaceID string) ([]models.Member, error) {
	rows, err := query[memberRow](ctx, c, `
		SELECT * FROM member WHERE workspace_id = $ws ORDER BY name ASC
	`, map[string]any{"ws": workspaceID})
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return convert[memberRow, models.Member](rows)
}

// ListTasks returns matching tasks ordered by due date (undated last), then creation.
func (c *Client) ListTasks(ctx context.Context, workspaceID string, filter models.TaskFilter) ([]models.Task, error) {
	clauses := []string{"workspace_id = $ws"}
	vars := map[string]any{"ws": workspaceID}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		clauses = append(clauses, "status IN $statuses")
		vars["statuses"] = statuses
	}
	if filter.InSprint != nil {
		clauses = append(clauses, "in_sprint = $in_sprint")
		vars["in_sprint"] = *filter.InSprint
	}
	if filter.DueBefore != nil {
		clauses = append(clauses, "due_date != NONE AND due_date < $due_before")
		vars["due_before"] = *filter.DueBefore
	}
	if filter.ProjectID != nil {
		clauses = append(clauses, "project_id = $project")
		vars["project"] = *filter.ProjectID
	}
	if filter.EpicID != nil {
		clauses = append(clauses, "epic_id = $epic")
		vars["epic"] = *filter.EpicID
	}

	sql := fmt.Sprintf("SELECT * FROM task WHERE %s", strings.Join(clauses, " AND "))
	rows, err := query[taskRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := convert[taskRow, models.Task](rows)
	if err != nil {
		return nil, err
	}

	// Undated-last ordering is not expressible in ORDER BY across NONE values.
	models.SortTasksByDue(tasks)
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// ListTimeOff returns time off for workspace members overlapping [from, to).
func (c *Client) ListTimeOff(ctx context.Context, workspaceID string, from, to time.Time) ([]models.TimeOff, error) {
	members, err := c.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []models.TimeOff{}, nil
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	rows, err := query[timeOffRow](ctx, c, `
		SELECT * FROM time_off
		WHERE member_id IN $members AND start < $to AND end >= $from
		ORDER BY start ASC
	`, map[string]any{"members": ids, "from": from, "to": to})
	if err != nil {
		return nil, fmt.Errorf("list time off: %w", err)
	}
	return convert[timeOffRow, models.TimeOff](rows)
}

// GetProject returns the project or nil.
func (c *Client) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	row, err := queryOne[projectRow](ctx, c, `SELECT * FROM type::record("project", $id)`,
		map[string]any{"id": projectID})
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	p, err := row.model()
	return &p, err
}

// ListEpics returns a project's epics ordered by position.
func (c *Client) ListEpics(ctx context.Context, projectID string) ([]models.Epic, error) {
	rows, err := query[epicRow](ctx, c, `
		SELECT * FROM epic WHERE project_id = $project ORDER BY position ASC, created_at ASC
	`, map[string]any{"project": projectID})
	if err != nil {
		return nil, fmt.Errorf("list epics: %w", err)
	}
	return convert[epicRow, models.Epic](rows)
}

// GetEpic returns the epic or nil.
func (c *Client) GetEpic(ctx context.Context, epicID string) (*models.Epic, error) {
	row, err := queryOne[epicRow](ctx, c, `SELECT * FROM type::record("epic", $id)`,
		map[string]any{"id": epicID})
	if err != nil {
		return nil, fmt.Errorf("get epic: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	e, err := row.model()
	return &e, err
}

// ListEpicDependencies returns a project's dependency edges in creation order.
func (c *Client) ListEpicDependencies(ctx context.Context, projectID string) ([]models.EpicDependency, error) {
	rows, err := query[dependencyRow](ctx, c, `
		SELECT * FROM epic_dependency WHERE project_id = $project ORDER BY created_at ASC
	`, map[string]any{"project": projectID})
	if err != nil {
		return nil, fmt.Errorf("list epic dependencies: %w", err)
	}
	return convert[dependencyRow, models.EpicDependency](rows)
}

// =============================================================================
// WORKSPACE WRITES
// =============================================================================

// CreateProject stores a new project.
func (c *Client) CreateProject(ctx context.Context, input models.ProjectInput) (*models.Project, error) {
	row, err := queryOne[projectRow](ctx, c, `
		CREATE type::record("project", $id) SET
			workspace_id = $ws,
			name = $name,
			description = $description
	`, map[string]any{
		"id":          uuid.NewString(),
		"ws":          input.WorkspaceID,
		"name":        input.Name,
		"description": optional(input.Description),
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("create project: no result returned")
	}
	p, err := row.model()
	return &p, err
}

// CreateEpic stores a new draft epic.
func (c *Client) CreateEpic(ctx context.Context, input models.EpicInput) (*models.Epic, error) {
	project, err := c.GetProject(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("create epic: project %s: %w", input.ProjectID, store.ErrNotFound)
	}

	row, err := queryOne[epicRow](ctx, c, `
		CREATE type::record("epic", $id) SET
			project_id = $project,
			name = $name,
			description = $description,
			status = $status,
			position = $position,
			estimate_weeks = $estimate
	`, map[string]any{
		"id":          uuid.NewString(),
		"project":     input.ProjectID,
		"name":        input.Name,
		"description": optional(input.Description),
		"status":      string(models.EpicDraft),
		"position":    input.Position,
		"estimate":    input.EstimateWeeks,
	})
	if err != nil {
		return nil, fmt.Errorf("create epic: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("create epic: no result returned")
	}
	e, err := row.model()
	return &e, err
}

// CreateTask stores a new task.
func (c *Client) CreateTask(ctx context.Context, input models.TaskInput) (*models.Task, error) {
	status := input.Status
	if status == "" {
		status = models.TaskBacklog
	}
	row, err := queryOne[taskRow](ctx, c, `
		CREATE type::record("task", $id) SET
			workspace_id = $ws,
			project_id = $project,
			epic_id = $epic,
			title = $title,
			description = $description,
			status = $status,
			priority = $priority,
			estimate_hours = $estimate
	`, map[string]any{
		"id":          uuid.NewString(),
		"ws":          input.WorkspaceID,
		"project":     input.ProjectID,
		"epic":        input.EpicID,
		"title":       input.Title,
		"description": optional(input.Description),
		"status":      string(status),
		"priority":    optional(input.Priority),
		"estimate":    input.EstimateHours,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("create task: no result returned")
	}
	t, err := row.model()
	return &t, err
}

// UpdateEpicStatus changes an epic's status.
func (c *Client) UpdateEpicStatus(ctx context.Context, epicID string, status models.EpicStatus) error {
	rows, err := query[epicRow](ctx, c, `
		UPDATE type::record("epic", $id) SET status = $status RETURN AFTER
	`, map[string]any{"id": epicID, "status": string(status)})
	if err != nil {
		return fmt.Errorf("update epic status: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("update epic %s: %w", epicID, store.ErrNotFound)
	}
	return nil
}

// AddEpicDependency records epicID -> dependsOnID after rejecting self edges,
// duplicates and cycles. The unique index catches duplicates written by
// other processes.
func (c *Client) AddEpicDependency(ctx context.Context, epicID, dependsOnID, reason string) (*models.EpicDependency, error) {
	if epicID == dependsOnID {
		return nil, store.ErrSelfDependency
	}

	c.depMu.Lock()
	defer c.depMu.Unlock()

	from, err := c.GetEpic(ctx, epicID)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, fmt.Errorf("epic %s: %w", epicID, store.ErrNotFound)
	}
	to, err := c.GetEpic(ctx, dependsOnID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, fmt.Errorf("epic %s: %w", dependsOnID, store.ErrNotFound)
	}
	if from.ProjectID != to.ProjectID {
		return nil, fmt.Errorf("epics belong to different projects: %w", store.ErrNotFound)
	}

	edges, err := c.ListEpicDependencies(ctx, from.ProjectID)
	if err != nil {
		return nil, err
	}
	if models.HasEdge(edges, epicID, dependsOnID) {
		return nil, store.ErrDuplicateDependency
	}
	if models.WouldCycle(edges, epicID, dependsOnID) {
		return nil, store.ErrDependencyCycle
	}

	row, err := queryOne[dependencyRow](ctx, c, `
		CREATE type::record("epic_dependency", $id) SET
			project_id = $project,
			epic_id = $epic,
			depends_on_id = $depends_on,
			reason = $reason
	`, map[string]any{
		"id":         uuid.NewString(),
		"project":    from.ProjectID,
		"epic":       epicID,
		"depends_on": dependsOnID,
		"reason":     optional(reason),
	})
	if errors.Is(err, ErrAlreadyExists) {
		return nil, store.ErrDuplicateDependency
	}
	if err != nil {
		return nil, fmt.Errorf("add epic dependency: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("add epic dependency: no result returned")
	}
	d, err := row.model()
	return &d, err
}
