package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/raphaelgruber/sprintpilot/internal/models"
)

// Seed upserts every record of a fixture. Records keep their fixture ids,
// so seeding twice leaves one copy of each.
func (c *Client) Seed(ctx context.Context, fx *models.Fixture) error {
	c.logger.Info("seeding workspace", "workspace", fx.Workspace.ID)

	if err := c.exec(ctx, `UPSERT type::record("workspace", $id) SET name = $name`,
		map[string]any{"id": fx.Workspace.ID, "name": fx.Workspace.Name}); err != nil {
		return fmt.Errorf("seed workspace: %w", err)
	}

	for _, m := range fx.Members {
		err := c.exec(ctx, `
			UPSERT type::record("member", $id) SET
				workspace_id = $ws, name = $name, role = $role, weekly_capacity_hours = $hours
		`, map[string]any{
			"id": idOrNew(m.ID), "ws": m.WorkspaceID, "name": m.Name,
			"role": optional(m.Role), "hours": m.WeeklyCapacityHours,
		})
		if err != nil {
			return fmt.Errorf("seed member %s: %w", m.Name, err)
		}
	}

	for _, t := range fx.Tasks {
		err := c.exec(ctx, `
			UPSERT type::record("task", $id) SET
				workspace_id = $ws, project_id = $project, epic_id = $epic,
				title = $title, description = $description, status = $status,
				priority = $priority, in_sprint = $in_sprint, assignee_id = $assignee,
				estimate_hours = $estimate, due_date = $due
		`, map[string]any{
			"id": idOrNew(t.ID), "ws": t.WorkspaceID, "project": t.ProjectID, "epic": t.EpicID,
			"title": t.Title, "description": optional(t.Description), "status": string(t.Status),
			"priority": optional(t.Priority), "in_sprint": t.InSprint, "assignee": t.AssigneeID,
			"estimate": t.EstimateHours, "due": t.DueDate,
		})
		if err != nil {
			return fmt.Errorf("seed task %s: %w", t.Title, err)
		}
	}

	for _, off := range fx.TimeOff {
		err := c.exec(ctx, `
			UPSERT type::record("time_off", $id) SET
				member_id = $member, start = $start, end = $end, reason = $reason
		`, map[string]any{
			"id": idOrNew(off.ID), "member": off.MemberID, "start": off.Start,
			"end": off.End, "reason": optional(off.Reason),
		})
		if err != nil {
			return fmt.Errorf("seed time off: %w", err)
		}
	}

	for _, p := range fx.Projects {
		err := c.exec(ctx, `
			UPSERT type::record("project", $id) SET
				workspace_id = $ws, name = $name, description = $description
		`, map[string]any{
			"id": idOrNew(p.ID), "ws": p.WorkspaceID, "name": p.Name,
			"description": optional(p.Description),
		})
		if err != nil {
			return fmt.Errorf("seed project %s: %w", p.Name, err)
		}
	}

	for _, e := range fx.Epics {
		status := e.Status
		if status == "" {
			status = models.EpicDraft
		}
		err := c.exec(ctx, `
			UPSERT type::record("epic", $id) SET
				project_id = $project, name = $name, description = $description,
				status = $status, position = $position, estimate_weeks = $estimate
		`, map[string]any{
			"id": idOrNew(e.ID), "project": e.ProjectID, "name": e.Name,
			"description": optional(e.Description), "status": string(status),
			"position": e.Position, "estimate": e.EstimateWeeks,
		})
		if err != nil {
			return fmt.Errorf("seed epic %s: %w", e.Name, err)
		}
	}

	for _, d := range fx.Dependencies {
		err := c.exec(ctx, `
			UPSERT type::record("epic_dependency", $id) SET
				project_id = $project, epic_id = $epic, depends_on_id = $depends_on, reason = $reason
		`, map[string]any{
			"id": idOrNew(d.ID), "project": d.ProjectID, "epic": d.EpicID,
			"depends_on": d.DependsOnID, "reason": optional(d.Reason),
		})
		if err != nil {
			return fmt.Errorf("seed dependency: %w", err)
		}
	}
	return nil
}

func idOrNew(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
