package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/workspace"
)

// MaxBacklogTasks caps get_backlog_tasks results.
const MaxBacklogTasks = 100

const dateLayout = "2006-01-02"

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, toolErrorf("Use the YYYY-MM-DD format", "Invalid %s %q", field, value)
	}
	return t, nil
}

// =============================================================================
// get_team_capacity
// =============================================================================

// TeamCapacityInput defines the input schema for get_team_capacity.
type TeamCapacityInput struct {
	WeekOf string `json:"week_of,omitempty" jsonschema:"description=Any date (YYYY-MM-DD) in the week to report. Defaults to the current week"`
}

func (in *TeamCapacityInput) validate() error {
	if in.WeekOf == "" {
		return nil
	}
	_, err := parseDate("week_of", in.WeekOf)
	return err
}

// TeamCapacityResult is the response from get_team_capacity.
type TeamCapacityResult struct {
	WeekStart          string                     `json:"week_start"`
	Members            []workspace.MemberCapacity `json:"members"`
	TotalAvailable     float64                    `json:"total_available_hours"`
	TotalAssigned      float64                    `json:"total_assigned_hours"`
	UtilizationPercent float64                    `json:"utilization_percent"`
}

func (d *Dependencies) weekCapacity(ctx context.Context, workspaceID string, weekStart time.Time) ([]workspace.MemberCapacity, error) {
	members, err := d.Store.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	inSprint := true
	tasks, err := d.Store.ListTasks(ctx, workspaceID, models.TaskFilter{InSprint: &inSprint})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	timeOff, err := d.Store.ListTimeOff(ctx, workspaceID, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, fmt.Errorf("list time off: %w", err)
	}
	return workspace.ComputeCapacity(members, tasks, timeOff, weekStart), nil
}

func newTeamCapacityHandler(deps *Dependencies) func(context.Context, string, *TeamCapacityInput) (any, error) {
	return func(ctx context.Context, workspaceID string, in *TeamCapacityInput) (any, error) {
		ref := deps.now()
		if in.WeekOf != "" {
			ref, _ = parseDate("week_of", in.WeekOf)
		}
		weekStart := workspace.WeekStart(ref)

		caps, err := deps.weekCapacity(ctx, workspaceID, weekStart)
		if err != nil {
			return nil, err
		}

		res := TeamCapacityResult{WeekStart: weekStart.Format(dateLayout), Members: caps}
		for _, c := range caps {
			res.TotalAvailable += c.AvailableHours
			res.TotalAssigned += c.AssignedHours
		}
		if res.TotalAvailable > 0 {
			res.UtilizationPercent = float64(int64(res.TotalAssigned/res.TotalAvailable*1000+0.5)) / 10
		}
		return res, nil
	}
}

// =============================================================================
// get_backlog_tasks
// =============================================================================

// BacklogTasksInput defines the input schema for get_backlog_tasks.
type BacklogTasksInput struct {
	Limit          int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100,description=Maximum number of tasks (default 50)"`
	Priority       string `json:"priority,omitempty" jsonschema:"enum=urgent,enum=high,enum=medium,enum=low,description=Only tasks with this priority"`
	UnassignedOnly bool   `json:"unassigned_only,omitempty" jsonschema:"description=Only tasks without an assignee"`
}

func (in *BacklogTasksInput) validate() error {
	if in.Limit < 0 || in.Limit > MaxBacklogTasks {
		return toolErrorf("Use a limit between 1 and 100", "Invalid limit %d", in.Limit)
	}
	p, err := normalizePriority(in.Priority)
	if err != nil {
		return err
	}
	in.Priority = p
	return nil
}

// priorities are the values the priority enum accepts.
var priorities = []string{"urgent", "high", "medium", "low"}

// normalizePriority lowercases p and rejects values outside the enum.
// An empty priority stays empty.
func normalizePriority(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" || slices.Contains(priorities, p) {
		return p, nil
	}
	return "", toolErrorf("Use one of: "+strings.Join(priorities, ", "), "Invalid priority %q", p)
}

// BacklogTasksResult is the response from get_backlog_tasks.
type BacklogTasksResult struct {
	Tasks    []models.Task `json:"tasks"`
	Matching int           `json:"matching"`
	Returned int           `json:"returned"`
}

func newBacklogTasksHandler(deps *Dependencies) func(context.Context, string, *BacklogTasksInput) (any, error) {
	return func(ctx context.Context, workspaceID string, in *BacklogTasksInput) (any, error) {
		limit := in.Limit
		if limit == 0 {
			limit = 50
		}

		tasks, err := deps.Store.ListTasks(ctx, workspaceID, models.TaskFilter{Statuses: []models.TaskStatus{models.TaskBacklog}})
		if err != nil {
			return nil, fmt.Errorf("list backlog: %w", err)
		}

		filtered := make([]models.Task, 0, len(tasks))
		for _, t := range tasks {
			if in.Priority != "" && t.Priority != in.Priority {
				continue
			}
			if in.UnassignedOnly && t.AssigneeID != nil {
				continue
			}
			filtered = append(filtered, t)
		}
		workspace.SortByPriority(filtered)

		res := BacklogTasksResult{Matching: len(filtered)}
		if len(filtered) > limit {
			filtered = filtered[:limit]
		}
		res.Tasks = filtered
		res.Returned = len(filtered)
		return res, nil
	}
}

// =============================================================================
// get_schedule
// =============================================================================

// ScheduleInput defines the input schema for get_schedule.
type ScheduleInput struct {
	From     string `json:"from,omitempty" jsonschema:"description=Start date YYYY-MM-DD (default today)"`
	To       string `json:"to,omitempty" jsonschema:"description=End date YYYY-MM-DD exclusive (default 14 days after from)"`
	MemberID string `json:"member_id,omitempty" jsonschema:"description=Only this member's tasks and time off"`
}

func (in *ScheduleInput) validate() error {
	var from, to time.Time
	var err error
	if in.From != "" {
		if from, err = parseDate("from", in.From); err != nil {
			return err
		}
	}
	if in.To != "" {
		if to, err = parseDate("to", in.To); err != nil {
			return err
		}
	}
	if in.From != "" && in.To != "" && !to.After(from) {
		return toolError("Invalid range: to must be after from", "")
	}
	return nil
}

// ScheduledTask is a task with a due date in the schedule window.
type ScheduledTask struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Assignee string `json:"assignee,omitempty"`
	DueDate  string `json:"due_date"`
	InSprint bool   `json:"in_sprint"`
}

// ScheduleResult is the response from get_schedule.
type ScheduleResult struct {
	From    string                   `json:"from"`
	To      string                   `json:"to"`
	Tasks   []ScheduledTask          `json:"tasks"`
	TimeOff []workspace.TimeOffEntry `json:"time_off"`
}

func newScheduleHandler(deps *Dependencies) func(context.Context, string, *ScheduleInput) (any, error) {
	return func(ctx context.Context, workspaceID string, in *ScheduleInput) (any, error) {
		now := deps.now().UTC()
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if in.From != "" {
			from, _ = parseDate("from", in.From)
		}
		to := from.Add(workspace.DeadlineHorizon)
		if in.To != "" {
			to, _ = parseDate("to", in.To)
		}

		members, err := deps.Store.ListMembers(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		names := make(map[string]string, len(members))
		for _, m := range members {
			names[m.ID] = m.Name
		}
		if in.MemberID != "" {
			if _, ok := names[in.MemberID]; !ok {
				return nil, toolErrorf("Use get_team_capacity to list member ids", "Member %s not found in this workspace", in.MemberID)
			}
		}

		tasks, err := deps.Store.ListTasks(ctx, workspaceID, models.TaskFilter{DueBefore: &to})
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		res := ScheduleResult{
			From:    from.Format(dateLayout),
			To:      to.Format(dateLayout),
			Tasks:   []ScheduledTask{},
			TimeOff: []workspace.TimeOffEntry{},
		}
		for _, t := range tasks {
			if !t.Open() || t.DueDate.Before(from) {
				continue
			}
			if in.MemberID != "" && (t.AssigneeID == nil || *t.AssigneeID != in.MemberID) {
				continue
			}
			st := ScheduledTask{
				ID:       t.ID,
				Title:    t.Title,
				Status:   string(t.Status),
				DueDate:  t.DueDate.Format(dateLayout),
				InSprint: t.InSprint,
			}
			if t.AssigneeID != nil {
				st.Assignee = names[*t.AssigneeID]
			}
			res.Tasks = append(res.Tasks, st)
		}

		timeOff, err := deps.Store.ListTimeOff(ctx, workspaceID, from, to)
		if err != nil {
			return nil, fmt.Errorf("list time off: %w", err)
		}
		for _, off := range timeOff {
			if in.MemberID != "" && off.MemberID != in.MemberID {
				continue
			}
			res.TimeOff = append(res.TimeOff, workspace.TimeOffEntry{
				MemberName: names[off.MemberID],
				Start:      off.Start,
				End:        off.End,
				Reason:     off.Reason,
			})
		}
		return res, nil
	}
}

// =============================================================================
// get_overloaded_members
// =============================================================================

// OverloadedMembersInput defines the input schema for get_overloaded_members.
type OverloadedMembersInput struct {
	ThresholdPercent float64 `json:"threshold_percent,omitempty" jsonschema:"minimum=0,maximum=500,description=Report members above this utilization percent. Omit to report members assigned more than they can do"`
}

func (in *OverloadedMembersInput) validate() error {
	if in.ThresholdPercent < 0 || in.ThresholdPercent > 500 {
		return toolErrorf("Use a threshold between 0 and 500", "Invalid threshold_percent %g", in.ThresholdPercent)
	}
	return nil
}

// OverloadedMembersResult is the response from get_overloaded_members.
type OverloadedMembersResult struct {
	WeekStart string                     `json:"week_start"`
	Members   []workspace.MemberCapacity `json:"members"`
	TeamSize  int                        `json:"team_size"`
}

func newOverloadedMembersHandler(deps *Dependencies) func(context.Context, string, *OverloadedMembersInput) (any, error) {
	return func(ctx context.Context, workspaceID string, in *OverloadedMembersInput) (any, error) {
		weekStart := workspace.WeekStart(deps.now())
		caps, err := deps.weekCapacity(ctx, workspaceID, weekStart)
		if err != nil {
			return nil, err
		}
		return OverloadedMembersResult{
			WeekStart: weekStart.Format(dateLayout),
			Members:   workspace.Overloaded(caps, in.ThresholdPercent),
			TeamSize:  len(caps),
		}, nil
	}
}
