package workspace

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// DeadlineHorizon is how far ahead a due date counts as upcoming.
// Open tasks due before now are overdue, not upcoming.
const DeadlineHorizon = 14 * 24 * time.Hour

// Summary holds the counts every snapshot carries.
type Summary struct {
	TeamSize           int      `json:"team_size"`
	TotalTasks         int      `json:"total_tasks"`
	BacklogTasks       int      `json:"backlog_tasks"`
	SprintTasks        int      `json:"sprint_tasks"`
	UpcomingDeadlines  int      `json:"upcoming_deadlines"`
	OverdueTasks       int      `json:"overdue_tasks"`
	CapacityHours      float64  `json:"capacity_hours"`
	AssignedHours      float64  `json:"assigned_hours"`
	UtilizationPercent float64  `json:"utilization_percent"`
	OverloadedMembers  []string `json:"overloaded_members"`
}

// TimeOffEntry is time off annotated with the member name.
type TimeOffEntry struct {
	MemberName string    `json:"member_name"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Reason     string    `json:"reason,omitempty"`
}

// Snapshot is the workspace data handed to the prompt composer.
// Sections beyond Summary are populated according to Level.
type Snapshot struct {
	WorkspaceID   string            `json:"workspace_id"`
	WorkspaceName string            `json:"workspace_name"`
	Level         Level             `json:"level"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Summary       Summary           `json:"summary"`
	Capacity      []MemberCapacity  `json:"capacity,omitempty"`
	SprintTasks   []models.Task     `json:"sprint_tasks,omitempty"`
	Deadlines     []models.Task     `json:"deadlines,omitempty"`
	Overdue       []models.Task     `json:"overdue,omitempty"`
	TimeOff       []TimeOffEntry    `json:"time_off,omitempty"`
	BacklogTasks  []models.Task     `json:"backlog_tasks,omitempty"`
	MemberNames   map[string]string `json:"-"`
}

// Builder assembles snapshots from the workspace store.
type Builder struct {
	store  store.Workspace
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a context builder.
func NewBuilder(s store.Workspace, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: s, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build returns a snapshot at the requested level. It never fails: a data
// source that errors leaves its section empty and is logged.
func (b *Builder) Build(ctx context.Context, workspaceID string, level Level) *Snapshot {
	now := b.now().UTC()
	snap := &Snapshot{
		WorkspaceID: workspaceID,
		Level:       level,
		GeneratedAt: now,
		MemberNames: map[string]string{},
		Summary:     Summary{OverloadedMembers: []string{}},
	}

	if ws, err := b.store.GetWorkspace(ctx, workspaceID); err != nil {
		b.warn("workspace", workspaceID, err)
	} else if ws != nil {
		snap.WorkspaceName = ws.Name
	}

	members, err := b.store.ListMembers(ctx, workspaceID)
	if err != nil {
		b.warn("members", workspaceID, err)
		members = nil
	}
	tasks, err := b.store.ListTasks(ctx, workspaceID, models.TaskFilter{})
	if err != nil {
		b.warn("tasks", workspaceID, err)
		tasks = nil
	}
	weekStart := WeekStart(now)
	horizon := now.Add(DeadlineHorizon)
	timeOff, err := b.store.ListTimeOff(ctx, workspaceID, weekStart, horizon)
	if err != nil {
		b.warn("time off", workspaceID, err)
		timeOff = nil
	}

	for _, m := range members {
		snap.MemberNames[m.ID] = m.Name
	}

	var sprint, deadlines, overdue, backlog []models.Task
	for _, t := range tasks {
		if t.Status == models.TaskBacklog {
			backlog = append(backlog, t)
		}
		if t.InSprint && t.Open() {
			sprint = append(sprint, t)
		}
		if t.Open() && t.DueDate != nil {
			switch {
			case t.DueDate.Before(now):
				overdue = append(overdue, t)
			case t.DueDate.Before(horizon):
				deadlines = append(deadlines, t)
			}
		}
	}

	caps := ComputeCapacity(members, tasks, timeOff, weekStart)
	var capacity, assignedHours float64
	for _, c := range caps {
		capacity += c.AvailableHours
		assignedHours += c.AssignedHours
		if c.Overloaded {
			snap.Summary.OverloadedMembers = append(snap.Summary.OverloadedMembers, c.Name)
		}
	}

	snap.Summary.TeamSize = len(members)
	snap.Summary.TotalTasks = len(tasks)
	snap.Summary.BacklogTasks = len(backlog)
	snap.Summary.SprintTasks = len(sprint)
	snap.Summary.UpcomingDeadlines = len(deadlines)
	snap.Summary.OverdueTasks = len(overdue)
	snap.Summary.CapacityHours = round1(capacity)
	snap.Summary.AssignedHours = round1(assignedHours)
	if capacity > 0 {
		snap.Summary.UtilizationPercent = round1(assignedHours / capacity * 100)
	}

	if level.Includes(LevelScheduling) {
		snap.Capacity = caps
		snap.SprintTasks = sprint
		snap.Deadlines = deadlines
		snap.Overdue = overdue
		for _, off := range timeOff {
			if !off.Overlaps(now, horizon) {
				continue
			}
			snap.TimeOff = append(snap.TimeOff, TimeOffEntry{
				MemberName: nameOr(snap.MemberNames, off.MemberID),
				Start:      off.Start,
				End:        off.End,
				Reason:     off.Reason,
			})
		}
	}
	if level.Includes(LevelBacklog) {
		SortByPriority(backlog)
		snap.BacklogTasks = backlog
	}

	return snap
}

func (b *Builder) warn(section, workspaceID string, err error) {
	b.logger.Warn("workspace context degraded", "section", section, "workspace", workspaceID, "error", err)
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

// priorityRank orders known priorities; unknown sort last.
var priorityRank = map[string]int{"urgent": 0, "critical": 0, "high": 1, "medium": 2, "low": 3}

// SortByPriority orders tasks by priority, then creation time.
func SortByPriority(tasks []models.Task) {
	rank := func(p string) int {
		if r, ok := priorityRank[p]; ok {
			return r
		}
		return 4
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := rank(tasks[i].Priority), rank(tasks[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
