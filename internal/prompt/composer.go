// Package prompt builds the system prompt for a chat turn.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/wizard"
	"github.com/raphaelgruber/sprintpilot/internal/workspace"
)

// MaxTaskExcerpt caps the tasks listed per section.
const MaxTaskExcerpt = 15

// Addition names the single mode-specific block appended to a prompt.
type Addition string

// Additions in priority order.
const (
	AdditionNone             Addition = ""
	AdditionWizard           Addition = "wizard"
	AdditionEpicBreakdown    Addition = "epic_breakdown"
	AdditionProjectAwareness Addition = "project_awareness"
	AdditionProjectDetection Addition = "project_detection"
)

// Input is everything the composer needs for one turn.
type Input struct {
	Snapshot *workspace.Snapshot
	// Project is set when the turn is scoped to a project.
	Project *workspace.ProjectContext
	// EpicKey selects an epic of Project for story breakdown.
	EpicKey         string
	Wizard          wizard.State
	NewConversation bool
	Now             time.Time
}

// Composer renders system prompts.
type Composer struct {
	assistantName string
}

// NewComposer creates a composer.
func NewComposer() *Composer {
	return &Composer{assistantName: "Sprintpilot"}
}

// Select picks the exclusive addition for in:
// wizard > epic breakdown > project awareness > new-conversation detection.
func Select(in Input) Addition {
	switch {
	case in.Wizard.IsActive():
		return AdditionWizard
	case in.Project != nil && in.EpicKey != "":
		if _, ok := in.Project.EpicByKey(in.EpicKey); ok {
			return AdditionEpicBreakdown
		}
		return AdditionProjectAwareness
	case in.Project != nil:
		return AdditionProjectAwareness
	case in.NewConversation:
		return AdditionProjectDetection
	default:
		return AdditionNone
	}
}

// Compose returns the system prompt.
func (c *Composer) Compose(in Input) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	snap := in.Snapshot
	if snap == nil {
		snap = &workspace.Snapshot{}
	}

	var b strings.Builder
	c.writePreamble(&b, snap, now)
	writeStatus(&b, snap)
	writeFormats(&b)
	writeDetails(&b, snap)

	switch Select(in) {
	case AdditionWizard:
		b.WriteString("\n")
		b.WriteString(wizard.Instructions(in.Wizard))
	case AdditionEpicBreakdown:
		writeEpicBreakdown(&b, in.Project, in.EpicKey)
	case AdditionProjectAwareness:
		writeProjectAwareness(&b, in.Project)
	case AdditionProjectDetection:
		writeProjectDetection(&b)
	}
	return b.String()
}

func (c *Composer) writePreamble(b *strings.Builder, snap *workspace.Snapshot, now time.Time) {
	name := snap.WorkspaceName
	if name == "" {
		name = "this workspace"
	}
	fmt.Fprintf(b, "You are %s, the planning assistant for the team workspace %q.\n", c.assistantName, name)
	b.WriteString("Help the team plan sprints, balance workload, groom the backlog and shape projects into epics and stories. " +
		"Be concise and concrete. Use the tools to look up or change workspace data instead of guessing, " +
		"and only reference ids that appeared in tool results or in this prompt.\n")
	fmt.Fprintf(b, "Today is %s (%s).\n", now.UTC().Format("2006-01-02"), now.UTC().Weekday())
}

func writeStatus(b *strings.Builder, snap *workspace.Snapshot) {
	s := snap.Summary
	b.WriteString("\n## Current status\n")
	fmt.Fprintf(b, "- Team size: %d\n", s.TeamSize)
	fmt.Fprintf(b, "- Tasks: %d total, %d in backlog, %d in the current sprint\n", s.TotalTasks, s.BacklogTasks, s.SprintTasks)
	fmt.Fprintf(b, "- Upcoming deadlines (next 14 days): %d\n", s.UpcomingDeadlines)
	if s.OverdueTasks > 0 {
		fmt.Fprintf(b, "- Overdue tasks: %d\n", s.OverdueTasks)
	}
	fmt.Fprintf(b, "- Capacity this week: %g h available, %g h assigned (%g%% utilized)\n",
		s.CapacityHours, s.AssignedHours, s.UtilizationPercent)
	if len(s.OverloadedMembers) > 0 {
		fmt.Fprintf(b, "- Overloaded: %s\n", strings.Join(s.OverloadedMembers, ", "))
	} else {
		b.WriteString("- Overloaded: nobody\n")
	}
}

func writeFormats(b *strings.Builder) {
	b.WriteString("\n## Structured data\n")
	b.WriteString("When your answer contains data the app can render, add exactly one fenced block tagged with its type, " +
		"for example ```json:task_suggestions``` followed by a JSON object whose \"type\" matches the tag. Types:\n")
	b.WriteString("- task_suggestions: {\"tasks\":[{\"title\",\"description\",\"priority\",\"estimate_hours\",\"assignee\"}]}\n")
	b.WriteString("- schedule_suggestion: {\"assignments\":[{\"task_id\",\"member\",\"reason\"}]}\n")
	b.WriteString("- capacity_overview: {\"members\":[{\"name\",\"available_hours\",\"assigned_hours\",\"utilization_percent\"}]}\n")
	b.WriteString("- project_wizard_suggestion: {\"project_name\",\"description\",\"reason\"}\n")
	b.WriteString("- project_wizard_progress: {\"step\",\"project_name\",\"description\",\"epics\":[{\"name\",\"description\",\"estimate_weeks\"}],\"dependencies\":[{\"epic\",\"depends_on\",\"reason\"}]}\n")
	b.WriteString("- project_wizard_review: same fields as project_wizard_progress with step \"review\"\n")
	b.WriteString("- project_created: {\"project_id\",\"project_name\",\"epic_count\"}\n")
	b.WriteString("Omit the block when there is nothing to render.\n")
}

func writeDetails(b *strings.Builder, snap *workspace.Snapshot) {
	if len(snap.Capacity) > 0 {
		b.WriteString("\n## Capacity this week\n")
		b.WriteString("| Member | Available h | Assigned h | Utilization | Open tasks |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, c := range snap.Capacity {
			flag := ""
			if c.Overloaded {
				flag = " (overloaded)"
			}
			fmt.Fprintf(b, "| %s | %g | %g | %g%%%s | %d |\n",
				c.Name, c.AvailableHours, c.AssignedHours, c.UtilizationPercent, flag, c.OpenTasks)
		}
	}

	writeTasks(b, "Current sprint", snap.SprintTasks, snap.MemberNames)
	writeTasks(b, "Overdue", snap.Overdue, snap.MemberNames)
	writeTasks(b, "Upcoming deadlines", snap.Deadlines, snap.MemberNames)
	writeTasks(b, "Backlog (highest priority first)", snap.BacklogTasks, snap.MemberNames)

	if len(snap.TimeOff) > 0 {
		b.WriteString("\n## Upcoming time off\n")
		for _, off := range snap.TimeOff {
			fmt.Fprintf(b, "- %s: %s to %s", off.MemberName, off.Start.Format("2006-01-02"), off.End.Format("2006-01-02"))
			if off.Reason != "" {
				fmt.Fprintf(b, " (%s)", off.Reason)
			}
			b.WriteString("\n")
		}
	}
}

// writeTasks lists at most MaxTaskExcerpt tasks and notes how many were left out.
func writeTasks(b *strings.Builder, title string, tasks []models.Task, names map[string]string) {
	if len(tasks) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n", title)
	for i, t := range tasks {
		if i == MaxTaskExcerpt {
			fmt.Fprintf(b, "...and %d more\n", len(tasks)-MaxTaskExcerpt)
			break
		}
		b.WriteString(taskLine(t, names))
	}
}

func taskLine(t models.Task, names map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s [%s", t.Title, t.Status)
	if t.Priority != "" {
		fmt.Fprintf(&b, ", %s", t.Priority)
	}
	b.WriteString("]")
	if t.AssigneeID != nil {
		name := *t.AssigneeID
		if n, ok := names[name]; ok {
			name = n
		}
		fmt.Fprintf(&b, " @%s", name)
	}
	if t.EstimateHours > 0 {
		fmt.Fprintf(&b, " %gh", t.EstimateHours)
	}
	if t.DueDate != nil {
		fmt.Fprintf(&b, " due %s", t.DueDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, " (id: %s)\n", t.ID)
	return b.String()
}

func writeProjectAwareness(b *strings.Builder, pc *workspace.ProjectContext) {
	b.WriteString("\n## Project context\n")
	b.WriteString(workspace.FormatProjectContext(pc))
	b.WriteString("This conversation is about the project above. Refer to epics by their keys (E1, E2, ...) when talking " +
		"to the user, but pass the real ids to tools. Watch for shared components that several epics need and " +
		"suggest building them once, early.\n")
}

func writeEpicBreakdown(b *strings.Builder, pc *workspace.ProjectContext, key string) {
	epic, _ := pc.EpicByKey(key)
	b.WriteString("\n## Epic breakdown\n")
	b.WriteString(workspace.FormatProjectContext(pc))
	fmt.Fprintf(b, "Focus on epic %s %q (id: %s).", epic.Key, epic.Name, epic.ID)
	if epic.Description != "" {
		fmt.Fprintf(b, " Description: %s.", epic.Description)
	}
	b.WriteString("\nPropose 4 to 10 user stories for this epic, each with a title, a short description, a priority and an " +
		"estimate in hours. Mention stories that depend on shared components from other epics. Once the user agrees, " +
		"call create_stories_for_epic with the epic id above; that marks the epic ready.\n")
}

func writeProjectDetection(b *strings.Builder) {
	b.WriteString("\n## New conversation\n")
	b.WriteString("If the user describes a new initiative that is bigger than a few tasks and no matching project exists, " +
		"offer to set it up as a project and add a ```json:project_wizard_suggestion``` block with a proposed " +
		"project_name, a one-sentence description and the reason. Do not create anything yet.\n")
}
