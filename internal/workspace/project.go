package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// recentConversationLimit caps the conversation titles listed per project.
const recentConversationLimit = 5

// EpicSummary is an epic with its short key, story count and dependencies.
type EpicSummary struct {
	Key           string   `json:"key"`
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Status        string   `json:"status"`
	StoryCount    int      `json:"story_count"`
	EstimateWeeks float64  `json:"estimate_weeks,omitempty"`
	DependsOn     []string `json:"depends_on"`
}

// ProjectContext is a compact, model-friendly view of one project.
type ProjectContext struct {
	Project             models.Project    `json:"project"`
	Epics               []EpicSummary     `json:"epics"`
	RecentConversations []string          `json:"recent_conversations"`
	SharedComponents    []SharedComponent `json:"shared_components"`
}

// EpicByKey returns the epic with the given short key.
func (pc *ProjectContext) EpicByKey(key string) (EpicSummary, bool) {
	for _, e := range pc.Epics {
		if strings.EqualFold(e.Key, key) {
			return e, true
		}
	}
	return EpicSummary{}, false
}

// ProjectBuilder assembles project contexts.
type ProjectBuilder struct {
	workspace     store.Workspace
	conversations store.Conversations
	detector      PatternDetector
	logger        *slog.Logger
}

// NewProjectBuilder creates a builder. A nil detector disables pattern detection.
func NewProjectBuilder(ws store.Workspace, convs store.Conversations, detector PatternDetector, logger *slog.Logger) *ProjectBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectBuilder{workspace: ws, conversations: convs, detector: detector, logger: logger}
}

// Build returns the project context, or nil when the project does not exist.
func (b *ProjectBuilder) Build(ctx context.Context, projectID string) (*ProjectContext, error) {
	return b.BuildFor(ctx, projectID, "")
}

// BuildFor is Build with the active conversation left out of the recent
// conversation titles.
func (b *ProjectBuilder) BuildFor(ctx context.Context, projectID, activeConversationID string) (*ProjectContext, error) {
	project, err := b.workspace.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if project == nil {
		return nil, nil
	}

	epics, err := b.workspace.ListEpics(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list epics: %w", err)
	}
	deps, err := b.workspace.ListEpicDependencies(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	tasks, err := b.workspace.ListTasks(ctx, project.WorkspaceID, models.TaskFilter{ProjectID: &projectID})
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}

	keys := make(map[string]string, len(epics))
	for i, e := range epics {
		keys[e.ID] = fmt.Sprintf("E%d", i+1)
	}

	stories := map[string][]string{}
	for _, t := range tasks {
		if t.EpicID != nil {
			stories[*t.EpicID] = append(stories[*t.EpicID], t.Title)
		}
	}

	dependsOn := map[string][]string{}
	for _, d := range deps {
		from, okFrom := keys[d.EpicID]
		to, okTo := keys[d.DependsOnID]
		if !okFrom || !okTo {
			continue
		}
		dependsOn[from] = append(dependsOn[from], to)
	}

	pc := &ProjectContext{
		Project:             *project,
		Epics:               make([]EpicSummary, 0, len(epics)),
		RecentConversations: []string{},
		SharedComponents:    []SharedComponent{},
	}
	work := make([]EpicWork, 0, len(epics))
	for _, e := range epics {
		key := keys[e.ID]
		pc.Epics = append(pc.Epics, EpicSummary{
			Key:           key,
			ID:            e.ID,
			Name:          e.Name,
			Description:   e.Description,
			Status:        string(e.Status),
			StoryCount:    len(stories[e.ID]),
			EstimateWeeks: e.EstimateWeeks,
			DependsOn:     sortedKeys(dependsOn[key]),
		})
		titles := append([]string{e.Name, e.Description}, stories[e.ID]...)
		work = append(work, EpicWork{Key: key, Titles: titles})
	}

	if b.detector != nil {
		pc.SharedComponents = b.detector.Detect(work)
	}

	if b.conversations != nil {
		convs, err := b.conversations.ListConversations(ctx, project.WorkspaceID, models.ConversationFilter{
			ProjectID:  &projectID,
			TitledOnly: true,
			ExcludeID:  activeConversationID,
			Limit:      recentConversationLimit,
		})
		if err != nil {
			b.logger.Warn("recent conversations unavailable", "project", projectID, "error", err)
		}
		for _, c := range convs {
			if c.Title != nil {
				pc.RecentConversations = append(pc.RecentConversations, *c.Title)
			}
		}
	}

	return pc, nil
}

// sortedKeys orders epic keys numerically (E2 before E10).
func sortedKeys(keys []string) []string {
	out := append([]string{}, keys...)
	num := func(k string) int {
		n, _ := strconv.Atoi(strings.TrimPrefix(k, "E"))
		return n
	}
	sort.SliceStable(out, func(i, j int) bool { return num(out[i]) < num(out[j]) })
	return out
}

// FormatProjectContext renders a deterministic text block for the prompt.
func FormatProjectContext(pc *ProjectContext) string {
	if pc == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s (id: %s)\n", pc.Project.Name, pc.Project.ID)
	if pc.Project.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", pc.Project.Description)
	}

	if len(pc.Epics) == 0 {
		b.WriteString("Epics: none yet\n")
	} else {
		b.WriteString("Epics:\n")
		for _, e := range pc.Epics {
			fmt.Fprintf(&b, "- %s %s [%s] stories=%d", e.Key, e.Name, e.Status, e.StoryCount)
			if e.EstimateWeeks > 0 {
				fmt.Fprintf(&b, " estimate=%gw", e.EstimateWeeks)
			}
			if len(e.DependsOn) > 0 {
				fmt.Fprintf(&b, " depends_on=%s", strings.Join(e.DependsOn, ","))
			}
			fmt.Fprintf(&b, " (id: %s)\n", e.ID)
		}
	}

	if len(pc.SharedComponents) > 0 {
		b.WriteString("Shared components across epics:\n")
		for _, c := range pc.SharedComponents {
			fmt.Fprintf(&b, "- %s used by %s\n", c.Name, strings.Join(c.EpicKeys, ","))
		}
	}

	if len(pc.RecentConversations) > 0 {
		b.WriteString("Recent conversations:\n")
		for _, t := range pc.RecentConversations {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	return b.String()
}
