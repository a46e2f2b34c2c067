package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
	"github.com/raphaelgruber/sprintpilot/internal/workspace"
)

// Limits for write tools.
const (
	MaxEpicsPerProject = 20
	MaxStoriesPerCall  = 30
)

// projectRevealer is implemented by results that carry a project id the
// model should be steered towards.
type projectRevealer interface {
	RevealedProjectID() string
}

// ownedProject loads a project and checks it belongs to the workspace.
func (d *Dependencies) ownedProject(ctx context.Context, workspaceID, projectID string) (*models.Project, error) {
	p, err := d.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p == nil || p.WorkspaceID != workspaceID {
		return nil, toolErrorf("Use get_project_context or the ids from earlier results", "Project %s not found in this workspace", projectID)
	}
	return p, nil
}

// ownedEpic loads an epic and checks its project belongs to the workspace.
func (d *Dependencies) ownedEpic(ctx context.Context, workspaceID, epicID string) (*models.Epic, error) {
	e, err := d.Store.GetEpic(ctx, epicID)
	if err != nil {
		return nil, fmt.Errorf("get epic: %w", err)
	}
	if e == nil {
		return nil, toolErrorf("Use get_project_context to list epic ids", "Epic %s not found", epicID)
	}
	if _, err := d.ownedProject(ctx, workspaceID, e.ProjectID); err != nil {
		var te *Error
		if errors.As(err, &te) {
			return nil, toolErrorf("Use get_project_context to list epic ids", "Epic %s not found in this workspace", epicID)
		}
		return nil, err
	}
	return e, nil
}

// =============================================================================
// create_project_with_epics
// =============================================================================

// EpicDraft is one epic to create.
type EpicDraft struct {
	Name          string  `json:"name" jsonschema:"description=Short epic name"`
	Description   string  `json:"description,omitempty" jsonschema:"description=One-line summary"`
	EstimateWeeks float64 `json:"estimate_weeks,omitempty" jsonschema:"minimum=0,description=Rough estimate in weeks"`
}

// DependencyDraft links two epics of the same call by name.
type DependencyDraft struct {
	Epic      string `json:"epic" jsonschema:"description=Name of the dependent epic"`
	DependsOn string `json:"depends_on" jsonschema:"description=Name of the epic it depends on"`
	Reason    string `json:"reason,omitempty" jsonschema:"description=Why the dependency exists"`
}

// CreateProjectInput defines the input schema for create_project_with_epics.
type CreateProjectInput struct {
	Name         string            `json:"name" jsonschema:"description=Project name"`
	Description  string            `json:"description,omitempty" jsonschema:"description=One-sentence project description"`
	Epics        []EpicDraft       `json:"epics" jsonschema:"minItems=1,maxItems=20,description=Epics in execution order"`
	Dependencies []DependencyDraft `json:"dependencies,omitempty" jsonschema:"description=Dependencies between the epics above"`
}

func (in *CreateProjectInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return toolError("Project name is required", "Provide a non-empty name")
	}
	if len(in.Epics) == 0 {
		return toolError("At least one epic is required", "Provide epics with a name each")
	}
	if len(in.Epics) > MaxEpicsPerProject {
		return toolErrorf("Split the project or merge epics", "Too many epics (%d, max %d)", len(in.Epics), MaxEpicsPerProject)
	}
	seen := map[string]bool{}
	for i := range in.Epics {
		name := strings.TrimSpace(in.Epics[i].Name)
		if name == "" {
			return toolErrorf("All epics must have a name", "Epic %d has no name", i+1)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return toolErrorf("Epic names must be unique", "Duplicate epic name %q", name)
		}
		seen[key] = true
		in.Epics[i].Name = name
	}
	for _, d := range in.Dependencies {
		if !seen[strings.ToLower(strings.TrimSpace(d.Epic))] || !seen[strings.ToLower(strings.TrimSpace(d.DependsOn))] {
			return toolErrorf("Dependencies must reference epic names from this call", "Unknown epic in dependency %q -> %q", d.Epic, d.DependsOn)
		}
	}
	return nil
}

// CreatedEpic is an epic created by create_project_with_epics.
type CreatedEpic struct {
	Key  string `json:"key"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateProjectResult is the response from create_project_with_epics.
type CreateProjectResult struct {
	ProjectID           string        `json:"project_id"`
	ProjectName         string        `json:"project_name"`
	Epics               []CreatedEpic `json:"epics"`
	DependenciesCreated int           `json:"dependencies_created"`
	Warnings            []string      `json:"warnings,omitempty"`
}

// RevealedProjectID implements projectRevealer.
func (r CreateProjectResult) RevealedProjectID() string { return r.ProjectID }

func newCreateProjectHandler(deps *Dependencies) func(context.Context, string, *CreateProjectInput) (any, error) {
	return func(ctx context.Context, workspaceID string, in *CreateProjectInput) (any, error) {
		project, err := deps.Store.CreateProject(ctx, models.ProjectInput{
			WorkspaceID: workspaceID,
			Name:        in.Name,
			Description: in.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("create project: %w", err)
		}

		res := CreateProjectResult{ProjectID: project.ID, ProjectName: project.Name, Epics: make([]CreatedEpic, 0, len(in.Epics))}
		ids := make(map[string]string, len(in.Epics))
		for i, draft := range in.Epics {
			epic, err := deps.Store.CreateEpic(ctx, models.EpicInput{
				ProjectID:     project.ID,
				Name:          draft.Name,
				Description:   draft.Description,
				Position:      i + 1,
				EstimateWeeks: draft.EstimateWeeks,
			})
			if err != nil {
				deps.logger().Error("create epic failed", "workspace", workspaceID, "project", project.ID, "epic", draft.Name, "error", err)
				return nil, partialProjectError(project, fmt.Sprintf("epic %q could not be saved, %d of %d epics exist",
					draft.Name, len(res.Epics), len(in.Epics)))
			}
			ids[strings.ToLower(draft.Name)] = epic.ID
			res.Epics = append(res.Epics, CreatedEpic{Key: fmt.Sprintf("E%d", i+1), ID: epic.ID, Name: epic.Name})
		}

		for _, d := range in.Dependencies {
			from := ids[strings.ToLower(strings.TrimSpace(d.Epic))]
			to := ids[strings.ToLower(strings.TrimSpace(d.DependsOn))]
			if _, err := deps.Store.AddEpicDependency(ctx, from, to, d.Reason); err != nil {
				if msg, ok := dependencyError(err); ok {
					res.Warnings = append(res.Warnings, fmt.Sprintf("%s -> %s skipped: %s", d.Epic, d.DependsOn, msg))
					continue
				}
				deps.logger().Error("add dependency failed", "workspace", workspaceID, "project", project.ID, "error", err)
				return nil, partialProjectError(project, fmt.Sprintf("all %d epics exist but dependency %s -> %s could not be saved, %d dependencies exist",
					len(res.Epics), d.Epic, d.DependsOn, res.DependenciesCreated))
			}
			res.DependenciesCreated++
		}

		deps.logger().Info("project created", "workspace", workspaceID, "project", project.ID,
			"epics", len(res.Epics), "dependencies", res.DependenciesCreated)
		return res, nil
	}
}

// partialProjectError reports a create_project_with_epics call that failed
// after the project itself was saved.
func partialProjectError(project *models.Project, detail string) error {
	return &Error{
		Msg: fmt.Sprintf("Project %q was created (project_id: %s) but %s", project.Name, project.ID, detail),
		Hint: "Do not call create_project_with_epics again. " +
			"Use get_project_context with this project_id to see what was saved, add missing dependencies with add_epic_dependency, " +
			"and tell the user which epics still need to be added",
		ProjectID: project.ID,
	}
}

// =============================================================================
// create_stories_for_epic
// =============================================================================

// StoryDraft is one story to create.
type StoryDraft struct {
	Title         string  `json:"title" jsonschema:"description=Story title"`
	Description   string  `json:"description,omitempty" jsonschema:"description=Acceptance criteria or details"`
	Priority      string  `json:"priority,omitempty" jsonschema:"enum=urgent,enum=high,enum=medium,enum=low"`
	EstimateHours float64 `json:"estimate_hours,omitempty" jsonschema:"minimum=0,description=Estimate in hours"`
}

// CreateStoriesInput defines the input schema for create_stories_for_epic.
type CreateStoriesInput struct {
	EpicID  string       `json:"epic_id" jsonschema:"description=Id of the epic (not its E-key)"`
	Stories []StoryDraft `json:"stories" jsonschema:"minItems=1,maxItems=30"`
}

func (in *CreateStoriesInput) validate() error {
	if strings.TrimSpace(in.EpicID) == "" {
		return toolError("epic_id is required", "Use the epic id from get_project_context")
	}
	if len(in.Stories) == 0 {
		return toolError("At least one story is required", "")
	}
	if len(in.Stories) > MaxStoriesPerCall {
		return toolErrorf("Create stories in batches", "Too many stories (%d, max %d)", len(in.Stories), MaxStoriesPerCall)
	}
	for i, s := range in.Stories {
		if strings.TrimSpace(s.Title) == "" {
			return toolErrorf("All stories must have a title", "Story %d has no title", i+1)
		}
		p, err := normalizePriority(s.Priority)
		if err != nil {
			return err
		}
		in.Stories[i].Priority = p
	}
	return nil
}

// CreateStoriesResult is the response from create_stories_for_epic.
type CreateStoriesResult struct {
	EpicID     string   `json:"epic_id"`
	ProjectID  string   `json:"project_id"`
	Created    int      `json:"created"`
	TaskIDs    []string `json:"task_ids"`
	EpicStatus string   `json:"epic_status"`
}

// RevealedProjectID implements projectRevealer.
func (r CreateStoriesResult) RevealedProjectID() string { return r.ProjectID }

func newCreateStoriesHandler(deps *Dependencies) func(context.Context, string, *CreateStoriesInput) (any, error) {
	return func(ctx context.Context, workspaceID string, in *CreateStoriesInput) (any, error) {
		epic, err := deps.ownedEpic(ctx, workspaceID, in.EpicID)
		if err != nil {
			return nil, err
		}

		res := CreateStoriesResult{EpicID: epic.ID, ProjectID: epic.ProjectID, TaskIDs: make([]string, 0, len(in.Stories))}
		for _, s := range in.Stories {
			task, err := deps.Store.CreateTask(ctx, models.TaskInput{
				WorkspaceID:   workspaceID,
				ProjectID:     &epic.ProjectID,
				EpicID:        &epic.ID,
				Title:         strings.TrimSpace(s.Title),
				Description:   s.Description,
				Status:        models.TaskBacklog,
				Priority:      s.Priority,
				EstimateHours: s.EstimateHours,
			})
			if err != nil {
				return nil, fmt.Errorf("create story: %w", err)
			}
			res.TaskIDs = append(res.TaskIDs, task.ID)
		}
		res.Created = len(res.TaskIDs)

		if err := deps.Store.UpdateEpicStatus(ctx, epic.ID, models.EpicReady); err != nil {
			return nil, fmt.Errorf("mark epic ready: %w", err)
		}
		res.EpicStatus = string(models.EpicReady)
		return res, nil
	}
}

// =============================================================================
// add_epic_dependency
// =============================================================================

// AddDependencyInput defines the input schema for add_epic_dependency.
type AddDependencyInput struct {
	EpicID          string `json:"epic_id" jsonschema:"description=Id of the epic that has to wait"`
	DependsOnEpicID string `json:"depends_on_epic_id" jsonschema:"description=Id of the epic that must be done first"`
	Reason          string `json:"reason,omitempty" jsonschema:"description=Why the dependency exists"`
}

func (in *AddDependencyInput) validate() error {
	if in.EpicID == "" || in.DependsOnEpicID == "" {
		return toolError("epic_id and depends_on_epic_id are required", "Use epic ids from get_project_context")
	}
	return nil
}

// AddDependencyResult is the response from add_epic_dependency.
type AddDependencyResult struct {
	DependencyID    string `json:"dependency_id"`
	ProjectID       string `json:"project_id"`
	EpicID          string `json:"epic_id"`
	DependsOnEpicID string `json:"depends_on_epic_id"`
}

// RevealedProjectID implements projectRevealer.
func (r AddDependencyResult) RevealedProjectID() string { return r.ProjectID }

// dependencyError maps the store's rejection sentinels to model-facing text.
func dependencyError(err error) (string, bool) {
	switch {
	case errors.Is(err, store.ErrSelfDependency):
		return "an epic cannot depend on itself", true
	case errors.Is(err, store.ErrDuplicateDependency):
		return "this dependency already exists", true
	case errors.Is(err, store.ErrDependencyCycle):
		return "this dependency would create a cycle", true
	case errors.Is(err, store.ErrNotFound):
		return "both epics must exist in the same project", true
	}
	return "", false
}

func newAddDependencyHandler(deps *Dependencies) func(context.Context, string, *AddDependencyInput) (any, error) {
	return func(ctx context.Context, workspaceID string, in *AddDependencyInput) (any, error) {
		if _, err := deps.ownedEpic(ctx, workspaceID, in.EpicID); err != nil {
			return nil, err
		}
		if _, err := deps.ownedEpic(ctx, workspaceID, in.DependsOnEpicID); err != nil {
			return nil, err
		}

		dep, err := deps.Store.AddEpicDependency(ctx, in.EpicID, in.DependsOnEpicID, in.Reason)
		if err != nil {
			if msg, ok := dependencyError(err); ok {
				return nil, toolError("Dependency rejected: "+msg, "")
			}
			return nil, fmt.Errorf("add dependency: %w", err)
		}
		return AddDependencyResult{
			DependencyID:    dep.ID,
			ProjectID:       dep.ProjectID,
			EpicID:          dep.EpicID,
			DependsOnEpicID: dep.DependsOnID,
		}, nil
	}
}

// =============================================================================
// get_project_context
// =============================================================================

// ProjectContextInput defines the input schema for get_project_context.
type ProjectContextInput struct {
	ProjectID string `json:"project_id" jsonschema:"description=Project id"`
}

func (in *ProjectContextInput) validate() error {
	if strings.TrimSpace(in.ProjectID) == "" {
		return toolError("project_id is required", "")
	}
	return nil
}

// ProjectContextResult is the response from get_project_context.
type ProjectContextResult struct {
	ProjectID string                    `json:"project_id"`
	Summary   string                    `json:"summary"`
	Context   *workspace.ProjectContext `json:"context"`
}

// RevealedProjectID implements projectRevealer.
func (r ProjectContextResult) RevealedProjectID() string { return r.ProjectID }

func newProjectContextHandler(deps *Dependencies) func(context.Context, string, *ProjectContextInput) (any, error) {
	return func(ctx context.Context, workspaceID string, in *ProjectContextInput) (any, error) {
		if _, err := deps.ownedProject(ctx, workspaceID, in.ProjectID); err != nil {
			return nil, err
		}
		if deps.Projects == nil {
			return nil, errors.New("project builder not configured")
		}
		pc, err := deps.Projects.Build(ctx, in.ProjectID)
		if err != nil {
			return nil, err
		}
		if pc == nil {
			return nil, toolErrorf("", "Project %s not found in this workspace", in.ProjectID)
		}
		return ProjectContextResult{ProjectID: in.ProjectID, Summary: workspace.FormatProjectContext(pc), Context: pc}, nil
	}
}
