package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/raphaelgruber/sprintpilot/internal/llm"
)

// Tool names exposed to the model.
const (
	ToolGetTeamCapacity        = "get_team_capacity"
	ToolGetBacklogTasks        = "get_backlog_tasks"
	ToolGetSchedule            = "get_schedule"
	ToolGetOverloadedMembers   = "get_overloaded_members"
	ToolCreateProjectWithEpics = "create_project_with_epics"
	ToolCreateStoriesForEpic   = "create_stories_for_epic"
	ToolAddEpicDependency      = "add_epic_dependency"
	ToolGetProjectContext      = "get_project_context"
)

// validator is implemented by tool inputs with rules beyond the schema.
type validator interface {
	validate() error
}

// handlerFunc runs a decoded tool call. workspaceID always comes from the
// executor, never from the model.
type handlerFunc func(ctx context.Context, workspaceID string, args json.RawMessage) (any, error)

// Tool is a registered, model-callable operation.
type Tool struct {
	Name        string
	Description string
	// Write tools mutate workspace data and never run concurrently.
	Write  bool
	Schema map[string]any
	run    handlerFunc
}

// Registry holds the tools in registration order.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry registers every workspace tool.
// This is called once per service; executors share it.
func NewRegistry(deps *Dependencies) *Registry {
	r := &Registry{tools: map[string]*Tool{}}

	add(r, ToolGetTeamCapacity,
		"Per-member capacity for a week: available hours after time off, assigned sprint hours, utilization and overload flags.",
		false, newTeamCapacityHandler(deps))
	add(r, ToolGetBacklogTasks,
		"Backlog tasks of the workspace ordered by priority. Returns at most 100 tasks.",
		false, newBacklogTasksHandler(deps))
	add(r, ToolGetSchedule,
		"Open tasks with due dates and member time off in a date range (defaults to the next 14 days).",
		false, newScheduleHandler(deps))
	add(r, ToolGetOverloadedMembers,
		"Members whose assigned sprint hours exceed their available hours this week, or exceed a utilization threshold.",
		false, newOverloadedMembersHandler(deps))
	add(r, ToolCreateProjectWithEpics,
		"Create a project with ordered epics and optional dependencies between them (referenced by epic name). "+
			"Only call after the user explicitly confirmed the draft.",
		true, newCreateProjectHandler(deps))
	add(r, ToolCreateStoriesForEpic,
		"Create user stories (backlog tasks) for an epic and mark the epic ready.",
		true, newCreateStoriesHandler(deps))
	add(r, ToolAddEpicDependency,
		"Record that one epic depends on another epic of the same project. Rejects duplicates and cycles.",
		true, newAddDependencyHandler(deps))
	add(r, ToolGetProjectContext,
		"Project overview: epics with keys, story counts, dependencies, shared components and recent conversations.",
		false, newProjectContextHandler(deps))

	return r
}

// add registers a typed handler. Arguments are strictly decoded into In and
// validated before h runs.
func add[In any](r *Registry, name, description string, write bool, h func(ctx context.Context, workspaceID string, in *In) (any, error)) {
	r.tools[name] = &Tool{
		Name:        name,
		Description: description,
		Write:       write,
		Schema:      schemaFor[In](),
		run: func(ctx context.Context, workspaceID string, args json.RawMessage) (any, error) {
			in := new(In)
			if err := decodeStrict(args, in); err != nil {
				return nil, toolErrorf("Check the tool's parameter schema", "Invalid arguments for %s: %v", name, err)
			}
			if v, ok := any(in).(validator); ok {
				if err := v.validate(); err != nil {
					return nil, err
				}
			}
			return h(ctx, workspaceID, in)
		},
	}
	r.order = append(r.order, name)
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions documents every tool for the provider.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Schema})
	}
	return defs
}

// schemaFor reflects the JSON Schema of a tool input as a plain map.
func schemaFor[In any]() map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	data, err := json.Marshal(reflector.Reflect(new(In)))
	if err != nil {
		panic(fmt.Sprintf("tools: reflect schema: %v", err))
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		panic(fmt.Sprintf("tools: decode schema: %v", err))
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	schema["type"] = "object"
	return schema
}

func decodeStrict(args json.RawMessage, v any) error {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after arguments")
	}
	return nil
}
