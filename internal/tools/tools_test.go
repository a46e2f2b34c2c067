package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/llm/llmtest"
	"github.com/raphaelgruber/sprintpilot/internal/memstore"
	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wednesday = time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)

// testLogger discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store *memstore.Store
	exec  *Executor
	reg   *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New(memstore.WithClock(func() time.Time { return wednesday }))
	s.PutWorkspace(models.Workspace{ID: "ws1", Name: "Platform"})
	s.PutWorkspace(models.Workspace{ID: "ws2", Name: "Other"})

	deps := &Dependencies{
		Store:    s,
		Projects: workspace.NewProjectBuilder(s, s, workspace.SuffixPatternDetector{}, testLogger()),
		Logger:   testLogger(),
		Now:      func() time.Time { return wednesday },
	}
	reg := NewRegistry(deps)
	return &fixture{store: s, reg: reg, exec: NewExecutor(reg, "ws1", testLogger(), metrics.NewCollector())}
}

// call runs one tool and decodes the envelope.
func (f *fixture) call(t *testing.T, name string, args any) (Result, map[string]any) {
	t.Helper()
	out := f.exec.Execute(context.Background(), llmtest.Call("c1", name, args))
	var env Result
	require.NoError(t, json.Unmarshal([]byte(out.Content), &env))
	require.Equal(t, out.Success, env.Success)
	body, _ := env.Result.(map[string]any)
	return env, body
}

func TestRegistryDefinitions(t *testing.T) {
	f := newFixture(t)
	defs := f.reg.Definitions()
	require.Len(t, defs, 8)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		assert.Equal(t, "object", d.Parameters["type"], d.Name)
		assert.Contains(t, d.Parameters, "properties", d.Name)
		assert.Equal(t, false, d.Parameters["additionalProperties"], d.Name)
		assert.NotContains(t, d.Parameters, "$schema", d.Name)
	}
	assert.Equal(t, []string{
		ToolGetTeamCapacity, ToolGetBacklogTasks, ToolGetSchedule, ToolGetOverloadedMembers,
		ToolCreateProjectWithEpics, ToolCreateStoriesForEpic, ToolAddEpicDependency, ToolGetProjectContext,
	}, names)

	stories, ok := f.reg.Get(ToolCreateStoriesForEpic)
	require.True(t, ok)
	assert.True(t, stories.Write)
	assert.ElementsMatch(t, []any{"epic_id", "stories"}, stories.Schema["required"])

	ctxTool, _ := f.reg.Get(ToolGetProjectContext)
	assert.False(t, ctxTool.Write)
}

func TestBacklogTasksScopedAndCapped(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 120; i++ {
		f.store.PutTask(models.Task{WorkspaceID: "ws1", Title: fmt.Sprintf("T%d", i), Status: models.TaskBacklog, Priority: "low"})
	}
	f.store.PutTask(models.Task{WorkspaceID: "ws1", Title: "urgent one", Status: models.TaskBacklog, Priority: "urgent"})
	f.store.PutTask(models.Task{WorkspaceID: "ws1", Title: "in sprint", Status: models.TaskTodo})
	f.store.PutTask(models.Task{WorkspaceID: "ws2", Title: "foreign", Status: models.TaskBacklog, Priority: "urgent"})

	env, body := f.call(t, ToolGetBacklogTasks, map[string]any{"limit": 100})
	require.True(t, env.Success)
	assert.Equal(t, 121.0, body["matching"])
	assert.Equal(t, 100.0, body["returned"])
	tasks := body["tasks"].([]any)
	require.Len(t, tasks, 100)
	assert.Equal(t, "urgent one", tasks[0].(map[string]any)["title"])
	for _, raw := range tasks {
		assert.Equal(t, "ws1", raw.(map[string]any)["workspace_id"])
	}

	env, _ = f.call(t, ToolGetBacklogTasks, map[string]any{"limit": 101})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "Invalid limit")
}

func TestBacklogTasksPriorityFilter(t *testing.T) {
	f := newFixture(t)
	f.store.PutTask(models.Task{WorkspaceID: "ws1", Title: "hot", Status: models.TaskBacklog, Priority: "high"})
	f.store.PutTask(models.Task{WorkspaceID: "ws1", Title: "cold", Status: models.TaskBacklog, Priority: "low"})

	for _, priority := range []string{"high", "HIGH", " High "} {
		t.Run(priority, func(t *testing.T) {
			env, body := f.call(t, ToolGetBacklogTasks, map[string]any{"priority": priority})
			require.True(t, env.Success, env.Error)
			assert.Equal(t, 1.0, body["matching"])
			tasks := body["tasks"].([]any)
			require.Len(t, tasks, 1)
			assert.Equal(t, "hot", tasks[0].(map[string]any)["title"])
		})
	}

	env, _ := f.call(t, ToolGetBacklogTasks, map[string]any{"priority": "p1"})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "Use one of: urgent, high, medium, low")
}

func TestModelSuppliedWorkspaceIgnored(t *testing.T) {
	f := newFixture(t)
	f.store.PutTask(models.Task{WorkspaceID: "ws2", Title: "foreign", Status: models.TaskBacklog})

	env, body := f.call(t, ToolGetBacklogTasks, map[string]any{"workspace_id": "ws2"})
	require.True(t, env.Success, env.Error)
	assert.Equal(t, 0.0, body["matching"])

	env, body = f.call(t, ToolCreateProjectWithEpics, map[string]any{
		"workspace_id": "ws2",
		"name":         "Atlas",
		"epics":        []map[string]any{{"name": "Auth"}},
	})
	require.True(t, env.Success, env.Error)
	p, err := f.store.GetProject(context.Background(), body["project_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "ws1", p.WorkspaceID)
}

func TestInvalidCalls(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		tool    string
		args    string
		wantErr string
	}{
		{"unknown tool", "make_coffee", `{}`, `Unknown tool "make_coffee"`},
		{"unknown field", ToolGetTeamCapacity, `{"week":"2026-05-04"}`, "Invalid arguments for get_team_capacity"},
		{"malformed json", ToolGetSchedule, `{"from":`, "Invalid arguments"},
		{"bad date", ToolGetSchedule, `{"from":"May 4"}`, `Invalid from "May 4"`},
		{"inverted range", ToolGetSchedule, `{"from":"2026-05-10","to":"2026-05-01"}`, "to must be after from"},
		{"missing epics", ToolCreateProjectWithEpics, `{"name":"Atlas","epics":[]}`, "At least one epic"},
		{"dangling dependency", ToolCreateProjectWithEpics,
			`{"name":"Atlas","epics":[{"name":"A"}],"dependencies":[{"epic":"A","depends_on":"B"}]}`, "Unknown epic"},
		{"missing epic", ToolCreateStoriesForEpic, `{"epic_id":"nope","stories":[{"title":"x"}]}`, "Epic nope not found"},
		{"missing project", ToolGetProjectContext, `{"project_id":"nope"}`, "Project nope not found"},
		{"unknown priority", ToolGetBacklogTasks, `{"priority":"critical"}`, `Invalid priority "critical"`},
		{"unknown story priority", ToolCreateStoriesForEpic,
			`{"epic_id":"e1","stories":[{"title":"x","priority":"p0"}]}`, `Invalid priority "p0"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.exec.Execute(context.Background(), llm.ToolCall{ID: "x", Name: tt.tool, Arguments: json.RawMessage(tt.args)})
			assert.False(t, out.Success)
			var env Result
			require.NoError(t, json.Unmarshal([]byte(out.Content), &env))
			assert.False(t, env.Success)
			assert.Contains(t, env.Error, tt.wantErr)
		})
	}
}

func TestEmptyArgumentsDecodeAsObject(t *testing.T) {
	f := newFixture(t)
	out := f.exec.Execute(context.Background(), llm.ToolCall{ID: "x", Name: ToolGetTeamCapacity})
	assert.True(t, out.Success, out.Content)
}

func seedProject(t *testing.T, f *fixture, workspaceID string) (models.Project, models.Epic, models.Epic) {
	t.Helper()
	p := f.store.PutProject(models.Project{WorkspaceID: workspaceID, Name: "Atlas"})
	a := f.store.PutEpic(models.Epic{ProjectID: p.ID, Name: "Auth", Position: 1})
	b := f.store.PutEpic(models.Epic{ProjectID: p.ID, Name: "Billing", Position: 2})
	return p, a, b
}

func TestAddEpicDependencyRejections(t *testing.T) {
	f := newFixture(t)
	p, a, b := seedProject(t, f, "ws1")

	env, body := f.call(t, ToolAddEpicDependency, map[string]any{"epic_id": a.ID, "depends_on_epic_id": b.ID})
	require.True(t, env.Success, env.Error)
	assert.Equal(t, p.ID, body["project_id"])

	env, _ = f.call(t, ToolAddEpicDependency, map[string]any{"epic_id": b.ID, "depends_on_epic_id": a.ID})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "cycle")

	env, _ = f.call(t, ToolAddEpicDependency, map[string]any{"epic_id": a.ID, "depends_on_epic_id": b.ID})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "already exists")

	env, _ = f.call(t, ToolAddEpicDependency, map[string]any{"epic_id": a.ID, "depends_on_epic_id": a.ID})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "itself")

	_, foreign, _ := seedProject(t, f, "ws2")
	env, _ = f.call(t, ToolAddEpicDependency, map[string]any{"epic_id": a.ID, "depends_on_epic_id": foreign.ID})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "not found in this workspace")
}

func TestCreateStoriesMarksEpicReady(t *testing.T) {
	f := newFixture(t)
	p, a, _ := seedProject(t, f, "ws1")

	out := f.exec.Execute(context.Background(), llmtest.Call("c1", ToolCreateStoriesForEpic, map[string]any{
		"epic_id": a.ID,
		"stories": []map[string]any{
			{"title": "Login form", "priority": "high", "estimate_hours": 6},
			{"title": "Password reset"},
		},
	}))
	require.True(t, out.Success, out.Content)
	assert.Equal(t, p.ID, out.ProjectID)

	epic, err := f.store.GetEpic(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EpicReady, epic.Status)

	tasks, err := f.store.ListTasks(context.Background(), "ws1", models.TaskFilter{EpicID: &a.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, models.TaskBacklog, tasks[0].Status)
	assert.Equal(t, p.ID, *tasks[0].ProjectID)
}

func TestCreateProjectWithEpics(t *testing.T) {
	f := newFixture(t)
	out := f.exec.Execute(context.Background(), llmtest.Call("c1", ToolCreateProjectWithEpics, map[string]any{
		"name":        "Atlas",
		"description": "Payments revamp",
		"epics": []map[string]any{
			{"name": "Auth", "estimate_weeks": 2},
			{"name": "Billing"},
			{"name": "Rollout"},
		},
		"dependencies": []map[string]any{
			{"epic": "Billing", "depends_on": "auth", "reason": "needs tokens"},
			{"epic": "Auth", "depends_on": "Billing"},
			{"epic": "Rollout", "depends_on": "Billing"},
		},
	}))
	require.True(t, out.Success, out.Content)
	require.NotEmpty(t, out.ProjectID)

	var env struct {
		Result CreateProjectResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.Content), &env))
	res := env.Result
	assert.Equal(t, "Atlas", res.ProjectName)
	require.Len(t, res.Epics, 3)
	assert.Equal(t, "E1", res.Epics[0].Key)
	assert.Equal(t, 2, res.DependenciesCreated)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "cycle")

	epics, err := f.store.ListEpics(context.Background(), out.ProjectID)
	require.NoError(t, err)
	require.Len(t, epics, 3)
	assert.Equal(t, 1, epics[0].Position)
	assert.Equal(t, 2.0, epics[0].EstimateWeeks)
}

func TestProjectContextTool(t *testing.T) {
	f := newFixture(t)
	p, a, b := seedProject(t, f, "ws1")
	_, err := f.store.AddEpicDependency(context.Background(), b.ID, a.ID, "")
	require.NoError(t, err)

	env, body := f.call(t, ToolGetProjectContext, map[string]any{"project_id": p.ID})
	require.True(t, env.Success, env.Error)
	assert.Contains(t, body["summary"], "- E2 Billing [draft] stories=0 depends_on=E1")

	other, _, _ := seedProject(t, f, "ws2")
	env, _ = f.call(t, ToolGetProjectContext, map[string]any{"project_id": other.ID})
	assert.False(t, env.Success)
}

func TestCapacityTools(t *testing.T) {
	f := newFixture(t)
	alice := f.store.PutMember(models.Member{WorkspaceID: "ws1", Name: "Alice", WeeklyCapacityHours: 40})
	f.store.PutMember(models.Member{WorkspaceID: "ws1", Name: "Bob", WeeklyCapacityHours: 40})
	due := wednesday.Add(24 * time.Hour)
	f.store.PutTask(models.Task{WorkspaceID: "ws1", Title: "Big", Status: models.TaskTodo, InSprint: true,
		AssigneeID: &alice.ID, EstimateHours: 45, DueDate: &due})
	f.store.PutTimeOff(models.TimeOff{MemberID: alice.ID, Start: due.Add(24 * time.Hour), End: due.Add(24 * time.Hour)})

	env, body := f.call(t, ToolGetTeamCapacity, map[string]any{})
	require.True(t, env.Success, env.Error)
	assert.Equal(t, "2026-05-04", body["week_start"])
	assert.Equal(t, 72.0, body["total_available_hours"])
	assert.Len(t, body["members"], 2)

	env, body = f.call(t, ToolGetOverloadedMembers, map[string]any{})
	require.True(t, env.Success, env.Error)
	members := body["members"].([]any)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].(map[string]any)["name"])

	env, body = f.call(t, ToolGetSchedule, map[string]any{"member_id": alice.ID})
	require.True(t, env.Success, env.Error)
	assert.Len(t, body["tasks"], 1)
	assert.Len(t, body["time_off"], 1)

	env, _ = f.call(t, ToolGetSchedule, map[string]any{"member_id": "ghost"})
	assert.False(t, env.Success)
}

func TestExecuteAllKeepsOrderAndSerializesWrites(t *testing.T) {
	f := newFixture(t)
	_, a, _ := seedProject(t, f, "ws1")

	var calls []llm.ToolCall
	for i := 0; i < 10; i++ {
		calls = append(calls, llmtest.Call(fmt.Sprintf("c%d", i), ToolCreateStoriesForEpic, map[string]any{
			"epic_id": a.ID,
			"stories": []map[string]any{{"title": fmt.Sprintf("Story %d", i)}},
		}))
		calls = append(calls, llmtest.Call(fmt.Sprintf("r%d", i), ToolGetBacklogTasks, map[string]any{}))
	}

	outs := f.exec.ExecuteAll(context.Background(), calls)
	require.Len(t, outs, len(calls))
	for i, out := range outs {
		assert.Equal(t, calls[i].ID, out.Call.ID)
		assert.True(t, out.Success, out.Content)
	}

	tasks, err := f.store.ListTasks(context.Background(), "ws1", models.TaskFilter{EpicID: &a.ID})
	require.NoError(t, err)
	assert.Len(t, tasks, 10)
}

func TestExecutorIsSafeForConcurrentRounds(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.exec.ExecuteAll(context.Background(), []llm.ToolCall{
				llmtest.Call("a", ToolGetTeamCapacity, map[string]any{}),
				llmtest.Call("b", ToolGetOverloadedMembers, map[string]any{}),
			})
		}()
	}
	wg.Wait()
}

// flakyStore fails the nth epic insert, or every dependency insert.
type flakyStore struct {
	*memstore.Store
	failEpicAt     int
	failDependency bool
	epicCalls      int
}

func (s *flakyStore) CreateEpic(ctx context.Context, input models.EpicInput) (*models.Epic, error) {
	s.epicCalls++
	if s.epicCalls == s.failEpicAt {
		return nil, errors.New("connection reset")
	}
	return s.Store.CreateEpic(ctx, input)
}

func (s *flakyStore) AddEpicDependency(ctx context.Context, epicID, dependsOnID, reason string) (*models.EpicDependency, error) {
	if s.failDependency {
		return nil, errors.New("connection reset")
	}
	return s.Store.AddEpicDependency(ctx, epicID, dependsOnID, reason)
}

func TestCreateProjectPartialFailure(t *testing.T) {
	args := map[string]any{
		"name":         "Atlas",
		"epics":        []map[string]any{{"name": "Auth"}, {"name": "Billing"}, {"name": "Rollout"}},
		"dependencies": []map[string]any{{"epic": "Billing", "depends_on": "Auth"}},
	}
	tests := []struct {
		name      string
		store     func(*memstore.Store) *flakyStore
		wantMsg   string
		wantEpics int
	}{
		{
			name:      "epic insert fails",
			store:     func(s *memstore.Store) *flakyStore { return &flakyStore{Store: s, failEpicAt: 2} },
			wantMsg:   `epic "Billing" could not be saved, 1 of 3 epics exist`,
			wantEpics: 1,
		},
		{
			name:      "dependency insert fails",
			store:     func(s *memstore.Store) *flakyStore { return &flakyStore{Store: s, failDependency: true} },
			wantMsg:   "all 3 epics exist but dependency Billing -> Auth could not be saved",
			wantEpics: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memstore.New(memstore.WithClock(func() time.Time { return wednesday }))
			mem.PutWorkspace(models.Workspace{ID: "ws1", Name: "Platform"})
			st := tt.store(mem)
			deps := &Dependencies{Store: st, Logger: testLogger(), Now: func() time.Time { return wednesday }}
			exec := NewExecutor(NewRegistry(deps), "ws1", testLogger(), nil)

			out := exec.Execute(context.Background(), llmtest.Call("c1", ToolCreateProjectWithEpics, args))
			assert.False(t, out.Success)

			require.NotEmpty(t, out.ProjectID, "the failed call still reveals the saved project")
			project, err := mem.GetProject(context.Background(), out.ProjectID)
			require.NoError(t, err)
			require.NotNil(t, project)
			assert.Equal(t, "Atlas", project.Name)

			var env Result
			require.NoError(t, json.Unmarshal([]byte(out.Content), &env))
			assert.Contains(t, env.Error, "project_id: "+project.ID)
			assert.Contains(t, env.Error, tt.wantMsg)
			assert.Contains(t, env.Error, "Do not call create_project_with_epics again")

			epics, err := mem.ListEpics(context.Background(), project.ID)
			require.NoError(t, err)
			assert.Len(t, epics, tt.wantEpics)
		})
	}
}
