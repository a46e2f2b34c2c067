//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, metrics.NewCollector())
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)
	os.Exit(code)
}

// reset wipes all tables and seeds a small workspace.
func reset(t *testing.T) *models.Fixture {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	due := time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC)
	fx := &models.Fixture{
		Workspace: models.Workspace{ID: "ws1", Name: "Platform"},
		Members: []models.Member{
			{ID: "alice", WorkspaceID: "ws1", Name: "Alice", WeeklyCapacityHours: 40},
			{ID: "bob", WorkspaceID: "ws1", Name: "Bob", WeeklyCapacityHours: 20},
			{ID: "eve", WorkspaceID: "ws2", Name: "Eve", WeeklyCapacityHours: 40},
		},
		Tasks: []models.Task{
			{ID: "t1", WorkspaceID: "ws1", Title: "Ship login", Status: models.TaskTodo, InSprint: true, AssigneeID: models.Ptr("alice"), EstimateHours: 8, DueDate: &due},
			{ID: "t2", WorkspaceID: "ws1", Title: "Backlog item", Status: models.TaskBacklog, Priority: "high"},
			{ID: "t3", WorkspaceID: "ws2", Title: "Other workspace", Status: models.TaskBacklog},
		},
		TimeOff: []models.TimeOff{
			{ID: "off1", MemberID: "alice", Start: due, End: due.Add(24 * time.Hour), Reason: "vacation"},
			{ID: "off2", MemberID: "eve", Start: due, End: due},
		},
		Projects: []models.Project{{ID: "p1", WorkspaceID: "ws1", Name: "Checkout"}},
		Epics: []models.Epic{
			{ID: "e1", ProjectID: "p1", Name: "Cart", Position: 1},
			{ID: "e2", ProjectID: "p1", Name: "Payment", Position: 2},
			{ID: "e3", ProjectID: "p1", Name: "Receipts", Position: 3},
		},
	}
	require.NoError(t, testDB.Seed(ctx, fx))
	return fx
}

func TestWorkspaceReads(t *testing.T) {
	reset(t)
	ctx := context.Background()

	ws, err := testDB.GetWorkspace(ctx, "ws1")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, "Platform", ws.Name)

	missing, err := testDB.GetWorkspace(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	members, err := testDB.ListMembers(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Alice", members[0].Name)

	tasks, err := testDB.ListTasks(ctx, "ws1", models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t1", tasks[0].ID, "dated tasks come first")

	backlog, err := testDB.ListTasks(ctx, "ws1", models.TaskFilter{Statuses: []models.TaskStatus{models.TaskBacklog}})
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "high", backlog[0].Priority)

	inSprint, err := testDB.ListTasks(ctx, "ws1", models.TaskFilter{InSprint: models.Ptr(true)})
	require.NoError(t, err)
	require.Len(t, inSprint, 1)
	require.NotNil(t, inSprint[0].AssigneeID)
	assert.Equal(t, "alice", *inSprint[0].AssigneeID)

	from := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	off, err := testDB.ListTimeOff(ctx, "ws1", from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, off, 1)
	assert.Equal(t, "vacation", off[0].Reason)

	epics, err := testDB.ListEpics(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, epics, 3)
	assert.Equal(t, []string{"Cart", "Payment", "Receipts"}, []string{epics[0].Name, epics[1].Name, epics[2].Name})
	assert.Equal(t, models.EpicDraft, epics[0].Status)
}

func TestProjectWrites(t *testing.T) {
	reset(t)
	ctx := context.Background()

	p, err := testDB.CreateProject(ctx, models.ProjectInput{WorkspaceID: "ws1", Name: "Billing"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	e, err := testDB.CreateEpic(ctx, models.EpicInput{ProjectID: p.ID, Name: "Invoices", Position: 1, EstimateWeeks: 2})
	require.NoError(t, err)
	assert.Equal(t, models.EpicDraft, e.Status)

	_, err = testDB.CreateEpic(ctx, models.EpicInput{ProjectID: "missing", Name: "x"})
	require.ErrorIs(t, err, store.ErrNotFound)

	task, err := testDB.CreateTask(ctx, models.TaskInput{WorkspaceID: "ws1", ProjectID: &p.ID, EpicID: &e.ID, Title: "Render PDF"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskBacklog, task.Status)

	require.NoError(t, testDB.UpdateEpicStatus(ctx, e.ID, models.EpicReady))
	got, err := testDB.GetEpic(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EpicReady, got.Status)

	require.ErrorIs(t, testDB.UpdateEpicStatus(ctx, "missing", models.EpicReady), store.ErrNotFound)
}

func TestAddEpicDependency(t *testing.T) {
	reset(t)
	ctx := context.Background()

	_, err := testDB.AddEpicDependency(ctx, "e2", "e1", "needs cart")
	require.NoError(t, err)
	_, err = testDB.AddEpicDependency(ctx, "e3", "e2", "")
	require.NoError(t, err)

	tests := []struct {
		name      string
		from, to  string
		wantError error
	}{
		{"self", "e1", "e1", store.ErrSelfDependency},
		{"duplicate", "e2", "e1", store.ErrDuplicateDependency},
		{"cycle", "e1", "e3", store.ErrDependencyCycle},
		{"missing epic", "e1", "nope", store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testDB.AddEpicDependency(ctx, tt.from, tt.to, "")
			require.ErrorIs(t, err, tt.wantError)
		})
	}

	deps, err := testDB.ListEpicDependencies(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "needs cart", deps[0].Reason)
}

func TestConversationLog(t *testing.T) {
	reset(t)
	ctx := context.Background()

	conv, err := testDB.CreateConversation(ctx, models.ConversationInput{WorkspaceID: "ws1", CreatedBy: "u1", ProjectID: models.Ptr("p1")})
	require.NoError(t, err)
	assert.Nil(t, conv.Title)

	for i, role := range []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser} {
		in := models.MessageInput{ConversationID: conv.ID, Role: role, Content: fmt.Sprintf("m%d", i)}
		if role == models.RoleAssistant {
			p, err := models.NewPayload(models.PayloadTaskSuggestions, []byte(`{"tasks":[]}`))
			require.NoError(t, err)
			in.Payload = p
			in.InputTokens = models.Ptr(10)
			in.Model = models.Ptr("m")
		}
		_, err := testDB.AppendMessage(ctx, in)
		require.NoError(t, err)
	}

	msgs, err := testDB.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m0", "m1", "m2"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	require.NotNil(t, msgs[1].Payload)
	assert.Equal(t, models.PayloadTaskSuggestions, msgs[1].Payload.Type)
	assert.Equal(t, 10, *msgs[1].InputTokens)

	_, err = testDB.AppendMessage(ctx, models.MessageInput{ConversationID: "missing", Role: models.RoleUser, Content: "x"})
	require.ErrorIs(t, err, store.ErrNotFound)

	updated, err := testDB.UpdateConversation(ctx, conv.ID, models.ConversationUpdate{Title: models.Ptr("Checkout planning")})
	require.NoError(t, err)
	assert.Equal(t, "Checkout planning", *updated.Title)

	none, err := testDB.UpdateConversation(ctx, "missing", models.ConversationUpdate{Archived: models.Ptr(true)})
	require.NoError(t, err)
	assert.Nil(t, none)

	list, err := testDB.ListConversations(ctx, "ws1", models.ConversationFilter{ProjectID: models.Ptr("p1")})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = testDB.UpdateConversation(ctx, conv.ID, models.ConversationUpdate{Archived: models.Ptr(true)})
	require.NoError(t, err)
	list, err = testDB.ListConversations(ctx, "ws1", models.ConversationFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	deleted, err := testDB.DeleteConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	msgs, err = testDB.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	deleted, err = testDB.DeleteConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUsageCounters(t *testing.T) {
	reset(t)
	ctx := context.Background()

	zero, err := testDB.GetUsage(ctx, "ws1", "2026-05")
	require.NoError(t, err)
	assert.Equal(t, int64(0), zero.TotalTokens())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := testDB.IncrementUsage(ctx, "ws1", "2026-05", 100, 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := testDB.GetUsage(ctx, "ws1", "2026-05")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), u.InputTokens)
	assert.Equal(t, int64(100), u.OutputTokens)
	assert.Equal(t, int64(10), u.RequestCount)

	other, err := testDB.GetUsage(ctx, "ws1", "2026-06")
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.RequestCount)
}

func TestSettings(t *testing.T) {
	reset(t)
	ctx := context.Background()

	none, err := testDB.GetSettings(ctx, "ws1")
	require.NoError(t, err)
	assert.Nil(t, none)

	defaults := models.Settings{Enabled: true, Provider: "openai", MonthlyTokenLimit: 1000}
	s, err := testDB.UpsertSettings(ctx, "ws1", models.SettingsUpdate{Model: models.Ptr("gpt-4o")}, defaults)
	require.NoError(t, err)
	assert.Equal(t, "ws1", s.WorkspaceID)
	assert.Equal(t, "openai", s.Provider)
	assert.Equal(t, "gpt-4o", s.Model)

	s, err = testDB.UpsertSettings(ctx, "ws1", models.SettingsUpdate{Enabled: models.Ptr(false)}, defaults)
	require.NoError(t, err)
	assert.False(t, s.Enabled)
	assert.Equal(t, "gpt-4o", s.Model)
}
