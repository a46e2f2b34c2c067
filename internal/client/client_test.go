package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sprintpilot/internal/api"
	"github.com/raphaelgruber/sprintpilot/internal/app"
	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/llm/llmtest"
	"github.com/raphaelgruber/sprintpilot/internal/memstore"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/service"
	"github.com/raphaelgruber/sprintpilot/internal/tools"
)

func newTestClient(t *testing.T, provider *llmtest.Scripted, user string) *Client {
	t.Helper()
	clock := func() time.Time { return time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC) }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := memstore.New(memstore.WithClock(clock))
	s.PutWorkspace(models.Workspace{ID: "ws1", Name: "Platform"})
	s.PutTask(models.Task{WorkspaceID: "ws1", Title: "Refine onboarding", Status: models.TaskBacklog})

	set := llm.NewSet("")
	if provider != nil {
		set = llm.NewSet(provider.Name(), provider)
	}
	a := app.Build(s, set, logger, app.Options{DefaultModel: "test-model", MonthlyLimit: 100000, Now: clock})
	ts := httptest.NewServer(api.New(a, logger))
	t.Cleanup(ts.Close)
	return New(ts.URL, user)
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("SPRINTPILOT_SERVER_URL", "")
	t.Setenv("SPRINTPILOT_CLIENT_TIMEOUT", "90s")
	c := New("", "u1")
	assert.Equal(t, "http://localhost:8585", c.endpoint)
	assert.Equal(t, 90*time.Second, c.httpClient.Timeout)

	t.Setenv("SPRINTPILOT_SERVER_URL", "http://planner:9000/")
	assert.Equal(t, "http://planner:9000", New("", "u1").endpoint)
}

func TestChatRoundTrip(t *testing.T) {
	c := newTestClient(t, llmtest.New(
		llmtest.Text("Refine onboarding first.", 80, 20),
		llmtest.Text("Then the billing work.", 90, 10),
	), "u1")
	ctx := context.Background()

	res, err := c.Chat(ctx, "ws1", ChatInput{Message: "What is next in the backlog?"})
	require.NoError(t, err)
	assert.Equal(t, "Refine onboarding first.", res.AssistantMessage.Content)

	res, err = c.Chat(ctx, "ws1", ChatInput{Message: "And after that?", ConversationID: res.Conversation.ID})
	require.NoError(t, err)

	convs, err := c.ListConversations(ctx, "ws1", ListOptions{Mine: true})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv, err := c.GetConversation(ctx, "ws1", convs[0].ID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)

	archived := true
	updated, err := c.UpdateConversation(ctx, "ws1", conv.ID, models.ConversationUpdate{Archived: &archived})
	require.NoError(t, err)
	assert.True(t, updated.Archived)

	report, err := c.GetUsage(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), report.TotalTokens)
	assert.Equal(t, int64(2), report.RequestCount)

	stats, err := c.GetServerStats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats.ChatRound)
	assert.Equal(t, int64(2), stats.ChatRound.Count)
	assert.Equal(t, int64(2), stats.Turns["completed"])

	require.NoError(t, c.DeleteConversation(ctx, "ws1", conv.ID))
	_, err = c.GetConversation(ctx, "ws1", conv.ID)
	require.Error(t, err)
	assert.Equal(t, "not_found", Category(err))
}

func TestChatStream(t *testing.T) {
	c := newTestClient(t, llmtest.New(
		llmtest.Tools(100, 10, llmtest.Call("c1", tools.ToolGetBacklogTasks, map[string]any{})),
		llmtest.Text("Pick Refine onboarding.", 200, 20),
	), "u1")

	var rounds []service.RoundEvent
	res, err := c.ChatStream(context.Background(), "ws1", ChatInput{Message: "What should we pick from the backlog?"},
		func(ev service.RoundEvent) { rounds = append(rounds, ev) })
	require.NoError(t, err)

	assert.Len(t, rounds, 2)
	assert.Equal(t, "Pick Refine onboarding.", res.AssistantMessage.Content)
	require.Len(t, res.FunctionCalls, 1)
	assert.Equal(t, tools.ToolGetBacklogTasks, res.FunctionCalls[0].Name)
}

func TestErrorsCarryCategory(t *testing.T) {
	c := newTestClient(t, nil, "u1")
	ctx := context.Background()

	_, err := c.Chat(ctx, "ws1", ChatInput{Message: "hello"})
	require.Error(t, err)
	assert.Equal(t, "configuration", Category(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPreconditionFailed, apiErr.Status)

	_, err = c.ChatStream(ctx, "ws1", ChatInput{Message: "hello"}, nil)
	require.Error(t, err)
	assert.Equal(t, "configuration", Category(err))

	_, err = c.UpdateSettings(ctx, "ws1", models.SettingsUpdate{Provider: models.Ptr("nope")})
	assert.Equal(t, "invalid_input", Category(err))

	st, err := c.GetSettings(ctx, "ws1")
	require.NoError(t, err)
	assert.False(t, st.Enabled)
}
