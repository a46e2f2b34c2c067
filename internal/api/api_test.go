package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sprintpilot/internal/app"
	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/llm/llmtest"
	"github.com/raphaelgruber/sprintpilot/internal/memstore"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/service"
	"github.com/raphaelgruber/sprintpilot/internal/tools"
)

var wednesday = time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *memstore.Store
	provider *llmtest.Scripted
	srv      *Server
}

// newFixture builds a server over memstore. A nil provider leaves chat unconfigured.
func newFixture(t *testing.T, provider *llmtest.Scripted) *fixture {
	t.Helper()
	clock := func() time.Time { return wednesday }
	s := memstore.New(memstore.WithClock(clock))
	s.PutWorkspace(models.Workspace{ID: "ws1", Name: "Platform"})
	s.PutWorkspace(models.Workspace{ID: "ws2", Name: "Other"})
	s.PutMember(models.Member{ID: "alice", WorkspaceID: "ws1", Name: "Alice", WeeklyCapacityHours: 40})
	s.PutTask(models.Task{WorkspaceID: "ws1", Title: "Refine onboarding", Status: models.TaskBacklog, Priority: "high"})

	set := llm.NewSet("")
	if provider != nil {
		set = llm.NewSet(provider.Name(), provider)
	}
	a := app.Build(s, set, testLogger(), app.Options{
		DefaultModel: "test-model",
		MonthlyLimit: 100000,
		Now:          clock,
	})
	return &fixture{store: s, provider: provider, srv: New(a, testLogger())}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/stats", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "uptime_seconds")
}

func TestChatEndpoint(t *testing.T) {
	f := newFixture(t, llmtest.New(llmtest.Text("Alice has 40 hours free.", 120, 30)))

	rec := f.do(t, http.MethodPost, "/api/workspaces/ws1/chat", "u1", map[string]any{
		"message": "Who has capacity this week?",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[service.ChatResult](t, rec)
	assert.Equal(t, service.OutcomeCompleted, res.Outcome)
	require.NotNil(t, res.AssistantMessage)
	assert.Equal(t, "Alice has 40 hours free.", res.AssistantMessage.Content)
	assert.Equal(t, "ws1", res.Conversation.WorkspaceID)
	assert.Equal(t, "u1", res.Conversation.CreatedBy)
	assert.Equal(t, 150, res.Usage.TotalTokens)
}

func TestChatErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		provider *llmtest.Scripted
		setup    func(t *testing.T, f *fixture)
		user     string
		body     any
		status   int
		category string
	}{
		{
			name:     "missing user",
			provider: llmtest.New(llmtest.Text("hi", 1, 1)),
			body:     map[string]any{"message": "hello"},
			status:   http.StatusBadRequest,
			category: "invalid_input",
		},
		{
			name:     "empty message",
			provider: llmtest.New(llmtest.Text("hi", 1, 1)),
			user:     "u1",
			body:     map[string]any{"message": "   "},
			status:   http.StatusBadRequest,
			category: "invalid_input",
		},
		{
			name:     "unknown field",
			provider: llmtest.New(llmtest.Text("hi", 1, 1)),
			user:     "u1",
			body:     `{"message":"hi","workspace_id":"ws2"}`,
			status:   http.StatusBadRequest,
			category: "invalid_input",
		},
		{
			name:     "no provider",
			user:     "u1",
			body:     map[string]any{"message": "hello"},
			status:   http.StatusPreconditionFailed,
			category: "configuration",
		},
		{
			name:     "usage limit",
			provider: llmtest.New(llmtest.Text("hi", 1, 1)),
			setup: func(t *testing.T, f *fixture) {
				_, err := f.store.IncrementUsage(context.Background(), "ws1", models.MonthKey(wednesday), 100000, 0)
				require.NoError(t, err)
			},
			user:     "u1",
			body:     map[string]any{"message": "hello"},
			status:   http.StatusTooManyRequests,
			category: "usage_limit",
		},
		{
			name:     "unknown conversation",
			provider: llmtest.New(llmtest.Text("hi", 1, 1)),
			user:     "u1",
			body:     map[string]any{"message": "hello", "conversation_id": "nope"},
			status:   http.StatusNotFound,
			category: "not_found",
		},
		{
			name:     "provider failure",
			provider: llmtest.New(llmtest.Fail("upstream timeout")),
			user:     "u1",
			body:     map[string]any{"message": "hello"},
			status:   http.StatusBadGateway,
			category: "provider",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.provider)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			rec := f.do(t, http.MethodPost, "/api/workspaces/ws1/chat", tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.category, body.Category)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestProviderErrorIsOpaque(t *testing.T) {
	f := newFixture(t, llmtest.New(llmtest.Fail("secret upstream detail")))
	rec := f.do(t, http.MethodPost, "/api/workspaces/ws1/chat", "u1", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret upstream detail")
}

func TestConversationEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/workspaces/ws1/conversations", "u1", map[string]any{"title": "  Sprint planning  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decode[models.Conversation](t, rec)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "Sprint planning", *conv.Title)

	rec = f.do(t, http.MethodPost, "/api/workspaces/ws1/conversations", "u2", map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/workspaces/ws1/conversations", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Conversations []models.Conversation `json:"conversations"`
	}](t, rec)
	assert.Len(t, list.Conversations, 2)

	rec = f.do(t, http.MethodGet, "/api/workspaces/ws1/conversations?mine=true", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[struct {
		Conversations []models.Conversation `json:"conversations"`
	}](t, rec)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, conv.ID, list.Conversations[0].ID)

	rec = f.do(t, http.MethodGet, "/api/workspaces/ws1/conversations?limit=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/workspaces/ws1/conversations/" + conv.ID
	rec = f.do(t, http.MethodPatch, path, "u1", map[string]any{"title": "Renamed", "archived": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Conversation](t, rec)
	assert.Equal(t, "Renamed", *updated.Title)
	assert.True(t, updated.Archived)

	rec = f.do(t, http.MethodGet, "/api/workspaces/ws1/conversations", "u1", nil)
	list = decode[struct {
		Conversations []models.Conversation `json:"conversations"`
	}](t, rec)
	assert.Len(t, list.Conversations, 1, "archived conversations are hidden by default")

	rec = f.do(t, http.MethodGet, path, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	withMsgs := decode[models.ConversationWithMessages](t, rec)
	assert.Equal(t, conv.ID, withMsgs.ID)
	assert.Empty(t, withMsgs.Messages)

	rec = f.do(t, http.MethodGet, "/api/workspaces/ws2/conversations/"+conv.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "conversations are scoped to their workspace")

	rec = f.do(t, http.MethodDelete, path, "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, path, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsAndUsageEndpoints(t *testing.T) {
	f := newFixture(t, llmtest.New(llmtest.Text("done", 70, 30)))

	rec := f.do(t, http.MethodGet, "/api/workspaces/ws1/settings", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[models.Settings](t, rec)
	assert.True(t, st.Enabled)
	assert.Equal(t, "scripted", st.Provider)
	assert.Equal(t, int64(100000), st.MonthlyTokenLimit)

	rec = f.do(t, http.MethodPatch, "/api/workspaces/ws1/settings", "u1", map[string]any{"provider": "nonexistent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/workspaces/ws1/settings", "u1", map[string]any{"monthly_token_limit": 500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st = decode[models.Settings](t, rec)
	assert.Equal(t, int64(500), st.MonthlyTokenLimit)

	rec = f.do(t, http.MethodPost, "/api/workspaces/ws1/chat", "u1", map[string]any{"message": "Plan the sprint"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/workspaces/ws1/usage", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		Month           string  `json:"month"`
		TotalTokens     int64   `json:"total_tokens"`
		RequestCount    int64   `json:"request_count"`
		Limit           int64   `json:"limit"`
		RemainingTokens int64   `json:"remaining_tokens"`
		PercentUsed     float64 `json:"percent_used"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "2026-05", report.Month)
	assert.Equal(t, int64(100), report.TotalTokens)
	assert.Equal(t, int64(1), report.RequestCount)
	assert.Equal(t, int64(500), report.Limit)
	assert.Equal(t, int64(400), report.RemainingTokens)
	assert.InDelta(t, 20.0, report.PercentUsed, 0.001)

	rec = f.do(t, http.MethodPatch, "/api/workspaces/ws1/settings", "u1", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/workspaces/ws1/chat", "u1", map[string]any{"message": "Plan the sprint"})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func dialWS(t *testing.T, f *fixture, user string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(f.srv)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/workspaces/ws1/ws"
	header := http.Header{}
	if user != "" {
		header.Set(UserHeader, user)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func sendChat(t *testing.T, conn *websocket.Conn, id string, body chatBody) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{ID: id, Type: FrameChat, Payload: payload}))
}

func TestWebSocketStreamsRounds(t *testing.T) {
	provider := llmtest.New(
		llmtest.Tools(100, 10, llmtest.Call("c1", tools.ToolGetBacklogTasks, map[string]any{"limit": 5})),
		llmtest.Text("Pick Refine onboarding.", 200, 20),
	)
	f := newFixture(t, provider)
	conn := dialWS(t, f, "u1")

	sendChat(t, conn, "req-1", chatBody{Message: "What should we pick from the backlog?"})

	var rounds []service.RoundEvent
	var result service.ChatResult
	for {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, "req-1", frame.ID)
		if frame.Type == FrameRound {
			var ev service.RoundEvent
			require.NoError(t, json.Unmarshal(frame.Payload, &ev))
			rounds = append(rounds, ev)
			continue
		}
		require.Equal(t, FrameResult, frame.Type, string(frame.Payload))
		require.NoError(t, json.Unmarshal(frame.Payload, &result))
		break
	}

	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].Round)
	assert.Equal(t, []string{tools.ToolGetBacklogTasks}, rounds[0].ToolCalls)
	assert.Equal(t, service.OutcomeCompleted, result.Outcome)
	assert.Equal(t, "Pick Refine onboarding.", result.AssistantMessage.Content)

	// The connection stays usable for the next turn in the same conversation.
	sendChat(t, conn, "req-2", chatBody{Message: "Thanks", ConversationID: result.Conversation.ID})
	for {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == FrameResult {
			assert.Equal(t, "req-2", frame.ID)
			break
		}
	}
}

func TestWebSocketErrors(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialWS(t, f, "")

	require.NoError(t, conn.WriteJSON(Frame{ID: "x", Type: "subscribe"}))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameError, frame.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "invalid_input", payload.Category)

	sendChat(t, conn, "y", chatBody{Message: "hello"})
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameError, frame.Type)
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "invalid_input", payload.Category, "user id is required")
}

func TestWebSocketUserFromQuery(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/workspaces/ws1/ws?user_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	sendChat(t, conn, "z", chatBody{Message: "hello"})
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "configuration", payload.Category, "user id accepted, provider missing")
}
