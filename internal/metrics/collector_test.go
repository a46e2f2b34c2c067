package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpChatRound, 100*time.Millisecond, 10, 5)
	c.RecordLLMUsage(OpChatRound, 300*time.Millisecond, 30, 15)
	c.RecordTurn("completed")
	c.RecordTurn("round_limit")
	c.RecordTurn("completed")

	snap := c.Snapshot()
	require.NotNil(t, snap.ChatRound)
	assert.Equal(t, int64(2), snap.ChatRound.Count)
	assert.Equal(t, int64(100), snap.ChatRound.MinMs)
	assert.Equal(t, int64(300), snap.ChatRound.MaxMs)
	assert.Equal(t, int64(300), snap.ChatRound.LastMs)
	assert.Equal(t, int64(40), snap.ChatRound.InputTokens)
	assert.Equal(t, int64(20), snap.ChatRound.OutputTokens)
	assert.Equal(t, 20.0, snap.ChatRound.AvgInputTokens)
	assert.Equal(t, int64(30), snap.ChatRound.MaxInputTokens)
	assert.Equal(t, map[string]int64{"completed": 2, "round_limit": 1}, snap.Turns)

	assert.Nil(t, snap.Summarize)
	assert.Nil(t, snap.DBQuery)
	assert.Empty(t, snap.Tools)
}

func TestCollectorToolBreakdown(t *testing.T) {
	c := NewCollector()
	c.RecordToolCall("get_schedule", 20*time.Millisecond, true)
	c.RecordToolCall("get_backlog_tasks", 10*time.Millisecond, true)
	c.RecordToolCall("get_backlog_tasks", 30*time.Millisecond, false)
	c.RecordToolCall("add_epic_dependency", 5*time.Millisecond, false)

	tools := c.Snapshot().Tools
	require.Len(t, tools, 3)

	assert.Equal(t, "get_backlog_tasks", tools[0].Name, "busiest tool first")
	assert.Equal(t, int64(2), tools[0].Count)
	assert.Equal(t, int64(1), tools[0].Failures)
	assert.Equal(t, 20.0, tools[0].AvgMs)
	assert.Equal(t, int64(10), tools[0].MinMs)

	assert.Equal(t, "add_epic_dependency", tools[1].Name, "ties ordered by name")
	assert.Equal(t, int64(1), tools[1].Failures)
	assert.Equal(t, "get_schedule", tools[2].Name)
	assert.Zero(t, tools[2].Failures)
}

func TestCollectorDB(t *testing.T) {
	c := NewCollector()
	c.ObserveDB(4 * time.Millisecond)
	c.ObserveDB(2 * time.Millisecond)

	db := c.Snapshot().DBQuery
	require.NotNil(t, db)
	assert.Equal(t, int64(2), db.Count)
	assert.Equal(t, int64(2), db.MinMs)
	assert.Equal(t, int64(4), db.MaxMs)
	assert.NotEmpty(t, db.LastAt)
}

func TestCollectorPrometheus(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpChatRound, time.Second, 10, 5)
	c.RecordLLMUsage(OpSummarize, time.Second, 7, 3)
	c.RecordToolCall("add_epic_dependency", time.Millisecond, false)
	c.RecordTurn("completed")
	c.RecordTurn("completed")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()

	for _, line := range []string{
		"sprintpilot_chat_rounds_total 1",
		`sprintpilot_chat_turns_total{outcome="completed"} 2`,
		`sprintpilot_tokens_total{direction="input",operation="summarize"} 7`,
		`sprintpilot_tool_calls_total{status="error",tool="add_epic_dependency"} 1`,
	} {
		assert.True(t, strings.Contains(body, line), "missing %q", line)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordLLMUsage(OpChatRound, time.Second, 1, 1)
		c.RecordToolCall("x", time.Second, true)
		c.RecordTurn("completed")
		c.ObserveDB(time.Second)
		snap := c.Snapshot()
		assert.NotNil(t, snap.Turns)
		assert.NotNil(t, snap.Tools)
	})
	assert.Nil(t, c.Registry())
}
