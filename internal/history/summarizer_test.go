package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/llm/llmtest"
	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// conversation builds n alternating user/assistant messages plus one system note.
func conversation(n int) []models.Message {
	msgs := []models.Message{{Role: models.RoleSystem, Content: "note"}}
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs = append(msgs, models.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	return msgs
}

func TestPrepareBelowThreshold(t *testing.T) {
	p := llmtest.New()
	s := New(p, quiet())

	res := s.Prepare(context.Background(), conversation(10))
	assert.Len(t, res.Messages, 10)
	assert.False(t, res.Summarized)
	assert.False(t, res.Truncated)
	assert.Equal(t, 0, p.Calls())
	for _, m := range res.Messages {
		assert.NotEqual(t, llm.RoleSystem, m.Role)
	}
}

func TestPrepareSummarizes(t *testing.T) {
	p := llmtest.New(llmtest.Text("  they agreed on Atlas  ", 40, 12))
	m := metrics.NewCollector()
	s := New(p, quiet(), WithMetrics(m))

	res := s.Prepare(context.Background(), conversation(11))
	require.Len(t, res.Messages, 7)
	assert.True(t, res.Summarized)
	assert.Equal(t, llm.RoleSystem, res.Messages[0].Role)
	assert.Equal(t, SummaryPrefix+"they agreed on Atlas", res.Messages[0].Content)
	assert.Equal(t, "m5", res.Messages[1].Content)
	assert.Equal(t, "m10", res.Messages[6].Content)
	assert.Equal(t, llm.Usage{InputTokens: 40, OutputTokens: 12}, res.Usage)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, SummaryTemperature, reqs[0].Temperature)
	assert.Equal(t, SummaryMaxTokens, reqs[0].MaxTokens)
	assert.Empty(t, reqs[0].Tools)
	assert.True(t, strings.Contains(reqs[0].Messages[1].Content, "user: m0"))
	assert.False(t, strings.Contains(reqs[0].Messages[1].Content, "m5"))

	require.NotNil(t, m.Snapshot().Summarize)
}

func TestPrepareFallsBackToTruncation(t *testing.T) {
	tests := []struct {
		name string
		step llmtest.Step
	}{
		{"provider error", llmtest.Fail("boom")},
		{"empty summary", llmtest.Text("   ", 1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(llmtest.New(tt.step), quiet())
			res := s.Prepare(context.Background(), conversation(15))
			require.Len(t, res.Messages, 6)
			assert.True(t, res.Truncated)
			assert.False(t, res.Summarized)
			assert.Equal(t, "m9", res.Messages[0].Content)
			for _, m := range res.Messages {
				assert.NotEqual(t, llm.RoleSystem, m.Role)
			}
		})
	}
}

func TestPrepareNilProvider(t *testing.T) {
	res := New(nil, quiet()).Prepare(context.Background(), conversation(12))
	assert.True(t, res.Truncated)
	assert.Len(t, res.Messages, 6)
}
