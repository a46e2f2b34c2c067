// Package history turns a persisted conversation into the model-bound
// transcript, compacting older turns into a summary once it grows long.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/models"
)

// Defaults for history compaction.
const (
	DefaultThreshold   = 10
	DefaultKeep        = 6
	SummaryTemperature = 0.3
	SummaryMaxTokens   = 500
)

// SummaryPrefix starts the synthetic system message that replaces older turns.
const SummaryPrefix = "Summary of the earlier conversation:\n"

const summaryInstruction = `Summarize the following conversation between a user and a team-planning assistant.
Keep decisions, agreed numbers, names of projects, epics and people, and open questions.
Write at most a few short paragraphs. Do not add anything that was not said.`

var errEmptySummary = errors.New("empty summary")

// Result is the prepared transcript for one turn.
type Result struct {
	Messages   []llm.Message
	Summarized bool
	Truncated  bool
	// Usage is the cost of the summary call, zero when none was made.
	Usage llm.Usage
}

// Summarizer compacts long conversations.
type Summarizer struct {
	provider  llm.Provider
	metrics   *metrics.Collector
	logger    *slog.Logger
	threshold int
	keep      int
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithThreshold sets the non-system message count above which compaction kicks in.
func WithThreshold(n int) Option {
	return func(s *Summarizer) { s.threshold = n }
}

// WithKeep sets how many recent messages are kept verbatim.
func WithKeep(n int) Option {
	return func(s *Summarizer) { s.keep = n }
}

// WithMetrics records summary calls on the collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Summarizer) { s.metrics = m }
}

// New creates a summarizer backed by provider.
func New(provider llm.Provider, logger *slog.Logger, opts ...Option) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Summarizer{
		provider:  provider,
		logger:    logger,
		threshold: DefaultThreshold,
		keep:      DefaultKeep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare converts persisted messages to provider messages. System messages
// are dropped. When more than threshold remain, the older ones are replaced
// by a single summary system message; if the summary call fails they are
// dropped instead. Prepare never returns an error.
func (s *Summarizer) Prepare(ctx context.Context, messages []models.Message) Result {
	turns := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}
		turns = append(turns, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}

	if len(turns) <= s.threshold {
		return Result{Messages: turns}
	}

	older := turns[:len(turns)-s.keep]
	recent := append([]llm.Message(nil), turns[len(turns)-s.keep:]...)

	summary, usage, err := s.summarize(ctx, older)
	if err != nil {
		s.logger.Warn("history summary failed, truncating", "dropped", len(older), "error", err)
		return Result{Messages: recent, Truncated: true}
	}

	out := make([]llm.Message, 0, len(recent)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: SummaryPrefix + summary})
	out = append(out, recent...)
	return Result{Messages: out, Summarized: true, Usage: usage}
}

func (s *Summarizer) summarize(ctx context.Context, older []llm.Message) (string, llm.Usage, error) {
	if s.provider == nil {
		return "", llm.Usage{}, llm.ErrNotConfigured
	}

	start := time.Now()
	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: summaryInstruction},
			{Role: llm.RoleUser, Content: transcript(older)},
		},
		Temperature: SummaryTemperature,
		MaxTokens:   SummaryMaxTokens,
	})
	if err != nil {
		return "", llm.Usage{}, err
	}
	s.metrics.RecordLLMUsage(metrics.OpSummarize, time.Since(start),
		int64(resp.Usage.InputTokens), int64(resp.Usage.OutputTokens))

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", resp.Usage, errEmptySummary
	}
	s.logger.Debug("history summarized", "messages", len(older),
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return summary, resp.Usage, nil
}

// transcript renders messages as "role: content" lines.
func transcript(msgs []llm.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
	}
	return b.String()
}
