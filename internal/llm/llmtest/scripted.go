// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/raphaelgruber/sprintpilot/internal/llm"
)

// Step is one scripted provider reply. A non-nil Err fails the call.
type Step struct {
	Response *llm.ChatResponse
	Err      error
}

// Scripted replays steps in order and records every request.
// Once the script is exhausted, the last step repeats.
type Scripted struct {
	mu       sync.Mutex
	name     string
	steps    []Step
	requests []llm.ChatRequest
}

// New creates a scripted provider named "scripted".
func New(steps ...Step) *Scripted {
	return &Scripted{name: "scripted", steps: steps}
}

// Named creates a scripted provider with a custom name.
func Named(name string, steps ...Step) *Scripted {
	return &Scripted{name: name, steps: steps}
}

// Name returns the provider name.
func (s *Scripted) Name() string { return s.name }

// Chat returns the next scripted step.
func (s *Scripted) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := req
	copied.Messages = append([]llm.Message(nil), req.Messages...)
	s.requests = append(s.requests, copied)

	if len(s.steps) == 0 {
		return nil, fmt.Errorf("%w: no scripted steps", llm.ErrProviderUnavailable)
	}
	idx := len(s.requests) - 1
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	step := s.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	return &resp, nil
}

// Requests returns a copy of every request received.
func (s *Scripted) Requests() []llm.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.ChatRequest(nil), s.requests...)
}

// Calls returns how many requests were received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Text is a step answering with plain content.
func Text(content string, in, out int) Step {
	return Step{Response: &llm.ChatResponse{
		Content: content,
		Usage:   llm.Usage{InputTokens: in, OutputTokens: out},
		Model:   "scripted-model",
	}}
}

// Tools is a step requesting the given tool calls.
func Tools(in, out int, calls ...llm.ToolCall) Step {
	return Step{Response: &llm.ChatResponse{
		ToolCalls: calls,
		Usage:     llm.Usage{InputTokens: in, OutputTokens: out},
		Model:     "scripted-model",
	}}
}

// Fail is a step returning a provider error.
func Fail(msg string) Step {
	return Step{Err: fmt.Errorf("%w: %s", llm.ErrProviderUnavailable, msg)}
}

// Call builds a tool call with JSON-encoded arguments.
func Call(id, name string, args any) llm.ToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llm.ToolCall{ID: id, Name: name, Arguments: raw}
}
