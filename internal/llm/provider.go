// Package llm adapts chat-completion backends to a single tool-calling contract.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for provider operations.
var (
	// ErrProviderUnavailable wraps every backend failure. Callers cannot
	// distinguish rate limits from outages and no retry is attempted.
	ErrProviderUnavailable = errors.New("ai provider unavailable")

	// ErrNotConfigured indicates no provider matches the requested name.
	ErrNotConfigured = errors.New("ai provider not configured")
)

// Role is the author of a model-bound message.
type Role string

// Message roles understood by every backend.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued function invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry of the transcript sent to a provider.
// Assistant messages may carry ToolCalls; tool messages answer one call.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDefinition documents a callable tool. Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage is the token accounting of one provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the element-wise sum.
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ChatRequest is a single completion request.
// Model optionally overrides the provider's configured model.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
	Model       string
}

// ChatResponse is a complete (never partial) completion.
type ChatResponse struct {
	Content   string
	Usage     Usage
	ToolCalls []ToolCall
	Model     string
}

// Provider issues chat completions with optional tool calling.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

// unavailable wraps a backend error in the opaque provider category.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, err)
}

// Set holds the configured providers keyed by name with a default.
// It is built once at startup and passed to whoever needs a provider.
type Set struct {
	providers map[string]Provider
	def       string
}

// NewSet creates a provider set. def names the default provider.
func NewSet(def string, providers ...Provider) *Set {
	s := &Set{providers: make(map[string]Provider, len(providers)), def: def}
	for _, p := range providers {
		if p != nil {
			s.providers[p.Name()] = p
		}
	}
	return s
}

// Pick returns the named provider, or the default when name is empty.
func (s *Set) Pick(name string) (Provider, error) {
	if s == nil || len(s.providers) == 0 {
		return nil, ErrNotConfigured
	}
	if name == "" {
		name = s.def
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, name)
	}
	return p, nil
}

// Has reports whether a provider with that name is configured.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.providers[name]
	return ok
}

// Names lists configured provider names, sorted.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.providers))
	for n := range s.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the default provider name.
func (s *Set) Default() string {
	if s == nil {
		return ""
	}
	return s.def
}
