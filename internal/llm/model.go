package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raphaelgruber/sprintpilot/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainProvider adapts a langchaingo model (OpenAI, Anthropic, Ollama).
type LangChainProvider struct {
	llm       llms.Model
	name      string
	modelName string
}

// NewLangChainProvider wraps an existing langchaingo model.
func NewLangChainProvider(name, modelName string, model llms.Model) *LangChainProvider {
	return &LangChainProvider{llm: model, name: name, modelName: modelName}
}

// NewProvider creates the provider selected by configuration.
// Returns ErrNotConfigured when no provider is selected.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	modelName := cfg.AIModel
	if modelName == "" {
		modelName = config.DefaultModel(cfg.AIProvider)
	}

	var model llms.Model
	var err error

	switch cfg.AIProvider {
	case "":
		return nil, ErrNotConfigured

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key required", ErrNotConfigured)
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: Anthropic API key required", ErrNotConfigured)
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		return NewBedrockProvider(ctx, cfg.AWSRegion, modelName)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrNotConfigured, cfg.AIProvider)
	}

	return NewLangChainProvider(string(cfg.AIProvider), modelName, model), nil
}

// Name returns the provider name.
func (p *LangChainProvider) Name() string {
	return p.name
}

// Chat sends the transcript and returns the complete response.
func (p *LangChainProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	model := p.modelName
	if req.Model != "" {
		model = req.Model
		opts = append(opts, llms.WithModel(req.Model))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toLangChainTools(req.Tools)))
	}

	resp, err := p.llm.GenerateContent(ctx, toLangChainMessages(req.Messages), opts...)
	if err != nil {
		return nil, unavailable("generate content", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, unavailable("generate content", fmt.Errorf("no response choices"))
	}

	return fromLangChainResponse(resp, model), nil
}

func toLangChainTools(defs []ToolDefinition) []llms.Tool {
	tools := make([]llms.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

func toLangChainMessages(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAssistant:
			parts := []llms.ContentPart{}
			if m.Content != "" {
				parts = append(parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		}
	}
	return out
}

// fromLangChainResponse merges all choices: some backends split text and
// tool-use blocks into separate choices carrying the same usage info.
func fromLangChainResponse(resp *llms.ContentResponse, model string) *ChatResponse {
	var texts []string
	var calls []ToolCall
	var usage Usage

	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		if strings.TrimSpace(choice.Content) != "" {
			texts = append(texts, choice.Content)
		}
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			// Malformed arguments pass through so the executor rejects them.
			args := json.RawMessage(tc.FunctionCall.Arguments)
			if len(bytes.TrimSpace(args)) == 0 {
				args = json.RawMessage("{}")
			}
			calls = append(calls, ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: args})
		}
		in := tokenCount(choice.GenerationInfo, "InputTokens", "PromptTokens")
		out := tokenCount(choice.GenerationInfo, "OutputTokens", "CompletionTokens")
		usage.InputTokens = max(usage.InputTokens, in)
		usage.OutputTokens = max(usage.OutputTokens, out)
	}

	return &ChatResponse{
		Content:   strings.Join(texts, "\n"),
		Usage:     usage,
		ToolCalls: calls,
		Model:     model,
	}
}

// tokenCount reads the first present numeric key from generation info.
func tokenCount(info map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := info[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		case float64:
			return int(n)
		case float32:
			return int(n)
		}
	}
	return 0
}
