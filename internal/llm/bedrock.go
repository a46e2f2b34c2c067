package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

// converser is the subset of the Bedrock runtime client we call.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider adapts the AWS Bedrock Converse API.
type BedrockProvider struct {
	client  converser
	modelID string
}

// NewBedrockProvider loads the default AWS credential chain for region.
func NewBedrockProvider(ctx context.Context, region, modelID string) (*BedrockProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(cfg), modelID: modelID}, nil
}

// Name returns the provider name.
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// Chat sends the transcript through Converse.
func (p *BedrockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	modelID := p.modelID
	if req.Model != "" {
		modelID = req.Model
	}

	system, messages := toBedrockMessages(req.Messages)

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		System:   system,
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = toBedrockTools(req.Tools)
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, unavailable(converseOp(err), err)
	}
	return fromBedrockOutput(out, modelID)
}

// converseOp names the failed call, with the AWS error code when there is one.
func converseOp(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return "converse " + apiErr.ErrorCode()
	}
	return "converse"
}

func toBedrockTools(defs []ToolDefinition) *types.ToolConfiguration {
	tools := make([]types.Tool, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(d.Name),
			Description: aws.String(d.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(params)},
		}})
	}
	return &types.ToolConfiguration{Tools: tools}
}

// toBedrockMessages lifts system messages into the system prompt and merges
// adjacent same-role messages, since Converse requires strict alternation.
// Tool results travel as user-role content blocks.
func toBedrockMessages(msgs []Message) ([]types.SystemContentBlock, []types.Message) {
	var system []types.SystemContentBlock
	var out []types.Message

	push := func(role types.ConversationRole, blocks ...types.ContentBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
		case RoleUser:
			push(types.ConversationRoleUser, &types.ContentBlockMemberText{Value: m.Content})
		case RoleAssistant:
			var blocks []types.ContentBlock
			if m.Content != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				// Converse needs an object; a malformed call was already
				// answered with a tool error, so it replays as empty input.
				var args map[string]any
				if len(tc.Arguments) > 0 {
					_ = json.Unmarshal(tc.Arguments, &args)
				}
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(args),
				}})
			}
			push(types.ConversationRoleAssistant, blocks...)
		case RoleTool:
			push(types.ConversationRoleUser, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content: []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: m.Content},
				},
			}})
		}
	}
	return system, out
}

func fromBedrockOutput(out *bedrockruntime.ConverseOutput, modelID string) (*ChatResponse, error) {
	if out == nil {
		return nil, unavailable("converse", fmt.Errorf("empty output"))
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, unavailable("converse", fmt.Errorf("unexpected output type %T", out.Output))
	}

	var texts []string
	var calls []ToolCall
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			if strings.TrimSpace(b.Value) != "" {
				texts = append(texts, b.Value)
			}
		case *types.ContentBlockMemberToolUse:
			args := json.RawMessage("{}")
			if b.Value.Input != nil {
				raw, err := b.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return nil, unavailable("decode tool input", err)
				}
				args = raw
			}
			calls = append(calls, ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}

	var usage Usage
	if out.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}

	return &ChatResponse{
		Content:   strings.Join(texts, "\n"),
		Usage:     usage,
		ToolCalls: calls,
		Model:     modelID,
	}, nil
}
