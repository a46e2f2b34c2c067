package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/sprintpilot/internal/history"
	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/payload"
	"github.com/raphaelgruber/sprintpilot/internal/prompt"
	"github.com/raphaelgruber/sprintpilot/internal/store"
	"github.com/raphaelgruber/sprintpilot/internal/tools"
	"github.com/raphaelgruber/sprintpilot/internal/usage"
	"github.com/raphaelgruber/sprintpilot/internal/wizard"
	"github.com/raphaelgruber/sprintpilot/internal/workspace"
)

// Turn limits and sampling parameters.
const (
	MaxRounds       = 5
	TitleMaxRunes   = 50
	chatTemperature = 0.7
	chatMaxTokens   = 4096
)

// roundLimitNotice replaces an empty final reply when the round cap cut a turn short.
const roundLimitNotice = "I ran out of steps before finishing this request. Ask me to continue and I'll pick up where I left off."

// Outcome is how a turn ended.
type Outcome string

// Turn outcomes.
const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeRoundLimit Outcome = "round_limit"
)

// ChatRequest is one user message sent to the assistant.
type ChatRequest struct {
	WorkspaceID    string `json:"workspace_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	// ProjectID scopes the turn to a project. Defaults to the conversation's project.
	ProjectID string `json:"project_id,omitempty"`
	// EpicID asks for a story breakdown of one epic of the project.
	EpicID      string `json:"epic_id,omitempty"`
	StartWizard bool   `json:"start_wizard,omitempty"`

	// OnRound, if set, is called after every provider call.
	OnRound func(RoundEvent) `json:"-"`
}

// RoundEvent reports progress after a provider call.
type RoundEvent struct {
	Round     int       `json:"round"`
	MaxRounds int       `json:"max_rounds"`
	ToolCalls []string  `json:"tool_calls,omitempty"`
	Usage     llm.Usage `json:"usage"`
}

// FunctionCall records one tool invocation made during a turn.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Success   bool   `json:"success"`
	Round     int    `json:"round"`
}

// TurnUsage sums the tokens of every round of a turn.
type TurnUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	Rounds       int `json:"rounds"`
}

// ChatResult is the outcome of a completed turn.
type ChatResult struct {
	Conversation     *models.Conversation `json:"conversation"`
	UserMessage      *models.Message      `json:"user_message"`
	AssistantMessage *models.Message      `json:"assistant_message"`
	Usage            TurnUsage            `json:"usage"`
	FunctionCalls    []FunctionCall       `json:"function_calls"`
	Outcome          Outcome              `json:"outcome"`
	DroppedToolCalls int                  `json:"dropped_tool_calls"`
	ContextLevel     workspace.Level      `json:"context_level"`
}

// ChatDeps wires the collaborators of a ChatService.
type ChatDeps struct {
	Workspace     store.Workspace
	Conversations store.Conversations
	Settings      *SettingsService
	Usage         *usage.Tracker
	Context       *workspace.Builder
	Projects      *workspace.ProjectBuilder
	Tools         *tools.Registry
	Composer      *prompt.Composer
	Metrics       *metrics.Collector
	Logger        *slog.Logger
	Now           func() time.Time
}

// ChatService runs conversation turns. It is safe for concurrent use;
// all per-turn state lives on the stack of Chat.
type ChatService struct {
	deps ChatDeps
}

// NewChatService creates a chat service.
func NewChatService(deps ChatDeps) *ChatService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Composer == nil {
		deps.Composer = prompt.NewComposer()
	}
	return &ChatService{deps: deps}
}

// turn carries the state of one Chat call.
type turn struct {
	req       ChatRequest
	provider  llm.Provider
	settings  *models.Settings
	conv      *models.Conversation
	created   bool
	projectID string
	logger    *slog.Logger
}

// Chat processes one user message and returns the persisted assistant reply.
//
// The user message is persisted before the first provider call, so a
// provider failure leaves it in the log with no assistant reply.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.WorkspaceID == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: workspace id and user id are required", ErrInvalidInput)
	}
	if req.Message == "" {
		return nil, fmt.Errorf("%w: message must not be empty", ErrInvalidInput)
	}

	start := s.deps.Now()
	t := &turn{req: req, logger: s.deps.Logger.With("workspace", req.WorkspaceID)}

	provider, settings, err := s.deps.Settings.resolveProvider(ctx, req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	t.provider, t.settings = provider, settings

	if err := s.deps.Usage.Check(ctx, req.WorkspaceID); err != nil {
		return nil, err
	}

	if err := s.resolveConversation(ctx, t); err != nil {
		return nil, err
	}
	t.logger = t.logger.With("conversation", t.conv.ID)
	t.logger.Info("chat turn started", "provider", provider.Name(), "new_conversation", t.created)

	userMsg, err := s.deps.Conversations.AppendMessage(ctx, models.MessageInput{
		ConversationID: t.conv.ID,
		Role:           models.RoleUser,
		Content:        req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	messages, err := s.deps.Conversations.ListMessages(ctx, t.conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	level := workspace.Classify(req.Message)
	system := s.compose(ctx, t, level, messages)

	summarizer := history.New(provider, t.logger, history.WithMetrics(s.deps.Metrics))
	hist := summarizer.Prepare(ctx, messages)

	transcript := make([]llm.Message, 0, len(hist.Messages)+1)
	transcript = append(transcript, llm.Message{Role: llm.RoleSystem, Content: system})
	transcript = append(transcript, hist.Messages...)

	result, final, err := s.runRounds(ctx, t, transcript)
	if err != nil {
		s.deps.Metrics.RecordTurn("error")
		t.logger.Error("chat turn aborted", "error", err, "category", Category(err))
		return nil, err
	}

	assistantMsg, err := s.finalize(ctx, t, result, final)
	if err != nil {
		return nil, err
	}

	result.Conversation = t.conv
	result.UserMessage = userMsg
	result.AssistantMessage = assistantMsg
	result.ContextLevel = level

	s.deps.Metrics.RecordTurn(string(result.Outcome))
	t.logger.Info("chat turn finished",
		"outcome", result.Outcome,
		"rounds", result.Usage.Rounds,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration_ms", s.deps.Now().Sub(start).Milliseconds())
	return result, nil
}

// resolveConversation loads the requested conversation or starts a new one.
func (s *ChatService) resolveConversation(ctx context.Context, t *turn) error {
	if t.req.ConversationID != "" {
		conv, err := loadConversation(ctx, s.deps.Conversations, t.req.WorkspaceID, t.req.ConversationID)
		if err != nil {
			return err
		}
		t.conv = conv
	} else {
		input := models.ConversationInput{WorkspaceID: t.req.WorkspaceID, CreatedBy: t.req.UserID}
		if t.req.ProjectID != "" {
			input.ProjectID = models.Ptr(t.req.ProjectID)
		}
		conv, err := s.deps.Conversations.CreateConversation(ctx, input)
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		t.conv, t.created = conv, true
	}

	t.projectID = t.req.ProjectID
	if t.projectID == "" && t.conv.ProjectID != nil {
		t.projectID = *t.conv.ProjectID
	}
	return nil
}

// compose builds the system prompt. Context failures degrade the prompt, never the turn.
func (s *ChatService) compose(ctx context.Context, t *turn, level workspace.Level, messages []models.Message) string {
	in := prompt.Input{
		Snapshot:        s.deps.Context.Build(ctx, t.req.WorkspaceID, level),
		Wizard:          wizard.FromHistory(messages, t.req.StartWizard),
		NewConversation: t.created,
		Now:             s.deps.Now(),
	}

	if t.projectID != "" {
		pc, err := s.projectContext(ctx, t, t.projectID)
		if err != nil {
			t.logger.Warn("project context unavailable", "project", t.projectID, "error", err)
		}
		in.Project = pc
		if pc != nil && t.req.EpicID != "" {
			for _, e := range pc.Epics {
				if e.ID == t.req.EpicID || strings.EqualFold(e.Key, t.req.EpicID) {
					in.EpicKey = e.Key
					break
				}
			}
		}
	}

	t.logger.Debug("prompt composed", "level", level, "addition", prompt.Select(in))
	return s.deps.Composer.Compose(in)
}

// projectContext builds a project context for the turn, ignoring projects
// of other workspaces.
func (s *ChatService) projectContext(ctx context.Context, t *turn, projectID string) (*workspace.ProjectContext, error) {
	if s.deps.Projects == nil {
		return nil, nil
	}
	pc, err := s.deps.Projects.BuildFor(ctx, projectID, t.conv.ID)
	if err != nil || pc == nil {
		return nil, err
	}
	if pc.Project.WorkspaceID != t.req.WorkspaceID {
		return nil, nil
	}
	return pc, nil
}

// runRounds alternates provider calls and tool execution until the model
// answers without tool calls or MaxRounds provider calls have been made.
func (s *ChatService) runRounds(ctx context.Context, t *turn, transcript []llm.Message) (*ChatResult, *llm.ChatResponse, error) {
	executor := tools.NewExecutor(s.deps.Tools, t.req.WorkspaceID, t.logger, s.deps.Metrics)
	defs := s.deps.Tools.Definitions()
	injected := make(map[string]bool)
	if t.projectID != "" {
		injected[t.projectID] = true
	}

	result := &ChatResult{Outcome: OutcomeCompleted, FunctionCalls: []FunctionCall{}}
	var total llm.Usage
	var last *llm.ChatResponse

	for round := 1; round <= MaxRounds; round++ {
		start := time.Now()
		resp, err := t.provider.Chat(ctx, llm.ChatRequest{
			Messages:    transcript,
			Tools:       defs,
			Temperature: chatTemperature,
			MaxTokens:   chatMaxTokens,
			Model:       t.settings.Model,
		})
		u := respUsage(resp)
		s.deps.Metrics.RecordLLMUsage(metrics.OpChatRound, time.Since(start), int64(u.InputTokens), int64(u.OutputTokens))
		if err != nil {
			if !errors.Is(err, ErrProviderUnavailable) {
				err = fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
			return nil, nil, err
		}

		total = total.Add(resp.Usage)
		last = resp
		result.Usage.Rounds = round
		t.logger.Debug("model round finished", "round", round,
			"tool_calls", len(resp.ToolCalls),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens)
		if t.req.OnRound != nil {
			t.req.OnRound(RoundEvent{Round: round, MaxRounds: MaxRounds, ToolCalls: callNames(resp.ToolCalls), Usage: resp.Usage})
		}

		if len(resp.ToolCalls) == 0 {
			break
		}
		if round == MaxRounds {
			result.Outcome = OutcomeRoundLimit
			result.DroppedToolCalls = len(resp.ToolCalls)
			t.logger.Warn("round limit reached", "round", round, "dropped_tool_calls", len(resp.ToolCalls))
			break
		}

		calls := make([]llm.ToolCall, len(resp.ToolCalls))
		for i, c := range resp.ToolCalls {
			if c.ID == "" {
				c.ID = "call_" + uuid.NewString()
			}
			calls[i] = c
		}
		transcript = append(transcript, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: calls})

		outcomes := executor.ExecuteAll(ctx, calls)
		revealed := make(map[string]bool)
		var order []string
		for _, o := range outcomes {
			transcript = append(transcript, llm.Message{
				Role:       llm.RoleTool,
				Content:    o.Content,
				ToolCallID: o.Call.ID,
				Name:       o.Call.Name,
			})
			result.FunctionCalls = append(result.FunctionCalls, FunctionCall{
				Name:      o.Call.Name,
				Arguments: string(o.Call.Arguments),
				Success:   o.Success,
				Round:     round,
			})
			if o.ProjectID != "" && !revealed[o.ProjectID] {
				revealed[o.ProjectID] = true
				order = append(order, o.ProjectID)
			}
		}

		for _, id := range order {
			if injected[id] {
				continue
			}
			pc, err := s.projectContext(ctx, t, id)
			if err != nil || pc == nil {
				t.logger.Warn("skipping project context injection", "project", id, "error", err)
				continue
			}
			injected[id] = true
			transcript = append(transcript, llm.Message{
				Role:    llm.RoleSystem,
				Content: "Project context for follow-up work:\n\n" + workspace.FormatProjectContext(pc),
			})
		}
	}

	result.Usage.InputTokens = total.InputTokens
	result.Usage.OutputTokens = total.OutputTokens
	result.Usage.TotalTokens = total.Total()
	return result, last, nil
}

// finalize persists the assistant reply, charges usage and titles new conversations.
func (s *ChatService) finalize(ctx context.Context, t *turn, result *ChatResult, final *llm.ChatResponse) (*models.Message, error) {
	content := final.Content
	if strings.TrimSpace(content) == "" && result.Outcome == OutcomeRoundLimit {
		content = roundLimitNotice
	}

	model := final.Model
	if model == "" {
		model = t.settings.Model
	}
	if model == "" {
		model = t.provider.Name()
	}

	input := models.MessageInput{
		ConversationID: t.conv.ID,
		Role:           models.RoleAssistant,
		Content:        content,
		InputTokens:    models.Ptr(result.Usage.InputTokens),
		OutputTokens:   models.Ptr(result.Usage.OutputTokens),
		Model:          models.Ptr(model),
	}
	if p, ok := payload.Extract(content); ok {
		input.Payload = p
	}

	msg, err := s.deps.Conversations.AppendMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	if _, err := s.deps.Usage.Record(ctx, t.req.WorkspaceID, llm.Usage{
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}); err != nil {
		t.logger.Error("failed to record usage", "error", err)
	}

	if t.created && t.conv.Title == nil {
		title := DeriveTitle(t.req.Message)
		conv, err := s.deps.Conversations.UpdateConversation(ctx, t.conv.ID, models.ConversationUpdate{Title: &title})
		switch {
		case err != nil:
			t.logger.Warn("failed to set conversation title", "error", err)
		case conv != nil:
			t.conv = conv
		}
	}
	return msg, nil
}

// DeriveTitle turns the first user message into a conversation title.
func DeriveTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	return models.Truncate(title, TitleMaxRunes)
}

func callNames(calls []llm.ToolCall) []string {
	if len(calls) == 0 {
		return nil
	}
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

func respUsage(resp *llm.ChatResponse) llm.Usage {
	if resp == nil {
		return llm.Usage{}
	}
	return resp.Usage
}
