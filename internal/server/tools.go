package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/service"
)

// MCP tool names.
const (
	ToolChat               = "chat"
	ToolListConversations  = "list_conversations"
	ToolGetConversation    = "get_conversation"
	ToolUpdateConversation = "update_conversation"
	ToolDeleteConversation = "delete_conversation"
	ToolGetSettings        = "get_settings"
	ToolUpdateSettings     = "update_settings"
	ToolGetUsage           = "get_usage"
)

// WorkspaceInput is the input of tools that only need a workspace.
type WorkspaceInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"Workspace the request acts on"`
}

// ChatInput defines the input schema for the chat tool.
type ChatInput struct {
	WorkspaceID    string `json:"workspace_id" jsonschema:"Workspace the request acts on"`
	UserID         string `json:"user_id" jsonschema:"Member sending the message"`
	Message        string `json:"message" jsonschema:"The message text"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"Continue an existing conversation"`
	ProjectID      string `json:"project_id,omitempty" jsonschema:"Scope the turn to a project"`
	EpicID         string `json:"epic_id,omitempty" jsonschema:"Ask for a story breakdown of one epic"`
	StartWizard    bool   `json:"start_wizard,omitempty" jsonschema:"Start the guided project creation wizard"`
}

// ListConversationsInput defines the input schema for list_conversations.
type ListConversationsInput struct {
	WorkspaceID     string `json:"workspace_id" jsonschema:"Workspace the request acts on"`
	ProjectID       string `json:"project_id,omitempty" jsonschema:"Only conversations about this project"`
	CreatedBy       string `json:"created_by,omitempty" jsonschema:"Only conversations started by this member"`
	IncludeArchived bool   `json:"include_archived,omitempty" jsonschema:"Include archived conversations (default: false)"`
	Limit           int    `json:"limit,omitempty" jsonschema:"Maximum number of conversations"`
}

// ConversationInput addresses one conversation.
type ConversationInput struct {
	WorkspaceID    string `json:"workspace_id" jsonschema:"Workspace the request acts on"`
	ConversationID string `json:"conversation_id" jsonschema:"Conversation id"`
}

// UpdateConversationInput defines the input schema for update_conversation.
type UpdateConversationInput struct {
	WorkspaceID    string  `json:"workspace_id" jsonschema:"Workspace the request acts on"`
	ConversationID string  `json:"conversation_id" jsonschema:"Conversation id"`
	Title          *string `json:"title,omitempty" jsonschema:"New title"`
	Archived       *bool   `json:"archived,omitempty" jsonschema:"Archive (true) or restore (false)"`
}

// UpdateSettingsInput defines the input schema for update_settings.
// Omitted fields stay unchanged.
type UpdateSettingsInput struct {
	WorkspaceID       string  `json:"workspace_id" jsonschema:"Workspace the request acts on"`
	Enabled           *bool   `json:"enabled,omitempty" jsonschema:"Turn the assistant on or off"`
	Provider          *string `json:"provider,omitempty" jsonschema:"One of the configured providers"`
	Model             *string `json:"model,omitempty" jsonschema:"Model name passed to the provider"`
	MonthlyTokenLimit *int64  `json:"monthly_token_limit,omitempty" jsonschema:"Monthly token budget; 0 uses the default"`
}

// registerTools adds every assistant tool to the MCP server.
func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name: ToolChat,
		Description: "Send a message to the planning assistant and get its reply. " +
			"Omit conversation_id to start a new conversation.",
	}, s.handleChat)

	addTool(s, &mcp.Tool{
		Name:        ToolListConversations,
		Description: "List a workspace's conversations, most recently active first.",
	}, s.handleListConversations)

	addTool(s, &mcp.Tool{
		Name:        ToolGetConversation,
		Description: "Get a conversation with its full message log.",
	}, s.handleGetConversation)

	addTool(s, &mcp.Tool{
		Name:        ToolUpdateConversation,
		Description: "Rename or archive a conversation.",
	}, s.handleUpdateConversation)

	addTool(s, &mcp.Tool{
		Name:        ToolDeleteConversation,
		Description: "Delete a conversation and all of its messages.",
	}, s.handleDeleteConversation)

	addTool(s, &mcp.Tool{
		Name:        ToolGetSettings,
		Description: "Get the workspace's assistant settings.",
	}, s.handleGetSettings)

	addTool(s, &mcp.Tool{
		Name:        ToolUpdateSettings,
		Description: "Change the workspace's assistant settings. Omitted fields stay unchanged.",
	}, s.handleUpdateSettings)

	addTool(s, &mcp.Tool{
		Name:        ToolGetUsage,
		Description: "Show this month's token usage against the workspace limit.",
	}, s.handleGetUsage)
}

// addTool registers a typed handler and remembers the tool for startup logging.
func addTool[In any](s *Server, tool *mcp.Tool, h mcp.ToolHandlerFor[In, any]) {
	mcp.AddTool(s.mcp, tool, h)
	s.tools = append(s.tools, tool)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleChat(ctx context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, any, error) {
	result, err := s.app.Chat.Chat(ctx, service.ChatRequest{
		WorkspaceID:    in.WorkspaceID,
		UserID:         in.UserID,
		Message:        in.Message,
		ConversationID: in.ConversationID,
		ProjectID:      in.ProjectID,
		EpicID:         in.EpicID,
		StartWizard:    in.StartWizard,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(result)
}

func (s *Server) handleListConversations(ctx context.Context, _ *mcp.CallToolRequest, in ListConversationsInput) (*mcp.CallToolResult, any, error) {
	filter := models.ConversationFilter{
		IncludeArchived: in.IncludeArchived,
		Limit:           in.Limit,
	}
	if in.ProjectID != "" {
		filter.ProjectID = &in.ProjectID
	}
	if in.CreatedBy != "" {
		filter.CreatedBy = &in.CreatedBy
	}
	convs, err := s.app.Conversations.List(ctx, in.WorkspaceID, filter)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(map[string]any{"conversations": convs})
}

func (s *Server) handleGetConversation(ctx context.Context, _ *mcp.CallToolRequest, in ConversationInput) (*mcp.CallToolResult, any, error) {
	conv, err := s.app.Conversations.Get(ctx, in.WorkspaceID, in.ConversationID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(conv)
}

func (s *Server) handleUpdateConversation(ctx context.Context, _ *mcp.CallToolRequest, in UpdateConversationInput) (*mcp.CallToolResult, any, error) {
	update := models.ConversationUpdate{Title: in.Title, Archived: in.Archived}
	conv, err := s.app.Conversations.Update(ctx, in.WorkspaceID, in.ConversationID, update)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(conv)
}

func (s *Server) handleDeleteConversation(ctx context.Context, _ *mcp.CallToolRequest, in ConversationInput) (*mcp.CallToolResult, any, error) {
	if err := s.app.Conversations.Delete(ctx, in.WorkspaceID, in.ConversationID); err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(fmt.Sprintf("Deleted conversation %s", in.ConversationID)), nil, nil
}

func (s *Server) handleGetSettings(ctx context.Context, _ *mcp.CallToolRequest, in WorkspaceInput) (*mcp.CallToolResult, any, error) {
	st, err := s.app.Settings.Get(ctx, in.WorkspaceID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(st)
}

func (s *Server) handleUpdateSettings(ctx context.Context, _ *mcp.CallToolRequest, in UpdateSettingsInput) (*mcp.CallToolResult, any, error) {
	st, err := s.app.Settings.Update(ctx, in.WorkspaceID, models.SettingsUpdate{
		Enabled:           in.Enabled,
		Provider:          in.Provider,
		Model:             in.Model,
		MonthlyTokenLimit: in.MonthlyTokenLimit,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(st)
}

func (s *Server) handleGetUsage(ctx context.Context, _ *mcp.CallToolRequest, in WorkspaceInput) (*mcp.CallToolResult, any, error) {
	report, err := s.app.Usage.Report(ctx, in.WorkspaceID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(report)
}

// =============================================================================
// HELPERS
// =============================================================================

// errorResult reports a failure to the MCP client, prefixed with its category.
// Provider failures stay opaque.
func errorResult(err error) *mcp.CallToolResult {
	category := service.Category(err)
	msg := err.Error()
	switch category {
	case "provider":
		msg = "the ai provider is unavailable, try again later"
	case "internal":
		msg = "internal error"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %s", category, msg)}},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil, nil
}
