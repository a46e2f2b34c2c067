package models

import (
	"time"
)

// Role identifies the author of a persisted message.
type Role string

// Persisted message roles. Tool traffic is never persisted.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation represents a persistent chat session scoped to a workspace.
type Conversation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	CreatedBy   string    `json:"created_by"`
	Title       *string   `json:"title,omitempty"`
	ProjectID   *string   `json:"project_id,omitempty"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConversationInput holds the fields for creating a conversation.
type ConversationInput struct {
	WorkspaceID string
	CreatedBy   string
	Title       *string
	ProjectID   *string
}

// ConversationUpdate holds optional fields for updating a conversation.
// Nil fields are left unchanged.
type ConversationUpdate struct {
	Title    *string `json:"title,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

// ConversationFilter narrows conversation listings.
type ConversationFilter struct {
	CreatedBy       *string
	ProjectID       *string
	IncludeArchived bool
	// TitledOnly skips conversations without a title.
	TitledOnly bool
	// ExcludeID skips one conversation, usually the active one.
	ExcludeID string
	Limit     int
}

// Message is a single immutable entry in a conversation log.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Payload        *Payload  `json:"payload,omitempty"`
	InputTokens    *int      `json:"input_tokens,omitempty"`
	OutputTokens   *int      `json:"output_tokens,omitempty"`
	Model          *string   `json:"model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageInput holds the fields for appending a message.
type MessageInput struct {
	ConversationID string
	Role           Role
	Content        string
	Payload        *Payload
	InputTokens    *int
	OutputTokens   *int
	Model          *string
}

// ConversationWithMessages bundles a conversation with its ordered log.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}
