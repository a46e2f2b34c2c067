// Package store declares the persistence contracts the assistant depends on.
// Both the SurrealDB client and the in-memory store implement every interface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/models"
)

// Sentinel errors shared by all store implementations.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateDependency = errors.New("dependency already exists")
	ErrDependencyCycle     = errors.New("dependency would create a cycle")
	ErrSelfDependency      = errors.New("epic cannot depend on itself")
)

// Workspace reads team data and performs the project/epic writes tools need.
// Lookups of single records return (nil, nil) when the record does not exist.
type Workspace interface {
	GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error)
	ListMembers(ctx context.Context, workspaceID string) ([]models.Member, error)
	ListTasks(ctx context.Context, workspaceID string, filter models.TaskFilter) ([]models.Task, error)
	ListTimeOff(ctx context.Context, workspaceID string, from, to time.Time) ([]models.TimeOff, error)

	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	ListEpics(ctx context.Context, projectID string) ([]models.Epic, error)
	GetEpic(ctx context.Context, epicID string) (*models.Epic, error)
	ListEpicDependencies(ctx context.Context, projectID string) ([]models.EpicDependency, error)

	CreateProject(ctx context.Context, input models.ProjectInput) (*models.Project, error)
	CreateEpic(ctx context.Context, input models.EpicInput) (*models.Epic, error)
	CreateTask(ctx context.Context, input models.TaskInput) (*models.Task, error)
	UpdateEpicStatus(ctx context.Context, epicID string, status models.EpicStatus) error

	// AddEpicDependency rejects self edges, duplicates and cycles with
	// ErrSelfDependency, ErrDuplicateDependency and ErrDependencyCycle.
	AddEpicDependency(ctx context.Context, epicID, dependsOnID, reason string) (*models.EpicDependency, error)
}

// Conversations is the append-only conversation log.
type Conversations interface {
	CreateConversation(ctx context.Context, input models.ConversationInput) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, workspaceID string, filter models.ConversationFilter) ([]models.Conversation, error)
	UpdateConversation(ctx context.Context, id string, update models.ConversationUpdate) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)

	// AppendMessage persists a message and bumps the conversation's updated_at.
	AppendMessage(ctx context.Context, input models.MessageInput) (*models.Message, error)
	// ListMessages returns messages in creation order.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Usage stores monthly token counters.
type Usage interface {
	// GetUsage returns a zero counter when none exists yet.
	GetUsage(ctx context.Context, workspaceID, month string) (*models.UsageCounter, error)
	// IncrementUsage adds to the counter and counts one request.
	IncrementUsage(ctx context.Context, workspaceID, month string, inputTokens, outputTokens int64) (*models.UsageCounter, error)
}

// Settings stores per-workspace assistant preferences.
type Settings interface {
	GetSettings(ctx context.Context, workspaceID string) (*models.Settings, error)
	UpsertSettings(ctx context.Context, workspaceID string, update models.SettingsUpdate, defaults models.Settings) (*models.Settings, error)
}

// Store bundles every contract. Implementations satisfy all of them.
type Store interface {
	Workspace
	Conversations
	Usage
	Settings
	Close(ctx context.Context) error
}
