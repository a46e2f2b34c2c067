package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// ConversationService manages conversations outside of chat turns.
type ConversationService struct {
	store store.Conversations
}

// NewConversationService creates a conversation service.
func NewConversationService(s store.Conversations) *ConversationService {
	return &ConversationService{store: s}
}

// Create starts an empty conversation.
func (s *ConversationService) Create(ctx context.Context, input models.ConversationInput) (*models.Conversation, error) {
	if input.WorkspaceID == "" || input.CreatedBy == "" {
		return nil, fmt.Errorf("%w: workspace id and user id are required", ErrInvalidInput)
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			input.Title = nil
		} else {
			input.Title = &title
		}
	}
	c, err := s.store.CreateConversation(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// List returns a workspace's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, workspaceID string, filter models.ConversationFilter) ([]models.Conversation, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace id is required", ErrInvalidInput)
	}
	convs, err := s.store.ListConversations(ctx, workspaceID, filter)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Get returns a conversation with its messages.
func (s *ConversationService) Get(ctx context.Context, workspaceID, id string) (*models.ConversationWithMessages, error) {
	c, err := s.owned(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &models.ConversationWithMessages{Conversation: *c, Messages: msgs}, nil
}

// Update changes the title or archived flag.
func (s *ConversationService) Update(ctx context.Context, workspaceID, id string, update models.ConversationUpdate) (*models.Conversation, error) {
	if _, err := s.owned(ctx, workspaceID, id); err != nil {
		return nil, err
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
		}
		update.Title = &title
	}
	c, err := s.store.UpdateConversation(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	return c, nil
}

// Delete removes a conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, workspaceID, id string) error {
	if _, err := s.owned(ctx, workspaceID, id); err != nil {
		return err
	}
	deleted, err := s.store.DeleteConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return nil
}

// owned loads a conversation and checks it belongs to the workspace.
func (s *ConversationService) owned(ctx context.Context, workspaceID, id string) (*models.Conversation, error) {
	return loadConversation(ctx, s.store, workspaceID, id)
}

func loadConversation(ctx context.Context, convs store.Conversations, workspaceID, id string) (*models.Conversation, error) {
	c, err := convs.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if c == nil || c.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return c, nil
}
