package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// CreateConversation stores a new conversation.
func (s *Store) CreateConversation(_ context.Context, input models.ConversationInput) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c := models.Conversation{
		ID:          newID(),
		WorkspaceID: input.WorkspaceID,
		CreatedBy:   input.CreatedBy,
		Title:       input.Title,
		ProjectID:   input.ProjectID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations[c.ID] = c
	return &c, nil
}

// GetConversation returns the conversation or nil.
func (s *Store) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// ListConversations returns matching conversations, most recently updated first.
func (s *Store) ListConversations(_ context.Context, workspaceID string, filter models.ConversationFilter) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Conversation{}
	for _, c := range s.conversations {
		if c.WorkspaceID != workspaceID {
			continue
		}
		if c.Archived && !filter.IncludeArchived {
			continue
		}
		if filter.CreatedBy != nil && c.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.ProjectID != nil && (c.ProjectID == nil || *c.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.TitledOnly && (c.Title == nil || *c.Title == "") {
			continue
		}
		if filter.ExcludeID != "" && c.ID == filter.ExcludeID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateConversation applies title/archive changes.
func (s *Store) UpdateConversation(_ context.Context, id string, update models.ConversationUpdate) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	if update.Title != nil {
		c.Title = update.Title
	}
	if update.Archived != nil {
		c.Archived = *update.Archived
	}
	c.UpdatedAt = s.now()
	s.conversations[id] = c
	return &c, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false, nil
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return true, nil
}

// AppendMessage adds a message and bumps the conversation's updated_at.
func (s *Store) AppendMessage(_ context.Context, input models.MessageInput) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[input.ConversationID]
	if !ok {
		return nil, fmt.Errorf("append message: conversation %s: %w", input.ConversationID, store.ErrNotFound)
	}
	now := s.now()
	m := models.Message{
		ID:             newID(),
		ConversationID: input.ConversationID,
		Role:           input.Role,
		Content:        input.Content,
		Payload:        input.Payload,
		InputTokens:    input.InputTokens,
		OutputTokens:   input.OutputTokens,
		Model:          input.Model,
		CreatedAt:      now,
	}
	s.messages[input.ConversationID] = append(s.messages[input.ConversationID], m)
	c.UpdatedAt = now
	s.conversations[c.ID] = c
	return &m, nil
}

// ListMessages returns a copy of the conversation log in insertion order.
func (s *Store) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// =============================================================================
// USAGE & SETTINGS
// =============================================================================

func usageKey(workspaceID, month string) string {
	return workspaceID + "/" + month
}

// GetUsage returns the counter, or a zero counter when none exists.
func (s *Store) GetUsage(_ context.Context, workspaceID, month string) (*models.UsageCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usage[usageKey(workspaceID, month)]
	if !ok {
		u = models.UsageCounter{WorkspaceID: workspaceID, Month: month}
	}
	return &u, nil
}

// IncrementUsage adds tokens and one request to the counter.
func (s *Store) IncrementUsage(_ context.Context, workspaceID, month string, inputTokens, outputTokens int64) (*models.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey(workspaceID, month)
	u, ok := s.usage[key]
	if !ok {
		u = models.UsageCounter{WorkspaceID: workspaceID, Month: month}
	}
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	u.RequestCount++
	s.usage[key] = u
	return &u, nil
}

// GetSettings returns stored settings or nil.
func (s *Store) GetSettings(_ context.Context, workspaceID string) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[workspaceID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// UpsertSettings merges update into the stored settings, starting from defaults.
func (s *Store) UpsertSettings(_ context.Context, workspaceID string, update models.SettingsUpdate, defaults models.Settings) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[workspaceID]
	if !ok {
		st = defaults
		st.WorkspaceID = workspaceID
	}
	update.Apply(&st)
	st.UpdatedAt = s.now()
	s.settings[workspaceID] = st
	return &st, nil
}
