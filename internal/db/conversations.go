package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation stores a new conversation.
func (c *Client) CreateConversation(ctx context.Context, input models.ConversationInput) (*models.Conversation, error) {
	row, err := queryOne[conversationRow](ctx, c, `
		CREATE type::record("conversation", $id) SET
			workspace_id = $ws,
			created_by = $by,
			title = $title,
			project_id = $project
	`, map[string]any{
		"id":      uuid.NewString(),
		"ws":      input.WorkspaceID,
		"by":      input.CreatedBy,
		"title":   input.Title,
		"project": input.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("create conversation: no result returned")
	}
	conv, err := row.model()
	return &conv, err
}

// GetConversation returns the conversation or nil.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row, err := queryOne[conversationRow](ctx, c, `SELECT * FROM type::record("conversation", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	conv, err := row.model()
	return &conv, err
}

// ListConversations returns matching conversations, most recently updated first.
func (c *Client) ListConversations(ctx context.Context, workspaceID string, filter models.ConversationFilter) ([]models.Conversation, error) {
	clauses := []string{"workspace_id = $ws"}
	vars := map[string]any{"ws": workspaceID}
	if !filter.IncludeArchived {
		clauses = append(clauses, "archived = false")
	}
	if filter.CreatedBy != nil {
		clauses = append(clauses, "created_by = $by")
		vars["by"] = *filter.CreatedBy
	}
	if filter.ProjectID != nil {
		clauses = append(clauses, "project_id = $project")
		vars["project"] = *filter.ProjectID
	}
	if filter.TitledOnly {
		clauses = append(clauses, `title != NONE AND title != ""`)
	}
	if filter.ExcludeID != "" {
		clauses = append(clauses, `id != type::record("conversation", $exclude)`)
		vars["exclude"] = filter.ExcludeID
	}
	limitClause := ""
	if filter.Limit > 0 {
		limitClause = "LIMIT $limit"
		vars["limit"] = filter.Limit
	}

	sql := fmt.Sprintf("SELECT * FROM conversation WHERE %s ORDER BY updated_at DESC %s",
		strings.Join(clauses, " AND "), limitClause)
	rows, err := query[conversationRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convert[conversationRow, models.Conversation](rows)
}

// UpdateConversation applies title/archive changes. Returns nil when the
// conversation does not exist.
func (c *Client) UpdateConversation(ctx context.Context, id string, update models.ConversationUpdate) (*models.Conversation, error) {
	sets := []string{"updated_at = time::now()"}
	vars := map[string]any{"id": id}
	if update.Title != nil {
		sets = append(sets, "title = $title")
		vars["title"] = *update.Title
	}
	if update.Archived != nil {
		sets = append(sets, "archived = $archived")
		vars["archived"] = *update.Archived
	}

	sql := fmt.Sprintf(`UPDATE type::record("conversation", $id) SET %s RETURN AFTER`, strings.Join(sets, ", "))
	row, err := queryOne[conversationRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	conv, err := row.model()
	return &conv, err
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) (bool, error) {
	existing, err := c.GetConversation(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	err = c.exec(ctx, `
		DELETE message WHERE conversation_id = $id;
		DELETE type::record("conversation", $id);
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return true, nil
}

// AppendMessage adds a message and bumps the conversation's updated_at.
func (c *Client) AppendMessage(ctx context.Context, input models.MessageInput) (*models.Message, error) {
	conv, err := c.GetConversation(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("append message: conversation %s: %w", input.ConversationID, store.ErrNotFound)
	}
	payloadJSON, err := encodePayload(input.Payload)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	err = c.exec(ctx, `
		LET $seq = array::len((SELECT id FROM message WHERE conversation_id = $cid));
		CREATE type::record("message", $id) SET
			conversation_id = $cid,
			seq = $seq,
			role = $role,
			content = $content,
			payload_json = $payload,
			input_tokens = $input_tokens,
			output_tokens = $output_tokens,
			model = $model;
		UPDATE type::record("conversation", $cid) SET updated_at = time::now();
	`, map[string]any{
		"id":            id,
		"cid":           input.ConversationID,
		"role":          string(input.Role),
		"content":       input.Content,
		"payload":       payloadJSON,
		"input_tokens":  input.InputTokens,
		"output_tokens": input.OutputTokens,
		"model":         input.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	row, err := queryOne[messageRow](ctx, c, `SELECT * FROM type::record("message", $id)`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("read appended message: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("append message: no result returned")
	}
	m, err := row.model()
	return &m, err
}

// ListMessages returns the conversation log in insertion order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := query[messageRow](ctx, c, `
		SELECT * FROM message WHERE conversation_id = $cid ORDER BY seq ASC, created_at ASC
	`, map[string]any{"cid": conversationID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return convert[messageRow, models.Message](rows)
}

// =============================================================================
// USAGE & SETTINGS
// =============================================================================

func usageKey(workspaceID, month string) string {
	return workspaceID + "_" + month
}

// GetUsage returns the counter, or a zero counter when none exists.
func (c *Client) GetUsage(ctx context.Context, workspaceID, month string) (*models.UsageCounter, error) {
	row, err := queryOne[usageRow](ctx, c, `
		SELECT workspace_id, month, input_tokens, output_tokens, request_count
		FROM type::record("ai_usage", $key)
	`, map[string]any{"key": usageKey(workspaceID, month)})
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	if row == nil {
		return &models.UsageCounter{WorkspaceID: workspaceID, Month: month}, nil
	}
	u := row.model()
	return &u, nil
}

// IncrementUsage adds tokens and one request to the counter in a single
// statement, so concurrent turns never lose an increment.
func (c *Client) IncrementUsage(ctx context.Context, workspaceID, month string, inputTokens, outputTokens int64) (*models.UsageCounter, error) {
	var row *usageRow
	err := retryOnConflict(ctx, func() error {
		var err error
		row, err = queryOne[usageRow](ctx, c, `
			UPSERT type::record("ai_usage", $key) SET
				workspace_id = $ws,
				month = $month,
				input_tokens += $in,
				output_tokens += $out,
				request_count += 1
			RETURN workspace_id, month, input_tokens, output_tokens, request_count
		`, map[string]any{
			"key":   usageKey(workspaceID, month),
			"ws":    workspaceID,
			"month": month,
			"in":    inputTokens,
			"out":   outputTokens,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("increment usage: no result returned")
	}
	u := row.model()
	return &u, nil
}

// GetSettings returns stored settings or nil.
func (c *Client) GetSettings(ctx context.Context, workspaceID string) (*models.Settings, error) {
	row, err := queryOne[settingsRow](ctx, c, `SELECT * FROM type::record("ai_settings", $ws)`,
		map[string]any{"ws": workspaceID})
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	s, err := row.model()
	return &s, err
}

// UpsertSettings merges update into the stored settings, starting from defaults.
func (c *Client) UpsertSettings(ctx context.Context, workspaceID string, update models.SettingsUpdate, defaults models.Settings) (*models.Settings, error) {
	current, err := c.GetSettings(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	st := defaults
	if current != nil {
		st = *current
	}
	update.Apply(&st)

	row, err := queryOne[settingsRow](ctx, c, `
		UPSERT type::record("ai_settings", $ws) SET
			enabled = $enabled,
			provider = $provider,
			model = $model,
			monthly_token_limit = $limit,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{
		"ws":       workspaceID,
		"enabled":  st.Enabled,
		"provider": optional(st.Provider),
		"model":    optional(st.Model),
		"limit":    st.MonthlyTokenLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert settings: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("upsert settings: no result returned")
	}
	s, err := row.model()
	return &s, err
}
