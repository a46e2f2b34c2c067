// Package client provides an HTTP and WebSocket client for the SprintPilot server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/sprintpilot/internal/api"
	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/service"
	"github.com/raphaelgruber/sprintpilot/internal/usage"
)

// Client talks to the SprintPilot HTTP API on behalf of one user.
type Client struct {
	endpoint   string
	userID     string
	httpClient *http.Client
}

// New creates a client.
// If endpoint is empty, uses SPRINTPILOT_SERVER_URL or defaults to localhost:8585.
// Timeout can be configured via SPRINTPILOT_CLIENT_TIMEOUT (default 5m, turns wait on the model).
func New(endpoint, userID string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("SPRINTPILOT_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("SPRINTPILOT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		userID:     userID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status   int
	Category string
	Message  string
}

func (e *APIError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Category)
	}
	return fmt.Sprintf("server error: %d %s", e.Status, e.Message)
}

// Category returns the server's error category, or "" for transport errors.
func Category(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return ""
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(api.UserHeader, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var eb struct {
			Error    string `json:"error"`
			Category string `json:"category"`
		}
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			apiErr.Message, apiErr.Category = eb.Error, eb.Category
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func workspacePath(workspaceID string, parts ...string) string {
	p := "/api/workspaces/" + url.PathEscape(workspaceID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// =============================================================================
// CHAT
// =============================================================================

// ChatInput is one message to the assistant.
type ChatInput struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	EpicID         string `json:"epic_id,omitempty"`
	StartWizard    bool   `json:"start_wizard,omitempty"`
}

// Chat sends a message and waits for the finished turn.
func (c *Client) Chat(ctx context.Context, workspaceID string, in ChatInput) (*service.ChatResult, error) {
	var result service.ChatResult
	if err := c.do(ctx, http.MethodPost, workspacePath(workspaceID, "chat"), in, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ChatStream sends a message over the WebSocket channel and calls onRound
// after every provider call. Returns the finished turn.
func (c *Client) ChatStream(ctx context.Context, workspaceID string, in ChatInput, onRound func(service.RoundEvent)) (*service.ChatResult, error) {
	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + workspacePath(workspaceID, "ws"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if c.userID != "" {
		header.Set(api.UserHeader, c.userID)
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal chat input: %w", err)
	}
	requestID := uuid.NewString()
	if err := conn.WriteJSON(api.Frame{ID: requestID, Type: api.FrameChat, Payload: payload}); err != nil {
		return nil, fmt.Errorf("send chat frame: %w", err)
	}

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var frame api.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if frame.ID != requestID {
			continue
		}

		switch frame.Type {
		case api.FrameRound:
			var ev service.RoundEvent
			if err := json.Unmarshal(frame.Payload, &ev); err != nil {
				return nil, fmt.Errorf("unmarshal round frame: %w", err)
			}
			if onRound != nil {
				onRound(ev)
			}

		case api.FrameResult:
			var result service.ChatResult
			if err := json.Unmarshal(frame.Payload, &result); err != nil {
				return nil, fmt.Errorf("unmarshal result frame: %w", err)
			}
			return &result, nil

		case api.FrameError:
			var ep api.ErrorPayload
			if err := json.Unmarshal(frame.Payload, &ep); err != nil {
				return nil, fmt.Errorf("chat error: %s", string(frame.Payload))
			}
			return nil, &APIError{Category: ep.Category, Message: ep.Message}
		}
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListOptions narrows ListConversations.
type ListOptions struct {
	ProjectID       string
	Mine            bool
	IncludeArchived bool
	Limit           int
}

// ListConversations returns the workspace's conversations.
func (c *Client) ListConversations(ctx context.Context, workspaceID string, opts ListOptions) ([]models.Conversation, error) {
	q := url.Values{}
	if opts.ProjectID != "" {
		q.Set("project_id", opts.ProjectID)
	}
	if opts.Mine {
		q.Set("mine", "true")
	}
	if opts.IncludeArchived {
		q.Set("archived", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := workspacePath(workspaceID, "conversations")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Conversations, nil
}

// GetConversation returns a conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, workspaceID, id string) (*models.ConversationWithMessages, error) {
	var conv models.ConversationWithMessages
	if err := c.do(ctx, http.MethodGet, workspacePath(workspaceID, "conversations", id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateConversation renames or archives a conversation.
func (c *Client) UpdateConversation(ctx context.Context, workspaceID, id string, update models.ConversationUpdate) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPatch, workspacePath(workspaceID, "conversations", id), update, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, workspaceID, id string) error {
	return c.do(ctx, http.MethodDelete, workspacePath(workspaceID, "conversations", id), nil, nil)
}

// =============================================================================
// SETTINGS & USAGE
// =============================================================================

// GetSettings returns the workspace's assistant settings.
func (c *Client) GetSettings(ctx context.Context, workspaceID string) (*models.Settings, error) {
	var st models.Settings
	if err := c.do(ctx, http.MethodGet, workspacePath(workspaceID, "settings"), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateSettings changes the workspace's assistant settings.
func (c *Client) UpdateSettings(ctx context.Context, workspaceID string, update models.SettingsUpdate) (*models.Settings, error) {
	var st models.Settings
	if err := c.do(ctx, http.MethodPatch, workspacePath(workspaceID, "settings"), update, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetUsage returns this month's usage report.
func (c *Client) GetUsage(ctx context.Context, workspaceID string) (*usage.Report, error) {
	var r usage.Report
	if err := c.do(ctx, http.MethodGet, workspacePath(workspaceID, "usage"), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetServerStats returns the server's in-memory runtime statistics.
func (c *Client) GetServerStats(ctx context.Context) (*metrics.Snapshot, error) {
	var s metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
