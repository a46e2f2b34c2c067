package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/service"
)

// categoryOf extends service.Category with transport decoding errors.
func categoryOf(err error) string {
	if errors.Is(err, errBadRequest) {
		return "invalid_input"
	}
	return service.Category(err)
}

// chatBody is the JSON body of POST /chat. Workspace and user come from the
// path and header.
type chatBody struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	EpicID         string `json:"epic_id,omitempty"`
	StartWizard    bool   `json:"start_wizard,omitempty"`
}

func (b chatBody) request(workspaceID, userID string) service.ChatRequest {
	return service.ChatRequest{
		WorkspaceID:    workspaceID,
		UserID:         userID,
		Message:        b.Message,
		ConversationID: b.ConversationID,
		ProjectID:      b.ProjectID,
		EpicID:         b.EpicID,
		StartWizard:    b.StartWizard,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.app.Chat.Chat(r.Context(), body.request(r.PathValue("ws"), r.Header.Get(UserHeader)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ConversationFilter{IncludeArchived: q.Get("archived") == "true"}
	if p := q.Get("project_id"); p != "" {
		filter.ProjectID = &p
	}
	if q.Get("mine") == "true" {
		user := r.Header.Get(UserHeader)
		filter.CreatedBy = &user
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", service.ErrInvalidInput))
			return
		}
		filter.Limit = n
	}

	convs, err := s.app.Conversations.List(r.Context(), r.PathValue("ws"), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title     *string `json:"title,omitempty"`
		ProjectID *string `json:"project_id,omitempty"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	conv, err := s.app.Conversations.Create(r.Context(), models.ConversationInput{
		WorkspaceID: r.PathValue("ws"),
		CreatedBy:   r.Header.Get(UserHeader),
		Title:       body.Title,
		ProjectID:   body.ProjectID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.app.Conversations.Get(r.Context(), r.PathValue("ws"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var update models.ConversationUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		s.writeError(w, r, err)
		return
	}
	conv, err := s.app.Conversations.Update(r.Context(), r.PathValue("ws"), r.PathValue("id"), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Conversations.Delete(r.Context(), r.PathValue("ws"), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Settings.Get(r.Context(), r.PathValue("ws"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update models.SettingsUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.app.Settings.Update(r.Context(), r.PathValue("ws"), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Usage.Report(r.Context(), r.PathValue("ws"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Metrics.Snapshot())
}
